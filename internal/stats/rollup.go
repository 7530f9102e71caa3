package stats

import (
	"sort"
	"strings"
)

// Rollup groups municipalities by region code. Within a region the top
// municipality per provider is the one with the highest count; ties go to
// the lexicographically smallest name, then the smallest code. Regions are
// ordered by provider A's total count, descending, then by region name.
func Rollup(all []MunicipalityStats) []RegionalRollup {
	groups := make(map[string][]MunicipalityStats)
	var order []string
	for _, m := range all {
		if _, ok := groups[m.RegionCode]; !ok {
			order = append(order, m.RegionCode)
		}
		groups[m.RegionCode] = append(groups[m.RegionCode], m)
	}

	out := make([]RegionalRollup, 0, len(order))
	for _, code := range order {
		members := groups[code]
		sort.Slice(members, func(i, j int) bool { return members[i].Code < members[j].Code })

		r := RegionalRollup{RegionCode: code, Municipalities: len(members)}
		for _, m := range members {
			if r.RegionName == "" {
				r.RegionName = m.RegionName
			}
		}
		r.A = rollProvider(members, func(m MunicipalityStats) ProviderStats { return m.A })
		r.B = rollProvider(members, func(m MunicipalityStats) ProviderStats { return m.B })
		out = append(out, r)
	}

	SortRegions(out)
	return out
}

// SortRegions applies the rollup ordering in place.
func SortRegions(rs []RegionalRollup) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].A.TotalCount != rs[j].A.TotalCount {
			return rs[i].A.TotalCount > rs[j].A.TotalCount
		}
		if rs[i].RegionName != rs[j].RegionName {
			return rs[i].RegionName < rs[j].RegionName
		}
		return rs[i].RegionCode < rs[j].RegionCode
	})
}

func rollProvider(members []MunicipalityStats, pick func(MunicipalityStats) ProviderStats) ProviderRollup {
	var r ProviderRollup
	for i, m := range members {
		p := pick(m)
		r.TotalCount += p.Count
		r.TotalAreaKm2 += p.TotalAreaKm2()
		r.UsefulAreaKm2 += p.UsefulAreaKm2()
		cand := TopMunicipality{Code: m.Code, Name: m.Name, Count: p.Count}
		if i == 0 || BetterTop(cand, r.Top) {
			r.Top = cand
		}
	}
	if len(members) > 0 {
		r.AvgCount = float64(r.TotalCount) / float64(len(members))
	}
	return r
}

// BetterTop reports whether a outranks b as a region's top municipality.
func BetterTop(a, b TopMunicipality) bool {
	if a.Count != b.Count {
		return a.Count > b.Count
	}
	if c := strings.Compare(a.Name, b.Name); c != 0 {
		return c < 0
	}
	return a.Code < b.Code
}
