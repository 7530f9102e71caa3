package export

import (
	"encoding/json"
	"io"

	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"

	"github.com/sells-group/rooftop-cli/internal/boundary"
	"github.com/sells-group/rooftop-cli/internal/stats"
)

// WriteGeoJSON writes a FeatureCollection of the boundaries that have both a
// geometry and a result row, with the rounded result as properties.
func WriteGeoJSON(w io.Writer, bs []boundary.Boundary, rows []stats.MunicipalityStats) error {
	byCode := make(map[string]stats.MunicipalityStats, len(rows))
	for _, m := range rows {
		byCode[m.Code] = m
	}

	fc := geojson.NewFeatureCollection()
	for _, b := range bs {
		m, ok := byCode[b.Code]
		if !ok || b.Geometry == nil {
			continue
		}
		f := geojson.NewFeature(b.Geometry)
		f.ID = b.Code
		f.Properties = properties(m)
		fc.Append(f)
	}

	data, err := json.Marshal(fc)
	if err != nil {
		return eris.Wrap(err, "export: marshal geojson")
	}
	_, err = w.Write(data)
	return eris.Wrap(err, "export: write geojson")
}

func properties(m stats.MunicipalityStats) geojson.Properties {
	props := geojson.Properties{
		"code":            m.Code,
		"municipality":    m.Name,
		"department":      m.DeptName,
		"region_code":     m.RegionCode,
		"region":          m.RegionName,
		"subregion":       m.Subregion,
		"area_km2":        km2(m.AreaKm2),
		"diff_count":      m.DiffCount,
		"diff_pct":        m2(m.DiffPct),
		"agreement_score": km2(m.AgreementScore),
		"degraded":        m.Degraded(),
	}
	for prefix, p := range map[string]stats.ProviderStats{"a_": m.A, "b_": m.B} {
		props[prefix+"provider"] = p.Provider
		props[prefix+"strategy"] = p.Strategy
		props[prefix+"count"] = p.Count
		props[prefix+"avg_area_m2"] = m2(p.AvgAreaM2)
		props[prefix+"total_area_km2"] = km2(p.TotalAreaKm2())
		props[prefix+"useful_area_km2"] = km2(p.UsefulAreaKm2())
		props[prefix+"density_per_km2"] = m2(p.DensityPerKm2)
		props[prefix+"coverage_pct"] = km2(p.CoveragePct)
		props[prefix+"upper_bound"] = p.UpperBound
	}
	return props
}
