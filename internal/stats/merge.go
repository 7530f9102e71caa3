package stats

// Merge combines both providers' results for one municipality. Density and
// coverage are zero when municipalAreaKm2 <= 0; DiffPct is zero when A
// found nothing; AgreementScore is zero when either provider found nothing.
func Merge(a, b ProviderStats, municipalAreaKm2, efficiencyFactor float64) MunicipalityStats {
	a = derive(a, municipalAreaKm2, efficiencyFactor)
	b = derive(b, municipalAreaKm2, efficiencyFactor)

	m := MunicipalityStats{
		AreaKm2:        municipalAreaKm2,
		A:              a,
		B:              b,
		DiffCount:      b.Count - a.Count,
		AgreementScore: Agreement(a.Count, b.Count),
	}
	if a.Count > 0 {
		m.DiffPct = float64(m.DiffCount) / float64(a.Count) * 100
	}
	return m
}

func derive(p ProviderStats, areaKm2, efficiency float64) ProviderStats {
	p.UsefulAreaM2 = p.TotalAreaM2 * efficiency
	p.DensityPerKm2 = 0
	p.CoveragePct = 0
	if areaKm2 > 0 {
		p.DensityPerKm2 = float64(p.Count) / areaKm2
		p.CoveragePct = p.TotalAreaKm2() / areaKm2 * 100
	}
	return p
}

// Agreement is min/max of two counts, in [0,1]; 0 when either is zero.
func Agreement(countA, countB int64) float64 {
	if countA <= 0 || countB <= 0 {
		return 0
	}
	return float64(min(countA, countB)) / float64(max(countA, countB))
}
