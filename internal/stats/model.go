// Package stats holds the per-municipality output records and the pure
// functions that derive them: the cross-provider merge and the regional
// rollup. Values are kept at full precision; rounding is left to exporters.
package stats

// DefaultEfficiencyFactor is the installable share of a rooftop:
// orientation 0.7 × slope 0.8 × obstructions 0.85.
const DefaultEfficiencyFactor = 0.476

// ProviderStats is the aggregation result of one provider for one
// municipality, plus the metrics derived from it by Merge.
type ProviderStats struct {
	Provider string `json:"provider" yaml:"provider"`
	Strategy string `json:"strategy" yaml:"strategy"`

	Count              int64   `json:"count" yaml:"count"`
	AvgAreaM2          float64 `json:"avg_area_m2" yaml:"avg_area_m2"`
	TotalAreaM2        float64 `json:"total_area_m2" yaml:"total_area_m2"`
	TotalAreaEstimated bool    `json:"total_area_estimated" yaml:"total_area_estimated"`
	TotalAreaStdErrM2  float64 `json:"total_area_stderr_m2" yaml:"total_area_stderr_m2"`
	SampleSize         int     `json:"sample_size" yaml:"sample_size"`
	UpperBound         bool    `json:"upper_bound" yaml:"upper_bound"`

	UsefulAreaM2  float64 `json:"useful_area_m2" yaml:"useful_area_m2"`
	DensityPerKm2 float64 `json:"density_per_km2" yaml:"density_per_km2"`
	CoveragePct   float64 `json:"coverage_pct" yaml:"coverage_pct"`

	Degraded      bool   `json:"degraded" yaml:"degraded"`
	DegradeReason string `json:"degrade_reason,omitempty" yaml:"degrade_reason,omitempty"`
}

// TotalAreaKm2 is TotalAreaM2 in km².
func (p ProviderStats) TotalAreaKm2() float64 { return p.TotalAreaM2 / 1e6 }

// UsefulAreaKm2 is UsefulAreaM2 in km².
func (p ProviderStats) UsefulAreaKm2() float64 { return p.UsefulAreaM2 / 1e6 }

// MunicipalityStats is the merged record of one municipality.
type MunicipalityStats struct {
	Code       string  `json:"code" yaml:"code"`
	Name       string  `json:"name" yaml:"name"`
	DeptName   string  `json:"dept_name" yaml:"dept_name"`
	RegionCode string  `json:"region_code" yaml:"region_code"`
	RegionName string  `json:"region_name" yaml:"region_name"`
	Subregion  string  `json:"subregion" yaml:"subregion"`
	AreaKm2    float64 `json:"area_km2" yaml:"area_km2"`

	A ProviderStats `json:"a" yaml:"a"`
	B ProviderStats `json:"b" yaml:"b"`

	// DiffCount is B.Count − A.Count.
	DiffCount      int64   `json:"diff_count" yaml:"diff_count"`
	DiffPct        float64 `json:"diff_pct" yaml:"diff_pct"`
	AgreementScore float64 `json:"agreement_score" yaml:"agreement_score"`

	RunID string `json:"run_id" yaml:"run_id"`
}

// Degraded reports whether either provider's result was replaced by zero.
func (m MunicipalityStats) Degraded() bool { return m.A.Degraded || m.B.Degraded }

// TopMunicipality is the municipality with the most buildings for a
// provider within a region.
type TopMunicipality struct {
	Code  string `json:"code" yaml:"code"`
	Name  string `json:"name" yaml:"name"`
	Count int64  `json:"count" yaml:"count"`
}

// ProviderRollup sums one provider over a region.
type ProviderRollup struct {
	TotalCount    int64           `json:"total_count" yaml:"total_count"`
	TotalAreaKm2  float64         `json:"total_area_km2" yaml:"total_area_km2"`
	UsefulAreaKm2 float64         `json:"useful_area_km2" yaml:"useful_area_km2"`
	AvgCount      float64         `json:"avg_count" yaml:"avg_count"`
	Top           TopMunicipality `json:"top" yaml:"top"`
}

// RegionalRollup is one region's summary.
type RegionalRollup struct {
	RegionCode     string         `json:"region_code" yaml:"region_code"`
	RegionName     string         `json:"region_name" yaml:"region_name"`
	Municipalities int            `json:"municipalities" yaml:"municipalities"`
	A              ProviderRollup `json:"a" yaml:"a"`
	B              ProviderRollup `json:"b" yaml:"b"`
}
