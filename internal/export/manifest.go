package export

import (
	"io"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/rooftop-cli/internal/aggregate"
	"github.com/sells-group/rooftop-cli/internal/stats"
)

// Parameters are the knobs a run was executed with.
type Parameters struct {
	Strategy         string   `yaml:"strategy"`
	RequireExact     bool     `yaml:"require_exact"`
	ExactMaxRecords  int64    `yaml:"exact_max_records"`
	SampleLimit      int      `yaml:"sample_limit"`
	MinConfidence    float64  `yaml:"min_confidence"`
	EfficiencyFactor float64  `yaml:"efficiency_factor"`
	Concurrency      int      `yaml:"concurrency"`
	DryRun           bool     `yaml:"dry_run"`
	Codes            []string `yaml:"codes,omitempty"`
}

// ProviderSummary describes one provider's part of a run.
type ProviderSummary struct {
	Name           string         `yaml:"name"`
	Size           int64          `yaml:"size"`
	CentroidIndex  bool           `yaml:"centroid_index"`
	TotalCount     int64          `yaml:"total_count"`
	StrategyCounts map[string]int `yaml:"strategy_counts"`
	Degraded       int            `yaml:"degraded"`
}

// Manifest records how a result set was produced, including every degraded
// (boundary, provider) pair so operators can rerun them selectively.
type Manifest struct {
	RunID          string                  `yaml:"run_id"`
	StartedAt      time.Time               `yaml:"started_at"`
	FinishedAt     time.Time               `yaml:"finished_at"`
	Parameters     Parameters              `yaml:"parameters"`
	Municipalities int                     `yaml:"municipalities"`
	Regions        int                     `yaml:"regions"`
	Providers      []ProviderSummary       `yaml:"providers"`
	Degradations   []aggregate.Degradation `yaml:"degradations"`
}

// Summarize fills per-provider strategy counts from the result rows. sizes
// and indexed are keyed by provider name.
func Summarize(rows []stats.MunicipalityStats, sizes map[string]int64, indexed map[string]bool) []ProviderSummary {
	byName := make(map[string]*ProviderSummary)
	var order []string
	add := func(p stats.ProviderStats) {
		if p.Provider == "" {
			return
		}
		s, ok := byName[p.Provider]
		if !ok {
			s = &ProviderSummary{
				Name:           p.Provider,
				Size:           sizes[p.Provider],
				CentroidIndex:  indexed[p.Provider],
				StrategyCounts: make(map[string]int),
			}
			byName[p.Provider] = s
			order = append(order, p.Provider)
		}
		s.TotalCount += p.Count
		if p.Degraded {
			s.Degraded++
			return
		}
		s.StrategyCounts[p.Strategy]++
	}
	for _, m := range rows {
		add(m.A)
		add(m.B)
	}
	sort.Strings(order)
	out := make([]ProviderSummary, len(order))
	for i, name := range order {
		out[i] = *byName[name]
	}
	return out
}

// WriteManifest writes m as YAML.
func WriteManifest(w io.Writer, m Manifest) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return eris.Wrap(err, "export: encode manifest")
	}
	return eris.Wrap(enc.Close(), "export: close manifest")
}

// ReadManifest parses a manifest written by WriteManifest.
func ReadManifest(r io.Reader) (Manifest, error) {
	var m Manifest
	if err := yaml.NewDecoder(r).Decode(&m); err != nil {
		return m, eris.Wrap(err, "export: decode manifest")
	}
	return m, nil
}
