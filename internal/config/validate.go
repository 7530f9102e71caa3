package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
)

// Modes accepted by Validate.
const (
	ModeMigrate = "migrate"
	ModeLoad    = "load"
	ModeIndex   = "index"
	ModeRun     = "run"
	ModeReport  = "report"
)

var (
	drivers    = []string{"postgres", "sqlite", "memory"}
	backends   = []string{"file", "postgis"}
	strategies = []string{"auto", "exact", "bbox", "centroid"}
	formats    = []string{"csv", "xlsx", "geojson"}
	bldFormats = []string{"geojsonl", "csv"}
)

// Validate checks the settings a command mode depends on and reports every
// problem at once.
func (c *Config) Validate(mode string) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	needsDB := func() {
		if c.Store.DatabaseURL == "" {
			add("store.database_url is required")
		}
	}
	needsBoundaryFile := func() {
		if c.Sources.Boundaries == "" {
			add("sources.boundaries is required")
		}
	}
	checkProviders := func(withPaths bool) {
		for key, p := range map[string]ProviderConfig{"provider_a": c.Sources.ProviderA, "provider_b": c.Sources.ProviderB} {
			if p.Name == "" {
				add("sources.%s.name is required", key)
			}
			if withPaths && p.Path == "" {
				add("sources.%s.path is required", key)
			}
			if withPaths && !slices.Contains(bldFormats, strings.ToLower(p.Format)) {
				add("sources.%s.format must be one of %v", key, bldFormats)
			}
		}
		if c.Sources.ProviderA.Name != "" && c.Sources.ProviderA.Name == c.Sources.ProviderB.Name {
			add("sources.provider_a.name and sources.provider_b.name must differ")
		}
	}

	if !slices.Contains(drivers, strings.ToLower(c.Store.Driver)) {
		add("store.driver must be one of %v", drivers)
	}

	switch mode {
	case ModeMigrate, ModeIndex:
		needsDB()
	case ModeLoad:
		needsDB()
		checkProviders(false)
	case ModeRun:
		c.validateAggregate(add)
		if !slices.Contains(backends, strings.ToLower(c.Sources.Backend)) {
			add("sources.backend must be one of %v", backends)
		}
		if strings.EqualFold(c.Sources.Backend, "file") {
			needsBoundaryFile()
			checkProviders(true)
		} else {
			needsDB()
			checkProviders(false)
		}
		if strings.EqualFold(c.Store.Driver, "postgres") {
			needsDB()
		}
		c.validateFormats(add)
	case ModeReport:
		if strings.EqualFold(c.Store.Driver, "postgres") {
			needsDB()
		}
		c.validateFormats(add)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		slices.Sort(problems)
		problems = slices.Compact(problems)
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateAggregate(add func(string, ...any)) {
	a := c.Aggregate
	if a.EfficiencyFactor < 0 || a.EfficiencyFactor > 1 {
		add("aggregate.efficiency_factor must be between 0 and 1")
	}
	if a.MinConfidence < 0 || a.MinConfidence > 1 {
		add("aggregate.min_confidence must be between 0 and 1")
	}
	if a.SampleLimit < 1 {
		add("aggregate.sample_limit must be > 0")
	}
	if a.Concurrency < 1 || a.Concurrency > 64 {
		add("aggregate.concurrency must be between 1 and 64")
	}
	if a.QueryTimeoutSecs < 0 {
		add("aggregate.query_timeout_secs must be >= 0")
	}
	if !slices.Contains(strategies, strings.ToLower(a.Strategy)) {
		add("aggregate.strategy must be one of %v", strategies)
	}
}

func (c *Config) validateFormats(add func(string, ...any)) {
	for _, f := range c.Export.Formats {
		if !slices.Contains(formats, strings.ToLower(strings.TrimSpace(f))) {
			add("export.formats: unknown format %q", f)
		}
	}
}
