// Package config loads rooftop-cli settings from config.yaml, .env and
// ROOFTOP_* environment variables.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Aggregate AggregateConfig `yaml:"aggregate" mapstructure:"aggregate"`
	Sources   SourcesConfig   `yaml:"sources" mapstructure:"sources"`
	Export    ExportConfig    `yaml:"export" mapstructure:"export"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
}

// StoreConfig configures the results store and the PostGIS connection.
type StoreConfig struct {
	// Driver is postgres, sqlite or memory.
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	// SQLitePath is the results file used by the sqlite driver.
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns   int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns   int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// AggregateConfig tunes the containment strategies and the reconciler.
type AggregateConfig struct {
	EfficiencyFactor   float64 `yaml:"efficiency_factor" mapstructure:"efficiency_factor"`
	SampleLimit        int     `yaml:"sample_limit" mapstructure:"sample_limit"`
	Strategy           string  `yaml:"strategy" mapstructure:"strategy"`
	ExactMaxRecords    int64   `yaml:"exact_max_records" mapstructure:"exact_max_records"`
	RequireExact       bool    `yaml:"require_exact" mapstructure:"require_exact"`
	MinConfidence      float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
	Concurrency        int     `yaml:"concurrency" mapstructure:"concurrency"`
	QueryTimeoutSecs   int     `yaml:"query_timeout_secs" mapstructure:"query_timeout_secs"`
	BuildCentroidIndex bool    `yaml:"build_centroid_index" mapstructure:"build_centroid_index"`
	// QueriesPerSecond throttles PostGIS containment queries; 0 is unlimited.
	QueriesPerSecond float64 `yaml:"queries_per_second" mapstructure:"queries_per_second"`
	BreakerThreshold int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownS int     `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// SourcesConfig locates the boundary and building inputs.
type SourcesConfig struct {
	// Backend is file (read inputs into memory) or postgis.
	Backend       string         `yaml:"backend" mapstructure:"backend"`
	Boundaries    string         `yaml:"boundaries" mapstructure:"boundaries"`
	RegionCatalog string         `yaml:"region_catalog" mapstructure:"region_catalog"`
	CatalogOnly   bool           `yaml:"catalog_only" mapstructure:"catalog_only"`
	Fields        FieldsConfig   `yaml:"fields" mapstructure:"fields"`
	ProviderA     ProviderConfig `yaml:"provider_a" mapstructure:"provider_a"`
	ProviderB     ProviderConfig `yaml:"provider_b" mapstructure:"provider_b"`
}

// FieldsConfig names the boundary attributes; empty keeps the defaults.
type FieldsConfig struct {
	Code      string `yaml:"code" mapstructure:"code"`
	Name      string `yaml:"name" mapstructure:"name"`
	DeptName  string `yaml:"dept_name" mapstructure:"dept_name"`
	Region    string `yaml:"region" mapstructure:"region"`
	Subregion string `yaml:"subregion" mapstructure:"subregion"`
	Area      string `yaml:"area" mapstructure:"area"`
}

// ProviderConfig describes one building dataset.
type ProviderConfig struct {
	Name string `yaml:"name" mapstructure:"name"`
	Path string `yaml:"path" mapstructure:"path"`
	// Format is geojsonl or csv.
	Format string `yaml:"format" mapstructure:"format"`
	Table  string `yaml:"table" mapstructure:"table"`
}

// ExportConfig configures the deliverables.
type ExportConfig struct {
	Dir     string   `yaml:"dir" mapstructure:"dir"`
	Formats []string `yaml:"formats" mapstructure:"formats"`
}

// RetryConfig configures retries of transient query failures.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ROOFTOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Every key gets one so AutomaticEnv can override it.
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "rooftop.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("aggregate.efficiency_factor", 0.476)
	v.SetDefault("aggregate.sample_limit", 1000)
	v.SetDefault("aggregate.strategy", "auto")
	v.SetDefault("aggregate.exact_max_records", 250000)
	v.SetDefault("aggregate.require_exact", false)
	v.SetDefault("aggregate.min_confidence", 0.65)
	v.SetDefault("aggregate.concurrency", 4)
	v.SetDefault("aggregate.query_timeout_secs", 60)
	v.SetDefault("aggregate.build_centroid_index", true)
	v.SetDefault("aggregate.queries_per_second", 0)
	v.SetDefault("aggregate.breaker_threshold", 5)
	v.SetDefault("aggregate.breaker_cooldown_secs", 30)
	v.SetDefault("sources.backend", "postgis")
	v.SetDefault("sources.boundaries", "")
	v.SetDefault("sources.region_catalog", "")
	v.SetDefault("sources.catalog_only", false)
	for _, k := range []string{"code", "name", "dept_name", "region", "subregion", "area"} {
		v.SetDefault("sources.fields."+k, "")
	}
	v.SetDefault("sources.provider_a.name", "google")
	v.SetDefault("sources.provider_a.path", "")
	v.SetDefault("sources.provider_a.format", "geojsonl")
	v.SetDefault("sources.provider_a.table", "buildings_a")
	v.SetDefault("sources.provider_b.name", "microsoft")
	v.SetDefault("sources.provider_b.path", "")
	v.SetDefault("sources.provider_b.format", "csv")
	v.SetDefault("sources.provider_b.table", "buildings_b")
	v.SetDefault("export.dir", "out")
	v.SetDefault("export.formats", []string{"csv", "xlsx", "geojson"})
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 250)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
