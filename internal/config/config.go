package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

var validate = validator.New()

// Config is the complete application configuration. Values are resolved in
// three layers: built-in defaults, then an optional YAML file, then
// GAMEPULSE_* environment variables. Later layers win.
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Cache     CacheConfig     `yaml:"cache" envconfig:"CACHE"`
	Source    SourceConfig    `yaml:"source" envconfig:"SOURCE"`
	Identity  IdentityConfig  `yaml:"identity" envconfig:"IDENTITY"`
	Series    SeriesConfig    `yaml:"series" envconfig:"SERIES"`
	Report    ReportConfig    `yaml:"report" envconfig:"REPORT"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int             `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration   `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration   `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout     time.Duration   `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" validate:"gt=0"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
	AllowedOrigins  []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" validate:"min=1"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig throttles inbound HTTP requests.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" validate:"gt=0"`
	Burst   int     `yaml:"burst" envconfig:"BURST" validate:"min=1"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
	Format   string `yaml:"format" envconfig:"FORMAT" validate:"oneof=json text"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=stdout file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" validate:"required_if=Output file,required_if=Output both"`
}

// CacheConfig tunes the fetch cache.
type CacheConfig struct {
	// Dir holds the on-disk cache entries. Empty keeps the cache in memory
	// only.
	Dir string `yaml:"dir" envconfig:"DIR"`
	// MemoryCapacity bounds the in-memory LRU entry count.
	MemoryCapacity int `yaml:"memory_capacity" envconfig:"MEMORY_CAPACITY" validate:"min=1"`
	// MaxAge optionally tightens the same-day freshness window. Zero
	// disables the extra bound.
	MaxAge time.Duration `yaml:"max_age" envconfig:"MAX_AGE" validate:"min=0"`
	// Timezone fixes the calendar day used for staleness, e.g. "UTC" or
	// "America/New_York". Empty means the system zone.
	Timezone string `yaml:"timezone" envconfig:"TIMEZONE"`
}

// Location resolves the configured timezone.
func (c CacheConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid cache timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// SourceConfig describes the upstream data source and fetch behavior.
type SourceConfig struct {
	// DataDir is where the CSV replay provider looks for exported rows.
	DataDir string `yaml:"data_dir" envconfig:"DATA_DIR" validate:"required"`
	// FetchTimeout bounds a single upstream fetch.
	FetchTimeout time.Duration `yaml:"fetch_timeout" envconfig:"FETCH_TIMEOUT" validate:"gt=0"`
	// Concurrency caps parallel fetches in a batch run.
	Concurrency int `yaml:"concurrency" envconfig:"CONCURRENCY" validate:"min=1"`
	// RatePerSecond and RateBurst throttle outbound requests.
	RatePerSecond float64 `yaml:"rate_per_second" envconfig:"RATE_PER_SECOND" validate:"gt=0"`
	RateBurst     int     `yaml:"rate_burst" envconfig:"RATE_BURST" validate:"min=1"`
	// Country optionally scopes queries to one market.
	Country string `yaml:"country" envconfig:"COUNTRY"`
}

// IdentityConfig tunes cross-platform identity resolution.
type IdentityConfig struct {
	// MatchPublisher requires the publisher to match as well when falling
	// back to name-based resolution.
	MatchPublisher bool `yaml:"match_publisher" envconfig:"MATCH_PUBLISHER"`
	// SuggestionThreshold is the minimum name similarity for near-duplicate
	// suggestions.
	SuggestionThreshold float64 `yaml:"suggestion_threshold" envconfig:"SUGGESTION_THRESHOLD" validate:"gt=0,lte=1"`
}

// SeriesConfig declares how raw values are normalized.
type SeriesConfig struct {
	// MinorUnit marks upstream revenue as minor currency units (cents).
	// This is a declaration, never detected from the data.
	MinorUnit bool `yaml:"minor_unit" envconfig:"MINOR_UNIT"`
}

// ReportConfig controls generated report output.
type ReportConfig struct {
	OutputDir string `yaml:"output_dir" envconfig:"OUTPUT_DIR" validate:"required"`
	// TopN lists the leader-share cutoffs to report, e.g. 1, 3, 5.
	TopN []int `yaml:"top_n" envconfig:"TOP_N" validate:"min=1,dive,min=1"`
	// Format selects report files to write.
	Format string `yaml:"format" envconfig:"FORMAT" validate:"oneof=csv xlsx both"`
	// GroupBy selects the default grouping dimension.
	GroupBy string `yaml:"group_by" envconfig:"GROUP_BY" validate:"oneof=category publisher all"`
}

// TelemetryConfig controls tracing and metrics.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" envconfig:"ENABLED"`
	ServiceName string `yaml:"service_name" envconfig:"SERVICE_NAME" validate:"required"`
}

// Load resolves the configuration: defaults, then the YAML file at path
// (or a discovered config.yaml when path is empty), then GAMEPULSE_*
// environment variables. The result is validated before it is returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = getConfigFilePath()
	}
	if path != "" {
		if err := overlayFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process("GAMEPULSE", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// overlayFromFile applies the YAML file on top of cfg. Only keys present in
// the file are touched.
func overlayFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// Validate checks the configuration against its declared constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if _, err := c.Cache.Location(); err != nil {
		return err
	}
	return nil
}

// getConfigFilePath probes the conventional config file locations.
func getConfigFilePath() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			AllowedOrigins:  []string{"http://localhost:8080"},
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     100,
				Burst:   50,
			},
		},
		Logging: LoggingConfig{
			Level:    DefaultLogLevel,
			Format:   DefaultLogFormat,
			Output:   "stdout",
			FilePath: "logs/gamepulse.log",
		},
		Cache: CacheConfig{
			Dir:            DefaultCacheDir,
			MemoryCapacity: 1024,
			MaxAge:         0,
			Timezone:       "",
		},
		Source: SourceConfig{
			DataDir:       DefaultDataDir,
			FetchTimeout:  DefaultFetchTimeout,
			Concurrency:   DefaultFetchConcurrency,
			RatePerSecond: DefaultFetchRatePerSecond,
			RateBurst:     DefaultFetchRateBurst,
		},
		Identity: IdentityConfig{
			MatchPublisher:      false,
			SuggestionThreshold: 0.92,
		},
		Series: SeriesConfig{
			MinorUnit: false,
		},
		Report: ReportConfig{
			OutputDir: DefaultReportsDir,
			TopN:      []int{1, 3, 5},
			Format:    "both",
			GroupBy:   "category",
		},
		Telemetry: TelemetryConfig{
			Enabled:     true,
			ServiceName: AppName,
		},
	}
}
