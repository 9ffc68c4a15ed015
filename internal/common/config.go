package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment" validate:"omitempty,oneof=development production"`
	Logging     LoggingConfig    `toml:"logging"`
	Storage     StorageConfig    `toml:"storage"`
	Capture     CaptureConfig    `toml:"capture"`
	Enrichment  EnrichmentConfig `toml:"enrichment"`
	Export      ExportConfig     `toml:"export"`
	Importer    ImporterConfig   `toml:"importer"`
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"omitempty,oneof=debug info warn error"`
	Output []string `toml:"output"` // "stdout", "file"
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
	GCInterval     string `toml:"gc_interval"` // e.g. "5m"; empty disables the GC pass
}

// CaptureConfig drives the in-page capture session.
type CaptureConfig struct {
	BaseURL        string `toml:"base_url" validate:"omitempty,url"` // map search host (default: https://www.google.com/maps)
	UserAgent      string `toml:"user_agent"`
	Headless       bool   `toml:"headless"`
	Debounce       string `toml:"debounce"`        // quiet period after a mutation burst (default "800ms")
	RescanInterval string `toml:"rescan_interval"` // unconditional fallback rescan (default "5s")
	ScrollInterval string `toml:"scroll_interval"` // results-feed auto-scroll cadence (default "2s"; empty disables)
	MaxScrolls     int    `toml:"max_scrolls"`     // feed scroll attempts per session (default 20)
	DetailThrottle string `toml:"detail_throttle"` // detail crawl cycle interval, clamped to >= 1s (default "3s")
	DetailTimeout  string `toml:"detail_timeout"`  // max wait for the detail panel to render (default "10s")
	PollInterval   string `toml:"poll_interval"`   // detail panel readiness poll (default "250ms")
	SessionTimeout string `toml:"session_timeout"` // overall capture run bound (default "30m")
}

// EnrichmentConfig controls the outbound contact-extraction pass.
type EnrichmentConfig struct {
	Enabled         bool   `toml:"enabled"`
	Schedule        string `toml:"schedule"`         // cron expression for background runs; empty = manual only
	RequestDelay    string `toml:"request_delay"`    // fixed pacing between requests (default "300ms")
	RequestTimeout  string `toml:"request_timeout"`  // per-site fetch timeout (default "20s")
	BackoffStep     string `toml:"backoff_step"`     // added per cumulative failure (default "200ms")
	BackoffMax      string `toml:"backoff_max"`      // backoff clamp (default "3s")
	FailureLimit    int    `toml:"failure_limit"`    // hard stop threshold (default 25)
	CheckpointEvery int    `toml:"checkpoint_every"` // persist progress every N items (default 5)
	MaxBodySize     int    `toml:"max_body_size"`    // response body cap in bytes (default 2 MB)
}

type ExportConfig struct {
	Dir string `toml:"dir"`
}

// ImporterConfig holds the external lead-management API settings.
type ImporterConfig struct {
	Endpoint       string `toml:"endpoint" validate:"omitempty,url"`
	APIKey         string `toml:"api_key"`
	RequestTimeout string `toml:"request_timeout"` // default "30s"
	RateLimit      int    `toml:"rate_limit"`      // requests per second (default 2)
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability; only
// user-facing settings need to appear in prospector.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:       "./data",
				GCInterval: "5m",
			},
		},
		Capture: CaptureConfig{
			BaseURL:        "https://www.google.com/maps",
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			Headless:       true,
			Debounce:       "800ms",
			RescanInterval: "5s",
			ScrollInterval: "2s",
			MaxScrolls:     20,
			DetailThrottle: "3s",
			DetailTimeout:  "10s",
			PollInterval:   "250ms",
			SessionTimeout: "30m",
		},
		Enrichment: EnrichmentConfig{
			Enabled:         true,
			RequestDelay:    "300ms",
			RequestTimeout:  "20s",
			BackoffStep:     "200ms",
			BackoffMax:      "3s",
			FailureLimit:    25,
			CheckpointEvery: 5,
			MaxBodySize:     2 * 1024 * 1024,
		},
		Export: ExportConfig{
			Dir: "./exports",
		},
		Importer: ImporterConfig{
			RequestTimeout: "30s",
			RateLimit:      2,
		},
	}
}

// LoadFromFiles loads configuration from defaults, then each file in order
// (later files override earlier ones), then environment variables.
func LoadFromFiles(paths ...string) (*Config, error) {
	cfg := NewDefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies PROSPECTOR_* environment variables on top of the
// file configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PROSPECTOR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PROSPECTOR_DATA_PATH"); v != "" {
		cfg.Storage.Badger.Path = v
	}
	if v := os.Getenv("PROSPECTOR_IMPORT_ENDPOINT"); v != "" {
		cfg.Importer.Endpoint = v
	}
	if v := os.Getenv("PROSPECTOR_IMPORT_API_KEY"); v != "" {
		cfg.Importer.APIKey = v
	}
	if v := os.Getenv("PROSPECTOR_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Capture.Headless = b
		}
	}
}

// Validate checks the configuration using struct validation tags.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var msgs []string
		for _, ferr := range err.(validator.ValidationErrors) {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s", ferr.Namespace(), ferr.Tag()))
		}
		return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// ParseDuration parses a duration config string, falling back to the default
// when the value is empty or malformed.
func ParseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
