package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable, e.g. COSTPILOT_LICENSE_PATH
const EnvPrefix = "COSTPILOT"

// Config represents the complete configuration of the Pro gate
type Config struct {
	License   LicenseConfig   `yaml:"license" envconfig:"LICENSE"`
	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	Bundle    BundleConfig    `yaml:"bundle" envconfig:"BUNDLE"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// LicenseConfig locates the license file and controls failure verbosity
type LicenseConfig struct {
	Path string `yaml:"path" split_words:"true" validate:"required"`
	// Debug surfaces validation failure reasons instead of silently
	// degrading to the free edition.
	Debug bool `yaml:"debug" split_words:"true"`
}

// RateLimitConfig contains brute-force throttling configuration
type RateLimitConfig struct {
	MaxAttempts int           `yaml:"max_attempts" split_words:"true" validate:"min=1"`
	Window      time.Duration `yaml:"window" split_words:"true" validate:"gt=0s"`
	LockTimeout time.Duration `yaml:"lock_timeout" split_words:"true" validate:"gte=0s"`
	StateFile   string        `yaml:"state_file" split_words:"true" validate:"required"`
}

// BundleConfig locates the encrypted Pro Engine bundle
type BundleConfig struct {
	Path           string `yaml:"path" split_words:"true"`
	MaxSize        int64  `yaml:"max_size" split_words:"true" validate:"gt=0"`
	MachineBinding bool   `yaml:"machine_binding" split_words:"true"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" split_words:"true" validate:"oneof=debug info warn error"`
	Format   string `yaml:"format" split_words:"true" validate:"oneof=json text"`
	Output   string `yaml:"output" split_words:"true" validate:"oneof=stderr file both"`
	FilePath string `yaml:"file_path" split_words:"true"`
}

// TelemetryConfig controls OpenTelemetry tracing and metric export
type TelemetryConfig struct {
	Tracing         bool   `yaml:"tracing" split_words:"true"`
	TraceExporter   string `yaml:"trace_exporter" split_words:"true" validate:"oneof=stdout none"`
	MetricsTextfile string `yaml:"metrics_textfile" split_words:"true"`
}

// Load builds the configuration from defaults, an optional YAML file and
// environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	return LoadFrom(findConfigFile())
}

// LoadFrom is Load with an explicit config file path. An empty path skips the
// file layer.
func LoadFrom(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Nested fields carry no envconfig tag so lookups never fall back to
	// bare names like PATH. Unset variables leave file/default values.
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFromFile overlays YAML values onto cfg
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate checks ranges and enumerations
func (c *Config) Validate() error {
	if c.Logging.Output != "stderr" && c.Logging.FilePath == "" {
		return fmt.Errorf("logging.file_path is required when output is %q", c.Logging.Output)
	}
	return validator.New().Struct(c)
}

// Default returns default configuration
func Default() *Config {
	paths := DefaultPaths()
	return &Config{
		License: LicenseConfig{
			Path: paths.LicenseFile,
		},
		RateLimit: RateLimitConfig{
			MaxAttempts: DefaultMaxAttempts,
			Window:      DefaultAttemptWindow,
			LockTimeout: DefaultLockTimeout,
			StateFile:   paths.AttemptStateFile,
		},
		Bundle: BundleConfig{
			Path:    paths.BundleFile,
			MaxSize: DefaultMaxBundleSize,
		},
		Logging: LoggingConfig{
			Level:    "warn",
			Format:   "json",
			Output:   "stderr",
			FilePath: paths.LogFile,
		},
		Telemetry: TelemetryConfig{
			TraceExporter: "none",
		},
	}
}
