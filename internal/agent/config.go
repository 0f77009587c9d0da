package agent

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/statsexporter/internal/driver"
	"github.com/ethpandaops/statsexporter/internal/export"
)

// Config is the top-level configuration for statsexporter.
type Config struct {
	// LogLevel sets the logging verbosity (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// Exporter configures the interval reader feeding the log exporter.
	Exporter export.ReaderConfig `yaml:"exporter"`

	// Driver configures the synthetic load driver.
	Driver driver.Config `yaml:"driver"`

	// Stdout configures the JSON debug exporter.
	Stdout StdoutConfig `yaml:"stdout"`

	// Health configures the Prometheus health metrics server.
	Health export.HealthConfig `yaml:"health"`
}

// StdoutConfig configures the JSON debug exporter.
type StdoutConfig struct {
	// Enabled attaches a second interval reader that writes the raw
	// collected data to stdout as JSON.
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Exporter: export.DefaultReaderConfig(),
		Driver:   driver.DefaultConfig(),
	}
}

// LoadConfig reads and parses a YAML configuration file. An empty path
// yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Exporter.Interval <= 0 {
		return fmt.Errorf("exporter.interval must be positive")
	}

	if c.Exporter.Timeout <= 0 {
		return fmt.Errorf("exporter.timeout must be positive")
	}

	return c.Driver.Validate()
}
