// Package config provides configuration loading for the simulation launch
// service. Settings come from a single optional YAML file; the Redis address
// additionally falls back to the REDIS_ADDR environment variable.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "30s" parse directly.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// RateLimitConfig configures the submit-endpoint token bucket.
type RateLimitConfig struct {
	// Rate is tokens per second; Burst is the bucket capacity.
	Rate  float64 `yaml:"rate"`
	Burst float64 `yaml:"burst"`
}

// RedisConfig configures the asynchronous job queue. Disabled unless an
// address is set.
type RedisConfig struct {
	Addr    string `yaml:"addr"`
	Stream  string `yaml:"stream"`
	Group   string `yaml:"group"`
	Results string `yaml:"results"`
}

// Config is the master configuration for the service.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `yaml:"addr"`

	// WorkspaceRoot is the working directory for the external programs;
	// FunctionsDir and PlotsDir are relative to it.
	WorkspaceRoot string `yaml:"workspace_root"`
	FunctionsDir  string `yaml:"functions_dir"`
	PlotsDir      string `yaml:"plots_dir"`

	// ValidatorPath and GeneratorPath locate the external programs whose
	// exit codes gate the pipeline.
	ValidatorPath string `yaml:"validator_path"`
	GeneratorPath string `yaml:"generator_path"`

	// StageTimeout bounds each external process run. Zero means wait
	// forever, the baseline behavior.
	StageTimeout Duration `yaml:"stage_timeout"`

	// Layers selects the multi-layer generator variant when positive.
	Layers int `yaml:"layers"`

	// Label prefixes duplex channel echo replies.
	Label string `yaml:"label"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Redis     RedisConfig     `yaml:"redis"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Addr:          ":8080",
		WorkspaceRoot: ".",
		FunctionsDir:  "functions/user",
		PlotsDir:      "plots/user",
		ValidatorPath: "./scripts/test_funcs2d",
		GeneratorPath: "./scripts/gen_heatmap",
		Label:         "launchsim",
		RateLimit: RateLimitConfig{
			Rate:  0.5,
			Burst: 5,
		},
		Redis: RedisConfig{
			Stream:  "launchsim:jobs",
			Group:   "launchsim:workers",
			Results: "launchsim:results",
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
// REDIS_ADDR overrides the file's Redis address either way.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields every component depends on.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr must not be empty")
	}
	if c.WorkspaceRoot == "" {
		return fmt.Errorf("workspace_root must not be empty")
	}
	if c.FunctionsDir == "" || c.PlotsDir == "" {
		return fmt.Errorf("functions_dir and plots_dir must not be empty")
	}
	if c.ValidatorPath == "" {
		return fmt.Errorf("validator_path must not be empty")
	}
	if c.GeneratorPath == "" {
		return fmt.Errorf("generator_path must not be empty")
	}
	if c.Layers < 0 {
		return fmt.Errorf("layers must not be negative")
	}
	if c.RateLimit.Rate <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate_limit rate and burst must be positive")
	}
	return nil
}

// QueueEnabled reports whether the asynchronous path is configured.
func (c *Config) QueueEnabled() bool {
	return c.Redis.Addr != ""
}
