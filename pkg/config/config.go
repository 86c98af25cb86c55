// Package config loads and validates orchestration engine settings.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}

	*d = Duration(parsed)

	return nil
}

// Std converts to the standard library type.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds the tunables of the orchestration engine. Every field has a
// working default; a YAML file overrides selectively.
type Config struct {
	// MaxIterations bounds the plan-execute-analyze loop per user request.
	MaxIterations int `yaml:"max_iterations" validate:"required,min=1,max=100"`

	// ConfidenceThreshold gates planner and classifier decisions; below it
	// the engine asks the user instead of guessing.
	ConfidenceThreshold float64 `yaml:"confidence_threshold" validate:"min=0,max=1"`

	// StepTimeout bounds a single dispatch to a domain agent.
	StepTimeout Duration `yaml:"step_timeout" validate:"required"`

	// MaxRetries is the per-step retry budget for transient agent failures.
	MaxRetries int `yaml:"max_retries" validate:"min=0,max=10"`

	// RetryBackoff is the base delay between retries, doubled per attempt.
	RetryBackoff Duration `yaml:"retry_backoff"`

	ActiveTTL    Duration `yaml:"active_ttl"    validate:"required"`
	CompletedTTL Duration `yaml:"completed_ttl" validate:"required"`
	DraftTTL     Duration `yaml:"draft_ttl"     validate:"required"`

	// Domains maps domain names to agent endpoint URLs.
	Domains map[string]string `yaml:"domains" validate:"dive,url"`
}

// Default returns the engine defaults.
func Default() *Config {
	return &Config{
		MaxIterations:       10,
		ConfidenceThreshold: 0.5,
		StepTimeout:         Duration(10 * time.Second),
		MaxRetries:          2,
		RetryBackoff:        Duration(500 * time.Millisecond),
		ActiveTTL:           Duration(3600 * time.Second),
		CompletedTTL:        Duration(86400 * time.Second),
		DraftTTL:            Duration(300 * time.Second),
		Domains:             map[string]string{},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration against its constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	return nil
}
