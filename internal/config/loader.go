package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):.
//  1. defaults (New())
//  2. file (YAML) if NUDGE_CONFIG is set
//  3. env (prefix NUDGE_)
func Load(ctx context.Context) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	base := New()

	k := koanf.New(".")

	// Load from file if provided
	if path := os.Getenv("NUDGE_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: NUDGE_ADDR, NUDGE_LOG_DATABASE, ...
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("NUDGE_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "nudge_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	// Unmarshal into a copy
	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.LogDatabase == "":
		return fmt.Errorf("%w: log_database must not be empty", ErrInvalidConfig)
	case c.InterventionProbability < 0 || c.InterventionProbability > 1:
		return fmt.Errorf("%w: intervention_probability must be in [0, 1]", ErrInvalidConfig)
	case c.BuildMinCount < 1:
		return fmt.Errorf("%w: build_min_count must be positive", ErrInvalidConfig)
	case c.BuildIncrement < 1:
		return fmt.Errorf("%w: build_increment must be positive", ErrInvalidConfig)
	case c.ReminderSeconds < 1:
		return fmt.Errorf("%w: reminder_seconds must be positive", ErrInvalidConfig)
	}
	for problem, condition := range c.ManuallyAssignedProblems {
		if condition != "intervention" && condition != "control" {
			return fmt.Errorf("%w: manually_assigned_problems[%s] must be intervention or control", ErrInvalidConfig, problem)
		}
	}
	return nil
}
