// Package rules loads the YAML configuration that tunes tracekit checks.
package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/dkoosis/tracekit/pkg/sarif"
	"github.com/dkoosis/tracekit/pkg/tracestats"
)

// RuleConfig overrides a single rule.
type RuleConfig struct {
	Disabled bool   `yaml:"disabled,omitempty"`
	Level    string `yaml:"level,omitempty"`
}

// Config is the root of the rule file.
type Config struct {
	KernelThreshold int                   `yaml:"kernel_threshold"`
	MinRunLength    int                   `yaml:"min_run_length"`
	HazardClasses   []string              `yaml:"hazard_classes,omitempty"`
	Rules           map[string]RuleConfig `yaml:"rules,omitempty"`
}

// Default returns the configuration used when no rule file is given.
func Default() Config {
	return Config{
		KernelThreshold: tracestats.DefaultKernelThreshold,
		MinRunLength:    tracestats.DefaultMinRunLength,
	}
}

// LoadConfig reads a rule file. An empty path returns Default.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // path supplied by caller
	if err != nil {
		return Config{}, fmt.Errorf("read rules: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates rule YAML, filling unset thresholds with defaults.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode rules: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks thresholds and rule levels.
func (c Config) Validate() error {
	if c.KernelThreshold <= 0 {
		return fmt.Errorf("kernel_threshold must be > 0, got %d", c.KernelThreshold)
	}
	if c.MinRunLength <= 0 {
		return fmt.Errorf("min_run_length must be > 0, got %d", c.MinRunLength)
	}

	ids := make([]string, 0, len(c.Rules))
	for id := range c.Rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		switch c.Rules[id].Level {
		case "", sarif.LevelError, sarif.LevelWarning, sarif.LevelNote:
		default:
			return fmt.Errorf("rule %s: invalid level %q (want error, warning or note)", id, c.Rules[id].Level)
		}
	}
	return nil
}

// Enabled reports whether the rule is active.
func (c Config) Enabled(id string) bool {
	return !c.Rules[id].Disabled
}

// Level returns the configured level for id, or fallback.
func (c Config) Level(id, fallback string) string {
	if lvl := c.Rules[id].Level; lvl != "" {
		return lvl
	}
	return fallback
}

// StatsOptions converts the thresholds for tracestats.
func (c Config) StatsOptions() tracestats.Options {
	return tracestats.Options{KernelThreshold: c.KernelThreshold, MinRunLength: c.MinRunLength}
}

// KnownHazardClass reports whether class belongs to the configured closed set.
// An empty set accepts every class.
func (c Config) KnownHazardClass(class string) bool {
	if len(c.HazardClasses) == 0 {
		return true
	}
	for _, h := range c.HazardClasses {
		if h == class {
			return true
		}
	}
	return false
}

// Marshal renders the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
