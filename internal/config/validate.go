package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/jeffnawroth/source-taster/internal/matching"
	"github.com/jeffnawroth/source-taster/internal/verify"
)

// ValidationError lists every problem found in a configuration.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "config: invalid settings: " + strings.Join(e.Problems, "; ")
}

// ValidateSettings checks matching settings before they reach the matcher.
func ValidateSettings(s matching.Settings) error {
	if problems := s.Problems(); len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// Validate checks the configuration for the given mode: "match", "verify"
// or "serve".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "match":
	case "verify":
		problems = append(problems, c.verifyProblems()...)
	case "serve":
		problems = append(problems, c.verifyProblems()...)
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, fmt.Sprintf("server.port must be between 1 and 65535, got %d", c.Server.Port))
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	problems = append(problems, c.Matching.Problems()...)
	if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 64 {
		problems = append(problems, fmt.Sprintf("batch.concurrency must be between 1 and 64, got %d", c.Batch.Concurrency))
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func (c *Config) verifyProblems() []string {
	var problems []string
	if t := c.Verify.EarlyTermination.Threshold; t < 0 || t > 100 {
		problems = append(problems, fmt.Sprintf("verify.early_termination.threshold must be between 0 and 100, got %d", t))
	}
	if _, err := verify.ParseFailurePolicy(c.Verify.FailurePolicy); err != nil {
		problems = append(problems, fmt.Sprintf("verify.failure_policy must be isolate or abort, got %q", c.Verify.FailurePolicy))
	}
	if c.Sources.RatePerSec < 0 {
		problems = append(problems, "sources.rate_per_sec must be >= 0")
	}
	if c.Cache.Path != "" && c.Cache.TTLHours <= 0 {
		problems = append(problems, "cache.ttl_hours must be > 0 when cache.path is set")
	}
	return problems
}

// LoadSettingsFile reads matching settings from a YAML or JSON file. The
// settings may sit at the top level or under a "matching" key. Fields or
// rules the file leaves out keep their defaults.
func LoadSettingsFile(path string) (matching.Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return matching.Settings{}, eris.Wrapf(err, "config: read settings %s", path)
	}

	var wrapper struct {
		Matching *matching.Settings `yaml:"matching"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return matching.Settings{}, eris.Wrapf(err, "config: parse settings %s", path)
	}

	var s matching.Settings
	if wrapper.Matching != nil {
		s = *wrapper.Matching
	} else if err := yaml.Unmarshal(data, &s); err != nil {
		return matching.Settings{}, eris.Wrapf(err, "config: parse settings %s", path)
	}

	defaults := matching.DefaultSettings()
	if len(s.Fields) == 0 {
		s.Fields = defaults.Fields
	}
	if s.Rules == nil {
		s.Rules = defaults.Rules
	}
	return s, nil
}
