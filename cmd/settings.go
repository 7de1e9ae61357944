package main

import (
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/jeffnawroth/source-taster/internal/config"
	"github.com/jeffnawroth/source-taster/internal/matching"
)

// matchingSettings resolves the matching settings for a command: config,
// then --settings file, then individual flags. The result is validated.
func matchingSettings(cmd *cobra.Command) (matching.Settings, error) {
	s := cfg.Matching
	if path, _ := cmd.Flags().GetString("settings"); path != "" {
		loaded, err := config.LoadSettingsFile(path)
		if err != nil {
			return matching.Settings{}, err
		}
		s = loaded
	}

	s, err := applyMatchingOverrides(cmd, s)
	if err != nil {
		return matching.Settings{}, err
	}
	if err := config.ValidateSettings(s); err != nil {
		return matching.Settings{}, err
	}
	return s, nil
}

// applyMatchingOverrides returns a copy of base with CLI flag overrides applied.
func applyMatchingOverrides(cmd *cobra.Command, base matching.Settings) (matching.Settings, error) {
	s := base

	if v, _ := cmd.Flags().GetString("fields"); v != "" {
		fields, err := parseFieldWeights(v)
		if err != nil {
			return matching.Settings{}, err
		}
		s.Fields = fields
	}
	if v, _ := cmd.Flags().GetString("rules"); v != "" {
		if strings.EqualFold(strings.TrimSpace(v), "none") {
			s.Rules = []string{}
		} else {
			s.Rules = splitAndTrim(v)
		}
	}
	if v, _ := cmd.Flags().GetString("locale"); v != "" {
		s.Locale = v
	}

	return s, nil
}

// parseFieldWeights parses "title=60,author=40" into an enabled-only field
// configuration.
func parseFieldWeights(s string) (matching.FieldConfiguration, error) {
	fields := matching.FieldConfiguration{}
	for _, pair := range splitAndTrim(s) {
		name, raw, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, eris.Errorf("fields: %q is not name=weight", pair)
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "fields: weight for %s", name)
		}
		fields[name] = matching.FieldSetting{Enabled: true, Weight: w}
	}
	return fields, nil
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// openOutput returns stdout for an empty path, or a created file.
func openOutput(path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "create output %s", path)
	}
	return f, f.Close, nil
}
