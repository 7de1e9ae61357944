// Package matching scores references against candidate records field by field
// and ranks the candidates by their weighted overall score.
package matching

import (
	"fmt"
	"math"
	"sort"

	"golang.org/x/text/language"

	"github.com/jeffnawroth/source-taster/internal/normalize"
	"github.com/jeffnawroth/source-taster/internal/similarity"
)

// FieldSetting enables a metadata field and sets its share of the overall
// score.
type FieldSetting struct {
	Enabled bool    `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Weight  float64 `json:"weight" yaml:"weight" mapstructure:"weight"`
}

// FieldConfiguration maps CSL field names to their settings.
type FieldConfiguration map[string]FieldSetting

// EnabledWeightSum returns the total weight of enabled fields.
func (fc FieldConfiguration) EnabledWeightSum() float64 {
	var sum float64
	for _, fs := range fc {
		if fs.Enabled {
			sum += fs.Weight
		}
	}
	return sum
}

// Enabled returns the enabled field names, heaviest first, ties by name.
func (fc FieldConfiguration) Enabled() []string {
	names := make([]string, 0, len(fc))
	for name, fs := range fc {
		if fs.Enabled {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		wi, wj := fc[names[i]].Weight, fc[names[j]].Weight
		if wi != wj {
			return wi > wj
		}
		return names[i] < names[j]
	})
	return names
}

// Settings are the matching inputs supplied by the settings store.
type Settings struct {
	Fields FieldConfiguration `json:"fields" yaml:"fields" mapstructure:"fields"`
	Rules  []string           `json:"rules" yaml:"rules" mapstructure:"rules"`
	Locale string             `json:"locale,omitempty" yaml:"locale,omitempty" mapstructure:"locale"`
}

// DefaultSettings returns the built-in field weights (sum = 100) with every
// normalization rule enabled.
func DefaultSettings() Settings {
	rules := normalize.AllRules()
	tags := make([]string, len(rules))
	for i, r := range rules {
		tags[i] = string(r)
	}
	return Settings{
		Fields: FieldConfiguration{
			"title":           {Enabled: true, Weight: 35},
			"author":          {Enabled: true, Weight: 25},
			"issued":          {Enabled: true, Weight: 15},
			"container-title": {Enabled: true, Weight: 10},
			"DOI":             {Enabled: true, Weight: 5},
			"volume":          {Enabled: true, Weight: 4},
			"issue":           {Enabled: true, Weight: 3},
			"page":            {Enabled: true, Weight: 3},
			"publisher":       {Enabled: false, Weight: 0},
			"URL":             {Enabled: false, Weight: 0},
		},
		Rules: tags,
	}
}

// Problems lists everything wrong with s. An empty result means the settings
// satisfy the assumptions the matcher relies on.
func (s Settings) Problems() []string {
	var errs []string

	enabled := 0
	for name, fs := range s.Fields {
		if fs.Weight < 0 || fs.Weight > 100 {
			errs = append(errs, fmt.Sprintf("field %q weight must be between 0 and 100, got %g", name, fs.Weight))
		}
		if fs.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		errs = append(errs, "at least one field must be enabled")
	} else if sum := s.Fields.EnabledWeightSum(); math.Abs(sum-100) > 1e-6 {
		errs = append(errs, fmt.Sprintf("enabled field weights must sum to 100, got %g", sum))
	}

	if _, err := normalize.ParseRules(s.Rules); err != nil {
		errs = append(errs, err.Error())
	}
	if s.Locale != "" {
		if _, err := language.Parse(s.Locale); err != nil {
			errs = append(errs, fmt.Sprintf("locale %q is not a valid language tag", s.Locale))
		}
	}

	sort.Strings(errs)
	return errs
}

// Pipeline builds the normalization pipeline for s. Tags are read the same
// way Problems reads them; unknown ones are ignored, so callers validate
// settings first.
func (s Settings) Pipeline() *normalize.Pipeline {
	rules := make(normalize.RuleSet, len(s.Rules))
	for _, r := range s.Rules {
		rules[normalize.ParseRule(r)] = true
	}
	var opts []normalize.Option
	if s.Locale != "" {
		opts = append(opts, normalize.WithLocale(language.Make(s.Locale)))
	}
	return normalize.New(rules, opts...)
}

// Scorer returns a similarity scorer using the settings' pipeline.
func (s Settings) Scorer() *similarity.Scorer {
	return similarity.NewScorer(s.Pipeline())
}
