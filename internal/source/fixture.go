package source

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"

	"github.com/jeffnawroth/source-taster/internal/model"
)

// FixtureProvider answers searches from a fixed set of candidates keyed by
// reference id. It stands in for a real database client in the CLI and tests.
type FixtureProvider struct {
	name       string
	candidates map[string][]model.Candidate
}

// NewFixtureProvider builds a provider from in-memory candidates. Every
// candidate is tagged with name as its source.
func NewFixtureProvider(name string, candidates map[string][]model.Candidate) *FixtureProvider {
	tagged := make(map[string][]model.Candidate, len(candidates))
	for refID, cands := range candidates {
		out := make([]model.Candidate, len(cands))
		for i, c := range cands {
			c.Source = name
			out[i] = c
		}
		tagged[refID] = out
	}
	return &FixtureProvider{name: name, candidates: tagged}
}

// LoadFixture reads a JSON object of the form {"<referenceId>": [candidate, …]}.
func LoadFixture(name, path string) (*FixtureProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: read fixture %s", path)
	}
	var candidates map[string][]model.Candidate
	if err := json.Unmarshal(data, &candidates); err != nil {
		return nil, eris.Wrapf(err, "source: parse fixture %s", path)
	}
	return NewFixtureProvider(name, candidates), nil
}

// Name implements Provider.
func (f *FixtureProvider) Name() string { return f.name }

// Search implements Provider.
func (f *FixtureProvider) Search(ctx context.Context, ref model.Reference) ([]model.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cands := f.candidates[ref.ID]
	out := make([]model.Candidate, len(cands))
	copy(out, cands)
	return out, nil
}
