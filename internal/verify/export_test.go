package verify

import (
	"github.com/jeffnawroth/source-taster/internal/matching"
	"github.com/jeffnawroth/source-taster/internal/model"
)

// withRank replaces candidate ranking for every run.
func withRank(fn func(model.Reference, []model.Candidate) []matching.CandidateResult) Option {
	return func(o *Orchestrator) {
		o.ranker = func(matching.Settings) rankFunc { return fn }
	}
}
