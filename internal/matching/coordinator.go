package matching

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/jeffnawroth/source-taster/internal/model"
)

// CandidateResult is one scored candidate.
type CandidateResult struct {
	CandidateID  string             `json:"candidate_id"`
	Source       string             `json:"source,omitempty"`
	MatchDetails model.MatchDetails `json:"match_details"`
}

// MatchReference scores a single candidate against a reference.
func MatchReference(ref model.Reference, cand model.Candidate, settings Settings) model.MatchDetails {
	return NewMatcher(settings).Match(ref.Metadata, cand.Metadata)
}

// EvaluateSingleCandidate scores one candidate. It is the per-candidate step
// of EvaluateAllCandidates, exposed for scoring results as they arrive.
func (m *Matcher) EvaluateSingleCandidate(ref model.Reference, cand model.Candidate) CandidateResult {
	return CandidateResult{
		CandidateID:  cand.ID,
		Source:       cand.Source,
		MatchDetails: m.Match(ref.Metadata, cand.Metadata),
	}
}

// EvaluateAllCandidates scores every candidate and sorts the results by
// descending overall score. Equal scores keep their input order.
func (m *Matcher) EvaluateAllCandidates(ref model.Reference, cands []model.Candidate) []CandidateResult {
	results := make([]CandidateResult, 0, len(cands))
	for _, c := range cands {
		results = append(results, m.EvaluateSingleCandidate(ref, c))
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].MatchDetails.OverallScore > results[j].MatchDetails.OverallScore
	})
	return results
}

// EvaluateSingleCandidate scores one candidate with the given settings.
func EvaluateSingleCandidate(ref model.Reference, cand model.Candidate, settings Settings) CandidateResult {
	return NewMatcher(settings).EvaluateSingleCandidate(ref, cand)
}

// EvaluateAllCandidates scores and ranks candidates with the given settings.
func EvaluateAllCandidates(ref model.Reference, cands []model.Candidate, settings Settings) []CandidateResult {
	return NewMatcher(settings).EvaluateAllCandidates(ref, cands)
}

// Best returns the top result, if any.
func Best(results []CandidateResult) (CandidateResult, bool) {
	if len(results) == 0 {
		return CandidateResult{}, false
	}
	return results[0], true
}

// BatchItem pairs a reference with the candidates to rank for it.
type BatchItem struct {
	Reference  model.Reference   `json:"reference"`
	Candidates []model.Candidate `json:"candidates"`
}

// BatchResult is the ranked outcome for one BatchItem.
type BatchResult struct {
	ReferenceID string            `json:"reference_id"`
	Results     []CandidateResult `json:"results"`
}

// EvaluateBatch ranks candidates for many references concurrently, with at
// most concurrency items in flight. Results keep the order of items.
func EvaluateBatch(ctx context.Context, items []BatchItem, settings Settings, concurrency int) ([]BatchResult, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	m := NewMatcher(settings)
	out := make([]BatchResult, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = BatchResult{
				ReferenceID: item.Reference.ID,
				Results:     m.EvaluateAllCandidates(item.Reference, item.Candidates),
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "matching: evaluate batch")
	}
	return out, nil
}
