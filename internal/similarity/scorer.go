package similarity

import (
	"regexp"
	"strings"

	"github.com/jeffnawroth/source-taster/internal/model"
	"github.com/jeffnawroth/source-taster/internal/normalize"
)

const (
	// BothEmpty is the neutral score when neither side has content.
	BothEmpty = 0.5
	// OneEmpty is the low score when only one side has content.
	OneEmpty = 0.1
)

var integerRun = regexp.MustCompile(`\d+`)

// Scorer compares metadata values after stringifying and normalizing them.
// It holds no mutable state and is safe for concurrent use.
type Scorer struct {
	pipeline *normalize.Pipeline
}

// NewScorer returns a scorer that normalizes with p. A nil pipeline compares
// the stringified values as they are.
func NewScorer(p *normalize.Pipeline) *Scorer {
	if p == nil {
		p = normalize.New(nil)
	}
	return &Scorer{pipeline: p}
}

// Text stringifies and normalizes a value.
func (s *Scorer) Text(v model.Value) string {
	return s.pipeline.Apply(model.Stringify(v))
}

// Similarity is the generic comparator. It is symmetric.
func (s *Scorer) Similarity(a, b model.Value) float64 {
	return CompareStrings(s.Text(a), s.Text(b))
}

// CompareStrings scores two already-normalized strings.
func CompareStrings(a, b string) float64 {
	switch {
	case a == "" && b == "":
		return BothEmpty
	case a == "" || b == "":
		return OneEmpty
	}
	return Ratio(a, b)
}

// CompareArrays averages, over the reference elements, each element's best
// similarity against any candidate element. The result depends on argument
// order: extra candidate elements cost nothing, extra reference elements do.
func (s *Scorer) CompareArrays(ref, cand []model.Value) float64 {
	switch {
	case len(ref) == 0 && len(cand) == 0:
		return BothEmpty
	case len(ref) == 0 || len(cand) == 0:
		return OneEmpty
	}

	candTexts := make([]string, len(cand))
	for i, c := range cand {
		candTexts[i] = s.Text(c)
	}

	var total float64
	for _, r := range ref {
		rt := s.Text(r)
		best := -1.0
		for _, ct := range candTexts {
			if score := CompareStrings(rt, ct); score > best {
				best = score
			}
		}
		total += best
	}
	return total / float64(len(ref))
}

// Numeric scores volume-like fields: 1.0 when the candidate's first integer
// occurs among the reference's integers, otherwise the generic similarity.
func (s *Scorer) Numeric(ref, cand model.Value) float64 {
	rt, ct := s.Text(ref), s.Text(cand)
	if NumericContains(rt, ct) {
		return 1
	}
	return CompareStrings(rt, ct)
}

// NumericContains reports whether the first integer in cand appears among the
// integers in ref. Leading zeros are ignored.
func NumericContains(ref, cand string) bool {
	first := integerRun.FindString(cand)
	if first == "" {
		return false
	}
	first = trimZeros(first)
	for _, n := range integerRun.FindAllString(ref, -1) {
		if trimZeros(n) == first {
			return true
		}
	}
	return false
}

// Pages scores page fields by range overlap, falling back to the generic
// comparator when either side is not a page range. Ranges are parsed from
// the stringified value so dashes survive punctuation rules.
func (s *Scorer) Pages(ref, cand model.Value) float64 {
	if score, ok := PageSimilarity(model.Stringify(ref), model.Stringify(cand)); ok {
		return score
	}
	return s.Similarity(ref, cand)
}

func trimZeros(s string) string {
	t := strings.TrimLeft(s, "0")
	if t == "" {
		return "0"
	}
	return t
}
