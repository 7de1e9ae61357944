package matching

import (
	"math"
	"strings"

	"github.com/jeffnawroth/source-taster/internal/model"
	"github.com/jeffnawroth/source-taster/internal/similarity"
)

// Matcher scores metadata pairs for one set of settings. It is immutable
// after construction and safe for concurrent use.
type Matcher struct {
	fields FieldConfiguration
	scorer *similarity.Scorer
}

// NewMatcher builds a Matcher from settings.
func NewMatcher(settings Settings) *Matcher {
	return &Matcher{
		fields: settings.Fields,
		scorer: settings.Scorer(),
	}
}

// Match scores candidate metadata against reference metadata.
func (m *Matcher) Match(ref, cand model.Metadata) model.MatchDetails {
	return MatchFields(ref, cand, m.fields, m.scorer)
}

// MatchFields compares every enabled field that is meaningful on both sides
// and aggregates the field scores by weight. Field scores are integers in
// [0,100]; the overall score is their weighted average, rounded, or 0 when no
// field could be compared.
func MatchFields(ref, cand model.Metadata, fields FieldConfiguration, scorer *similarity.Scorer) model.MatchDetails {
	details := model.MatchDetails{FieldDetails: []model.FieldDetail{}}

	var weighted float64
	for _, name := range fields.Enabled() {
		rv, cv := ref[name], cand[name]
		if !model.Meaningful(rv) || !model.Meaningful(cv) {
			continue
		}
		score := int(math.Round(100 * compareField(scorer, name, rv, cv)))
		details.FieldDetails = append(details.FieldDetails, model.FieldDetail{Field: name, Score: score})
		weighted += float64(score) * fields[name].Weight
	}

	if len(details.FieldDetails) > 0 {
		details.OverallScore = int(math.Round(weighted / 100))
	}
	return details
}

// compareField picks the comparator for a field: lists on both sides use the
// array comparator, volume and issue use numeric containment, page fields use
// range overlap, and everything else the generic similarity.
func compareField(s *similarity.Scorer, field string, rv, cv model.Value) float64 {
	rl, refList := rv.(model.List)
	cl, candList := cv.(model.List)
	if refList && candList {
		return s.CompareArrays(rl, cl)
	}

	switch strings.ToLower(field) {
	case "volume", "issue":
		return s.Numeric(rv, cv)
	case "page", "pages":
		return s.Pages(rv, cv)
	default:
		return s.Similarity(rv, cv)
	}
}
