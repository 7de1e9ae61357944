package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  any
		want Value
	}{
		{"nil", nil, nil},
		{"string", "Deep Learning", Text("Deep Learning")},
		{"float", 12.0, Number(12)},
		{"int", 7, Number(7)},
		{"json number", json.Number("3.5"), Number(3.5)},
		{"bool", true, Bool(true)},
		{"string slice", []string{"a", "b"}, List{Text("a"), Text("b")}},
		{"mixed list", []any{"x", 2.0}, List{Text("x"), Number(2)}},
		{"name", map[string]any{"family": "LeCun", "given": "Yann"}, Name{Family: "LeCun", Given: "Yann"}},
		{"literal name", map[string]any{"literal": "World Health Organization"}, Name{Literal: "World Health Organization"}},
		{"date", map[string]any{"date-parts": []any{[]any{2015.0, 5.0}}}, Date{DateParts: [][]any{{2015.0, 5.0}}}},
		{"raw date", map[string]any{"raw": "Spring 2015"}, Date{Raw: "Spring 2015"}},
		{"object", map[string]any{"foo": "bar"}, Object{"foo": "bar"}},
		{"already typed", Text("x"), Text("x")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseValue(tt.raw))
		})
	}
}

func TestParseValue_TypedStruct(t *testing.T) {
	t.Parallel()

	type author struct {
		Family string `json:"family"`
	}
	assert.Equal(t, Name{Family: "Hinton"}, ParseValue(author{Family: "Hinton"}))
	assert.Nil(t, ParseValue(make(chan int)))
}

func TestMeaningful(t *testing.T) {
	t.Parallel()

	assert.False(t, Meaningful(nil))
	assert.False(t, Meaningful(Text("")))
	assert.False(t, Meaningful(List{}))
	assert.False(t, Meaningful(Object{}))
	assert.False(t, Meaningful(Name{}))
	assert.False(t, Meaningful(Date{}))

	assert.True(t, Meaningful(Text("x")))
	assert.True(t, Meaningful(Number(0)))
	assert.True(t, Meaningful(Bool(false)))
	assert.True(t, Meaningful(List{Text("")}))
	assert.True(t, Meaningful(Name{Family: "Bengio"}))
	assert.True(t, Meaningful(Date{Raw: "2015"}))
}

func TestMetadataJSON(t *testing.T) {
	t.Parallel()

	raw := `{
		"title": "Deep learning",
		"author": [{"family": "LeCun", "given": "Yann"}, {"family": "Bengio"}],
		"issued": {"date-parts": [[2015, 5, 28]]},
		"volume": 521,
		"page": "436-444",
		"custom": {"anything": true}
	}`

	var md Metadata
	require.NoError(t, json.Unmarshal([]byte(raw), &md))

	assert.Equal(t, Text("Deep learning"), md["title"])
	assert.Equal(t, List{Name{Family: "LeCun", Given: "Yann"}, Name{Family: "Bengio"}}, md["author"])
	assert.Equal(t, Number(521), md["volume"])
	assert.IsType(t, Date{}, md["issued"])
	assert.Equal(t, Object{"anything": true}, md["custom"])
	assert.Equal(t, []string{"author", "custom", "issued", "page", "title", "volume"}, md.Fields())

	data, err := json.Marshal(md)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(data))
}

func TestMetadataJSON_Invalid(t *testing.T) {
	t.Parallel()

	var md Metadata
	assert.Error(t, json.Unmarshal([]byte(`["not", "an", "object"]`), &md))
}

func TestStringify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   Value
		want string
	}{
		{"nil", nil, ""},
		{"text", Text("Nature"), "Nature"},
		{"integer", Number(521), "521"},
		{"fraction", Number(2.5), "2.5"},
		{"bool", Bool(true), "true"},
		{"name", Name{Given: "Ludwig", NonDroppingParticle: "van", Family: "Beethoven"}, "Ludwig van Beethoven"},
		{"literal name", Name{Literal: "WHO", Family: "ignored"}, "WHO"},
		{"authors", List{Name{Given: "Yann", Family: "LeCun"}, Name{Family: "Bengio"}}, "Yann LeCun Bengio"},
		{"date parts", Date{DateParts: [][]any{{2015.0, 5.0, 28.0}}}, "2015-5-28"},
		{"raw date wins", Date{Raw: "May 2015", DateParts: [][]any{{2015.0}}}, "May 2015"},
		{"literal date", Date{Literal: "n.d."}, "n.d."},
		{"season", Date{Season: "Spring", DateParts: [][]any{{2015.0}}}, "Spring"},
		{"circa", Date{Circa: true, DateParts: [][]any{{1850.0}}}, "ca. 1850"},
		{"circa string", Date{Circa: "approx.", DateParts: [][]any{{1850.0}}}, "approx. 1850"},
		{"empty date", Date{}, ""},
		{"object", Object{"a": 1.0}, `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Stringify(tt.in))
		})
	}
}

func TestMatchDetails_FieldScore(t *testing.T) {
	t.Parallel()

	d := MatchDetails{FieldDetails: []FieldDetail{{Field: "title", Score: 90}}, OverallScore: 32}
	score, ok := d.FieldScore("title")
	assert.True(t, ok)
	assert.Equal(t, 90, score)

	_, ok = d.FieldScore("DOI")
	assert.False(t, ok)
}

func TestPhaseTerminal(t *testing.T) {
	t.Parallel()

	for _, p := range []Phase{PhaseDone, PhaseError, PhaseCancelled} {
		assert.True(t, p.Terminal(), p)
	}
	for _, p := range []Phase{PhaseIdle, PhaseSearching, PhaseMatching} {
		assert.False(t, p.Terminal(), p)
	}
}

func TestVerificationState_Score(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, VerificationState{}.Score())
	score := 87
	assert.Equal(t, 87, VerificationState{BestScore: &score}.Score())
}
