package model

import (
	"encoding/json"
	"sort"
	"strconv"
)

// Value is a single metadata value. It is one of Text, Number, Bool, Name,
// Date, List or Object. A nil Value means the field is missing.
type Value interface {
	isValue()
}

// Text is a plain string value.
type Text string

// Number is a numeric value (CSL allows volume, issue, etc. as numbers).
type Number float64

// Bool is a boolean value.
type Bool bool

// List is an ordered array of values (e.g. an author list).
type List []Value

// Object is an arbitrary JSON object that is neither a name nor a date.
type Object map[string]any

// Name is a CSL name variable.
type Name struct {
	Family              string `json:"family,omitempty"`
	Given               string `json:"given,omitempty"`
	NonDroppingParticle string `json:"non-dropping-particle,omitempty"`
	DroppingParticle    string `json:"dropping-particle,omitempty"`
	Suffix              string `json:"suffix,omitempty"`
	Literal             string `json:"literal,omitempty"`
}

// Date is a CSL date variable. Circa is either a bool or a literal string.
type Date struct {
	DateParts [][]any `json:"date-parts,omitempty"`
	Season    any     `json:"season,omitempty"`
	Circa     any     `json:"circa,omitempty"`
	Literal   string  `json:"literal,omitempty"`
	Raw       string  `json:"raw,omitempty"`
}

func (Text) isValue()   {}
func (Number) isValue() {}
func (Bool) isValue()   {}
func (List) isValue()   {}
func (Object) isValue() {}
func (Name) isValue()   {}
func (Date) isValue()   {}

var dateKeys = []string{"date-parts", "raw", "season", "circa"}

var nameKeys = []string{"family", "given", "literal", "non-dropping-particle", "dropping-particle", "suffix"}

// ParseValue converts a decoded JSON value (as produced by encoding/json into
// an any) into a Value. Unknown shapes become Object; nil stays nil.
func ParseValue(raw any) Value {
	switch v := raw.(type) {
	case nil:
		return nil
	case Value:
		return v
	case string:
		return Text(v)
	case float64:
		return Number(v)
	case float32:
		return Number(v)
	case int:
		return Number(v)
	case int64:
		return Number(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return Text(v.String())
		}
		return Number(f)
	case bool:
		return Bool(v)
	case []any:
		out := make(List, 0, len(v))
		for _, item := range v {
			out = append(out, ParseValue(item))
		}
		return out
	case []string:
		out := make(List, 0, len(v))
		for _, item := range v {
			out = append(out, Text(item))
		}
		return out
	case map[string]any:
		if hasAnyKey(v, dateKeys) {
			return parseDate(v)
		}
		if hasAnyKey(v, nameKeys) {
			return parseName(v)
		}
		return Object(v)
	default:
		// Re-round-trip anything else through JSON so callers can hand us typed structs.
		data, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return nil
		}
		return ParseValue(generic)
	}
}

func hasAnyKey(m map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

func parseName(m map[string]any) Name {
	str := func(k string) string {
		if s, ok := m[k].(string); ok {
			return s
		}
		return ""
	}
	return Name{
		Family:              str("family"),
		Given:               str("given"),
		NonDroppingParticle: str("non-dropping-particle"),
		DroppingParticle:    str("dropping-particle"),
		Suffix:              str("suffix"),
		Literal:             str("literal"),
	}
}

func parseDate(m map[string]any) Date {
	d := Date{Season: m["season"], Circa: m["circa"]}
	if s, ok := m["raw"].(string); ok {
		d.Raw = s
	}
	if s, ok := m["literal"].(string); ok {
		d.Literal = s
	}
	if parts, ok := m["date-parts"].([]any); ok {
		for _, p := range parts {
			if row, ok := p.([]any); ok {
				d.DateParts = append(d.DateParts, row)
			}
		}
	}
	return d
}

// ToAny converts a Value back into plain JSON-compatible Go values.
func ToAny(v Value) any {
	switch t := v.(type) {
	case nil:
		return nil
	case Text:
		return string(t)
	case Number:
		return float64(t)
	case Bool:
		return bool(t)
	case List:
		out := make([]any, 0, len(t))
		for _, item := range t {
			out = append(out, ToAny(item))
		}
		return out
	case Object:
		return map[string]any(t)
	case Name:
		return t.toMap()
	case Date:
		return t.toMap()
	default:
		return nil
	}
}

func (n Name) toMap() map[string]any {
	m := make(map[string]any)
	set := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	set("family", n.Family)
	set("given", n.Given)
	set("non-dropping-particle", n.NonDroppingParticle)
	set("dropping-particle", n.DroppingParticle)
	set("suffix", n.Suffix)
	set("literal", n.Literal)
	return m
}

func (d Date) toMap() map[string]any {
	m := make(map[string]any)
	if len(d.DateParts) > 0 {
		parts := make([]any, 0, len(d.DateParts))
		for _, row := range d.DateParts {
			parts = append(parts, row)
		}
		m["date-parts"] = parts
	}
	if d.Season != nil {
		m["season"] = d.Season
	}
	if d.Circa != nil {
		m["circa"] = d.Circa
	}
	if d.Literal != "" {
		m["literal"] = d.Literal
	}
	if d.Raw != "" {
		m["raw"] = d.Raw
	}
	return m
}

// Meaningful reports whether v carries data: not nil, not an empty string,
// not an empty list and not an empty object.
func Meaningful(v Value) bool {
	switch t := v.(type) {
	case nil:
		return false
	case Text:
		return t != ""
	case List:
		return len(t) > 0
	case Object:
		return len(t) > 0
	case Name:
		return len(t.toMap()) > 0
	case Date:
		return len(t.toMap()) > 0
	default:
		return true
	}
}

// Metadata maps CSL field names to values.
type Metadata map[string]Value

// UnmarshalJSON decodes a CSL-JSON object into typed values.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Metadata, len(raw))
	for k, v := range raw {
		out[k] = ParseValue(v)
	}
	*m = out
	return nil
}

// MarshalJSON encodes metadata back to CSL-JSON.
func (m Metadata) MarshalJSON() ([]byte, error) {
	raw := make(map[string]any, len(m))
	for k, v := range m {
		raw[k] = ToAny(v)
	}
	return json.Marshal(raw)
}

// Fields returns the field names in sorted order.
func (m Metadata) Fields() []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func formatNumber(n Number) string {
	return strconv.FormatFloat(float64(n), 'f', -1, 64)
}
