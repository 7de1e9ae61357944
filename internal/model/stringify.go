package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Stringify renders a metadata value as a single comparable string. It never
// fails: missing values become "", and unknown objects fall back to JSON.
func Stringify(v Value) string {
	switch t := v.(type) {
	case nil:
		return ""
	case Text:
		return string(t)
	case Number:
		return formatNumber(t)
	case Bool:
		if t {
			return "true"
		}
		return "false"
	case List:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, Stringify(item))
		}
		return strings.Join(parts, " ")
	case Name:
		return stringifyName(t)
	case Date:
		return stringifyDate(t)
	case Object:
		data, err := json.Marshal(map[string]any(t))
		if err != nil {
			return ""
		}
		return string(data)
	default:
		return ""
	}
}

func stringifyName(n Name) string {
	if n.Literal != "" {
		return n.Literal
	}
	var parts []string
	for _, p := range []string{n.Given, n.NonDroppingParticle, n.Family, n.DroppingParticle, n.Suffix} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

func stringifyDate(d Date) string {
	if d.Raw != "" {
		return d.Raw
	}
	if d.Literal != "" {
		return d.Literal
	}
	prefix := circaPrefix(d.Circa)
	if season := scalarString(d.Season); season != "" {
		return prefix + season
	}
	if len(d.DateParts) > 0 && len(d.DateParts[0]) > 0 {
		parts := make([]string, 0, len(d.DateParts[0]))
		for _, p := range d.DateParts[0] {
			parts = append(parts, scalarString(p))
		}
		return prefix + strings.Join(parts, "-")
	}
	return strings.TrimSpace(prefix)
}

// circaPrefix returns "ca. " for circa=true, the literal circa value plus a
// space for string or numeric circa values, and "" otherwise.
func circaPrefix(circa any) string {
	switch c := circa.(type) {
	case nil:
		return ""
	case bool:
		if c {
			return "ca. "
		}
		return ""
	default:
		s := scalarString(c)
		if s == "" {
			return ""
		}
		return s + " "
	}
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return formatNumber(Number(t))
	case int:
		return formatNumber(Number(t))
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(t)
	}
}
