// Package normalize implements the text normalization pipeline applied to
// metadata values before they are compared.
//
// Rules always run in a fixed canonical order regardless of the order a caller
// lists them in, because later rules assume the output of earlier ones:
// typography fixes precede identifier extraction, and umlaut folding precedes
// generic accent stripping.
package normalize

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
)

// Rule is the tag of a single normalization transform.
type Rule string

const (
	RuleTypography  Rule = "typography"
	RuleCharacters  Rule = "characters"
	RuleURLs        Rule = "urls"
	RuleIdentifiers Rule = "identifiers"
	RuleUmlauts     Rule = "umlauts"
	RuleAccents     Rule = "accents"
	RuleUnicode     Rule = "unicode"
	RulePunctuation Rule = "punctuation"
	RuleWhitespace  Rule = "whitespace"
	RuleLowercase   Rule = "lowercase"
)

// canonicalOrder is the execution order of all rules.
var canonicalOrder = []Rule{
	RuleTypography,
	RuleCharacters,
	RuleURLs,
	RuleIdentifiers,
	RuleUmlauts,
	RuleAccents,
	RuleUnicode,
	RulePunctuation,
	RuleWhitespace,
	RuleLowercase,
}

// AllRules returns every rule tag in canonical order.
func AllRules() []Rule {
	out := make([]Rule, len(canonicalOrder))
	copy(out, canonicalOrder)
	return out
}

func rank(r Rule) int {
	for i, c := range canonicalOrder {
		if c == r {
			return i
		}
	}
	return -1
}

// Known reports whether r is a recognised rule tag.
func Known(r Rule) bool {
	return rank(r) >= 0
}

// RuleSet is the set of enabled rules.
type RuleSet map[Rule]bool

// NewRuleSet builds a set from rule tags. Unknown tags are kept; use
// ParseRules to reject them.
func NewRuleSet(rules ...Rule) RuleSet {
	rs := make(RuleSet, len(rules))
	for _, r := range rules {
		rs[r] = true
	}
	return rs
}

// ParseRule canonicalizes a configured tag: surrounding blanks are trimmed
// and case is ignored. The result may still be unknown.
func ParseRule(tag string) Rule {
	return Rule(strings.ToLower(strings.TrimSpace(tag)))
}

// ParseRules converts configured tag strings into a RuleSet.
func ParseRules(tags []string) (RuleSet, error) {
	rs := make(RuleSet, len(tags))
	var unknown []string
	for _, t := range tags {
		r := ParseRule(t)
		if r == "" {
			continue
		}
		if !Known(r) {
			unknown = append(unknown, t)
			continue
		}
		rs[r] = true
	}
	if len(unknown) > 0 {
		return nil, eris.Errorf("normalize: unknown rules %s", strings.Join(unknown, ", "))
	}
	return rs, nil
}

// Ordered returns the enabled rules in canonical order, dropping unknown tags.
func (rs RuleSet) Ordered() []Rule {
	out := make([]Rule, 0, len(rs))
	for r, on := range rs {
		if on && Known(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return rank(out[i]) < rank(out[j]) })
	return out
}

// Strings returns the enabled rule tags in canonical order.
func (rs RuleSet) Strings() []string {
	ordered := rs.Ordered()
	out := make([]string, len(ordered))
	for i, r := range ordered {
		out[i] = string(r)
	}
	return out
}

// Pipeline applies an ordered rule list to text. A Pipeline is safe for
// concurrent use; per-call transformer state is created inside Apply.
type Pipeline struct {
	rules  []Rule
	locale language.Tag
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLocale sets the language used by the lowercase rule.
func WithLocale(tag language.Tag) Option {
	return func(p *Pipeline) {
		p.locale = tag
	}
}

// New creates a pipeline for the enabled rules.
func New(rules RuleSet, opts ...Option) *Pipeline {
	p := &Pipeline{
		rules:  rules.Ordered(),
		locale: language.Und,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Rules returns the rules this pipeline runs, in execution order.
func (p *Pipeline) Rules() []Rule {
	out := make([]Rule, len(p.rules))
	copy(out, p.rules)
	return out
}

// Apply runs every enabled rule over text.
func (p *Pipeline) Apply(text string) string {
	for _, r := range p.rules {
		text = p.apply(r, text)
	}
	return text
}

func (p *Pipeline) apply(r Rule, text string) string {
	switch r {
	case RuleTypography:
		return fixTypography(text)
	case RuleCharacters:
		return fixCharacters(text)
	case RuleURLs:
		return normalizeURLs(text)
	case RuleIdentifiers:
		return normalizeIdentifiers(text)
	case RuleUmlauts:
		return foldUmlauts(text)
	case RuleAccents:
		return removeAccents(text)
	case RuleUnicode:
		return canonicalizeUnicode(text)
	case RulePunctuation:
		return stripPunctuation(text)
	case RuleWhitespace:
		return normalizeWhitespace(text)
	case RuleLowercase:
		return lowercase(text, p.locale)
	default:
		return text
	}
}

// Normalize applies the enabled rules to text using the default locale.
func Normalize(text string, rules RuleSet) string {
	return New(rules).Apply(text)
}
