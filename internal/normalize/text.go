package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var umlautFolding = strings.NewReplacer(
	"ä", "ae", "ö", "oe", "ü", "ue", "ß", "ss",
	"Ä", "Ae", "Ö", "Oe", "Ü", "Ue", "ẞ", "SS",
	"å", "aa", "Å", "Aa", "æ", "ae", "Æ", "Ae", "ø", "oe", "Ø", "Oe",
)

// caseSpecials are folded before locale lowercasing because cases.Lower
// keeps ß and maps the Kelvin and Angstrom signs inconsistently across tags.
var caseSpecials = strings.NewReplacer(
	"ß", "ss", "ẞ", "ss",
	"\u212A", "k", "\u2126", "ω", "\u212B", "å",
)

// invisible runes removed by the unicode rule.
func invisible(r rune) bool {
	switch r {
	case '\u200B', '\u200C', '\u200D', '\u2060', '\uFEFF', '\u00AD':
		return true
	}
	return false
}

// foldUmlauts expands German and Scandinavian letters to digraphs.
func foldUmlauts(s string) string {
	return umlautFolding.Replace(norm.NFC.String(s))
}

// removeAccents strips combining marks after canonical decomposition.
func removeAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// canonicalizeUnicode drops zero-width and soft-hyphen characters and applies
// NFKC compatibility composition.
func canonicalizeUnicode(s string) string {
	s = strings.Map(func(r rune) rune {
		if invisible(r) {
			return -1
		}
		return r
	}, s)
	return norm.NFKC.String(s)
}

// stripPunctuation keeps letters, digits, whitespace, hyphens and double
// quotes.
func stripPunctuation(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r) || r == '-' || r == '"' {
			return r
		}
		return -1
	}, s)
}

// normalizeWhitespace unifies line endings, keeps paragraph breaks as a
// single blank line, joins wrapped lines and collapses runs of blanks.
func normalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.Trim(line, " \t")
	}
	s = strings.Join(lines, "\n")

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] != '\n' {
			b.WriteByte(s[i])
			i++
			continue
		}
		j := i
		for j < len(s) && s[j] == '\n' {
			j++
		}
		if j-i == 1 {
			b.WriteByte(' ')
		} else {
			b.WriteString("\n\n")
		}
		i = j
	}

	s = b.String()
	var out strings.Builder
	out.Grow(len(s))
	pendingSpace := false
	for _, r := range s {
		if r == '\n' {
			pendingSpace = false
			out.WriteRune(r)
			continue
		}
		if unicode.IsSpace(r) {
			pendingSpace = true
			continue
		}
		if pendingSpace && out.Len() > 0 {
			out.WriteByte(' ')
		}
		pendingSpace = false
		out.WriteRune(r)
	}
	return strings.TrimSpace(out.String())
}

// lowercase folds case for the given locale. A Caser is not safe for
// concurrent use, so one is built per call.
func lowercase(s string, tag language.Tag) string {
	s = caseSpecials.Replace(s)
	return dropAddedMarks(s, cases.Lower(tag).String(s))
}

// dropAddedMarks removes the combining marks that lowercasing introduced,
// such as the dot above in the lowercase of "İ", keeping as many of each mark
// as before already had. Precomposed letters carry no separate mark, so both
// sides are compared as they are.
func dropAddedMarks(before, after string) string {
	budget := make(map[rune]int)
	for _, r := range before {
		if unicode.Is(unicode.Mn, r) {
			budget[r]++
		}
	}

	counts := make(map[rune]int)
	added := false
	for _, r := range after {
		if unicode.Is(unicode.Mn, r) {
			counts[r]++
			if counts[r] > budget[r] {
				added = true
			}
		}
	}
	if !added {
		return after
	}

	var b strings.Builder
	b.Grow(len(after))
	for _, r := range after {
		if unicode.Is(unicode.Mn, r) {
			if budget[r] <= 0 {
				continue
			}
			budget[r]--
		}
		b.WriteRune(r)
	}
	return b.String()
}
