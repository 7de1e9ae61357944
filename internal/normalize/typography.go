package normalize

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// mojibake repairs text whose UTF-8 bytes were decoded once more as
// Windows-1252 or Latin-1, e.g. "Ã©" for "é" or "â€™" for "’".
var mojibake = buildMojibakeReplacer()

// typographyToASCII maps smart quotes, dashes and the ellipsis to ASCII.
var typographyToASCII = strings.NewReplacer(
	"‘", "'", "’", "'", "‚", "'", "‛", "'",
	"′", "'", "`", "'", "´", "'",
	"“", `"`, "”", `"`, "„", `"`, "‟", `"`, "″", `"`,
	"‐", "-", "‑", "-", "‒", "-", "–", "-", "—", "-", "―", "-", "−", "-",
	"…", "...",
)

// mojibakeTargets are the characters whose double-encoded forms get repaired.
func mojibakeTargets() []rune {
	var targets []rune
	for r := rune(0x00A0); r <= 0x017F; r++ {
		targets = append(targets, r)
	}
	return append(targets,
		'‘', '’', '‚', '“', '”', '„',
		'–', '—', '…', '•', '€', '™',
		'′', '″',
	)
}

func buildMojibakeReplacer() *strings.Replacer {
	type pair struct{ bad, good string }
	var pairs []pair
	seen := make(map[string]bool)

	for _, r := range mojibakeTargets() {
		encoded := []byte(string(r))
		for _, cm := range []*charmap.Charmap{charmap.Windows1252, charmap.ISO8859_1} {
			decoded, err := cm.NewDecoder().Bytes(encoded)
			if err != nil {
				continue
			}
			bad := string(decoded)
			if bad == string(r) || seen[bad] || !utf8.ValidString(bad) || strings.ContainsRune(bad, utf8.RuneError) {
				continue
			}
			seen[bad] = true
			pairs = append(pairs, pair{bad: bad, good: string(r)})
		}
	}

	// Longer sequences first so "â€™" wins over any two-rune prefix.
	sort.SliceStable(pairs, func(i, j int) bool {
		return utf8.RuneCountInString(pairs[i].bad) > utf8.RuneCountInString(pairs[j].bad)
	})

	args := make([]string, 0, len(pairs)*2)
	for _, p := range pairs {
		args = append(args, p.bad, p.good)
	}
	return strings.NewReplacer(args...)
}

// maxMojibakeLayers bounds how many nested encodings fixCharacters undoes.
const maxMojibakeLayers = 8

// fixCharacters repairs double-encoded UTF-8 sequences. Text encoded more
// than once is repaired one layer per pass until it stops changing.
func fixCharacters(s string) string {
	for range maxMojibakeLayers {
		fixed := mojibake.Replace(s)
		if fixed == s {
			break
		}
		s = fixed
	}
	return s
}

// fixTypography repairs encoding damage, then folds typographic quotes,
// dashes, ellipses and Unicode space separators to ASCII.
func fixTypography(s string) string {
	s = fixCharacters(s)
	s = typographyToASCII.Replace(s)
	return strings.Map(func(r rune) rune {
		if r != ' ' && unicode.Is(unicode.Zs, r) {
			return ' '
		}
		return r
	}, s)
}
