package normalize

import (
	"regexp"
	"strings"
)

var (
	doiPrefix = regexp.MustCompile(`(?i)^(?:doi:\s*|https?://(?:dx\.)?doi\.org/)`)
	doiWhole  = regexp.MustCompile(`^10\.\d{4,9}/\S+$`)
	doiInText = regexp.MustCompile("(?i)(?:\\bdoi:\\s*|https?://(?:dx\\.)?doi\\.org/)(10\\.\\d{4,9}/[^\\s\"<>{}|\\\\^~\\[\\]`]+)")

	isbnLabeled  = regexp.MustCompile(`(?i)\bISBN(?:-1[03])?\s*:?\s*((?:97[89][\s-]?)?(?:\d[\s-]?){9}[\dX])\b`)
	issnLabeled  = regexp.MustCompile(`(?i)\bISSN\s*:?\s*(\d{4})[\s-]?(\d{3}[\dX])\b`)
	pmcidLabeled = regexp.MustCompile(`(?i)\bPMCID\s*:?\s*(?:PMC)?(\d+)\b`)
	pmidLabeled  = regexp.MustCompile(`(?i)\bPMID\s*:?\s*(\d+)\b`)
	arxivLabeled = regexp.MustCompile(`(?i)(?:\barxiv\s*:?\s*|https?://arxiv\.org/(?:abs|pdf)/)(\d{4}\.\d{4,5})(?:v\d+)?\b`)
	arxivVersion = regexp.MustCompile(`\b(\d{4}\.\d{4,5})v\d+\b`)
)

// doiInvalid are characters that cannot appear in a resolvable DOI.
const doiInvalid = "\"<>{}|\\^~[]`"

// normalizeIdentifiers reduces DOIs, ISBNs, ISSNs, PubMed ids and arXiv ids
// to a canonical bare form.
func normalizeIdentifiers(s string) string {
	s = normalizeDOI(s)
	s = isbnLabeled.ReplaceAllStringFunc(s, canonicalISBN)
	s = issnLabeled.ReplaceAllStringFunc(s, func(m string) string {
		sub := issnLabeled.FindStringSubmatch(m)
		return sub[1] + "-" + strings.ToUpper(sub[2])
	})
	s = pmcidLabeled.ReplaceAllString(s, "PMC$1")
	s = pmidLabeled.ReplaceAllString(s, "$1")
	s = arxivLabeled.ReplaceAllString(s, "$1")
	return arxivVersion.ReplaceAllString(s, "$1")
}

// normalizeDOI handles a value that is a DOI in its entirety (possibly with a
// resolver prefix and stray whitespace) and DOIs embedded in longer text.
func normalizeDOI(s string) string {
	bare := doiPrefix.ReplaceAllString(strings.TrimSpace(s), "")
	compact := strings.Join(strings.Fields(bare), "")
	if doiWhole.MatchString(compact) {
		return cleanDOI(compact)
	}
	return doiInText.ReplaceAllStringFunc(s, func(m string) string {
		return cleanDOI(doiInText.FindStringSubmatch(m)[1])
	})
}

func cleanDOI(doi string) string {
	doi = strings.TrimRight(doi, ".,;:")
	doi = strings.Map(func(r rune) rune {
		if strings.ContainsRune(doiInvalid, r) {
			return -1
		}
		return r
	}, doi)
	return strings.ToLower(doi)
}

// canonicalISBN keeps only digits and the X check character, and leaves the
// match untouched unless the result is a 10 or 13 character ISBN.
func canonicalISBN(m string) string {
	sub := isbnLabeled.FindStringSubmatch(m)
	var b strings.Builder
	for _, r := range sub[1] {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == 'x' || r == 'X':
			b.WriteRune('X')
		}
	}
	if n := b.Len(); n != 10 && n != 13 {
		return m
	}
	return b.String()
}
