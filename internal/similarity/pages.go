package similarity

import (
	"regexp"
	"strconv"
)

var pagePattern = regexp.MustCompile(`(?i)^\s*(?:pp?\.?\s*)?(\d+)\s*(?:[-‐‑‒–—]+\s*(\d+))?\s*$`)

// PageRange is an inclusive page interval. A single page has Start == End.
type PageRange struct {
	Start int
	End   int
}

// Single reports whether the range covers exactly one page.
func (r PageRange) Single() bool {
	return r.Start == r.End
}

// Contains reports whether o lies entirely inside r.
func (r PageRange) Contains(o PageRange) bool {
	return o.Start >= r.Start && o.End <= r.End
}

// ParsePages parses "123", "123-145", "pp. 123–145" and the shorthand
// "123-45" (read as 123-145). A reversed range is swapped.
func ParsePages(s string) (PageRange, bool) {
	m := pagePattern.FindStringSubmatch(s)
	if m == nil {
		return PageRange{}, false
	}
	startStr, endStr := m[1], m[2]
	if endStr == "" {
		endStr = startStr
	}
	if len(endStr) < len(startStr) {
		endStr = startStr[:len(startStr)-len(endStr)] + endStr
	}

	start, err := strconv.Atoi(startStr)
	if err != nil {
		return PageRange{}, false
	}
	end, err := strconv.Atoi(endStr)
	if err != nil {
		return PageRange{}, false
	}
	if end < start {
		start, end = end, start
	}
	return PageRange{Start: start, End: end}, true
}

// PageSimilarity scores two page strings. A range contained in the other
// scores 1.0; otherwise the score is the Jaccard index of the two inclusive
// integer ranges. ok is false when either side does not parse.
func PageSimilarity(a, b string) (score float64, ok bool) {
	ra, okA := ParsePages(a)
	rb, okB := ParsePages(b)
	if !okA || !okB {
		return 0, false
	}
	if ra.Contains(rb) || rb.Contains(ra) {
		return 1, true
	}

	inter := min(ra.End, rb.End) - max(ra.Start, rb.Start) + 1
	if inter <= 0 {
		return 0, true
	}
	union := max(ra.End, rb.End) - min(ra.Start, rb.Start) + 1
	return float64(inter) / float64(union), true
}
