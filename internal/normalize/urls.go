package normalize

import (
	"net/url"
	"regexp"
	"strings"
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"]+`)

// isTrackingParam reports whether a query key only carries analytics state.
func isTrackingParam(key string) bool {
	k := strings.ToLower(key)
	switch {
	case strings.HasPrefix(k, "utm_"),
		strings.HasPrefix(k, "ref"),
		strings.HasPrefix(k, "campaign"),
		k == "fbclid",
		k == "gclid":
		return true
	}
	return false
}

// normalizeURLs rewrites every http(s) URL in s into its canonical form.
func normalizeURLs(s string) string {
	return urlPattern.ReplaceAllStringFunc(s, canonicalURL)
}

// canonicalURL drops the fragment and tracking parameters and sorts the
// remaining query keys. Unparseable URLs are returned unchanged.
func canonicalURL(raw string) string {
	trimmed := strings.TrimRight(raw, ".,;:!?)")
	trail := raw[len(trimmed):]

	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" {
		return raw
	}
	query, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return raw
	}
	for key := range query {
		if isTrackingParam(key) {
			query.Del(key)
		}
	}

	u.Fragment = ""
	u.RawFragment = ""
	u.ForceQuery = false
	u.RawQuery = query.Encode()
	return u.String() + trail
}
