package extract

import (
	"net/url"
	"regexp"
	"strings"
)

const listingPathFragment = "/maps/place/"

var (
	numericIDRegex = regexp.MustCompile(`^\d+$`)
	hexPairRegex   = regexp.MustCompile(`0x[0-9a-fA-F]+:0x[0-9a-fA-F]+`)
)

// IsListingURL reports whether the URL resolves to a listing detail page.
func IsListingURL(rawURL string) bool {
	return strings.Contains(rawURL, listingPathFragment)
}

// DerivePlaceKey derives the stable dedup identifier for a listing URL.
// Priority: (1) a numeric identifier in the query string, which survives UI
// relayout; (2) a hex-pair token embedded in the path; (3) the path alone.
// The path fallback is the weakest guarantee and may collide across
// near-duplicate URLs.
func DerivePlaceKey(rawURL string) string {
	if rawURL == "" {
		return ""
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	query := u.Query()
	for _, param := range []string{"cid", "ludocid"} {
		if id := query.Get(param); numericIDRegex.MatchString(id) {
			return "cid:" + id
		}
	}

	if tok := hexPairRegex.FindString(u.Path); tok != "" {
		return "hex:" + strings.ToLower(tok)
	}

	if u.Path != "" {
		return u.Path
	}
	return rawURL
}
