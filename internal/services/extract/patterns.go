// -----------------------------------------------------------------------
// Pattern matchers - last-resort free-text recovery of listing fields
// -----------------------------------------------------------------------

package extract

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	// phoneRegex matches a run of digits interleaved with common phone
	// separators, parentheses, and a leading plus sign. Candidates are
	// further checked for a minimum digit count.
	phoneRegex = regexp.MustCompile(`\+?\(?\d[\d\s().\-/]{4,}\d`)

	// emailRegex matches RFC-ish email addresses in free text.
	emailRegex = regexp.MustCompile(`(?i)\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)

	// numberRegex pulls decimal numbers (with optional thousands
	// separators) out of accessible-label text like "4.6 stars 1,284 Reviews".
	numberRegex = regexp.MustCompile(`\d{1,3}(?:,\d{3})+|\d+(?:\.\d+)?`)

	whitespaceRegex = regexp.MustCompile(`\s+`)
	nonDigitRegex   = regexp.MustCompile(`\D`)
)

// invalidEmailFragments filters obvious junk matched by the email regex
// (asset filenames, placeholder addresses).
var invalidEmailFragments = []string{
	"example.com",
	"@example",
	".png",
	".jpg",
	".jpeg",
	".gif",
	".svg",
	"@sentry",
	"noreply",
	"no-reply",
	"yourname",
	"youremail",
}

// socialDomains are deprioritized as website candidates: a business's own
// site is the better enrichment target than its social profile.
var socialDomains = []string{
	"facebook.com",
	"instagram.com",
	"linkedin.com",
	"twitter.com",
	"x.com",
	"youtube.com",
	"tiktok.com",
}

// hostPlatformFragments identify links back to the hosting map platform
// itself; these are never a listing's website.
var hostPlatformFragments = []string{
	"google.",
	"gstatic.",
	"googleapis.",
	"g.page",
	"goo.gl",
	"schema.org",
}

// MatchPhone returns the first phone-like substring of text: at least
// minDigits digits interleaved with separators, whitespace collapsed.
// Empty when nothing qualifies.
func MatchPhone(text string, minDigits int) string {
	if minDigits <= 0 {
		minDigits = 7
	}
	for _, candidate := range phoneRegex.FindAllString(text, -1) {
		digits := nonDigitRegex.ReplaceAllString(candidate, "")
		if len(digits) < minDigits || len(digits) > 15 {
			continue
		}
		return strings.TrimSpace(whitespaceRegex.ReplaceAllString(candidate, " "))
	}
	return ""
}

// IsDomainLikeLine reports whether a visible text line looks like a bare
// website domain: a single token containing a letter and a dot, no plus
// sign (excludes map plus codes), not the hosting platform, length <= 80.
func IsDomainLikeLine(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" || len(line) > 80 {
		return false
	}
	if strings.ContainsAny(line, " \t") {
		return false
	}
	if strings.Contains(line, "+") {
		return false
	}
	if !strings.Contains(line, ".") {
		return false
	}
	hasLetter := false
	for _, r := range line {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			hasLetter = true
			break
		}
	}
	if !hasLetter {
		return false
	}
	return !IsHostPlatformURL(line)
}

// MatchEmails returns deduplicated email addresses found in text, in
// discovery order, with junk matches filtered out.
func MatchEmails(text string) []string {
	matches := emailRegex.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		email := strings.TrimSpace(m)
		lower := strings.ToLower(email)
		if _, dup := seen[lower]; dup {
			continue
		}
		junk := false
		for _, frag := range invalidEmailFragments {
			if strings.Contains(lower, frag) {
				junk = true
				break
			}
		}
		if junk {
			continue
		}
		seen[lower] = struct{}{}
		out = append(out, email)
	}
	return out
}

// ParseRating extracts a rating value from accessible-label text,
// normalizing decimal commas. Returns 0 when no number is present.
func ParseRating(text string) float64 {
	num := numberRegex.FindString(text)
	if num == "" {
		return 0
	}
	num = strings.ReplaceAll(num, ",", ".")
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	return v
}

// ParseReviewCount extracts a review count from accessible-label text,
// stripping thousands separators. Returns 0 when no count is present.
func ParseReviewCount(text string) int {
	nums := numberRegex.FindAllString(text, -1)
	if len(nums) == 0 {
		return 0
	}
	// The count is the last integer in labels like "4.6 stars 1,284 Reviews".
	raw := strings.ReplaceAll(nums[len(nums)-1], ",", "")
	if strings.Contains(raw, ".") {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

// IsHostPlatformURL reports whether the URL points back at the hosting map
// platform rather than an external site.
func IsHostPlatformURL(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, frag := range hostPlatformFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// IsSocialURL reports whether the URL points at a social-network domain.
func IsSocialURL(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, d := range socialDomains {
		if strings.Contains(lower, d) {
			return true
		}
	}
	return false
}
