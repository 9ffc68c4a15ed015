// -----------------------------------------------------------------------
// Detail extractor - richer fields from the expanded listing panel
// -----------------------------------------------------------------------

package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/prospector/internal/models"
)

// DetailFields are the richer fields only the detail panel exposes.
type DetailFields struct {
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Website string `json:"website,omitempty"`
}

// Empty reports whether detail extraction found nothing at all.
func (d DetailFields) Empty() bool {
	return d.Address == "" && d.Phone == "" && d.Website == ""
}

var streetLineRegex = regexp.MustCompile(`^\d+[\s,].{4,}`)

// ExtractDetail recovers address, phone, and website from the rendered
// detail panel. Each field runs its own strategy cascade: structural
// attribute-tagged elements, accessible-label prefixes, tooltip/action
// text, then free-text line scanning. A field that stays empty is an
// extraction miss, not an error.
func (e *Engine) ExtractDetail(doc *goquery.Document) (fields DetailFields) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Debug().Msgf("Detail extraction recovered: %v", r)
		}
	}()

	root := doc.Selection
	lines := visibleLines(root)

	fields.Address = firstOf(root,
		labelValueStrategy(`button[data-item-id="address"]`, "Address"),
		labelValueStrategy(`[data-item-id="address"]`, "Address"),
		ariaPrefixStrategy("Address"),
		tooltipStrategy("address"),
		func(*goquery.Selection) string { return addressLineIn(lines) },
	)

	fields.Phone = firstOf(root,
		phoneItemIDStrategy(),
		ariaPrefixStrategy("Phone"),
		tooltipStrategy("phone"),
		func(*goquery.Selection) string {
			return MatchPhone(strings.Join(lines, "\n"), 7)
		},
	)

	fields.Website = firstOf(root,
		func(root *goquery.Selection) string {
			href, _ := root.Find(`a[data-item-id="authority"]`).First().Attr("href")
			return filterWebsiteCandidate(href)
		},
		func(root *goquery.Selection) string {
			href, _ := root.Find(`a[aria-label^="Website"]`).First().Attr("href")
			return filterWebsiteCandidate(href)
		},
		func(root *goquery.Selection) string { return panelWebsiteLink(root) },
		func(*goquery.Selection) string { return domainLineIn(strings.Join(lines, "\n")) },
	)

	return fields
}

// BuildDebugSnapshot captures the panel's raw text lines, link targets, and
// title for selector-strategy maintenance. Called only when detail
// extraction came up empty.
func (e *Engine) BuildDebugSnapshot(id string, doc *goquery.Document, pageTitle string) *models.DebugSnapshot {
	snap := &models.DebugSnapshot{
		ID:        id,
		PageTitle: pageTitle,
	}

	snap.TextLines = panelTextLines(doc)

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok && href != "" {
			snap.Hrefs = append(snap.Hrefs, href)
		}
	})
	if len(snap.Hrefs) > 40 {
		snap.Hrefs = snap.Hrefs[:40]
	}

	return snap
}

// labelValueStrategy reads the aria-label of the first selector match and
// strips the "<Field>: " prefix, falling back to the element text.
func labelValueStrategy(selector, fieldPrefix string) strategy {
	return func(root *goquery.Selection) string {
		el := root.Find(selector).First()
		if el.Length() == 0 {
			return ""
		}
		if label, ok := el.Attr("aria-label"); ok {
			return stripFieldPrefix(label, fieldPrefix)
		}
		return el.Text()
	}
}

// ariaPrefixStrategy finds any element whose accessible label starts with
// the field name.
func ariaPrefixStrategy(fieldPrefix string) strategy {
	selector := `[aria-label^="` + fieldPrefix + `"]`
	return func(root *goquery.Selection) string {
		label, _ := root.Find(selector).First().Attr("aria-label")
		return stripFieldPrefix(label, fieldPrefix)
	}
}

// tooltipStrategy finds elements whose tooltip/action text references the
// field.
func tooltipStrategy(field string) strategy {
	return func(root *goquery.Selection) string {
		var value string
		root.Find("[data-tooltip]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			tip, _ := s.Attr("data-tooltip")
			if strings.Contains(strings.ToLower(tip), field) {
				value = s.Text()
				return false
			}
			return true
		})
		return value
	}
}

// phoneItemIDStrategy reads the phone number embedded in the structural
// data-item-id attribute (e.g. "phone:tel:+12025550123").
func phoneItemIDStrategy() strategy {
	return func(root *goquery.Selection) string {
		var value string
		root.Find(`button[data-item-id^="phone"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			id, _ := s.Attr("data-item-id")
			if idx := strings.Index(id, "tel:"); idx >= 0 {
				value = strings.TrimSpace(id[idx+len("tel:"):])
				return false
			}
			value = strings.TrimSpace(s.Text())
			return value == ""
		})
		return value
	}
}

// panelWebsiteLink scans every link in the panel for the best external
// candidate: host-platform links are rejected, redirectors unwrapped, and
// social profiles kept only when no plain external domain shows up first.
func panelWebsiteLink(root *goquery.Selection) string {
	var social string
	var external string
	root.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		candidate := filterWebsiteCandidate(href)
		if candidate == "" {
			return true
		}
		if IsSocialURL(candidate) {
			if social == "" {
				social = candidate
			}
			return true
		}
		external = candidate
		return false
	})
	if external != "" {
		return external
	}
	return social
}

// filterWebsiteCandidate normalizes one candidate link target: empty if it
// points back at the hosting platform, otherwise unwrapped to its true
// destination.
func filterWebsiteCandidate(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || IsListingURL(href) {
		return ""
	}
	href = UnwrapRedirect(href)
	if href == "" || IsHostPlatformURL(href) {
		return ""
	}
	if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") {
		return ""
	}
	return href
}

// UnwrapRedirect resolves wrapped redirect links ("/url?q=<target>") to
// their true target.
func UnwrapRedirect(href string) string {
	idx := strings.Index(href, "/url?")
	if idx < 0 {
		return href
	}
	u, err := url.Parse(href[idx:])
	if err != nil {
		return href
	}
	if target := u.Query().Get("q"); target != "" {
		return target
	}
	return href
}

// addressLineIn returns the first line that reads like a street address.
func addressLineIn(lines []string) string {
	for _, line := range lines {
		if streetLineRegex.MatchString(line) && !strings.Contains(line, "@") {
			return line
		}
	}
	return ""
}

// visibleLines flattens the panel's rendered text into trimmed lines.
func visibleLines(root *goquery.Selection) []string {
	var lines []string
	for _, raw := range strings.Split(root.Text(), "\n") {
		line := strings.TrimSpace(whitespaceRegex.ReplaceAllString(raw, " "))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// stripFieldPrefix removes "<Field>:" or "<Field>" from the start of an
// accessible label.
func stripFieldPrefix(label, prefix string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return ""
	}
	trimmed := strings.TrimPrefix(label, prefix)
	trimmed = strings.TrimPrefix(trimmed, ":")
	return strings.TrimSpace(trimmed)
}
