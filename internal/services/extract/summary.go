// -----------------------------------------------------------------------
// Summary extractor - listing fields from a results-feed card
// -----------------------------------------------------------------------

package extract

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/models"
)

// visitedLinkMarker is appended by the page to accessible names of listings
// the user already opened; it is never part of the business name.
const visitedLinkMarker = "Visited link"

// strategy is one pure lookup attempt against a card or panel root. The
// engine runs a field's strategies in order and stops at the first
// non-empty result, keeping selector priority declarative per field.
type strategy func(root *goquery.Selection) string

// firstOf runs strategies in order, returning the first non-empty value.
func firstOf(root *goquery.Selection, strategies ...strategy) string {
	for _, s := range strategies {
		if v := strings.TrimSpace(s(root)); v != "" {
			return v
		}
	}
	return ""
}

// Engine turns rendered page structure into CaptureItem drafts. All entry
// points are pure reads of the document; a missing field degrades to its
// zero value and never aborts the caller.
type Engine struct {
	logger arbor.ILogger
}

// NewEngine creates a new extraction engine
func NewEngine(logger arbor.ILogger) *Engine {
	return &Engine{logger: logger}
}

// ExtractSummary derives a CaptureItem draft from one listing link in the
// results feed. Returns nil when the link does not resolve to a listing
// detail URL.
func (e *Engine) ExtractSummary(anchor *goquery.Selection) (item *models.CaptureItem) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Debug().Msgf("Summary extraction recovered: %v", r)
			item = nil
		}
	}()

	href, ok := anchor.Attr("href")
	if !ok || !IsListingURL(href) {
		return nil
	}

	card := cardRoot(anchor)

	item = &models.CaptureItem{
		DetailURL:   href,
		PlaceKey:    DerivePlaceKey(href),
		Name:        extractCardName(anchor, card),
		CollectedAt: time.Now(),
	}

	ratingLabel := firstOf(card,
		attrStrategy(`span[role="img"]`, "aria-label"),
		attrStrategy(`span[aria-label*="star"]`, "aria-label"),
	)
	if ratingLabel != "" {
		item.Rating = ParseRating(ratingLabel)
		item.Reviews = ParseReviewCount(ratingLabel)
	}

	item.MetaLine = extractMetaLine(card)

	// Structural lookups first; free-text matchers are the last resort.
	cardText := card.Text()
	item.Phone = firstOf(card,
		attrStrategy(`span[data-phone]`, "data-phone"),
		func(*goquery.Selection) string { return MatchPhone(cardText, 7) },
	)
	item.Website = firstOf(card,
		func(root *goquery.Selection) string { return cardWebsiteLink(root) },
		func(*goquery.Selection) string { return domainLineIn(cardText) },
	)

	return item
}

// cardRoot walks up from the listing anchor to the enclosing summary card.
// Feed markup churns often, so this tries the known card containers before
// settling for the anchor's parent.
func cardRoot(anchor *goquery.Selection) *goquery.Selection {
	if card := anchor.Closest(`div[role="article"]`); card.Length() > 0 {
		return card
	}
	if card := anchor.Closest("div.Nv2PK"); card.Length() > 0 {
		return card
	}
	if parent := anchor.Parent(); parent.Length() > 0 {
		return parent
	}
	return anchor
}

// extractCardName reads the business name, preferring the accessible label
// (most stable across markup churn) over visible heading text.
func extractCardName(anchor, card *goquery.Selection) string {
	name := firstOf(anchor, attrStrategy("", "aria-label"))
	if name == "" {
		name = firstOf(card,
			textStrategy(`div[role="heading"]`),
			textStrategy(".fontHeadlineSmall"),
			textStrategy(".qBF1Pd"),
		)
	}
	name = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(name), visitedLinkMarker))
	return name
}

// extractMetaLine picks the first secondary text line of the card (category
// and district, separated by middle dots).
func extractMetaLine(card *goquery.Selection) string {
	var meta string
	card.Find("div.W4Efsd, span.UsdlK").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(whitespaceRegex.ReplaceAllString(s.Text(), " "))
		if strings.Contains(text, "·") {
			meta = text
			return false
		}
		return true
	})
	return meta
}

// cardWebsiteLink finds an external site link inside the card, skipping
// links back to the hosting platform.
func cardWebsiteLink(card *goquery.Selection) string {
	var website string
	card.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if href == "" || IsListingURL(href) || IsHostPlatformURL(href) {
			return true
		}
		website = UnwrapRedirect(href)
		return false
	})
	return website
}

// domainLineIn scans visible text lines for the first domain-like token.
func domainLineIn(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if IsDomainLikeLine(line) {
			return line
		}
	}
	return ""
}

// attrStrategy reads an attribute from the first match of selector (or the
// root itself when selector is empty).
func attrStrategy(selector, attr string) strategy {
	return func(root *goquery.Selection) string {
		target := root
		if selector != "" {
			target = root.Find(selector).First()
		}
		v, _ := target.Attr(attr)
		return v
	}
}

// textStrategy reads the text of the first match of selector.
func textStrategy(selector string) strategy {
	return func(root *goquery.Selection) string {
		return root.Find(selector).First().Text()
	}
}
