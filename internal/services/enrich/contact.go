// -----------------------------------------------------------------------
// Contact fetcher - pulls emails and phones off a business website
// -----------------------------------------------------------------------

package enrich

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/httpclient"
	"github.com/ternarybob/prospector/internal/models"
	"github.com/ternarybob/prospector/internal/services/extract"
)

// HTTPFetcher fetches one page of a business website and extracts contact
// details from mailto/tel links and free text.
type HTTPFetcher struct {
	client      *http.Client
	userAgent   string
	maxBodySize int64
	logger      arbor.ILogger
}

// NewHTTPFetcher creates a fetcher with a redirect-capped scraping client.
func NewHTTPFetcher(timeout time.Duration, userAgent string, maxBodySize int, logger arbor.ILogger) (*HTTPFetcher, error) {
	client, err := httpclient.NewScrapingClient(timeout)
	if err != nil {
		return nil, err
	}
	return &HTTPFetcher{
		client:      client,
		userAgent:   userAgent,
		maxBodySize: int64(maxBodySize),
		logger:      logger,
	}, nil
}

// FetchContacts requests the site's landing page and scans it for emails
// and phone numbers.
func (f *HTTPFetcher) FetchContacts(ctx context.Context, website string) (*models.EnrichmentResult, error) {
	target := normalizeWebsite(website)
	if target == "" {
		return nil, fmt.Errorf("not a fetchable website: %q", website)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", target, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s returned status %d", target, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", target, err)
	}

	result := extractContacts(string(body))
	f.logger.Debug().
		Str("website", target).
		Int("emails", len(result.Emails)).
		Int("phones", len(result.Phones)).
		Msg("Contact fetch complete")
	return result, nil
}

// extractContacts scans page markup for contact details. Structured
// mailto/tel links win over free-text matches but both are collected.
func extractContacts(html string) *models.EnrichmentResult {
	result := &models.EnrichmentResult{}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		result.Emails = extract.MatchEmails(html)
		return result
	}

	var mailtoText strings.Builder
	doc.Find(`a[href^="mailto:"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		addr := strings.TrimPrefix(href, "mailto:")
		if idx := strings.Index(addr, "?"); idx >= 0 {
			addr = addr[:idx]
		}
		mailtoText.WriteString(addr + "\n")
	})

	// mailto addresses first so they lead the deduplicated list.
	result.Emails = extract.MatchEmails(mailtoText.String() + "\n" + doc.Text())

	seen := make(map[string]struct{})
	doc.Find(`a[href^="tel:"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if phone := extract.MatchPhone(strings.TrimPrefix(href, "tel:"), 7); phone != "" {
			if _, dup := seen[phone]; !dup {
				seen[phone] = struct{}{}
				result.Phones = append(result.Phones, phone)
			}
		}
	})
	if len(result.Phones) == 0 {
		if phone := extract.MatchPhone(doc.Text(), 7); phone != "" {
			result.Phones = append(result.Phones, phone)
		}
	}

	return result
}

// normalizeWebsite turns stored website values (often a bare domain from
// the results card) into a fetchable URL.
func normalizeWebsite(website string) string {
	website = strings.TrimSpace(website)
	if website == "" {
		return ""
	}
	if strings.HasPrefix(website, "http://") || strings.HasPrefix(website, "https://") {
		return website
	}
	if strings.Contains(website, " ") || !strings.Contains(website, ".") {
		return ""
	}
	return "https://" + website
}
