package models

import (
	"strings"
	"time"
)

// CaptureItem is one discovered business listing. Summary scans produce
// partial items; the detail crawl and enrichment pipeline fill in the rest
// by field-level merge, never by record replacement.
type CaptureItem struct {
	Name      string   `json:"name,omitempty"`
	DetailURL string   `json:"detail_url"`
	PlaceKey  string   `json:"place_key,omitempty"`
	Address   string   `json:"address,omitempty"`
	Phone     string   `json:"phone,omitempty"`
	Website   string   `json:"website,omitempty"`
	Emails    []string `json:"emails,omitempty"`
	Rating    float64  `json:"rating,omitempty"`
	Reviews   int      `json:"reviews,omitempty"`
	MetaLine  string   `json:"meta_line,omitempty"`

	// CollectedAt advances on every successful (re-)extraction.
	CollectedAt time.Time `json:"collected_at"`
}

// Key returns the dedup key: the derived place key when present,
// otherwise the detail URL.
func (c *CaptureItem) Key() string {
	if c.PlaceKey != "" {
		return c.PlaceKey
	}
	return c.DetailURL
}

// Merge applies an incoming partial item onto the receiver. Non-empty
// incoming fields overwrite; empty incoming fields never clobber existing
// values, so a later summary-only scan cannot erase detail fields.
// Emails are replaced outright when the incoming item carries any, and
// CollectedAt always advances to the newest write.
func (c *CaptureItem) Merge(in *CaptureItem) {
	if in.Name != "" {
		c.Name = in.Name
	}
	if in.DetailURL != "" {
		c.DetailURL = in.DetailURL
	}
	if in.PlaceKey != "" {
		c.PlaceKey = in.PlaceKey
	}
	if in.Address != "" {
		c.Address = in.Address
	}
	if in.Phone != "" {
		c.Phone = in.Phone
	}
	if in.Website != "" {
		c.Website = in.Website
	}
	if len(in.Emails) > 0 {
		c.Emails = append([]string{}, in.Emails...)
	}
	if in.Rating != 0 {
		c.Rating = in.Rating
	}
	if in.Reviews != 0 {
		c.Reviews = in.Reviews
	}
	if in.MetaLine != "" {
		c.MetaLine = in.MetaLine
	}
	if in.CollectedAt.After(c.CollectedAt) {
		c.CollectedAt = in.CollectedAt
	}
}

// HasContact reports whether the item carries at least one contact channel.
func (c *CaptureItem) HasContact() bool {
	return c.Address != "" || c.Phone != "" || c.Website != "" || len(c.Emails) > 0
}

// EmailList renders the email sequence for export ("; "-joined).
func (c *CaptureItem) EmailList() string {
	return strings.Join(c.Emails, "; ")
}

// CaptureState is the persisted process-wide capture flag. It is independent
// of whether a scan is currently in flight.
type CaptureState struct {
	Capturing bool      `json:"capturing"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DebugSnapshot is the ephemeral diagnostic record captured when detail
// extraction yields no address, phone, or website. Only the most recent
// snapshot is retained.
type DebugSnapshot struct {
	ID         string    `json:"id"`
	PageTitle  string    `json:"page_title"`
	TextLines  []string  `json:"text_lines"`
	Hrefs      []string  `json:"hrefs"`
	CapturedAt time.Time `json:"captured_at"`
}

// EnrichmentResult holds contacts recovered from a listing's own website.
type EnrichmentResult struct {
	Emails []string `json:"emails"`
	Phones []string `json:"phones"`
}

// ImportRecord captures the outcome of forwarding items to the external
// lead-management API.
type ImportRecord struct {
	Count      int       `json:"count"`
	Niche      string    `json:"niche,omitempty"`
	Location   string    `json:"location,omitempty"`
	Status     int       `json:"status"`
	Body       string    `json:"body,omitempty"`
	ImportedAt time.Time `json:"imported_at"`
}
