package interfaces

import (
	"context"

	"github.com/ternarybob/prospector/internal/models"
)

// MessageHandler processes one request from the capture context. The
// background bus serializes calls, so implementations never see two
// messages concurrently.
type MessageHandler interface {
	Handle(ctx context.Context, msg models.Message) models.Reply
}

// BusClient is the capture context's view of the background context. Calls
// are fallible RPCs: a failed call is dropped by the caller and retried on
// its next natural cycle, never queued for guaranteed delivery.
type BusClient interface {
	Call(ctx context.Context, msg models.Message) (models.Reply, error)
}

// ContactFetcher performs one outbound contact-extraction request against a
// listing's website.
type ContactFetcher interface {
	FetchContacts(ctx context.Context, website string) (*models.EnrichmentResult, error)
}

// EnrichmentService runs the rate-limited contact-enrichment pass.
type EnrichmentService interface {
	// Enrich processes stored items that have a website and no emails.
	// Returns processed and failure counts; aborts after the failure cap.
	Enrich(ctx context.Context) (processed, failures int, err error)
}

// ExportService serializes the current item set to disk.
type ExportService interface {
	ExportCSV(ctx context.Context) (string, error)
	ExportJSON(ctx context.Context) (string, error)
}

// ImportService forwards items to the external lead-management API.
type ImportService interface {
	Import(ctx context.Context, items []models.CaptureItem, niche, location string) (*models.ImportRecord, error)
}
