// -----------------------------------------------------------------------
// Importer - forwards captured leads to the external lead-management API
// -----------------------------------------------------------------------

package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/common"
	"github.com/ternarybob/prospector/internal/httpclient"
	"github.com/ternarybob/prospector/internal/models"
	"golang.org/x/time/rate"
)

const maxResponseBody = 8 * 1024

// leadPayload is the wire format the lead API accepts.
type leadPayload struct {
	Niche    string       `json:"niche,omitempty"`
	Location string       `json:"location,omitempty"`
	Leads    []leadRecord `json:"leads"`
}

type leadRecord struct {
	Name    string   `json:"name"`
	Address string   `json:"address,omitempty"`
	Phone   string   `json:"phone,omitempty"`
	Website string   `json:"website,omitempty"`
	Emails  []string `json:"emails,omitempty"`
	Source  string   `json:"source,omitempty"`
}

// Service posts item batches to the configured endpoint. Requests are rate
// limited; the outcome, success or failure, is returned as an ImportRecord
// so the background handler can persist it either way.
type Service struct {
	client   *http.Client
	limiter  *rate.Limiter
	endpoint string
	apiKey   string
	logger   arbor.ILogger
}

// NewService creates an importer from config. A missing endpoint is allowed
// at construction; Import reports it per call.
func NewService(cfg common.ImporterConfig, logger arbor.ILogger) *Service {
	timeout := common.ParseDuration(cfg.RequestTimeout, 30*time.Second)
	rps := cfg.RateLimit
	if rps <= 0 {
		rps = 2
	}
	return &Service{
		client:   httpclient.NewDefaultHTTPClient(timeout),
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		logger:   logger,
	}
}

// Import sends one batch. The returned record is always non-nil on a
// completed request, even a rejected one; the error covers transport and
// configuration failures only.
func (s *Service) Import(ctx context.Context, items []models.CaptureItem, niche, location string) (*models.ImportRecord, error) {
	if s.endpoint == "" {
		return nil, fmt.Errorf("import endpoint not configured")
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("no items to import")
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	payload := leadPayload{Niche: niche, Location: location, Leads: make([]leadRecord, 0, len(items))}
	for _, item := range items {
		payload.Leads = append(payload.Leads, leadRecord{
			Name:    item.Name,
			Address: item.Address,
			Phone:   item.Phone,
			Website: item.Website,
			Emails:  item.Emails,
			Source:  item.DetailURL,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal import payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build import request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("import request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))

	record := &models.ImportRecord{
		Count:      len(items),
		Niche:      niche,
		Location:   location,
		Status:     resp.StatusCode,
		Body:       string(respBody),
		ImportedAt: time.Now(),
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.logger.Warn().
			Int("status", resp.StatusCode).
			Int("count", record.Count).
			Msg("Import rejected by lead API")
		return record, nil
	}

	s.logger.Info().
		Int("count", record.Count).
		Str("niche", niche).
		Str("location", location).
		Msg("Import accepted")
	return record, nil
}
