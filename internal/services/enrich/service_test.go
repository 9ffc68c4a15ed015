package enrich

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/common"
	"github.com/ternarybob/prospector/internal/models"
)

// memStore implements the slice of ItemStorage the service touches.
type memStore struct {
	mu        sync.Mutex
	items     map[string]models.CaptureItem
	lastError string
}

func newMemStore(items ...models.CaptureItem) *memStore {
	s := &memStore{items: make(map[string]models.CaptureItem)}
	for _, item := range items {
		s.items[item.Key()] = item
	}
	return s
}

func (s *memStore) AddItems(_ context.Context, items []models.CaptureItem) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		s.items[item.Key()] = item
	}
	return len(s.items), nil
}

func (s *memStore) GetAll(context.Context) ([]models.CaptureItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CaptureItem
	for _, item := range s.items {
		out = append(out, item)
	}
	return out, nil
}

func (s *memStore) Count(context.Context) (int, error) { return len(s.items), nil }
func (s *memStore) Clear(context.Context) error        { return nil }

func (s *memStore) SetCapturing(context.Context, bool) error { return nil }
func (s *memStore) GetState(context.Context) (models.CaptureState, error) {
	return models.CaptureState{}, nil
}

func (s *memStore) SetLastError(_ context.Context, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = msg
	return nil
}
func (s *memStore) GetLastError(context.Context) (string, error) { return s.lastError, nil }

func (s *memStore) SetLastImport(context.Context, *models.ImportRecord) error { return nil }
func (s *memStore) GetLastImport(context.Context) (*models.ImportRecord, error) { return nil, nil }
func (s *memStore) SetDebugSnapshot(context.Context, *models.DebugSnapshot) error { return nil }
func (s *memStore) GetDebugSnapshot(context.Context) (*models.DebugSnapshot, error) {
	return nil, nil
}

// scriptedFetcher fails for websites in failing, succeeds otherwise.
type scriptedFetcher struct {
	mu      sync.Mutex
	failing map[string]bool
	fetched []string
	emails  []string
	phones  []string
}

func (f *scriptedFetcher) FetchContacts(_ context.Context, website string) (*models.EnrichmentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, website)
	if f.failing[website] {
		return nil, fmt.Errorf("fetch %s: connection refused", website)
	}
	return &models.EnrichmentResult{Emails: f.emails, Phones: f.phones}, nil
}

func fastConfig() common.EnrichmentConfig {
	cfg := common.NewDefaultConfig().Enrichment
	cfg.RequestDelay = "1ms"
	cfg.BackoffStep = "0s"
	return cfg
}

func TestService_Enrich(t *testing.T) {
	t.Run("fills emails and missing phone", func(t *testing.T) {
		store := newMemStore(
			models.CaptureItem{Name: "Acme", PlaceKey: "cid:1", Website: "acme.io"},
			models.CaptureItem{Name: "NoSite", PlaceKey: "cid:2"},
			models.CaptureItem{Name: "Done", PlaceKey: "cid:3", Website: "done.io", Emails: []string{"x@done.io"}},
		)
		fetcher := &scriptedFetcher{
			emails: []string{"hello@acme.io"},
			phones: []string{"02 9555 1234"},
		}
		svc := NewService(store, fetcher, fastConfig(), arbor.NewLogger())

		processed, failures, err := svc.Enrich(context.Background())
		if err != nil {
			t.Fatalf("Enrich failed: %v", err)
		}
		if processed != 1 || failures != 0 {
			t.Errorf("processed=%d failures=%d, want 1/0", processed, failures)
		}
		if len(fetcher.fetched) != 1 || fetcher.fetched[0] != "acme.io" {
			t.Errorf("expected only the candidate fetched, got %v", fetcher.fetched)
		}

		item := store.items["cid:1"]
		if len(item.Emails) != 1 || item.Emails[0] != "hello@acme.io" {
			t.Errorf("Emails = %v", item.Emails)
		}
		if item.Phone != "02 9555 1234" {
			t.Errorf("Phone = %q", item.Phone)
		}
	})

	t.Run("existing phone is not overwritten", func(t *testing.T) {
		store := newMemStore(models.CaptureItem{
			Name: "Acme", PlaceKey: "cid:1", Website: "acme.io", Phone: "original",
		})
		fetcher := &scriptedFetcher{emails: []string{"a@acme.io"}, phones: []string{"other"}}
		svc := NewService(store, fetcher, fastConfig(), arbor.NewLogger())

		if _, _, err := svc.Enrich(context.Background()); err != nil {
			t.Fatalf("Enrich failed: %v", err)
		}
		if store.items["cid:1"].Phone != "original" {
			t.Errorf("Phone = %q, want original kept", store.items["cid:1"].Phone)
		}
	})

	t.Run("aborts at the failure cap and records the reason", func(t *testing.T) {
		var items []models.CaptureItem
		failing := make(map[string]bool)
		for i := 0; i < 5; i++ {
			site := fmt.Sprintf("dead%d.io", i)
			items = append(items, models.CaptureItem{
				Name: site, PlaceKey: fmt.Sprintf("cid:%d", i), Website: site,
			})
			failing[site] = true
		}
		store := newMemStore(items...)
		fetcher := &scriptedFetcher{failing: failing}

		cfg := fastConfig()
		cfg.FailureLimit = 3
		svc := NewService(store, fetcher, cfg, arbor.NewLogger())

		processed, failures, err := svc.Enrich(context.Background())
		if err != nil {
			t.Fatalf("Enrich failed: %v", err)
		}
		// Failed requests still count as processed attempts.
		if processed != 3 || failures != 3 {
			t.Errorf("processed=%d failures=%d, want 3/3", processed, failures)
		}
		if len(fetcher.fetched) != 3 {
			t.Errorf("expected fetching to stop at the cap, got %d fetches", len(fetcher.fetched))
		}
		if store.lastError == "" {
			t.Error("expected abort reason recorded as last error")
		}
	})

	t.Run("cancelled context stops the pass", func(t *testing.T) {
		store := newMemStore(models.CaptureItem{Name: "Acme", PlaceKey: "cid:1", Website: "acme.io"})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		svc := NewService(store, &scriptedFetcher{}, fastConfig(), arbor.NewLogger())
		if _, _, err := svc.Enrich(ctx); err == nil {
			t.Error("expected context error")
		}
	})
}

func TestBackoffDelay(t *testing.T) {
	step := 200 * time.Millisecond
	max := 3 * time.Second

	if got := backoffDelay(0, step, max); got != 0 {
		t.Errorf("no failures should add no backoff, got %v", got)
	}

	// Monotonically non-decreasing in the failure count.
	prev := time.Duration(0)
	for failures := 1; failures <= 30; failures++ {
		d := backoffDelay(failures, step, max)
		if d < prev {
			t.Fatalf("backoff decreased at %d failures: %v < %v", failures, d, prev)
		}
		if d > max {
			t.Fatalf("backoff exceeded clamp at %d failures: %v", failures, d)
		}
		prev = d
	}

	if got := backoffDelay(30, step, max); got != max {
		t.Errorf("deep failure count should hit the clamp, got %v", got)
	}
}

func TestExtractContacts(t *testing.T) {
	html := `
<html><body>
  <a href="mailto:hello@acme.io?subject=Hi">Email us</a>
  <a href="tel:+61295551234">Call</a>
  <p>Or write to sales@acme.io, never to icon@2x.png.</p>
</body></html>`

	result := extractContacts(html)
	if len(result.Emails) != 2 {
		t.Fatalf("Emails = %v, want mailto plus text address", result.Emails)
	}
	if result.Emails[0] != "hello@acme.io" {
		t.Errorf("mailto address should lead: %v", result.Emails)
	}
	if len(result.Phones) != 1 || result.Phones[0] != "+61295551234" {
		t.Errorf("Phones = %v", result.Phones)
	}
}

func TestNormalizeWebsite(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"acme.io", "https://acme.io"},
		{"https://acme.io/contact", "https://acme.io/contact"},
		{"not a domain", ""},
		{"nodots", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := normalizeWebsite(tt.in); got != tt.want {
			t.Errorf("normalizeWebsite(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
