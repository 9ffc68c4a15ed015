package backend

import (
	"context"
	"fmt"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/models"
)

// memStore is an in-memory ItemStorage for handler tests.
type memStore struct {
	items      map[string]models.CaptureItem
	state      models.CaptureState
	lastError  string
	lastImport *models.ImportRecord
	lastDebug  *models.DebugSnapshot
}

func newMemStore() *memStore {
	return &memStore{items: make(map[string]models.CaptureItem)}
}

func (s *memStore) AddItems(_ context.Context, items []models.CaptureItem) (int, error) {
	for _, item := range items {
		if existing, ok := s.items[item.Key()]; ok {
			existing.Merge(&item)
			s.items[item.Key()] = existing
			continue
		}
		s.items[item.Key()] = item
	}
	return len(s.items), nil
}

func (s *memStore) GetAll(context.Context) ([]models.CaptureItem, error) {
	var out []models.CaptureItem
	for _, item := range s.items {
		out = append(out, item)
	}
	return out, nil
}

func (s *memStore) Count(context.Context) (int, error) { return len(s.items), nil }

func (s *memStore) Clear(context.Context) error {
	s.items = make(map[string]models.CaptureItem)
	s.lastError = ""
	s.lastImport = nil
	s.lastDebug = nil
	return nil
}

func (s *memStore) SetCapturing(_ context.Context, capturing bool) error {
	s.state.Capturing = capturing
	return nil
}
func (s *memStore) GetState(context.Context) (models.CaptureState, error) { return s.state, nil }

func (s *memStore) SetLastError(_ context.Context, msg string) error { s.lastError = msg; return nil }
func (s *memStore) GetLastError(context.Context) (string, error)     { return s.lastError, nil }

func (s *memStore) SetLastImport(_ context.Context, r *models.ImportRecord) error {
	s.lastImport = r
	return nil
}
func (s *memStore) GetLastImport(context.Context) (*models.ImportRecord, error) {
	return s.lastImport, nil
}
func (s *memStore) SetDebugSnapshot(_ context.Context, d *models.DebugSnapshot) error {
	s.lastDebug = d
	return nil
}
func (s *memStore) GetDebugSnapshot(context.Context) (*models.DebugSnapshot, error) {
	return s.lastDebug, nil
}

// stubImporter scripts the import outcome.
type stubImporter struct {
	record *models.ImportRecord
	err    error
	got    []models.CaptureItem
}

func (s *stubImporter) Import(_ context.Context, items []models.CaptureItem, niche, location string) (*models.ImportRecord, error) {
	s.got = items
	if s.err != nil {
		return nil, s.err
	}
	r := *s.record
	r.Count = len(items)
	r.Niche = niche
	r.Location = location
	return &r, nil
}

func TestHandler_AddAndGet(t *testing.T) {
	store := newMemStore()
	h := NewHandler(store, nil, nil, nil, arbor.NewLogger())
	ctx := context.Background()

	reply := h.Handle(ctx, models.Message{
		Kind: models.MsgAddItems,
		Items: []models.CaptureItem{
			{Name: "Acme", PlaceKey: "cid:1"},
			{Name: "Bravo", PlaceKey: "cid:2"},
		},
	})
	if !reply.OK || reply.Total != 2 {
		t.Fatalf("add reply = %+v", reply)
	}

	// Same key again: merged, not duplicated.
	reply = h.Handle(ctx, models.Message{
		Kind:  models.MsgAddItems,
		Items: []models.CaptureItem{{Name: "Acme", PlaceKey: "cid:1", Phone: "123 4567"}},
	})
	if reply.Total != 2 {
		t.Errorf("re-add total = %d, want 2", reply.Total)
	}

	reply = h.Handle(ctx, models.Message{Kind: models.MsgGet})
	if !reply.OK || reply.Total != 2 || len(reply.Items) != 2 {
		t.Fatalf("get reply = %+v", reply)
	}
}

func TestHandler_EmptyBatchRejected(t *testing.T) {
	h := NewHandler(newMemStore(), nil, nil, nil, arbor.NewLogger())
	reply := h.Handle(context.Background(), models.Message{Kind: models.MsgAddItems})
	if reply.Err == "" {
		t.Error("expected error for empty batch")
	}
}

func TestHandler_ClearAndCapturing(t *testing.T) {
	store := newMemStore()
	h := NewHandler(store, nil, nil, nil, arbor.NewLogger())
	ctx := context.Background()

	h.Handle(ctx, models.Message{Kind: models.MsgAddItems, Items: []models.CaptureItem{{Name: "Acme", PlaceKey: "cid:1"}}})
	h.Handle(ctx, models.Message{Kind: models.MsgSetCapturing, Capturing: true})

	reply := h.Handle(ctx, models.Message{Kind: models.MsgClear})
	if !reply.OK {
		t.Fatalf("clear reply = %+v", reply)
	}

	reply = h.Handle(ctx, models.Message{Kind: models.MsgGet})
	if reply.Total != 0 {
		t.Errorf("items survived clear: %d", reply.Total)
	}
	if !reply.Capturing {
		t.Error("capturing flag must survive clear")
	}
}

func TestHandler_Import(t *testing.T) {
	ctx := context.Background()

	seed := func(store *memStore) {
		store.AddItems(ctx, []models.CaptureItem{
			{Name: "HasPhone", PlaceKey: "cid:1", Phone: "123 4567"},
			{Name: "HasEmail", PlaceKey: "cid:2", Emails: []string{"a@b.io"}},
			{Name: "NoContact", PlaceKey: "cid:3"},
		})
	}

	t.Run("forwards only items with contact details", func(t *testing.T) {
		store := newMemStore()
		seed(store)
		imp := &stubImporter{record: &models.ImportRecord{Status: 200}}
		h := NewHandler(store, nil, nil, imp, arbor.NewLogger())

		reply := h.Handle(ctx, models.Message{Kind: models.MsgImport, Niche: "plumbers", Location: "sydney"})
		if !reply.OK {
			t.Fatalf("import reply = %+v", reply)
		}
		if len(imp.got) != 2 {
			t.Errorf("imported %d items, want 2", len(imp.got))
		}
		if store.lastImport == nil || store.lastImport.Niche != "plumbers" {
			t.Errorf("lastImport = %+v", store.lastImport)
		}
	})

	t.Run("caller-supplied item set is honored", func(t *testing.T) {
		store := newMemStore()
		seed(store)
		imp := &stubImporter{record: &models.ImportRecord{Status: 200}}
		h := NewHandler(store, nil, nil, imp, arbor.NewLogger())

		reply := h.Handle(ctx, models.Message{
			Kind:  models.MsgImport,
			Items: []models.CaptureItem{{Name: "Handpicked", PlaceKey: "cid:9", Phone: "765 4321"}},
		})
		if !reply.OK {
			t.Fatalf("import reply = %+v", reply)
		}
		if len(imp.got) != 1 || imp.got[0].Name != "Handpicked" {
			t.Errorf("imported %v, want only the supplied item", imp.got)
		}
	})

	t.Run("rejection stored as last error", func(t *testing.T) {
		store := newMemStore()
		seed(store)
		imp := &stubImporter{record: &models.ImportRecord{Status: 429}}
		h := NewHandler(store, nil, nil, imp, arbor.NewLogger())

		reply := h.Handle(ctx, models.Message{Kind: models.MsgImport})
		if reply.OK || reply.Err == "" {
			t.Fatalf("rejection reply = %+v", reply)
		}
		if store.lastError == "" {
			t.Error("expected rejection recorded as last error")
		}
		if store.lastImport == nil || store.lastImport.Status != 429 {
			t.Errorf("rejected import record not stored: %+v", store.lastImport)
		}
	})

	t.Run("transport failure stored as last error", func(t *testing.T) {
		store := newMemStore()
		seed(store)
		imp := &stubImporter{err: fmt.Errorf("connection refused")}
		h := NewHandler(store, nil, nil, imp, arbor.NewLogger())

		reply := h.Handle(ctx, models.Message{Kind: models.MsgImport})
		if reply.Err == "" {
			t.Fatal("expected error reply")
		}
		if store.lastError == "" {
			t.Error("expected failure recorded as last error")
		}
	})

	t.Run("nothing importable", func(t *testing.T) {
		store := newMemStore()
		store.AddItems(ctx, []models.CaptureItem{{Name: "NoContact", PlaceKey: "cid:3"}})
		h := NewHandler(store, nil, nil, &stubImporter{}, arbor.NewLogger())

		if reply := h.Handle(ctx, models.Message{Kind: models.MsgImport}); reply.Err == "" {
			t.Error("expected error when no item has contact details")
		}
	})
}

func TestHandler_PanelDebug(t *testing.T) {
	store := newMemStore()
	h := NewHandler(store, nil, nil, nil, arbor.NewLogger())

	snap := &models.DebugSnapshot{ID: "snap_1", PageTitle: "Acme"}
	reply := h.Handle(context.Background(), models.Message{Kind: models.MsgPanelDebug, Debug: snap})
	if !reply.OK {
		t.Fatalf("snapshot reply = %+v", reply)
	}
	if store.lastDebug == nil || store.lastDebug.ID != "snap_1" {
		t.Errorf("snapshot not stored: %+v", store.lastDebug)
	}

	reply = h.Handle(context.Background(), models.Message{Kind: models.MsgGet})
	if reply.LastDebug == nil || reply.LastDebug.ID != "snap_1" {
		t.Errorf("status view missing snapshot: %+v", reply.LastDebug)
	}
}

func TestHandler_UnknownKind(t *testing.T) {
	h := NewHandler(newMemStore(), nil, nil, nil, arbor.NewLogger())
	reply := h.Handle(context.Background(), models.Message{Kind: "bogus"})
	if reply.Err == "" {
		t.Error("expected error for unknown kind")
	}
}

func TestHandler_UnconfiguredServices(t *testing.T) {
	h := NewHandler(newMemStore(), nil, nil, nil, arbor.NewLogger())
	for _, kind := range []models.MessageKind{
		models.MsgDownloadCSV, models.MsgDownloadJSON, models.MsgEnrichEmails,
	} {
		if reply := h.Handle(context.Background(), models.Message{Kind: kind}); reply.Err == "" {
			t.Errorf("%s: expected error from unconfigured service", kind)
		}
	}
}
