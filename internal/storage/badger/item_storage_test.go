package badger

import (
	"context"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/common"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
)

func newTestStorage(t *testing.T) interfaces.ItemStorage {
	t.Helper()
	logger := arbor.NewLogger()
	db, err := NewBadgerDB(logger, &common.BadgerConfig{Path: t.TempDir() + "/db"})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewItemStorage(db, logger)
}

func TestItemStorage_AddItemsMergesByKey(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	first := models.CaptureItem{
		Name:      "Harbour Plumbing",
		DetailURL: "https://maps.example.com/maps/place/harbour?cid=12345678",
		Rating:    4.5,
	}
	total, err := store.AddItems(ctx, []models.CaptureItem{first})
	if err != nil {
		t.Fatalf("AddItems() error = %v", err)
	}
	if total != 1 {
		t.Fatalf("AddItems() total = %d, want 1", total)
	}

	// Same listing rediscovered with detail fields filled in.
	second := first
	second.Phone = "+61 2 9555 0100"
	second.Website = "https://harbourplumbing.example.com"
	total, err = store.AddItems(ctx, []models.CaptureItem{second})
	if err != nil {
		t.Fatalf("AddItems() merge error = %v", err)
	}
	if total != 1 {
		t.Errorf("AddItems() after merge total = %d, want 1", total)
	}

	items, err := store.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("GetAll() returned %d items, want 1", len(items))
	}
	got := items[0]
	if got.Phone != "+61 2 9555 0100" {
		t.Errorf("merged Phone = %q", got.Phone)
	}
	if got.Website != "https://harbourplumbing.example.com" {
		t.Errorf("merged Website = %q", got.Website)
	}
	if got.Name != "Harbour Plumbing" {
		t.Errorf("merged Name = %q, existing value should survive", got.Name)
	}
}

func TestItemStorage_MergeDoesNotEraseWithEmptyFields(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	full := models.CaptureItem{
		Name:      "Corner Cafe",
		DetailURL: "https://maps.example.com/maps/place/corner?cid=99887766",
		Phone:     "+61 3 9555 0101",
		Website:   "https://cornercafe.example.com",
		Emails:    []string{"hello@cornercafe.example.com"},
	}
	if _, err := store.AddItems(ctx, []models.CaptureItem{full}); err != nil {
		t.Fatalf("AddItems() error = %v", err)
	}

	// A later feed scan carries only summary fields.
	sparse := models.CaptureItem{
		Name:      "Corner Cafe",
		DetailURL: full.DetailURL,
		Rating:    4.2,
	}
	if _, err := store.AddItems(ctx, []models.CaptureItem{sparse}); err != nil {
		t.Fatalf("AddItems() sparse error = %v", err)
	}

	items, err := store.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("GetAll() returned %d items, want 1", len(items))
	}
	got := items[0]
	if got.Phone == "" || got.Website == "" || len(got.Emails) == 0 {
		t.Errorf("sparse rescan erased detail fields: %+v", got)
	}
	if got.Rating != 4.2 {
		t.Errorf("Rating = %v, want updated 4.2", got.Rating)
	}
}

func TestItemStorage_SkipsUnkeyedItems(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	total, err := store.AddItems(ctx, []models.CaptureItem{
		{Name: "No URL At All"},
		{Name: "Keyed", DetailURL: "https://maps.example.com/maps/place/keyed?cid=123456"},
	})
	if err != nil {
		t.Fatalf("AddItems() error = %v", err)
	}
	if total != 1 {
		t.Errorf("AddItems() total = %d, want 1 (unkeyed item skipped)", total)
	}
}

func TestItemStorage_ClearKeepsCapturingFlag(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	if _, err := store.AddItems(ctx, []models.CaptureItem{
		{Name: "A", DetailURL: "https://maps.example.com/maps/place/a?cid=111111"},
	}); err != nil {
		t.Fatalf("AddItems() error = %v", err)
	}
	if err := store.SetCapturing(ctx, true); err != nil {
		t.Fatalf("SetCapturing() error = %v", err)
	}
	if err := store.SetLastError(ctx, "enrichment aborted after 25 failed fetches"); err != nil {
		t.Fatalf("SetLastError() error = %v", err)
	}
	if err := store.SetLastImport(ctx, &models.ImportRecord{Count: 3, Status: 200, ImportedAt: time.Now()}); err != nil {
		t.Fatalf("SetLastImport() error = %v", err)
	}
	if err := store.SetDebugSnapshot(ctx, &models.DebugSnapshot{ID: "snap_test", PageTitle: "Empty panel"}); err != nil {
		t.Fatalf("SetDebugSnapshot() error = %v", err)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 0 {
		t.Errorf("Count() after clear = %d, want 0", count)
	}

	lastErr, err := store.GetLastError(ctx)
	if err != nil {
		t.Fatalf("GetLastError() error = %v", err)
	}
	if lastErr != "" {
		t.Errorf("GetLastError() after clear = %q, want empty", lastErr)
	}

	record, err := store.GetLastImport(ctx)
	if err != nil {
		t.Fatalf("GetLastImport() error = %v", err)
	}
	if record != nil {
		t.Errorf("GetLastImport() after clear = %+v, want nil", record)
	}

	snap, err := store.GetDebugSnapshot(ctx)
	if err != nil {
		t.Fatalf("GetDebugSnapshot() error = %v", err)
	}
	if snap != nil {
		t.Errorf("GetDebugSnapshot() after clear = %+v, want nil", snap)
	}

	state, err := store.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if !state.Capturing {
		t.Error("Capturing flag did not survive Clear()")
	}
}

func TestItemStorage_StateDefaultsToNotCapturing(t *testing.T) {
	store := newTestStorage(t)

	state, err := store.GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Capturing {
		t.Error("fresh store reports Capturing = true")
	}
}

func TestItemStorage_GetAllOrdersByCollectionTime(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	batch := []models.CaptureItem{
		{Name: "Second", DetailURL: "https://maps.example.com/maps/place/b?cid=222222", CollectedAt: base.Add(time.Minute)},
		{Name: "First", DetailURL: "https://maps.example.com/maps/place/a?cid=111111", CollectedAt: base},
		{Name: "Third", DetailURL: "https://maps.example.com/maps/place/c?cid=333333", CollectedAt: base.Add(2 * time.Minute)},
	}
	if _, err := store.AddItems(ctx, batch); err != nil {
		t.Fatalf("AddItems() error = %v", err)
	}

	items, err := store.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}
	want := []string{"First", "Second", "Third"}
	if len(items) != len(want) {
		t.Fatalf("GetAll() returned %d items, want %d", len(items), len(want))
	}
	for i, name := range want {
		if items[i].Name != name {
			t.Errorf("items[%d].Name = %q, want %q", i, items[i].Name, name)
		}
	}
}
