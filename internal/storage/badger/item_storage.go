package badger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// Fixed keys for the singleton records that ride alongside the item set.
const (
	keyCaptureState = "capture_state"
	keyLastError    = "last_error"
	keyLastImport   = "last_import"
	keyLastDebug    = "last_debug"
)

// storedItem is the persisted form of a CaptureItem, keyed by its dedup key.
type storedItem struct {
	Key  string `badgerhold:"key"`
	Item models.CaptureItem
}

// lastErrorRecord holds the human-readable last-error string.
type lastErrorRecord struct {
	Message   string
	UpdatedAt time.Time
}

// ItemStorage implements the background aggregation store on badgerhold.
// The write mutex keeps each AddItems batch invisible to concurrent readers
// until it has been fully merged.
type ItemStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	mu     sync.RWMutex
}

// NewItemStorage creates a new ItemStorage instance
func NewItemStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ItemStorage {
	return &ItemStorage{
		db:     db,
		logger: logger,
	}
}

// AddItems merges each incoming item by dedup key and persists the result.
// Incoming non-empty fields overwrite; empty fields never erase existing
// values. Returns the new total item count.
func (s *ItemStorage) AddItems(ctx context.Context, items []models.CaptureItem) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for i := range items {
		in := items[i]
		if in.DetailURL == "" && in.PlaceKey == "" {
			continue
		}
		if in.CollectedAt.IsZero() {
			in.CollectedAt = now
		}

		key := in.Key()
		var existing storedItem
		err := s.db.Store().Get(key, &existing)
		switch err {
		case nil:
			existing.Item.Merge(&in)
		case badgerhold.ErrNotFound:
			existing = storedItem{Key: key, Item: in}
		default:
			return 0, fmt.Errorf("failed to read item %s: %w", key, err)
		}

		if err := s.db.Store().Upsert(key, &existing); err != nil {
			return 0, fmt.Errorf("failed to upsert item %s: %w", key, err)
		}
	}

	total, err := s.countLocked()
	if err != nil {
		return 0, err
	}

	s.logger.Debug().Int("batch", len(items)).Int("total", total).Msg("Item batch merged")
	return total, nil
}

// GetAll returns every stored item ordered by collection time.
func (s *ItemStorage) GetAll(ctx context.Context) ([]models.CaptureItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stored []storedItem
	err := s.db.Store().Find(&stored, badgerhold.Where("Key").Ne("").SortBy("Item.CollectedAt"))
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}

	items := make([]models.CaptureItem, 0, len(stored))
	for _, rec := range stored {
		items = append(items, rec.Item)
	}
	return items, nil
}

// Count returns the number of stored items.
func (s *ItemStorage) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countLocked()
}

func (s *ItemStorage) countLocked() (int, error) {
	count, err := s.db.Store().Count(&storedItem{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return int(count), nil
}

// Clear wipes items, last error, last import, and the debug snapshot as one
// logical reset. The capturing flag survives a clear.
func (s *ItemStorage) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Store().DeleteMatching(&storedItem{}, nil); err != nil {
		return fmt.Errorf("failed to clear items: %w", err)
	}
	if err := s.db.Store().DeleteMatching(&lastErrorRecord{}, nil); err != nil {
		return fmt.Errorf("failed to clear last error: %w", err)
	}
	if err := s.db.Store().DeleteMatching(&models.ImportRecord{}, nil); err != nil {
		return fmt.Errorf("failed to clear last import: %w", err)
	}
	if err := s.db.Store().DeleteMatching(&models.DebugSnapshot{}, nil); err != nil {
		return fmt.Errorf("failed to clear debug snapshot: %w", err)
	}

	s.logger.Info().Msg("Aggregation store cleared")
	return nil
}

// SetCapturing flips the persisted capture flag.
func (s *ItemStorage) SetCapturing(ctx context.Context, capturing bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := models.CaptureState{Capturing: capturing, UpdatedAt: time.Now()}
	if err := s.db.Store().Upsert(keyCaptureState, &state); err != nil {
		return fmt.Errorf("failed to persist capture state: %w", err)
	}
	return nil
}

// GetState returns the persisted capture state, creating the default
// (capturing=false) on first access.
func (s *ItemStorage) GetState(ctx context.Context) (models.CaptureState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var state models.CaptureState
	err := s.db.Store().Get(keyCaptureState, &state)
	if err == badgerhold.ErrNotFound {
		return models.CaptureState{}, nil
	}
	if err != nil {
		return models.CaptureState{}, fmt.Errorf("failed to read capture state: %w", err)
	}
	return state, nil
}

// SetLastError records the human-readable last-error string. An empty
// message clears it.
func (s *ItemStorage) SetLastError(ctx context.Context, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := lastErrorRecord{Message: msg, UpdatedAt: time.Now()}
	if err := s.db.Store().Upsert(keyLastError, &rec); err != nil {
		return fmt.Errorf("failed to persist last error: %w", err)
	}
	return nil
}

// GetLastError returns the stored last-error string ("" when none).
func (s *ItemStorage) GetLastError(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rec lastErrorRecord
	err := s.db.Store().Get(keyLastError, &rec)
	if err == badgerhold.ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read last error: %w", err)
	}
	return rec.Message, nil
}

// SetLastImport records the outcome of the latest import.
func (s *ItemStorage) SetLastImport(ctx context.Context, rec *models.ImportRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Store().Upsert(keyLastImport, rec); err != nil {
		return fmt.Errorf("failed to persist last import: %w", err)
	}
	return nil
}

// GetLastImport returns the latest import record, nil when none exists.
func (s *ItemStorage) GetLastImport(ctx context.Context) (*models.ImportRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rec models.ImportRecord
	err := s.db.Store().Get(keyLastImport, &rec)
	if err == badgerhold.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read last import: %w", err)
	}
	return &rec, nil
}

// SetDebugSnapshot stores the latest diagnostic snapshot, replacing any
// previous one.
func (s *ItemStorage) SetDebugSnapshot(ctx context.Context, snap *models.DebugSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Store().Upsert(keyLastDebug, snap); err != nil {
		return fmt.Errorf("failed to persist debug snapshot: %w", err)
	}
	return nil
}

// GetDebugSnapshot returns the latest diagnostic snapshot, nil when none.
func (s *ItemStorage) GetDebugSnapshot(ctx context.Context) (*models.DebugSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snap models.DebugSnapshot
	err := s.db.Store().Get(keyLastDebug, &snap)
	if err == badgerhold.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read debug snapshot: %w", err)
	}
	return &snap, nil
}
