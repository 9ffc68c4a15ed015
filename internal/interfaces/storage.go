package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/prospector/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ItemStorage is the background aggregation store. All mutating operations
// persist immediately: the background context may be torn down and respawned
// between messages, so nothing may live only in memory.
type ItemStorage interface {
	// AddItems merges each item by its dedup key and returns the new total
	// count. The batch is applied as one unit with respect to readers.
	AddItems(ctx context.Context, items []models.CaptureItem) (int, error)

	// GetAll returns every stored item.
	GetAll(ctx context.Context) ([]models.CaptureItem, error)

	// Count returns the number of stored items.
	Count(ctx context.Context) (int, error)

	// Clear wipes items, last error, last import, and the debug snapshot as
	// one logical reset. Nothing else deletes records implicitly.
	Clear(ctx context.Context) error

	SetCapturing(ctx context.Context, capturing bool) error
	GetState(ctx context.Context) (models.CaptureState, error)

	SetLastError(ctx context.Context, msg string) error
	GetLastError(ctx context.Context) (string, error)

	SetLastImport(ctx context.Context, rec *models.ImportRecord) error
	GetLastImport(ctx context.Context) (*models.ImportRecord, error)

	// SetDebugSnapshot retains only the most recent snapshot.
	SetDebugSnapshot(ctx context.Context, snap *models.DebugSnapshot) error
	GetDebugSnapshot(ctx context.Context) (*models.DebugSnapshot, error)
}

// StorageManager owns the database connection and its typed stores.
type StorageManager interface {
	ItemStorage() ItemStorage

	// RunGC triggers a badger value-log garbage collection pass.
	RunGC(ctx context.Context) error

	Close() error
}
