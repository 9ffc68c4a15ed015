package badger

import (
	"context"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/common"
	"github.com/ternarybob/prospector/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db     *BadgerDB
	items  interfaces.ItemStorage
	logger arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:     db,
		items:  NewItemStorage(db, logger),
		logger: logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// ItemStorage returns the aggregation store interface
func (m *Manager) ItemStorage() interfaces.ItemStorage {
	return m.items
}

// RunGC runs one badger value-log garbage collection pass. ErrNoRewrite is
// badger's way of saying there was nothing to collect.
func (m *Manager) RunGC(ctx context.Context) error {
	if m.db == nil {
		return nil
	}
	err := m.db.Store().Badger().RunValueLogGC(0.5)
	if err == badgerdb.ErrNoRewrite {
		m.logger.Debug().Msg("Badger GC: nothing to rewrite")
		return nil
	}
	if err != nil {
		m.logger.Warn().Err(err).Msg("Badger GC pass failed")
		return err
	}
	m.logger.Debug().Msg("Badger GC pass completed")
	return nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
