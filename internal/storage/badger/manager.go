package badger

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
)

// Manager owns the Badger connection and the typed storages built on it
type Manager struct {
	db     *BadgerDB
	logger arbor.ILogger

	Jobs    interfaces.JobStorage
	Tasks   interfaces.TaskStorage
	Chunks  interfaces.ChunkStorage
	Crawls  interfaces.CrawlStorage
	Tenants interfaces.TenantStorage
	States  interfaces.StateStorage
}

// NewManager opens the database and wires up all storage implementations
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize badger storage: %w", err)
	}

	return &Manager{
		db:      db,
		logger:  logger,
		Jobs:    NewJobStorage(db, logger),
		Tasks:   NewTaskStorage(db, logger),
		Chunks:  NewChunkStorage(db, logger),
		Crawls:  NewCrawlStorage(db, logger),
		Tenants: NewTenantStorage(db, logger),
		States:  NewStateStorage(db, logger),
	}, nil
}

// Close closes the underlying database
func (m *Manager) Close() error {
	m.logger.Debug().Msg("Closing storage manager")
	return m.db.Close()
}
