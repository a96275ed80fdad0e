package badger

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// TenantStorage implements the TenantStorage interface for Badger
type TenantStorage struct {
	db     *BadgerDB
	logger arbor.ILogger

	// reserveMu makes the check-and-update a single atomic step. Without it
	// two concurrent reserves could both read the same usage and both pass a
	// check that only one of them should.
	reserveMu sync.Mutex
}

// NewTenantStorage creates a new TenantStorage instance
func NewTenantStorage(db *BadgerDB, logger arbor.ILogger) interfaces.TenantStorage {
	return &TenantStorage{
		db:     db,
		logger: logger,
	}
}

func (s *TenantStorage) GetTenant(ctx context.Context, tenantID string) (*models.TenantUsage, error) {
	var tenant models.TenantUsage
	if err := s.db.Store().Get(tenantID, &tenant); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, &models.PersistenceError{Op: "get tenant", Err: err}
	}
	return &tenant, nil
}

func (s *TenantStorage) SaveTenant(ctx context.Context, tenant *models.TenantUsage) error {
	tenant.UpdatedAt = time.Now()
	if err := s.db.Store().Upsert(tenant.TenantID, tenant); err != nil {
		return &models.PersistenceError{Op: "save tenant", Err: err}
	}
	return nil
}

func (s *TenantStorage) AtomicCheckAndUpdateSize(ctx context.Context, tenantID string, deltaMB, limitMB float64) (bool, float64, error) {
	s.reserveMu.Lock()
	defer s.reserveMu.Unlock()

	var tenant models.TenantUsage
	err := s.db.Store().Get(tenantID, &tenant)
	if err == badgerhold.ErrNotFound {
		tenant = models.TenantUsage{TenantID: tenantID}
	} else if err != nil {
		return false, 0, &models.PersistenceError{Op: "get tenant", Err: err}
	}

	// A negative delta releases quota, e.g. when stale chunks are deleted.
	// Releases always succeed; usage is floored at zero.
	newSize := tenant.KnowledgeBaseSizeMB + deltaMB
	if newSize < 0 {
		newSize = 0
	}

	if deltaMB > 0 && newSize > limitMB {
		return false, tenant.KnowledgeBaseSizeMB, nil
	}

	tenant.KnowledgeBaseSizeMB = newSize
	tenant.UpdatedAt = time.Now()
	if err := s.db.Store().Upsert(tenantID, &tenant); err != nil {
		return false, tenant.KnowledgeBaseSizeMB, &models.PersistenceError{Op: "update tenant size", Err: err}
	}
	return true, newSize, nil
}
