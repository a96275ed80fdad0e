package models

import (
	"time"
)

// TenantUsage tracks a tenant's cumulative knowledge-base size. All mutations
// go through TenantStorage.AtomicCheckAndUpdateSize - no other code path may
// increment the size.
type TenantUsage struct {
	TenantID            string    `json:"tenant_id" badgerhold:"key"`
	Tier                string    `json:"tier"`
	KnowledgeBaseSizeMB float64   `json:"knowledge_base_size_mb"`
	Exempt              bool      `json:"exempt"` // Administrative override: bypasses quota checks entirely
	UpdatedAt           time.Time `json:"updated_at"`
}

// TierLimit defines the knowledge-base quota for one subscription tier
type TierLimit struct {
	Name                string  `yaml:"name" json:"name"`
	KnowledgeBaseSizeMB float64 `yaml:"knowledge_base_size_mb" json:"knowledge_base_size_mb"`
}
