package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/colligo/internal/models"
)

// JobListOptions filters and pages job listings
type JobListOptions struct {
	ChatbotID string
	Status    string
	Limit     int
	Offset    int
}

// JobStorage persists indexing jobs
type JobStorage interface {
	SaveJob(ctx context.Context, job *models.IndexJob) error
	GetJob(ctx context.Context, jobID string) (*models.IndexJob, error)
	ListJobs(ctx context.Context, opts *JobListOptions) ([]*models.IndexJob, error)
	GetJobsByStatus(ctx context.Context, status models.JobStatus, limit int) ([]*models.IndexJob, error)
	UpdateJobStatus(ctx context.Context, jobID string, status models.JobStatus, errorMsg string) error

	// ClaimJob atomically transitions a pending job to processing. Returns
	// false without error when the job was already claimed, cancelled, or
	// otherwise no longer pending, so two workers never double-process.
	ClaimJob(ctx context.Context, jobID string) (bool, error)

	// UpdateJobCounters persists recomputed task aggregates for live progress
	UpdateJobCounters(ctx context.Context, jobID string, counts models.TaskCounts) error

	// MarkProcessingJobsPending requeues jobs orphaned by a restart
	MarkProcessingJobsPending(ctx context.Context) (int, error)

	CountJobsByStatus(ctx context.Context, status models.JobStatus) (int, error)
	DeleteJob(ctx context.Context, jobID string) error
}

// TaskStorage persists indexing tasks
type TaskStorage interface {
	SaveTasks(ctx context.Context, tasks []*models.IndexTask) error
	GetTask(ctx context.Context, taskID string) (*models.IndexTask, error)
	GetTasksForJob(ctx context.Context, jobID string) ([]*models.IndexTask, error)
	UpdateTaskStatus(ctx context.Context, taskID string, status models.TaskStatus, errorMsg string, chunksCreated int) error
	IncrementRetryCount(ctx context.Context, taskID string) error

	// CancelPendingTasks marks every still-pending task of a job cancelled.
	// Returns the number of tasks transitioned.
	CancelPendingTasks(ctx context.Context, jobID string) (int, error)

	CountForJob(ctx context.Context, jobID string) (models.TaskCounts, error)
}

// ChunkStorage persists embedded knowledge chunks
type ChunkStorage interface {
	SaveChunks(ctx context.Context, chunks []*models.KnowledgeChunk) error
	GetChunksByChatbot(ctx context.Context, chatbotID string) ([]*models.KnowledgeChunk, error)
	GetChunksBySource(ctx context.Context, chatbotID, sourceURL string) ([]*models.KnowledgeChunk, error)
	DeleteChunksForSource(ctx context.Context, chatbotID, sourceURL string) (int, error)
	CountChunks(ctx context.Context, chatbotID string) (int, error)
}

// CrawlStorage persists per-URL crawl fingerprints for change detection
type CrawlStorage interface {
	UpsertRecord(ctx context.Context, chatbotID, normalizedURL, contentHash string, crawledAt time.Time) error
	GetRecord(ctx context.Context, chatbotID, normalizedURL string) (*models.URLCrawlRecord, error)
	ListByChatbot(ctx context.Context, chatbotID string) ([]*models.URLCrawlRecord, error)
	ListChatbotIDs(ctx context.Context) ([]string, error)
}

// TenantStorage persists tenant usage and performs the atomic quota reserve
type TenantStorage interface {
	GetTenant(ctx context.Context, tenantID string) (*models.TenantUsage, error)
	SaveTenant(ctx context.Context, tenant *models.TenantUsage) error

	// AtomicCheckAndUpdateSize reserves deltaMB against limitMB in one atomic
	// step. Concurrent reserves for the same tenant serialize; the total
	// approved delta never exceeds the limit. Returns the resulting usage.
	AtomicCheckAndUpdateSize(ctx context.Context, tenantID string, deltaMB, limitMB float64) (bool, float64, error)
}

// StateStorage persists the denormalized chatbot indexing state
type StateStorage interface {
	SaveState(ctx context.Context, state *models.ChatbotIndexState) error
	GetState(ctx context.Context, chatbotID string) (*models.ChatbotIndexState, error)
}
