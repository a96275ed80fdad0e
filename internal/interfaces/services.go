package interfaces

import (
	"context"

	"github.com/ternarybob/colligo/internal/models"
)

// FetchResult is the cleaned output of fetching one URL
type FetchResult struct {
	Content  string // Whitespace-normalized plain text, truncated to the configured maximum
	Markdown string // Heading-preserving markdown of the same content selection
	Title    string
}

// FetchService retrieves and cleans content for indexing
type FetchService interface {
	// Fetch retrieves a URL and extracts title and main-content text
	Fetch(ctx context.Context, url string) (*FetchResult, error)

	// ReadDocument loads pre-extracted or extractable text for a document
	// source path. A missing or unsupported document returns empty content
	// and no error so the task auto-completes with zero chunks.
	ReadDocument(ctx context.Context, path string) (*FetchResult, error)
}

// ChunkOptions tunes one chunking run
type ChunkOptions struct {
	MaxChunkSize int
	MinChunkSize int
	Overlap      int
	Title        string
}

// ChunkService splits source text into overlapping, quality-filtered chunks
type ChunkService interface {
	Chunk(text string, opts ChunkOptions) []models.ContentChunk
}

// EmbeddingService converts text into fixed-dimension unit vectors
type EmbeddingService interface {
	// Embed lazily initializes the underlying model on first call; concurrent
	// first callers share a single in-flight initialization.
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	ModelName() string
}

// Reservation reports the outcome of a quota reserve
type Reservation struct {
	Approved      bool
	CurrentSizeMB float64
	LimitMB       float64
}

// QuotaService enforces per-tenant knowledge-base size limits
type QuotaService interface {
	// TryReserve atomically reserves deltaMB of quota for a tenant. A
	// rejection returns a *models.QuotaExceededError.
	TryReserve(ctx context.Context, tenantID string, deltaMB float64) (*Reservation, error)
}

// SearchResult pairs a chunk with its similarity to a query
type SearchResult struct {
	Chunk *models.KnowledgeChunk `json:"chunk"`
	Score float64                `json:"score"`
}

// SearchService ranks stored chunks against a query embedding
type SearchService interface {
	Search(ctx context.Context, chatbotID, query string, limit int) ([]*SearchResult, error)
}

// TaskDetail is the per-task view exposed to status pollers
type TaskDetail struct {
	ID            string            `json:"id"`
	SourceType    models.SourceType `json:"source_type"`
	SourceURL     string            `json:"source_url"`
	Status        models.TaskStatus `json:"status"`
	RetryCount    int               `json:"retry_count"`
	ChunksCreated int               `json:"chunks_created"`
	Error         string            `json:"error,omitempty"`
}

// JobStatusReport is the polling read model for one job
type JobStatusReport struct {
	ID             string           `json:"id"`
	ChatbotID      string           `json:"chatbot_id"`
	Status         models.JobStatus `json:"status"`
	TotalTasks     int              `json:"total_tasks"`
	CompletedTasks int              `json:"completed_tasks"`
	FailedTasks    int              `json:"failed_tasks"`
	CancelledTasks int              `json:"cancelled_tasks"`
	Error          string           `json:"error,omitempty"`
	Tasks          []TaskDetail     `json:"tasks"`
}

// SourceInput describes one knowledge source when creating a job
type SourceInput struct {
	Type models.SourceType `json:"type"`
	URL  string            `json:"url"`
}

// JobService creates and controls indexing jobs
type JobService interface {
	CreateJob(ctx context.Context, chatbotID, tenantID string, trigger models.JobTrigger, sources []SourceInput) (*models.IndexJob, error)
	GetJobStatus(ctx context.Context, jobID string) (*JobStatusReport, error)
	ListJobs(ctx context.Context, opts *JobListOptions) ([]*models.IndexJob, error)
	CancelJob(ctx context.Context, jobID string) error

	// RetryJob creates a new job scoped to the failed and cancelled tasks of
	// a prior terminal job.
	RetryJob(ctx context.Context, jobID string) (*models.IndexJob, error)
}

// WorkerService drives pending jobs through the indexing pipeline
type WorkerService interface {
	Start() error
	Stop() error
	IsRunning() bool
}

// SchedulerService runs periodic refresh jobs
type SchedulerService interface {
	Start() error
	Stop() error
}
