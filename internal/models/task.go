package models

import (
	"time"
)

// TaskStatus represents the state of a single indexing task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// SourceType identifies what kind of knowledge source a task indexes
type SourceType string

const (
	SourceTypeWebsite  SourceType = "website"
	SourceTypeDocument SourceType = "document"
)

// MaxRetryCount is the default number of times a failed task may be requeued
// before the failure is terminal. The worker config can override it.
const MaxRetryCount = 3

// IndexTask represents one URL or document within an indexing job.
// Tasks are created in bulk with the job and mutated by the worker exclusively.
type IndexTask struct {
	ID        string `json:"id" badgerhold:"key"`
	JobID     string `json:"job_id" badgerhold:"index"`
	ChatbotID string `json:"chatbot_id"`

	SourceType SourceType `json:"source_type"`
	SourceURL  string     `json:"source_url"` // URL for websites, storage path for documents

	Status     TaskStatus `json:"status"`
	RetryCount int        `json:"retry_count"`
	Error      string     `json:"error,omitempty"` // Last error message, preserved for operator visibility

	ChunksCreated int `json:"chunks_created"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsTerminal returns true if the task has reached a final status. The worker
// requeues retryable failures as pending, so a persisted failed status is
// always terminal.
func (t *IndexTask) IsTerminal() bool {
	switch t.Status {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}
