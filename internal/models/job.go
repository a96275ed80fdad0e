package models

import (
	"time"
)

// JobStatus represents the state of an indexing job.
// The string values are part of the polling API contract and must not change.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusPartial    JobStatus = "partial"
	JobStatusCancelled  JobStatus = "cancelled"
)

// JobTrigger identifies the action that created a job
type JobTrigger string

const (
	JobTriggerCreate  JobTrigger = "create"
	JobTriggerUpdate  JobTrigger = "update"
	JobTriggerRefresh JobTrigger = "refresh"
)

// IndexJob represents one knowledge-base indexing run for a chatbot.
// A job owns one task per URL or document and is mutated only by the worker.
type IndexJob struct {
	ID        string     `json:"id" badgerhold:"key"`
	ChatbotID string     `json:"chatbot_id" badgerhold:"index"`
	TenantID  string     `json:"tenant_id"`
	Trigger   JobTrigger `json:"trigger"`
	Status    JobStatus  `json:"status" badgerhold:"index"`

	// Counters are recomputed from the task set after every task so external
	// pollers see live progress. completed+failed+cancelled never exceeds total.
	TotalTasks     int `json:"total_tasks"`
	CompletedTasks int `json:"completed_tasks"`
	FailedTasks    int `json:"failed_tasks"`
	CancelledTasks int `json:"cancelled_tasks"`

	// SkipUnchanged is set by the refresh scheduler: website tasks whose
	// content fingerprint matches the last recorded crawl complete with zero
	// chunks instead of re-chunking.
	SkipUnchanged bool `json:"skip_unchanged,omitempty"`

	// Error contains a concise, user-friendly description of why the job
	// failed. Only populated for job-level failures, not per-task errors.
	Error string `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// IsTerminal returns true if the job has reached a final status
func (j *IndexJob) IsTerminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusPartial, JobStatusCancelled:
		return true
	}
	return false
}

// TaskCounts aggregates task terminal states for job sealing
type TaskCounts struct {
	Total     int
	Completed int
	Failed    int
	Cancelled int
}

// Terminal returns the number of tasks in a terminal state
func (c TaskCounts) Terminal() int {
	return c.Completed + c.Failed + c.Cancelled
}

// SealStatus computes the final job status from terminal task counts.
// Completed requires every task completed. A cancellation with no completed
// work seals as cancelled. Everything else is partial - the failed status is
// reserved for job-level errors outside task handling.
func SealStatus(c TaskCounts) JobStatus {
	switch {
	case c.Completed == c.Total:
		return JobStatusCompleted
	case c.Completed == 0 && c.Failed == 0 && c.Cancelled > 0:
		return JobStatusCancelled
	default:
		return JobStatusPartial
	}
}

// ChatbotIndexState is the denormalized indexing status mirrored onto the
// owning chatbot whenever a job seals. Read by status-polling endpoints.
type ChatbotIndexState struct {
	ChatbotID string    `json:"chatbot_id" badgerhold:"key"`
	JobID     string    `json:"job_id"`
	Status    JobStatus `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}
