package badger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// JobStorage implements the JobStorage interface for Badger
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger

	// claimMu serializes read-modify-write transitions. BadgerHold has no
	// compare-and-swap, so single-process claims are made atomic here; a
	// multi-process deployment needs an external advisory lock per job.
	claimMu sync.Mutex
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobStorage) SaveJob(ctx context.Context, job *models.IndexJob) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}

	if err := s.db.Store().Upsert(job.ID, job); err != nil {
		return &models.PersistenceError{Op: "save job", Err: err}
	}
	return nil
}

func (s *JobStorage) GetJob(ctx context.Context, jobID string) (*models.IndexJob, error) {
	var job models.IndexJob
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("job not found: %s", jobID)
		}
		return nil, &models.PersistenceError{Op: "get job", Err: err}
	}
	return &job, nil
}

func (s *JobStorage) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.IndexJob, error) {
	query := badgerhold.Where("ID").Ne("")

	if opts != nil {
		if opts.ChatbotID != "" {
			query = query.And("ChatbotID").Eq(opts.ChatbotID)
		}
		if opts.Status != "" {
			query = query.And("Status").Eq(models.JobStatus(opts.Status))
		}
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
		if opts.Offset > 0 {
			query = query.Skip(opts.Offset)
		}
	}
	query = query.SortBy("CreatedAt").Reverse()

	var jobs []models.IndexJob
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, &models.PersistenceError{Op: "list jobs", Err: err}
	}

	result := make([]*models.IndexJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *JobStorage) GetJobsByStatus(ctx context.Context, status models.JobStatus, limit int) ([]*models.IndexJob, error) {
	query := badgerhold.Where("Status").Eq(status).SortBy("CreatedAt")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var jobs []models.IndexJob
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, &models.PersistenceError{Op: "get jobs by status", Err: err}
	}

	result := make([]*models.IndexJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *JobStorage) UpdateJobStatus(ctx context.Context, jobID string, status models.JobStatus, errorMsg string) error {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	var job models.IndexJob
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("job not found: %s", jobID)
		}
		return &models.PersistenceError{Op: "get job", Err: err}
	}

	job.Status = status
	if errorMsg != "" {
		job.Error = errorMsg
	}

	now := time.Now()
	switch status {
	case models.JobStatusProcessing:
		if job.StartedAt == nil {
			job.StartedAt = &now
		}
	case models.JobStatusCancelled:
		job.CancelledAt = &now
		job.CompletedAt = &now
	case models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusPartial:
		job.CompletedAt = &now
	}

	return s.SaveJob(ctx, &job)
}

// ClaimJob transitions pending -> processing under the claim mutex so a job
// is never dispatched twice.
func (s *JobStorage) ClaimJob(ctx context.Context, jobID string) (bool, error) {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	var job models.IndexJob
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return false, nil
		}
		return false, &models.PersistenceError{Op: "claim job", Err: err}
	}

	if job.Status != models.JobStatusPending {
		return false, nil
	}

	now := time.Now()
	job.Status = models.JobStatusProcessing
	job.StartedAt = &now

	if err := s.SaveJob(ctx, &job); err != nil {
		return false, err
	}
	return true, nil
}

func (s *JobStorage) UpdateJobCounters(ctx context.Context, jobID string, counts models.TaskCounts) error {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	var job models.IndexJob
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("job not found: %s", jobID)
		}
		return &models.PersistenceError{Op: "update job counters", Err: err}
	}

	job.CompletedTasks = counts.Completed
	job.FailedTasks = counts.Failed
	job.CancelledTasks = counts.Cancelled

	return s.SaveJob(ctx, &job)
}

// MarkProcessingJobsPending requeues jobs left in processing by a previous
// run so a restart resumes them instead of stranding them.
func (s *JobStorage) MarkProcessingJobsPending(ctx context.Context) (int, error) {
	var jobs []models.IndexJob
	if err := s.db.Store().Find(&jobs, badgerhold.Where("Status").Eq(models.JobStatusProcessing)); err != nil {
		return 0, &models.PersistenceError{Op: "find processing jobs", Err: err}
	}

	count := 0
	for i := range jobs {
		jobs[i].Status = models.JobStatusPending
		if err := s.SaveJob(ctx, &jobs[i]); err == nil {
			count++
		}
	}
	return count, nil
}

func (s *JobStorage) CountJobsByStatus(ctx context.Context, status models.JobStatus) (int, error) {
	count, err := s.db.Store().Count(&models.IndexJob{}, badgerhold.Where("Status").Eq(status))
	if err != nil {
		return 0, &models.PersistenceError{Op: "count jobs", Err: err}
	}
	return int(count), nil
}

func (s *JobStorage) DeleteJob(ctx context.Context, jobID string) error {
	if err := s.db.Store().Delete(jobID, &models.IndexJob{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return &models.PersistenceError{Op: "delete job", Err: err}
	}
	return nil
}

// StateStorage implements the chatbot index state mirror for Badger
type StateStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewStateStorage creates a new StateStorage instance
func NewStateStorage(db *BadgerDB, logger arbor.ILogger) interfaces.StateStorage {
	return &StateStorage{db: db, logger: logger}
}

func (s *StateStorage) SaveState(ctx context.Context, state *models.ChatbotIndexState) error {
	if state.ChatbotID == "" {
		return fmt.Errorf("chatbot ID is required")
	}
	if err := s.db.Store().Upsert(state.ChatbotID, state); err != nil {
		return &models.PersistenceError{Op: "save chatbot state", Err: err}
	}
	return nil
}

func (s *StateStorage) GetState(ctx context.Context, chatbotID string) (*models.ChatbotIndexState, error) {
	var state models.ChatbotIndexState
	if err := s.db.Store().Get(chatbotID, &state); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, &models.PersistenceError{Op: "get chatbot state", Err: err}
	}
	return &state, nil
}
