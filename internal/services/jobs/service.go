// -----------------------------------------------------------------------
// Jobs Service - create, inspect, cancel and retry indexing jobs
// -----------------------------------------------------------------------

package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// Service implements JobService over the job and task stores
type Service struct {
	logger arbor.ILogger
	jobs   interfaces.JobStorage
	tasks  interfaces.TaskStorage
	states interfaces.StateStorage
}

// NewService creates a new job service
func NewService(logger arbor.ILogger, jobs interfaces.JobStorage, tasks interfaces.TaskStorage, states interfaces.StateStorage) interfaces.JobService {
	return &Service{
		logger: logger,
		jobs:   jobs,
		tasks:  tasks,
		states: states,
	}
}

// CreateJob creates a pending job with one task per source
func (s *Service) CreateJob(ctx context.Context, chatbotID, tenantID string, trigger models.JobTrigger, sources []interfaces.SourceInput) (*models.IndexJob, error) {
	if chatbotID == "" {
		return nil, fmt.Errorf("chatbot_id is required")
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("at least one source is required")
	}
	if trigger == "" {
		trigger = models.JobTriggerCreate
	}

	now := time.Now()
	job := &models.IndexJob{
		ID:         common.NewJobID(),
		ChatbotID:  chatbotID,
		TenantID:   tenantID,
		Trigger:    trigger,
		Status:     models.JobStatusPending,
		TotalTasks: len(sources),
		CreatedAt:  now,
	}
	if trigger == models.JobTriggerRefresh {
		job.SkipUnchanged = true
	}

	tasks := make([]*models.IndexTask, 0, len(sources))
	for _, source := range sources {
		sourceType := source.Type
		if sourceType == "" {
			sourceType = models.SourceTypeWebsite
		}
		if sourceType == models.SourceTypeWebsite {
			normalized, err := common.NormalizeURL(source.URL)
			if err != nil {
				return nil, fmt.Errorf("invalid source URL %q: %w", source.URL, err)
			}
			source.URL = normalized
		}
		tasks = append(tasks, &models.IndexTask{
			ID:         common.NewTaskID(),
			JobID:      job.ID,
			ChatbotID:  chatbotID,
			SourceType: sourceType,
			SourceURL:  source.URL,
			Status:     models.TaskStatusPending,
			CreatedAt:  now,
		})
	}

	if err := s.jobs.SaveJob(ctx, job); err != nil {
		return nil, err
	}
	if err := s.tasks.SaveTasks(ctx, tasks); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("chatbot_id", chatbotID).
		Str("trigger", string(trigger)).
		Int("tasks", len(tasks)).
		Msg("Indexing job created")

	return job, nil
}

// GetJobStatus builds the polling read model for one job
func (s *Service) GetJobStatus(ctx context.Context, jobID string) (*interfaces.JobStatusReport, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	tasks, err := s.tasks.GetTasksForJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	report := &interfaces.JobStatusReport{
		ID:             job.ID,
		ChatbotID:      job.ChatbotID,
		Status:         job.Status,
		TotalTasks:     job.TotalTasks,
		CompletedTasks: job.CompletedTasks,
		FailedTasks:    job.FailedTasks,
		CancelledTasks: job.CancelledTasks,
		Error:          job.Error,
		Tasks:          make([]interfaces.TaskDetail, 0, len(tasks)),
	}

	for _, task := range tasks {
		report.Tasks = append(report.Tasks, interfaces.TaskDetail{
			ID:            task.ID,
			SourceType:    task.SourceType,
			SourceURL:     task.SourceURL,
			Status:        task.Status,
			RetryCount:    task.RetryCount,
			ChunksCreated: task.ChunksCreated,
			Error:         task.Error,
		})
	}

	return report, nil
}

// ListJobs delegates to storage
func (s *Service) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.IndexJob, error) {
	return s.jobs.ListJobs(ctx, opts)
}

// CancelJob marks a job cancelled and cancels its still-pending tasks. The
// worker notices the status at the next task boundary; in-flight work is
// never preempted.
func (s *Service) CancelJob(ctx context.Context, jobID string) error {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return fmt.Errorf("job %s is already %s", jobID, job.Status)
	}

	if err := s.jobs.UpdateJobStatus(ctx, jobID, models.JobStatusCancelled, ""); err != nil {
		return err
	}

	cancelled, err := s.tasks.CancelPendingTasks(ctx, jobID)
	if err != nil {
		return err
	}

	s.mirrorState(ctx, job.ChatbotID, jobID, models.JobStatusCancelled)

	s.logger.Info().
		Str("job_id", jobID).
		Int("cancelled_tasks", cancelled).
		Msg("Job cancelled")

	return nil
}

// RetryJob creates a fresh job covering the failed and cancelled tasks of a
// prior terminal job.
func (s *Service) RetryJob(ctx context.Context, jobID string) (*models.IndexJob, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.IsTerminal() {
		return nil, fmt.Errorf("job %s is still %s and cannot be retried", jobID, job.Status)
	}

	tasks, err := s.tasks.GetTasksForJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	var sources []interfaces.SourceInput
	for _, task := range tasks {
		if task.Status == models.TaskStatusFailed || task.Status == models.TaskStatusCancelled {
			sources = append(sources, interfaces.SourceInput{
				Type: task.SourceType,
				URL:  task.SourceURL,
			})
		}
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("job %s has no failed or cancelled tasks to retry", jobID)
	}

	retry, err := s.CreateJob(ctx, job.ChatbotID, job.TenantID, models.JobTriggerUpdate, sources)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("source_job_id", jobID).
		Str("retry_job_id", retry.ID).
		Int("tasks", len(sources)).
		Msg("Retry job created")

	return retry, nil
}

// mirrorState updates the denormalized chatbot indexing state; failures are
// logged, never propagated.
func (s *Service) mirrorState(ctx context.Context, chatbotID, jobID string, status models.JobStatus) {
	err := s.states.SaveState(ctx, &models.ChatbotIndexState{
		ChatbotID: chatbotID,
		JobID:     jobID,
		Status:    status,
		UpdatedAt: time.Now(),
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("chatbot_id", chatbotID).Msg("Failed to mirror chatbot index state")
	}
}
