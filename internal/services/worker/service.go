// -----------------------------------------------------------------------
// Worker Service - polling loop that drives jobs through the pipeline
// -----------------------------------------------------------------------

package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// Service polls for pending jobs and processes them one at a time. Tasks
// within a job run strictly sequentially to bound per-tenant load and keep
// quota accounting simple.
type Service struct {
	logger  arbor.ILogger
	config  *common.WorkerConfig
	jobs    interfaces.JobStorage
	tasks   interfaces.TaskStorage
	states  interfaces.StateStorage
	pipe    *Pipeline
	cancelF context.CancelFunc

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// NewService creates a new worker service
func NewService(
	logger arbor.ILogger,
	config *common.WorkerConfig,
	jobs interfaces.JobStorage,
	tasks interfaces.TaskStorage,
	states interfaces.StateStorage,
	pipeline *Pipeline,
) interfaces.WorkerService {
	return &Service{
		logger: logger,
		config: config,
		jobs:   jobs,
		tasks:  tasks,
		states: states,
		pipe:   pipeline,
	}
}

// Start requeues orphaned jobs and launches the polling loop
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("worker already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelF = cancel
	s.running = true

	// Jobs stranded in processing by a previous run resume from their first
	// non-terminal task.
	if requeued, err := s.jobs.MarkProcessingJobsPending(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to requeue orphaned jobs")
	} else if requeued > 0 {
		s.logger.Info().Int("count", requeued).Msg("Requeued jobs orphaned by previous run")
	}

	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info().
		Str("poll_interval", s.config.PollInterval).
		Int("batch_size", s.config.BatchSize).
		Msg("Worker started")
	return nil
}

// Stop halts the polling loop and waits for the in-flight tick
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cancelF()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info().Msg("Worker stopped")
	return nil
}

// IsRunning reports whether the polling loop is active
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// loop is the polling loop. It survives every job error; only Stop ends it.
func (s *Service) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PollIntervalDuration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick claims and processes one batch of pending jobs
func (s *Service) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("panic", fmt.Sprintf("%v", r)).Msg("Recovered from panic in worker tick")
		}
	}()

	batchSize := s.config.BatchSize
	if batchSize <= 0 {
		batchSize = 5
	}

	pending, err := s.jobs.GetJobsByStatus(ctx, models.JobStatusPending, batchSize)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to scan for pending jobs")
		return
	}

	for _, job := range pending {
		if ctx.Err() != nil {
			return
		}

		claimed, err := s.jobs.ClaimJob(ctx, job.ID)
		if err != nil {
			s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to claim job")
			continue
		}
		if !claimed {
			continue
		}

		s.processJob(ctx, job.ID)
	}
}

// processJob runs every runnable task of a claimed job and seals or requeues
// the job afterwards.
func (s *Service) processJob(ctx context.Context, jobID string) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to load claimed job")
		return
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("chatbot_id", job.ChatbotID).
		Str("trigger", string(job.Trigger)).
		Msg("Processing job")

	tasks, err := s.tasks.GetTasksForJob(ctx, jobID)
	if err != nil {
		s.failJob(ctx, job, fmt.Sprintf("failed to load tasks: %v", err))
		return
	}

	for _, task := range tasks {
		if task.Status != models.TaskStatusPending {
			continue
		}

		// Cancellation is cooperative: checked at task boundaries, never
		// preempting an in-flight fetch/chunk/embed sequence.
		current, err := s.jobs.GetJob(ctx, jobID)
		if err == nil && current.Status == models.JobStatusCancelled {
			s.haltCancelled(ctx, current)
			return
		}

		s.processTask(ctx, job, task)

		if counts, err := s.tasks.CountForJob(ctx, jobID); err == nil {
			if err := s.jobs.UpdateJobCounters(ctx, jobID, counts); err != nil {
				s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to update job counters")
			}
		}
	}

	s.sealOrRequeue(ctx, job)
}

// processTask drives one task through the pipeline and applies the retry
// policy to the outcome.
func (s *Service) processTask(ctx context.Context, job *models.IndexJob, task *models.IndexTask) {
	if err := s.tasks.UpdateTaskStatus(ctx, task.ID, models.TaskStatusProcessing, "", 0); err != nil {
		s.logger.Error().Err(err).Str("task_id", task.ID).Msg("Failed to mark task processing")
		return
	}

	start := time.Now()
	chunksCreated, err := s.pipe.Run(ctx, job, task)
	if err == nil {
		if uerr := s.tasks.UpdateTaskStatus(ctx, task.ID, models.TaskStatusCompleted, "", chunksCreated); uerr != nil {
			s.logger.Error().Err(uerr).Str("task_id", task.ID).Msg("Failed to mark task completed")
			return
		}
		s.logger.Info().
			Str("task_id", task.ID).
			Str("source_url", task.SourceURL).
			Int("chunks", chunksCreated).
			Dur("duration", time.Since(start)).
			Msg("Task completed")
		return
	}

	if errors.Is(err, models.ErrJobCancelled) {
		if uerr := s.tasks.UpdateTaskStatus(ctx, task.ID, models.TaskStatusCancelled, "", 0); uerr != nil {
			s.logger.Error().Err(uerr).Str("task_id", task.ID).Msg("Failed to mark task cancelled")
		}
		return
	}

	if models.IsRetryable(err) && task.RetryCount < s.maxRetries() {
		if ierr := s.tasks.IncrementRetryCount(ctx, task.ID); ierr != nil {
			s.logger.Error().Err(ierr).Str("task_id", task.ID).Msg("Failed to increment retry count")
		}
		if uerr := s.tasks.UpdateTaskStatus(ctx, task.ID, models.TaskStatusPending, err.Error(), 0); uerr != nil {
			s.logger.Error().Err(uerr).Str("task_id", task.ID).Msg("Failed to requeue task")
		}
		s.logger.Warn().
			Err(err).
			Str("task_id", task.ID).
			Int("retry_count", task.RetryCount+1).
			Msg("Task failed, requeued for retry")
		return
	}

	if uerr := s.tasks.UpdateTaskStatus(ctx, task.ID, models.TaskStatusFailed, err.Error(), 0); uerr != nil {
		s.logger.Error().Err(uerr).Str("task_id", task.ID).Msg("Failed to mark task failed")
	}
	s.logger.Error().
		Err(err).
		Str("task_id", task.ID).
		Str("source_url", task.SourceURL).
		Msg("Task terminally failed")
}

// maxRetries returns the configured retry cap, falling back to the model
// default when the config leaves it unset.
func (s *Service) maxRetries() int {
	if s.config.MaxRetries > 0 {
		return s.config.MaxRetries
	}
	return models.MaxRetryCount
}

// sealOrRequeue finishes a job whose task loop has ended. Jobs with
// non-terminal tasks (requeued retries) go back to pending for a later tick.
func (s *Service) sealOrRequeue(ctx context.Context, job *models.IndexJob) {
	counts, err := s.tasks.CountForJob(ctx, job.ID)
	if err != nil {
		s.failJob(ctx, job, fmt.Sprintf("failed to count tasks: %v", err))
		return
	}

	if err := s.jobs.UpdateJobCounters(ctx, job.ID, counts); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to update job counters")
	}

	if counts.Terminal() < counts.Total {
		if err := s.jobs.UpdateJobStatus(ctx, job.ID, models.JobStatusPending, ""); err != nil {
			s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to requeue job")
		}
		return
	}

	status := models.SealStatus(counts)
	if err := s.jobs.UpdateJobStatus(ctx, job.ID, status, ""); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to seal job")
		return
	}
	s.mirrorState(ctx, job.ChatbotID, job.ID, status)

	s.logger.Info().
		Str("job_id", job.ID).
		Str("status", string(status)).
		Int("completed", counts.Completed).
		Int("failed", counts.Failed).
		Int("cancelled", counts.Cancelled).
		Msg("Job sealed")
}

// haltCancelled stops a cancelled job at a task boundary
func (s *Service) haltCancelled(ctx context.Context, job *models.IndexJob) {
	cancelled, err := s.tasks.CancelPendingTasks(ctx, job.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to cancel pending tasks")
	}

	if counts, err := s.tasks.CountForJob(ctx, job.ID); err == nil {
		s.jobs.UpdateJobCounters(ctx, job.ID, counts)
	}
	s.mirrorState(ctx, job.ChatbotID, job.ID, models.JobStatusCancelled)

	s.logger.Info().
		Str("job_id", job.ID).
		Int("cancelled_tasks", cancelled).
		Msg("Job halted by cancellation")
}

// failJob marks a job failed for errors outside task handling
func (s *Service) failJob(ctx context.Context, job *models.IndexJob, msg string) {
	if err := s.jobs.UpdateJobStatus(ctx, job.ID, models.JobStatusFailed, msg); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to mark job failed")
		return
	}
	s.mirrorState(ctx, job.ChatbotID, job.ID, models.JobStatusFailed)
	s.logger.Error().Str("job_id", job.ID).Str("error", msg).Msg("Job failed")
}

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
