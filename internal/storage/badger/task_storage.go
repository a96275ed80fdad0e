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

// TaskStorage implements the TaskStorage interface for Badger
type TaskStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewTaskStorage creates a new TaskStorage instance
func NewTaskStorage(db *BadgerDB, logger arbor.ILogger) interfaces.TaskStorage {
	return &TaskStorage{
		db:     db,
		logger: logger,
	}
}

func (s *TaskStorage) SaveTasks(ctx context.Context, tasks []*models.IndexTask) error {
	for _, task := range tasks {
		if task.ID == "" {
			return fmt.Errorf("task ID is required")
		}
		if err := s.db.Store().Upsert(task.ID, task); err != nil {
			return &models.PersistenceError{Op: "save task", Err: err}
		}
	}
	return nil
}

func (s *TaskStorage) GetTask(ctx context.Context, taskID string) (*models.IndexTask, error) {
	var task models.IndexTask
	if err := s.db.Store().Get(taskID, &task); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("task not found: %s", taskID)
		}
		return nil, &models.PersistenceError{Op: "get task", Err: err}
	}
	return &task, nil
}

func (s *TaskStorage) GetTasksForJob(ctx context.Context, jobID string) ([]*models.IndexTask, error) {
	var tasks []models.IndexTask
	query := badgerhold.Where("JobID").Eq(jobID).SortBy("CreatedAt")
	if err := s.db.Store().Find(&tasks, query); err != nil {
		return nil, &models.PersistenceError{Op: "get tasks for job", Err: err}
	}

	result := make([]*models.IndexTask, len(tasks))
	for i := range tasks {
		result[i] = &tasks[i]
	}
	return result, nil
}

func (s *TaskStorage) UpdateTaskStatus(ctx context.Context, taskID string, status models.TaskStatus, errorMsg string, chunksCreated int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var task models.IndexTask
	if err := s.db.Store().Get(taskID, &task); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("task not found: %s", taskID)
		}
		return &models.PersistenceError{Op: "get task", Err: err}
	}

	task.Status = status
	task.Error = errorMsg
	if chunksCreated > 0 {
		task.ChunksCreated = chunksCreated
	}

	now := time.Now()
	switch status {
	case models.TaskStatusProcessing:
		if task.StartedAt == nil {
			task.StartedAt = &now
		}
	case models.TaskStatusCompleted, models.TaskStatusFailed, models.TaskStatusCancelled:
		task.CompletedAt = &now
	}

	if err := s.db.Store().Upsert(task.ID, &task); err != nil {
		return &models.PersistenceError{Op: "update task status", Err: err}
	}
	return nil
}

func (s *TaskStorage) IncrementRetryCount(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var task models.IndexTask
	if err := s.db.Store().Get(taskID, &task); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("task not found: %s", taskID)
		}
		return &models.PersistenceError{Op: "get task", Err: err}
	}

	task.RetryCount++
	if err := s.db.Store().Upsert(task.ID, &task); err != nil {
		return &models.PersistenceError{Op: "increment retry count", Err: err}
	}
	return nil
}

// CancelPendingTasks marks the still-pending tasks of a job cancelled so a
// cancel request takes effect before the worker reaches them.
func (s *TaskStorage) CancelPendingTasks(ctx context.Context, jobID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tasks []models.IndexTask
	query := badgerhold.Where("JobID").Eq(jobID).And("Status").Eq(models.TaskStatusPending)
	if err := s.db.Store().Find(&tasks, query); err != nil {
		return 0, &models.PersistenceError{Op: "find pending tasks", Err: err}
	}

	now := time.Now()
	count := 0
	for i := range tasks {
		tasks[i].Status = models.TaskStatusCancelled
		tasks[i].CompletedAt = &now
		if err := s.db.Store().Upsert(tasks[i].ID, &tasks[i]); err != nil {
			return count, &models.PersistenceError{Op: "cancel pending task", Err: err}
		}
		count++
	}
	return count, nil
}

func (s *TaskStorage) CountForJob(ctx context.Context, jobID string) (models.TaskCounts, error) {
	var tasks []models.IndexTask
	if err := s.db.Store().Find(&tasks, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return models.TaskCounts{}, &models.PersistenceError{Op: "count tasks for job", Err: err}
	}

	counts := models.TaskCounts{Total: len(tasks)}
	for i := range tasks {
		switch tasks[i].Status {
		case models.TaskStatusCompleted:
			counts.Completed++
		case models.TaskStatusCancelled:
			counts.Cancelled++
		case models.TaskStatusFailed:
			counts.Failed++
		}
	}
	return counts, nil
}
