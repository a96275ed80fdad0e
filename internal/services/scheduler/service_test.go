package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/services/jobs"
	badgerstorage "github.com/ternarybob/colligo/internal/storage/badger"
)

func newSchedulerEnv(t *testing.T) (*Service, *badgerstorage.Manager) {
	t.Helper()
	logger := arbor.NewLogger()

	store, err := badgerstorage.NewManager(logger, &common.BadgerConfig{
		Path: filepath.Join(t.TempDir(), "db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	jobSvc := jobs.NewService(logger, store.Jobs, store.Tasks, store.States)
	svc := NewService(logger, &common.RefreshConfig{
		Enabled:  true,
		Schedule: "0 0 */6 * * *",
	}, jobSvc, store.Jobs, store.Crawls).(*Service)

	return svc, store
}

func TestRefreshCycleEnqueuesJobs(t *testing.T) {
	svc, store := newSchedulerEnv(t)
	ctx := context.Background()

	// Two chatbots with crawl history, one without
	require.NoError(t, store.Crawls.UpsertRecord(ctx, "bot-1", "https://example.com/a", "hash-a", time.Now()))
	require.NoError(t, store.Crawls.UpsertRecord(ctx, "bot-1", "https://example.com/b", "hash-b", time.Now()))
	require.NoError(t, store.Crawls.UpsertRecord(ctx, "bot-2", "https://example.org/x", "hash-x", time.Now()))

	svc.runRefreshCycle()

	for _, chatbotID := range []string{"bot-1", "bot-2"} {
		list, err := store.Jobs.ListJobs(ctx, &interfaces.JobListOptions{ChatbotID: chatbotID})
		require.NoError(t, err)
		require.Len(t, list, 1, "expected one refresh job for %s", chatbotID)

		job := list[0]
		assert.Equal(t, models.JobTriggerRefresh, job.Trigger)
		assert.True(t, job.SkipUnchanged)
		assert.Equal(t, models.JobStatusPending, job.Status)
	}

	bot1Jobs, err := store.Jobs.ListJobs(ctx, &interfaces.JobListOptions{ChatbotID: "bot-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, bot1Jobs[0].TotalTasks)
}

func TestRefreshSkipsChatbotWithActiveJob(t *testing.T) {
	svc, store := newSchedulerEnv(t)
	ctx := context.Background()

	require.NoError(t, store.Crawls.UpsertRecord(ctx, "bot-busy", "https://example.com/a", "hash-a", time.Now()))
	require.NoError(t, store.Jobs.SaveJob(ctx, &models.IndexJob{
		ID:        "job-active",
		ChatbotID: "bot-busy",
		TenantID:  "tenant-1",
		Status:    models.JobStatusProcessing,
		CreatedAt: time.Now(),
	}))

	svc.runRefreshCycle()

	list, err := store.Jobs.ListJobs(ctx, &interfaces.JobListOptions{ChatbotID: "bot-busy"})
	require.NoError(t, err)
	assert.Len(t, list, 1, "no refresh job while another job is active")
}

func TestRefreshInheritsTenantFromPriorJob(t *testing.T) {
	svc, store := newSchedulerEnv(t)
	ctx := context.Background()

	require.NoError(t, store.Crawls.UpsertRecord(ctx, "bot-1", "https://example.com/a", "hash-a", time.Now()))
	now := time.Now()
	require.NoError(t, store.Jobs.SaveJob(ctx, &models.IndexJob{
		ID:          "job-done",
		ChatbotID:   "bot-1",
		TenantID:    "tenant-42",
		Status:      models.JobStatusCompleted,
		CreatedAt:   now.Add(-time.Hour),
		CompletedAt: &now,
	}))

	svc.runRefreshCycle()

	list, err := store.Jobs.ListJobs(ctx, &interfaces.JobListOptions{ChatbotID: "bot-1", Status: string(models.JobStatusPending)})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "tenant-42", list[0].TenantID)
}

func TestSchedulerDisabledByConfig(t *testing.T) {
	logger := arbor.NewLogger()
	store, err := badgerstorage.NewManager(logger, &common.BadgerConfig{
		Path: filepath.Join(t.TempDir(), "db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	jobSvc := jobs.NewService(logger, store.Jobs, store.Tasks, store.States)
	svc := NewService(logger, &common.RefreshConfig{Enabled: false}, jobSvc, store.Jobs, store.Crawls)

	assert.NoError(t, svc.Start())
	assert.NoError(t, svc.Stop())
}

func TestSchedulerStartStop(t *testing.T) {
	svc, _ := newSchedulerEnv(t)
	require.NoError(t, svc.Start())
	assert.Error(t, svc.Start(), "double start must be rejected")
	assert.NoError(t, svc.Stop())
	assert.NoError(t, svc.Stop())
}
