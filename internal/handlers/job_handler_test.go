package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
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

func newJobHandlerEnv(t *testing.T) (*JobHandler, *badgerstorage.Manager) {
	t.Helper()
	logger := arbor.NewLogger()

	store, err := badgerstorage.NewManager(logger, &common.BadgerConfig{
		Path: filepath.Join(t.TempDir(), "db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	jobSvc := jobs.NewService(logger, store.Jobs, store.Tasks, store.States)
	return NewJobHandler(jobSvc, logger), store
}

func createJobViaAPI(t *testing.T, h *JobHandler, body string) *models.IndexJob {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/jobs", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.CreateJobHandler(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var job models.IndexJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	return &job
}

func TestCreateJobHandler(t *testing.T) {
	h, _ := newJobHandlerEnv(t)

	job := createJobViaAPI(t, h, `{
		"chatbot_id": "bot-1",
		"tenant_id": "tenant-1",
		"sources": [
			{"type": "website", "url": "https://example.com/docs"},
			{"type": "document", "url": "guides/setup.pdf"}
		]
	}`)

	assert.Equal(t, "bot-1", job.ChatbotID)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, models.JobTriggerCreate, job.Trigger)
	assert.Equal(t, 2, job.TotalTasks)
}

func TestCreateJobHandlerRejectsBadInput(t *testing.T) {
	h, _ := newJobHandlerEnv(t)

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{"chatbot_id": `},
		{"missing chatbot", `{"sources": [{"type": "website", "url": "https://example.com"}]}`},
		{"no sources", `{"chatbot_id": "bot-1", "sources": []}`},
		{"unknown trigger", `{"chatbot_id": "bot-1", "trigger": "bogus", "sources": [{"type": "website", "url": "https://example.com"}]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/jobs", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			h.CreateJobHandler(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestGetJobHandler(t *testing.T) {
	h, _ := newJobHandlerEnv(t)

	job := createJobViaAPI(t, h, `{
		"chatbot_id": "bot-1",
		"tenant_id": "tenant-1",
		"sources": [{"type": "website", "url": "https://example.com/docs"}]
	}`)

	req := httptest.NewRequest("GET", "/api/jobs/"+job.ID, nil)
	rec := httptest.NewRecorder()
	h.GetJobHandler(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var report interfaces.JobStatusReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, job.ID, report.ID)
	assert.Len(t, report.Tasks, 1)
	assert.Equal(t, models.TaskStatusPending, report.Tasks[0].Status)
}

func TestGetJobHandlerNotFound(t *testing.T) {
	h, _ := newJobHandlerEnv(t)

	req := httptest.NewRequest("GET", "/api/jobs/job-missing", nil)
	rec := httptest.NewRecorder()
	h.GetJobHandler(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListJobsHandlerFilters(t *testing.T) {
	h, _ := newJobHandlerEnv(t)

	createJobViaAPI(t, h, `{"chatbot_id": "bot-1", "sources": [{"type": "website", "url": "https://example.com/a"}]}`)
	createJobViaAPI(t, h, `{"chatbot_id": "bot-2", "sources": [{"type": "website", "url": "https://example.com/b"}]}`)

	req := httptest.NewRequest("GET", "/api/jobs?chatbot_id=bot-1", nil)
	rec := httptest.NewRecorder()
	h.ListJobsHandler(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Jobs  []*models.IndexJob `json:"jobs"`
		Count int                `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Equal(t, 1, response.Count)
	assert.Equal(t, "bot-1", response.Jobs[0].ChatbotID)
}

func TestCancelJobHandler(t *testing.T) {
	h, store := newJobHandlerEnv(t)
	ctx := context.Background()

	job := createJobViaAPI(t, h, `{"chatbot_id": "bot-1", "sources": [{"type": "website", "url": "https://example.com/a"}]}`)

	req := httptest.NewRequest("POST", "/api/jobs/"+job.ID+"/cancel", nil)
	rec := httptest.NewRecorder()
	h.CancelJobHandler(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := store.Jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, stored.Status)

	// Cancelling a terminal job is rejected
	rec = httptest.NewRecorder()
	h.CancelJobHandler(rec, httptest.NewRequest("POST", "/api/jobs/"+job.ID+"/cancel", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRetryJobHandler(t *testing.T) {
	h, store := newJobHandlerEnv(t)
	ctx := context.Background()

	job := createJobViaAPI(t, h, `{"chatbot_id": "bot-1", "sources": [{"type": "website", "url": "https://example.com/a"}]}`)

	// Retrying a non-terminal job is rejected
	rec := httptest.NewRecorder()
	h.RetryJobHandler(rec, httptest.NewRequest("POST", "/api/jobs/"+job.ID+"/retry", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Seal the job with a failed task, then retry covers it
	tasks, err := store.Tasks.GetTasksForJob(ctx, job.ID)
	require.NoError(t, err)
	require.NoError(t, store.Tasks.UpdateTaskStatus(ctx, tasks[0].ID, models.TaskStatusFailed, "fetch failed", 0))
	require.NoError(t, store.Jobs.UpdateJobStatus(ctx, job.ID, models.JobStatusPartial, ""))

	rec = httptest.NewRecorder()
	h.RetryJobHandler(rec, httptest.NewRequest("POST", "/api/jobs/"+job.ID+"/retry", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var retry models.IndexJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &retry))
	assert.NotEqual(t, job.ID, retry.ID)
	assert.Equal(t, 1, retry.TotalTasks)
	assert.Equal(t, models.JobTriggerUpdate, retry.Trigger)
	assert.WithinDuration(t, time.Now(), retry.CreatedAt, time.Minute)
}
