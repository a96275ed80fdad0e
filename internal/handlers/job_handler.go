// -----------------------------------------------------------------------
// Job Handler - create, poll, cancel and retry indexing jobs
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// JobHandler handles job-related API requests
type JobHandler struct {
	jobService interfaces.JobService
	logger     arbor.ILogger
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobService interfaces.JobService, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		jobService: jobService,
		logger:     logger,
	}
}

// CreateJobRequest is the POST /api/jobs payload
type CreateJobRequest struct {
	ChatbotID string                   `json:"chatbot_id"`
	TenantID  string                   `json:"tenant_id"`
	Trigger   string                   `json:"trigger,omitempty"`
	Sources   []interfaces.SourceInput `json:"sources"`
}

// CreateJobHandler enqueues a new indexing job
// POST /api/jobs
func (h *JobHandler) CreateJobHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	trigger := models.JobTrigger(req.Trigger)
	switch trigger {
	case models.JobTriggerCreate, models.JobTriggerUpdate, models.JobTriggerRefresh:
	case "":
		trigger = models.JobTriggerCreate
	default:
		WriteError(w, http.StatusBadRequest, "Invalid trigger: "+req.Trigger)
		return
	}

	job, err := h.jobService.CreateJob(ctx, req.ChatbotID, req.TenantID, trigger, req.Sources)
	if err != nil {
		h.logger.Warn().Err(err).Str("chatbot_id", req.ChatbotID).Msg("Failed to create job")
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.Info().
		Str("job_id", job.ID).
		Str("chatbot_id", job.ChatbotID).
		Int("sources", job.TotalTasks).
		Msg("Job created via API")

	WriteJSON(w, http.StatusAccepted, job)
}

// ListJobsHandler returns jobs filtered by chatbot and status
// GET /api/jobs?chatbot_id=bot-1&status=completed&limit=50&offset=0
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 50
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}

	opts := &interfaces.JobListOptions{
		ChatbotID: r.URL.Query().Get("chatbot_id"),
		Status:    r.URL.Query().Get("status"),
		Limit:     limit,
		Offset:    offset,
	}

	jobs, err := h.jobService.ListJobs(ctx, opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":   jobs,
		"count":  len(jobs),
		"limit":  limit,
		"offset": offset,
	})
}

// GetJobHandler returns the polling status report for one job
// GET /api/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	jobID := jobIDFromPath(r.URL.Path)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	report, err := h.jobService.GetJobStatus(r.Context(), jobID)
	if err != nil {
		h.logger.Debug().Err(err).Str("job_id", jobID).Msg("Job lookup failed")
		WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	WriteJSON(w, http.StatusOK, report)
}

// CancelJobHandler requests cooperative cancellation of a job
// POST /api/jobs/{id}/cancel
func (h *JobHandler) CancelJobHandler(w http.ResponseWriter, r *http.Request) {
	jobID := jobIDFromPath(r.URL.Path)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	if err := h.jobService.CancelJob(r.Context(), jobID); err != nil {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Cancel rejected")
		WriteError(w, http.StatusConflict, err.Error())
		return
	}

	h.logger.Info().Str("job_id", jobID).Msg("Job cancellation requested")
	WriteSuccess(w, "Job cancellation requested")
}

// RetryJobHandler creates a follow-up job covering the failed and cancelled
// tasks of a terminal job
// POST /api/jobs/{id}/retry
func (h *JobHandler) RetryJobHandler(w http.ResponseWriter, r *http.Request) {
	jobID := jobIDFromPath(r.URL.Path)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	job, err := h.jobService.RetryJob(r.Context(), jobID)
	if err != nil {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Retry rejected")
		WriteError(w, http.StatusConflict, err.Error())
		return
	}

	h.logger.Info().
		Str("job_id", jobID).
		Str("retry_job_id", job.ID).
		Int("tasks", job.TotalTasks).
		Msg("Retry job created")
	WriteJSON(w, http.StatusAccepted, job)
}

// jobIDFromPath extracts the job ID from /api/jobs/{id} or /api/jobs/{id}/{action}
func jobIDFromPath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 3 {
		return ""
	}
	return parts[2]
}
