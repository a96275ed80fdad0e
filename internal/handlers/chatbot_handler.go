// -----------------------------------------------------------------------
// Chatbot Handler - denormalized indexing status per chatbot
// -----------------------------------------------------------------------

package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// ChatbotHandler serves the per-chatbot indexing state
type ChatbotHandler struct {
	states interfaces.StateStorage
	chunks interfaces.ChunkStorage
	logger arbor.ILogger
}

// NewChatbotHandler creates a new chatbot status handler
func NewChatbotHandler(states interfaces.StateStorage, chunks interfaces.ChunkStorage, logger arbor.ILogger) *ChatbotHandler {
	return &ChatbotHandler{
		states: states,
		chunks: chunks,
		logger: logger,
	}
}

// ChatbotStatusResponse is the GET /api/chatbots/{id}/status payload
type ChatbotStatusResponse struct {
	ChatbotID  string           `json:"chatbot_id"`
	Status     models.JobStatus `json:"status,omitempty"`
	JobID      string           `json:"job_id,omitempty"`
	ChunkCount int              `json:"chunk_count"`
	UpdatedAt  *time.Time       `json:"updated_at,omitempty"`
}

// GetStatusHandler returns the last sealed job outcome and current chunk count
// GET /api/chatbots/{id}/status
func (h *ChatbotHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	ctx := r.Context()

	chatbotID := chatbotIDFromPath(r.URL.Path)
	if chatbotID == "" {
		WriteError(w, http.StatusBadRequest, "Chatbot ID is required")
		return
	}

	response := &ChatbotStatusResponse{ChatbotID: chatbotID}

	state, err := h.states.GetState(ctx, chatbotID)
	if err != nil {
		h.logger.Error().Err(err).Str("chatbot_id", chatbotID).Msg("Failed to load chatbot state")
		WriteError(w, http.StatusInternalServerError, "Failed to load chatbot state")
		return
	}
	if state != nil {
		response.Status = state.Status
		response.JobID = state.JobID
		response.UpdatedAt = &state.UpdatedAt
	}

	count, err := h.chunks.CountChunks(ctx, chatbotID)
	if err != nil {
		h.logger.Warn().Err(err).Str("chatbot_id", chatbotID).Msg("Failed to count chunks")
	} else {
		response.ChunkCount = count
	}

	WriteJSON(w, http.StatusOK, response)
}

// chatbotIDFromPath extracts the chatbot ID from /api/chatbots/{id}/status
func chatbotIDFromPath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 3 {
		return ""
	}
	return parts[2]
}
