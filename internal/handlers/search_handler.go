// -----------------------------------------------------------------------
// Search Handler - similarity search over a chatbot's knowledge base
// -----------------------------------------------------------------------

package handlers

import (
	"net/http"
	"strconv"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/interfaces"
)

// SearchHandler handles similarity search API requests
type SearchHandler struct {
	searchService interfaces.SearchService
	logger        arbor.ILogger
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(searchService interfaces.SearchService, logger arbor.ILogger) *SearchHandler {
	return &SearchHandler{
		searchService: searchService,
		logger:        logger,
	}
}

// SearchHandler returns the top chunks for a query, ranked by similarity
// GET /api/search?chatbot_id=bot-1&q=how+do+refunds+work&limit=10
func (h *SearchHandler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	chatbotID := r.URL.Query().Get("chatbot_id")
	query := r.URL.Query().Get("q")
	if chatbotID == "" || query == "" {
		WriteError(w, http.StatusBadRequest, "chatbot_id and q are required")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}

	results, err := h.searchService.Search(r.Context(), chatbotID, query, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("chatbot_id", chatbotID).Msg("Search failed")
		WriteError(w, http.StatusInternalServerError, "Search failed")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"chatbot_id": chatbotID,
		"query":      query,
		"results":    results,
		"count":      len(results),
	})
}
