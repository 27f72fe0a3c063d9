package handlers

import (
	"encoding/json"
	"net/http"

	"knowledgehub/internal/contextutil"
	"knowledgehub/internal/rag"
)

// SearchHandler handles HTTP requests for hybrid search.
type SearchHandler struct {
	engine *rag.Engine
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(engine *rag.Engine) *SearchHandler {
	return &SearchHandler{engine: engine}
}

// ServeHTTP runs a hybrid search for one tenant. Backend outages surface as
// degraded=true on a 200 response, never as a failure.
func (h *SearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req rag.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.TenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	resp, err := h.engine.Search(ctx, req)
	if err != nil {
		logger.ErrorContext(ctx, "search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to run search")
		return
	}
	if resp.Results == nil {
		resp.Results = []rag.QueryResult{}
	}

	writeJSON(w, http.StatusOK, resp)
}
