package handlers

import (
	"encoding/json"
	"net/http"

	"knowledgehub/internal/contextutil"
	"knowledgehub/internal/rag"
)

// ContextHandler handles HTTP requests for context assembly.
type ContextHandler struct {
	engine *rag.Engine
}

// NewContextHandler creates a new ContextHandler.
func NewContextHandler(engine *rag.Engine) *ContextHandler {
	return &ContextHandler{engine: engine}
}

// ServeHTTP assembles a retrieval context for a query. An empty context is
// a valid response.
func (h *ContextHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req rag.ContextRequest
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

	resp, err := h.engine.BuildContext(ctx, req)
	if err != nil {
		logger.ErrorContext(ctx, "context assembly failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to build context")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
