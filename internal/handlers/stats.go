package handlers

import (
	"net/http"

	"knowledgehub/internal/contextutil"
	"knowledgehub/internal/indexer"
)

// StatsHandler handles HTTP requests for tenant corpus statistics.
type StatsHandler struct {
	pipeline *indexer.Pipeline
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(pipeline *indexer.Pipeline) *StatsHandler {
	return &StatsHandler{pipeline: pipeline}
}

// ServeHTTP reports indexed document and chunk counts for a tenant.
func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodGet {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	stats, err := h.pipeline.Stats(ctx, tenantID)
	if err != nil {
		logger.ErrorContext(ctx, "stats failed", "tenant_id", tenantID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load stats")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
