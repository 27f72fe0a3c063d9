package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"knowledgehub/internal/contextutil"
	"knowledgehub/internal/indexer"
	"knowledgehub/internal/storage"
)

// DocumentHandler handles HTTP requests for document deletion.
type DocumentHandler struct {
	pipeline *indexer.Pipeline
}

// NewDocumentHandler creates a new DocumentHandler.
func NewDocumentHandler(pipeline *indexer.Pipeline) *DocumentHandler {
	return &DocumentHandler{pipeline: pipeline}
}

// ServeHTTP deletes a document with its chunks and vector points. Documents
// belonging to another tenant report 404.
func (h *DocumentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodDelete {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	documentID := chi.URLParam(r, "id")
	tenantID := r.URL.Query().Get("tenant_id")
	if documentID == "" {
		writeError(w, http.StatusBadRequest, "document id is required")
		return
	}
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	if err := h.pipeline.DeleteDocument(ctx, documentID, tenantID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Document not found")
			return
		}
		logger.ErrorContext(ctx, "delete failed", "document_id", documentID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete document")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
