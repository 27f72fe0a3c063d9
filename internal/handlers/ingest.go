package handlers

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"knowledgehub/internal/contextutil"
	"knowledgehub/internal/indexer"
)

const maxIngestBytes = 32 << 20

var validSourceTypes = map[string]bool{
	"file":  true,
	"email": true,
	"note":  true,
}

// IngestHandler handles HTTP requests for content ingestion.
type IngestHandler struct {
	pipeline *indexer.Pipeline
}

// NewIngestHandler creates a new IngestHandler.
func NewIngestHandler(pipeline *indexer.Pipeline) *IngestHandler {
	return &IngestHandler{pipeline: pipeline}
}

// IngestRequest represents the JSON request payload for ingestion. Content
// carries the raw bytes, base64-encoded when content_encoding is "base64".
type IngestRequest struct {
	TenantID        string                 `json:"tenant_id"`
	OwnerID         string                 `json:"owner_id"`
	SourceType      string                 `json:"source_type"`
	Title           string                 `json:"title"`
	ContentType     string                 `json:"content_type"`
	Content         string                 `json:"content"`
	ContentEncoding string                 `json:"content_encoding,omitempty"`
	Metadata        indexer.SourceMetadata `json:"metadata"`
}

// ServeHTTP accepts content as JSON or as a multipart form with a "file"
// part and runs it through the ingestion pipeline. The outcome is always a
// structured result; indexing failures map to 502 with the result attached
// so callers can retry.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req indexer.IngestRequest
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		req, err = parseMultipartIngest(r)
	} else {
		req, err = parseJSONIngest(r)
	}
	if err != nil {
		logger.WarnContext(ctx, "invalid ingest request", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.TenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}
	if !validSourceTypes[req.SourceType] {
		writeError(w, http.StatusBadRequest, "source_type must be file, email or note")
		return
	}
	if len(req.Raw) == 0 {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	result, err := h.pipeline.Ingest(ctx, req)
	if err != nil {
		logger.ErrorContext(ctx, "ingest failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to ingest content")
		return
	}

	status := http.StatusOK
	if result.Status == indexer.IngestFailed {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, result)
}

func parseJSONIngest(r *http.Request) (indexer.IngestRequest, error) {
	var body IngestRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxIngestBytes)).Decode(&body); err != nil {
		return indexer.IngestRequest{}, errInvalidBody
	}

	raw := []byte(body.Content)
	if body.ContentEncoding == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(body.Content)
		if err != nil {
			return indexer.IngestRequest{}, errInvalidBase64
		}
		raw = decoded
	}

	return indexer.IngestRequest{
		TenantID:    body.TenantID,
		OwnerID:     body.OwnerID,
		SourceType:  body.SourceType,
		Title:       body.Title,
		ContentType: body.ContentType,
		Raw:         raw,
		Metadata:    body.Metadata,
	}, nil
}

func parseMultipartIngest(r *http.Request) (indexer.IngestRequest, error) {
	if err := r.ParseMultipartForm(maxIngestBytes); err != nil {
		return indexer.IngestRequest{}, errInvalidBody
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return indexer.IngestRequest{}, errMissingFile
	}
	defer func() {
		_ = file.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(file, maxIngestBytes))
	if err != nil {
		return indexer.IngestRequest{}, errInvalidBody
	}

	contentType := r.FormValue("content_type")
	if contentType == "" {
		contentType = header.Header.Get("Content-Type")
	}
	title := r.FormValue("title")
	if title == "" {
		title = header.Filename
	}

	req := indexer.IngestRequest{
		TenantID:    r.FormValue("tenant_id"),
		OwnerID:     r.FormValue("owner_id"),
		SourceType:  r.FormValue("source_type"),
		Title:       title,
		ContentType: contentType,
		Raw:         raw,
		Metadata: indexer.SourceMetadata{
			File: &indexer.FileMeta{
				Filename: header.Filename,
				MIMEType: contentType,
			},
		},
	}
	if meta := r.FormValue("metadata"); meta != "" {
		var parsed indexer.SourceMetadata
		if err := json.Unmarshal([]byte(meta), &parsed); err != nil {
			return indexer.IngestRequest{}, errInvalidMetadata
		}
		req.Metadata = parsed
	}
	return req, nil
}

type ingestError string

func (e ingestError) Error() string { return string(e) }

const (
	errInvalidBody     = ingestError("Invalid request body")
	errInvalidBase64   = ingestError("content is not valid base64")
	errMissingFile     = ingestError("multipart request needs a file part")
	errInvalidMetadata = ingestError("metadata is not valid JSON")
)
