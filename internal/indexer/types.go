package indexer

import (
	"encoding/json"
	"time"
)

// Ingest outcome statuses reported to calling pipelines.
const (
	// IngestIndexed means the document was extracted, chunked and indexed.
	IngestIndexed = "indexed"
	// IngestAlreadyIndexed means identical content was indexed before; the
	// call was a no-op.
	IngestAlreadyIndexed = "already_indexed"
	// IngestFailed means indexing stopped partway; Error holds the reason
	// and a re-ingest of the same content retries the document.
	IngestFailed = "failed"
	// IngestSkippedUnsupported means extraction produced no usable text.
	// No document row is created and the content is not retried.
	IngestSkippedUnsupported = "skipped_unsupported"
)

// FileMeta describes a file source.
type FileMeta struct {
	Filename string `json:"filename,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
	Path     string `json:"path,omitempty"`
}

// EmailMeta describes an email source.
type EmailMeta struct {
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	SentAt    time.Time `json:"sent_at,omitzero"`
}

// NoteMeta describes a note source.
type NoteMeta struct {
	Notebook string `json:"notebook,omitempty"`
}

// SourceMetadata carries source-specific detail for a document. At most one
// of File, Email or Note is set, matching the document's source type. Extra
// is an opaque passthrough for upstream pipelines. Persisted as JSON on the
// document row and never interpreted by the engine.
type SourceMetadata struct {
	File  *FileMeta         `json:"file,omitempty"`
	Email *EmailMeta        `json:"email,omitempty"`
	Note  *NoteMeta         `json:"note,omitempty"`
	Extra map[string]string `json:"extra,omitempty"`
}

// Encode serializes the metadata to the JSON form stored on the document
// row. An all-empty value encodes to "{}".
func (m SourceMetadata) Encode() (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// IngestRequest is one unit of content submitted by a file, email or note
// pipeline.
type IngestRequest struct {
	TenantID    string
	OwnerID     string
	SourceType  string // "file", "email" or "note"
	Title       string
	ContentType string // declared type; magic bytes win when they disagree
	Raw         []byte
	Metadata    SourceMetadata
}

// IngestResult reports the outcome of one ingest call. Failures are
// recorded here and on the document row; the caller owns retry policy.
type IngestResult struct {
	DocumentID    string `json:"document_id,omitempty"`
	Status        string `json:"status"`
	ChunksIndexed int    `json:"chunks_indexed"`
	Error         string `json:"error,omitempty"`
}
