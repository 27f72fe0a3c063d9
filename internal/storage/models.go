package storage

import "time"

// DocumentStatus tracks the indexing lifecycle of a document.
type DocumentStatus string

const (
	// StatusPending means the document row exists but indexing has not completed.
	StatusPending DocumentStatus = "pending"
	// StatusIndexed means all chunks and embedding points were written.
	StatusIndexed DocumentStatus = "indexed"
	// StatusFailed means indexing stopped partway; LastError holds the reason.
	StatusFailed DocumentStatus = "failed"
)

// DocumentRecord represents a logical source unit (one file, one email, one
// note) in the database. Immutable once indexed except for status and
// updated_at.
type DocumentRecord struct {
	ID          string
	TenantID    string
	OwnerID     string
	SourceType  string // "file", "email" or "note"
	Title       string
	ContentHash string // SHA-256 hex of the normalized full text, unique per tenant
	Status      DocumentStatus
	LastError   string
	ChunkCount  int
	SourceMeta  string // JSON-encoded source metadata, opaque to the store
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ChunkRecord is a contiguous slice of a document's text, the unit of
// indexing and retrieval. The ID doubles as the vector store point ID.
type ChunkRecord struct {
	ID          string
	DocumentID  string
	ChunkIndex  int
	TotalChunks int
	Text        string
	TokenCount  int
}

// KeywordMatch is a chunk returned by the lexical search backend together
// with the denormalized document fields needed for ranking and display.
type KeywordMatch struct {
	Chunk         ChunkRecord
	TenantID      string
	SourceType    string
	Title         string
	DocCreatedAt  time.Time
	MatchedTokens int
}

// TenantStats summarizes a tenant's indexed corpus.
type TenantStats struct {
	TotalDocuments int            `json:"total_documents"`
	TotalChunks    int            `json:"total_chunks"`
	BySourceType   map[string]int `json:"by_source_type"`
}
