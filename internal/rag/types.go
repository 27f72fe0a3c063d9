package rag

import "time"

// Provenance values record which backend(s) produced a result.
const (
	ProvenanceSemantic = "semantic"
	ProvenanceKeyword  = "keyword"
	ProvenanceBoth     = "both"
)

// SearchRequest is a hybrid search query scoped to one tenant.
// Rerank is a tri-state: nil means enabled, so omitting the field keeps
// reranking on and only an explicit false disables it.
type SearchRequest struct {
	TenantID    string   `json:"tenant_id"`
	Query       string   `json:"query"`
	SourceTypes []string `json:"source_types,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
	Rerank      *bool    `json:"rerank,omitempty"`
}

// QueryResult is one retrieved chunk with its scores and provenance.
type QueryResult struct {
	ChunkID       string    `json:"chunk_id"`
	DocumentID    string    `json:"document_id"`
	SourceType    string    `json:"source_type"`
	Title         string    `json:"title"`
	Text          string    `json:"text"`
	ChunkIndex    int       `json:"chunk_index"`
	CreatedAt     time.Time `json:"created_at"`
	SemanticScore float64   `json:"semantic_score"`
	LexicalScore  float64   `json:"lexical_score"`
	FusedScore    float64   `json:"fused_score"`
	RerankScore   float64   `json:"rerank_score,omitempty"`
	Provenance    string    `json:"provenance"`
}

// SearchResponse is the outcome of a hybrid search. Degraded means one of
// the backends was unavailable and results come from the healthy one only.
type SearchResponse struct {
	Results  []QueryResult `json:"results"`
	Degraded bool          `json:"degraded"`
}

// ContextRequest asks for an assembled context string for a query.
type ContextRequest struct {
	TenantID    string   `json:"tenant_id"`
	Query       string   `json:"query"`
	SourceTypes []string `json:"source_types,omitempty"`
	MaxChars    int      `json:"max_chars,omitempty"`
}

// ContextResponse carries the assembled context block.
type ContextResponse struct {
	Context  string `json:"context"`
	Results  int    `json:"results"`
	Degraded bool   `json:"degraded"`
}
