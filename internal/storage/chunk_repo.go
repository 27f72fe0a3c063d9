package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_chunk_store.go -package=mocks knowledgehub/internal/storage ChunkStore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// keywordCandidateCap bounds how many rows a keyword query pulls out of
// SQLite before ranking in memory.
const keywordCandidateCap = 500

// ChunkStore defines the interface for chunk storage operations.
type ChunkStore interface {
	// InsertBatch inserts all chunks of one document in a single transaction.
	// Chunk IDs must be set (UUID) before calling this method.
	InsertBatch(ctx context.Context, chunks []*ChunkRecord) error
	// DeleteByDocument deletes all chunks for a given document ID.
	DeleteByDocument(ctx context.Context, documentID string) error
	// ListIDsByDocument returns all chunk IDs for a document, ordered by chunk_index.
	ListIDsByDocument(ctx context.Context, documentID string) ([]string, error)
	// ListByDocument returns all chunks for a document, ordered by chunk_index.
	ListByDocument(ctx context.Context, documentID string) ([]*ChunkRecord, error)
	// GetByID gets a chunk by its ID. Returns ErrNotFound if not found.
	GetByID(ctx context.Context, id string) (*ChunkRecord, error)
	// SearchKeyword performs token-based substring matching over chunk text,
	// scoped to a tenant and optionally to source types.
	SearchKeyword(ctx context.Context, tenantID string, tokens []string, sourceTypes []string, limit int) ([]KeywordMatch, error)
}

// ChunkRepo provides methods for chunk operations.
// It implements the ChunkStore interface.
type ChunkRepo struct {
	db *sql.DB
}

// NewChunkRepo creates a new ChunkRepo.
func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// DB returns the underlying database handle.
func (r *ChunkRepo) DB() *sql.DB {
	return r.db
}

// InsertBatch inserts all chunks of one document in a single transaction.
func (r *ChunkRepo) InsertBatch(ctx context.Context, chunks []*ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO chunks (id, document_id, chunk_index, total_chunks, text, token_count) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, chunk := range chunks {
		if _, err := stmt.ExecContext(ctx,
			chunk.ID, chunk.DocumentID, chunk.ChunkIndex, chunk.TotalChunks, chunk.Text, chunk.TokenCount,
		); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", chunk.ChunkIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunk batch: %w", err)
	}
	return nil
}

// DeleteByDocument deletes all chunks for a given document ID.
// Used by the compensating delete before re-running a failed document.
func (r *ChunkRepo) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks by document: %w", err)
	}
	return nil
}

// ListIDsByDocument returns all chunk IDs for a document, ordered by chunk_index.
// Returns an empty slice if no chunks exist (not an error).
// Used to get vector store point IDs for deletion.
func (r *ChunkRepo) ListIDsByDocument(ctx context.Context, documentID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id FROM chunks WHERE document_id = ? ORDER BY chunk_index",
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk IDs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan chunk ID: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return ids, nil
}

// ListByDocument returns all chunks for a document, ordered by chunk_index.
func (r *ChunkRepo) ListByDocument(ctx context.Context, documentID string) ([]*ChunkRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, document_id, chunk_index, total_chunks, text, token_count FROM chunks WHERE document_id = ? ORDER BY chunk_index",
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var chunks []*ChunkRecord
	for rows.Next() {
		var chunk ChunkRecord
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.ChunkIndex, &chunk.TotalChunks, &chunk.Text, &chunk.TokenCount); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, &chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return chunks, nil
}

// GetByID gets a chunk by its ID. Returns ErrNotFound if not found.
func (r *ChunkRepo) GetByID(ctx context.Context, id string) (*ChunkRecord, error) {
	var chunk ChunkRecord
	err := r.db.QueryRowContext(ctx,
		"SELECT id, document_id, chunk_index, total_chunks, text, token_count FROM chunks WHERE id = ?",
		id,
	).Scan(&chunk.ID, &chunk.DocumentID, &chunk.ChunkIndex, &chunk.TotalChunks, &chunk.Text, &chunk.TokenCount)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk: %w", err)
	}

	return &chunk, nil
}

// SearchKeyword performs token-based substring matching over chunk text,
// scoped to a tenant and optionally filtered by source types. Matches any
// of the tokens in SQL, then ranks in memory by matched token count,
// document recency, and chunk ID for a deterministic order. Only indexed
// documents participate.
func (r *ChunkRepo) SearchKeyword(ctx context.Context, tenantID string, tokens []string, sourceTypes []string, limit int) ([]KeywordMatch, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than 0")
	}
	if len(tokens) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	args := make([]any, 0, len(tokens)+len(sourceTypes)+3)

	sb.WriteString(`SELECT c.id, c.document_id, c.chunk_index, c.total_chunks, c.text, c.token_count,
		d.tenant_id, d.source_type, d.title, d.created_at
		FROM chunks c JOIN documents d ON d.id = c.document_id
		WHERE d.tenant_id = ? AND d.status = ?`)
	args = append(args, tenantID, string(StatusIndexed))

	if len(sourceTypes) > 0 {
		sb.WriteString(" AND d.source_type IN (?" + strings.Repeat(", ?", len(sourceTypes)-1) + ")")
		for _, st := range sourceTypes {
			args = append(args, st)
		}
	}

	sb.WriteString(" AND (")
	for i, token := range tokens {
		if i > 0 {
			sb.WriteString(" OR ")
		}
		sb.WriteString(`c.text LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(token)+"%")
	}
	sb.WriteString(") LIMIT ?")
	args = append(args, keywordCandidateCap)

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run keyword query: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var matches []KeywordMatch
	for rows.Next() {
		var m KeywordMatch
		var createdAt string
		if err := rows.Scan(&m.Chunk.ID, &m.Chunk.DocumentID, &m.Chunk.ChunkIndex, &m.Chunk.TotalChunks,
			&m.Chunk.Text, &m.Chunk.TokenCount, &m.TenantID, &m.SourceType, &m.Title, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan keyword match: %w", err)
		}
		m.DocCreatedAt = parseSQLiteTime(createdAt)
		m.MatchedTokens = countMatchedTokens(m.Chunk.Text, tokens)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	rankKeywordMatches(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func countMatchedTokens(text string, tokens []string) int {
	lower := strings.ToLower(text)
	count := 0
	for _, token := range tokens {
		if strings.Contains(lower, strings.ToLower(token)) {
			count++
		}
	}
	return count
}

// rankKeywordMatches sorts by matched token count desc, then document
// recency desc, then chunk ID asc so results are stable across runs.
func rankKeywordMatches(matches []KeywordMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		return keywordLess(matches[j], matches[i])
	})
}

func keywordLess(a, b KeywordMatch) bool {
	if a.MatchedTokens != b.MatchedTokens {
		return a.MatchedTokens < b.MatchedTokens
	}
	if !a.DocCreatedAt.Equal(b.DocCreatedAt) {
		return a.DocCreatedAt.Before(b.DocCreatedAt)
	}
	return a.Chunk.ID > b.Chunk.ID
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
