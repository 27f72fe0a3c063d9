package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_document_store.go -package=mocks knowledgehub/internal/storage DocumentStore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")
)

const sqliteTimeLayout = "2006-01-02 15:04:05"

// DocumentStore defines the interface for document storage operations.
type DocumentStore interface {
	// Insert inserts a new document row with status pending.
	// The doc.ID must be set (UUID) before calling this method.
	Insert(ctx context.Context, doc *DocumentRecord) error
	// GetByID gets a document by its ID. Returns ErrNotFound if not found.
	GetByID(ctx context.Context, id string) (*DocumentRecord, error)
	// GetByTenantAndHash gets a document by tenant ID and content hash.
	// Returns ErrNotFound if not found. This is the deduplication lookup.
	GetByTenantAndHash(ctx context.Context, tenantID, contentHash string) (*DocumentRecord, error)
	// SetStatus updates status, last error and chunk count for a document.
	SetStatus(ctx context.Context, id string, status DocumentStatus, lastError string, chunkCount int) error
	// Delete removes a document scoped to a tenant; chunks cascade.
	// Returns ErrNotFound if no row matched.
	Delete(ctx context.Context, id, tenantID string) error
	// Stats returns per-tenant corpus counts.
	Stats(ctx context.Context, tenantID string) (*TenantStats, error)
}

// DocumentRepo provides methods for document operations.
// It implements the DocumentStore interface.
type DocumentRepo struct {
	db *sql.DB
}

// NewDocumentRepo creates a new DocumentRepo.
func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

// DB returns the underlying database handle.
func (r *DocumentRepo) DB() *sql.DB {
	return r.db
}

// Insert inserts a new document row with status pending.
func (r *DocumentRepo) Insert(ctx context.Context, doc *DocumentRecord) error {
	status := doc.Status
	if status == "" {
		status = StatusPending
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (id, tenant_id, owner_id, source_type, title, content_hash, status, last_error, chunk_count, source_meta)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.TenantID, doc.OwnerID, doc.SourceType, doc.Title, doc.ContentHash,
		string(status), doc.LastError, doc.ChunkCount, doc.SourceMeta,
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

const documentColumns = `id, tenant_id, owner_id, source_type, title, content_hash, status, last_error, chunk_count, source_meta, created_at, updated_at`

// GetByID gets a document by its ID. Returns ErrNotFound if not found.
func (r *DocumentRepo) GetByID(ctx context.Context, id string) (*DocumentRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

// GetByTenantAndHash gets a document by tenant ID and content hash.
// Returns ErrNotFound if not found.
func (r *DocumentRepo) GetByTenantAndHash(ctx context.Context, tenantID, contentHash string) (*DocumentRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE tenant_id = ? AND content_hash = ?`,
		tenantID, contentHash)
	return scanDocument(row)
}

func scanDocument(row *sql.Row) (*DocumentRecord, error) {
	var doc DocumentRecord
	var status, createdAt, updatedAt string

	err := row.Scan(&doc.ID, &doc.TenantID, &doc.OwnerID, &doc.SourceType, &doc.Title,
		&doc.ContentHash, &status, &doc.LastError, &doc.ChunkCount, &doc.SourceMeta,
		&createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query document: %w", err)
	}

	doc.Status = DocumentStatus(status)
	doc.CreatedAt = parseSQLiteTime(createdAt)
	doc.UpdatedAt = parseSQLiteTime(updatedAt)
	return &doc, nil
}

func parseSQLiteTime(s string) time.Time {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		// go-sqlite3 may return RFC 3339 depending on how the value was written.
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}
		}
	}
	return t
}

// SetStatus updates status, last error and chunk count for a document.
func (r *DocumentRepo) SetStatus(ctx context.Context, id string, status DocumentStatus, lastError string, chunkCount int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, last_error = ?, chunk_count = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(status), lastError, chunkCount, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a document scoped to a tenant; chunks cascade via FK.
// Returns ErrNotFound if no row matched.
func (r *DocumentRepo) Delete(ctx context.Context, id, tenantID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM documents WHERE id = ? AND tenant_id = ?`, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Stats returns per-tenant corpus counts: total documents, total chunks,
// and a breakdown by source type. Only indexed documents are counted.
func (r *DocumentRepo) Stats(ctx context.Context, tenantID string) (*TenantStats, error) {
	stats := &TenantStats{BySourceType: make(map[string]int)}

	rows, err := r.db.QueryContext(ctx,
		`SELECT source_type, COUNT(*) FROM documents WHERE tenant_id = ? AND status = ? GROUP BY source_type`,
		tenantID, string(StatusIndexed))
	if err != nil {
		return nil, fmt.Errorf("failed to query document stats: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var sourceType string
		var count int
		if err := rows.Scan(&sourceType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %w", err)
		}
		stats.BySourceType[sourceType] = count
		stats.TotalDocuments += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chunks c JOIN documents d ON d.id = c.document_id
		 WHERE d.tenant_id = ? AND d.status = ?`,
		tenantID, string(StatusIndexed)).Scan(&stats.TotalChunks)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk count: %w", err)
	}

	return stats, nil
}
