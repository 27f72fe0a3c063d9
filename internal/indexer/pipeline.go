package indexer

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_embedder.go -package=mocks knowledgehub/internal/indexer Embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"knowledgehub/internal/contextutil"
	"knowledgehub/internal/extract"
	"knowledgehub/internal/storage"
	"knowledgehub/internal/vectorstore"
)

// snippetMaxChars caps the chunk text copied into the vector point payload.
const snippetMaxChars = 300

// Embedder generates embedding vectors for texts.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Pipeline runs the ingestion path: extract, deduplicate, chunk, embed and
// index into the metadata store and the tenant's vector collection.
type Pipeline struct {
	docs             storage.DocumentStore
	chunks           storage.ChunkStore
	vectors          vectorstore.VectorStore
	embedder         Embedder
	collectionPrefix string
	vectorSize       int
	chunkMaxTokens   int
	concurrency      int
	locks            docLocks
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(docs storage.DocumentStore, chunks storage.ChunkStore, vectors vectorstore.VectorStore,
	embedder Embedder, collectionPrefix string, vectorSize, chunkMaxTokens, concurrency int) *Pipeline {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pipeline{
		docs:             docs,
		chunks:           chunks,
		vectors:          vectors,
		embedder:         embedder,
		collectionPrefix: collectionPrefix,
		vectorSize:       vectorSize,
		chunkMaxTokens:   chunkMaxTokens,
		concurrency:      concurrency,
	}
}

// ContentHash computes the deduplication hash over normalized text.
func ContentHash(normalizedText string) string {
	sum := sha256.Sum256([]byte(normalizedText))
	return hex.EncodeToString(sum[:])
}

// Ingest processes one unit of content. Re-submitting bytes whose extracted
// text is identical to an already indexed document is a cheap no-op: no
// chunking, no embeddings. A document left pending or failed by an earlier
// attempt is retried in place after a compensating delete of its partial
// chunks and points. Indexing failures are recorded on the document row and
// in the result; the caller owns retry policy.
func (p *Pipeline) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if req.TenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}

	text, ok := extract.Extract(req.Raw, req.ContentType)
	if !ok {
		logger.InfoContext(ctx, "skipping unsupported content",
			"tenant_id", req.TenantID, "content_type", req.ContentType, "title", req.Title)
		return &IngestResult{Status: IngestSkippedUnsupported}, nil
	}
	text = extract.Normalize(text)
	hash := ContentHash(text)

	existing, err := p.docs.GetByTenantAndHash(ctx, req.TenantID, hash)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("dedup lookup failed: %w", err)
	}

	if existing != nil && existing.Status == storage.StatusIndexed {
		logger.InfoContext(ctx, "content already indexed",
			"tenant_id", req.TenantID, "document_id", existing.ID)
		return &IngestResult{
			DocumentID:    existing.ID,
			Status:        IngestAlreadyIndexed,
			ChunksIndexed: existing.ChunkCount,
		}, nil
	}

	var doc *storage.DocumentRecord
	if existing != nil {
		doc = existing
	} else {
		meta, err := req.Metadata.Encode()
		if err != nil {
			return nil, fmt.Errorf("failed to encode source metadata: %w", err)
		}
		doc = &storage.DocumentRecord{
			ID:          uuid.NewString(),
			TenantID:    req.TenantID,
			OwnerID:     req.OwnerID,
			SourceType:  req.SourceType,
			Title:       req.Title,
			ContentHash: hash,
			Status:      storage.StatusPending,
			SourceMeta:  meta,
		}
		if err := p.docs.Insert(ctx, doc); err != nil {
			return nil, fmt.Errorf("failed to insert document: %w", err)
		}
		// Reload for the DB-assigned created_at, which goes into point payloads.
		doc, err = p.docs.GetByID(ctx, doc.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload document: %w", err)
		}
	}

	// Concurrent re-indexing of the same document must not race the
	// compensating delete below against another writer's inserts.
	unlock := p.locks.lock(doc.ID)
	defer unlock()

	collection := vectorstore.CollectionName(p.collectionPrefix, req.TenantID)

	if existing != nil {
		if err := p.cleanupPartial(ctx, doc.ID, collection); err != nil {
			return p.markFailed(ctx, doc.ID, fmt.Errorf("cleanup before retry failed: %w", err))
		}
	}

	chunkCount, err := p.index(ctx, doc, text, collection)
	if err != nil {
		return p.markFailed(ctx, doc.ID, err)
	}

	if err := p.docs.SetStatus(ctx, doc.ID, storage.StatusIndexed, "", chunkCount); err != nil {
		return nil, fmt.Errorf("failed to mark document indexed: %w", err)
	}

	logger.InfoContext(ctx, "document indexed",
		"tenant_id", req.TenantID, "document_id", doc.ID, "chunks", chunkCount)
	return &IngestResult{
		DocumentID:    doc.ID,
		Status:        IngestIndexed,
		ChunksIndexed: chunkCount,
	}, nil
}

// index chunks the text, embeds each chunk and writes chunk rows plus
// vector points. Embedding runs per chunk so a failure can name the chunk
// it died on. Already-written rows are not rolled back here; the retry path
// compensates.
func (p *Pipeline) index(ctx context.Context, doc *storage.DocumentRecord, text, collection string) (int, error) {
	chunks := SplitChunks(text, p.chunkMaxTokens)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("no chunks produced")
	}

	if err := p.vectors.EnsureCollection(ctx, collection, p.vectorSize); err != nil {
		return 0, fmt.Errorf("failed to ensure collection: %w", err)
	}

	records := make([]*storage.ChunkRecord, len(chunks))
	points := make([]vectorstore.Point, len(chunks))
	createdAt := doc.CreatedAt.Unix()

	for i, chunk := range chunks {
		vec, err := p.embedder.EmbedText(ctx, chunk.Text)
		if err != nil {
			return 0, fmt.Errorf("embedding chunk %d failed: %w", chunk.Index, err)
		}

		id := uuid.NewString()
		records[i] = &storage.ChunkRecord{
			ID:          id,
			DocumentID:  doc.ID,
			ChunkIndex:  chunk.Index,
			TotalChunks: len(chunks),
			Text:        chunk.Text,
			TokenCount:  chunk.TokenCount,
		}

		snippet := chunk.Text
		if len(snippet) > snippetMaxChars {
			snippet = snippet[:cutAtRuneBoundary(snippet, snippetMaxChars)]
		}
		points[i] = vectorstore.Point{
			ID:  id,
			Vec: vec,
			Meta: map[string]any{
				"tenant_id":   doc.TenantID,
				"document_id": doc.ID,
				"source_type": doc.SourceType,
				"title":       doc.Title,
				"snippet":     snippet,
				"chunk_index": chunk.Index,
				"created_at":  createdAt,
			},
		}
	}

	if err := p.chunks.InsertBatch(ctx, records); err != nil {
		return 0, fmt.Errorf("failed to insert chunks: %w", err)
	}
	if err := p.vectors.Upsert(ctx, collection, points); err != nil {
		return 0, fmt.Errorf("failed to upsert points: %w", err)
	}
	return len(chunks), nil
}

// cleanupPartial removes chunks and points left by a failed earlier attempt
// so the retry writes exactly one complete copy.
func (p *Pipeline) cleanupPartial(ctx context.Context, documentID, collection string) error {
	ids, err := p.chunks.ListIDsByDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		exists, err := p.vectors.CollectionExists(ctx, collection)
		if err != nil {
			return err
		}
		if exists {
			if err := p.vectors.Delete(ctx, collection, ids); err != nil {
				return err
			}
		}
	}
	return p.chunks.DeleteByDocument(ctx, documentID)
}

func (p *Pipeline) markFailed(ctx context.Context, documentID string, cause error) (*IngestResult, error) {
	logger := contextutil.LoggerFromContext(ctx)
	logger.ErrorContext(ctx, "indexing failed", "document_id", documentID, "error", cause)

	if err := p.docs.SetStatus(ctx, documentID, storage.StatusFailed, cause.Error(), 0); err != nil {
		logger.ErrorContext(ctx, "failed to record failure", "document_id", documentID, "error", err)
	}
	return &IngestResult{
		DocumentID: documentID,
		Status:     IngestFailed,
		Error:      cause.Error(),
	}, nil
}

// IngestBatch processes requests concurrently, bounded by the configured
// concurrency. Results keep the order of the requests. Per-request failures
// land in the result, not in the returned error.
func (p *Pipeline) IngestBatch(ctx context.Context, reqs []IngestRequest) []IngestResult {
	results := make([]IngestResult, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			res, err := p.Ingest(gctx, req)
			if err != nil {
				results[i] = IngestResult{Status: IngestFailed, Error: err.Error()}
				return nil
			}
			results[i] = *res
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// DeleteDocument removes a document, its chunks and its vector points. The
// tenant scope is enforced twice: on the metadata delete and by resolving
// the collection from the caller's tenant, never from the stored row.
func (p *Pipeline) DeleteDocument(ctx context.Context, documentID, tenantID string) error {
	logger := contextutil.LoggerFromContext(ctx)

	doc, err := p.docs.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.TenantID != tenantID {
		// Cross-tenant probes look identical to missing documents.
		return storage.ErrNotFound
	}

	unlock := p.locks.lock(documentID)
	defer unlock()

	ids, err := p.chunks.ListIDsByDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		collection := vectorstore.CollectionName(p.collectionPrefix, tenantID)
		if err := p.vectors.Delete(ctx, collection, ids); err != nil {
			return err
		}
	}

	if err := p.docs.Delete(ctx, documentID, tenantID); err != nil {
		return err
	}

	logger.InfoContext(ctx, "document deleted",
		"tenant_id", tenantID, "document_id", documentID, "chunks", len(ids))
	return nil
}

// docLocks serializes indexing per document id. Entries are reference
// counted and removed once the last holder releases, so the registry stays
// proportional to in-flight work.
type docLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (l *docLocks) lock(id string) func() {
	l.mu.Lock()
	if l.entries == nil {
		l.entries = make(map[string]*lockEntry)
	}
	e, ok := l.entries[id]
	if !ok {
		e = &lockEntry{}
		l.entries[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, id)
		}
		l.mu.Unlock()
	}
}
