package indexer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"go.uber.org/mock/gomock"

	embmocks "knowledgehub/internal/indexer/mocks"
	"knowledgehub/internal/storage"
	storagemocks "knowledgehub/internal/storage/mocks"
	"knowledgehub/internal/vectorstore"
	vsmocks "knowledgehub/internal/vectorstore/mocks"
)

const testVectorSize = 4

type pipelineMocks struct {
	docs     *storagemocks.MockDocumentStore
	chunks   *storagemocks.MockChunkStore
	vectors  *vsmocks.MockVectorStore
	embedder *embmocks.MockEmbedder
}

func newTestPipeline(t *testing.T) (*Pipeline, pipelineMocks) {
	t.Helper()
	ctrl := gomock.NewController(t)
	m := pipelineMocks{
		docs:     storagemocks.NewMockDocumentStore(ctrl),
		chunks:   storagemocks.NewMockChunkStore(ctrl),
		vectors:  vsmocks.NewMockVectorStore(ctrl),
		embedder: embmocks.NewMockEmbedder(ctrl),
	}
	p := NewPipeline(m.docs, m.chunks, m.vectors, m.embedder, "kb", testVectorSize, 500, 2)
	return p, m
}

func testVector() []float32 {
	return []float32{0.1, 0.2, 0.3, 0.4}
}

func TestIngest_NewDocument(t *testing.T) {
	p, m := newTestPipeline(t)
	ctx := context.Background()

	raw := []byte("Project Phoenix kickoff meeting with Alice and Bob on March 3rd.")

	m.docs.EXPECT().GetByTenantAndHash(gomock.Any(), "tenant-a", gomock.Any()).
		Return(nil, storage.ErrNotFound)

	var insertedID string
	m.docs.EXPECT().Insert(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, doc *storage.DocumentRecord) error {
			insertedID = doc.ID
			if doc.Status != storage.StatusPending {
				t.Errorf("inserted status = %s", doc.Status)
			}
			if doc.ContentHash == "" {
				t.Error("content hash not set")
			}
			return nil
		})
	m.docs.EXPECT().GetByID(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, id string) (*storage.DocumentRecord, error) {
			return &storage.DocumentRecord{
				ID: id, TenantID: "tenant-a", SourceType: "file", Title: "kickoff.txt",
				Status: storage.StatusPending, CreatedAt: time.Unix(1700000000, 0),
			}, nil
		})

	m.vectors.EXPECT().EnsureCollection(gomock.Any(), "kb_tenant-a", testVectorSize).Return(nil)
	m.embedder.EXPECT().EmbedText(gomock.Any(), gomock.Any()).Return(testVector(), nil)

	m.chunks.EXPECT().InsertBatch(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, chunks []*storage.ChunkRecord) error {
			if len(chunks) != 1 {
				t.Fatalf("got %d chunk rows, want 1", len(chunks))
			}
			if chunks[0].TotalChunks != 1 || chunks[0].ChunkIndex != 0 {
				t.Errorf("chunk row = %+v", chunks[0])
			}
			return nil
		})
	m.vectors.EXPECT().Upsert(gomock.Any(), "kb_tenant-a", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, points []vectorstore.Point) error {
			if len(points) != 1 {
				t.Fatalf("got %d points, want 1", len(points))
			}
			meta := points[0].Meta
			if meta["tenant_id"] != "tenant-a" {
				t.Errorf("payload tenant_id = %v", meta["tenant_id"])
			}
			if meta["source_type"] != "file" {
				t.Errorf("payload source_type = %v", meta["source_type"])
			}
			if meta["created_at"] != int64(1700000000) {
				t.Errorf("payload created_at = %v", meta["created_at"])
			}
			snippet, _ := meta["snippet"].(string)
			if len(snippet) == 0 || len(snippet) > snippetMaxChars {
				t.Errorf("snippet length = %d", len(snippet))
			}
			return nil
		})
	m.docs.EXPECT().SetStatus(gomock.Any(), gomock.Any(), storage.StatusIndexed, "", 1).Return(nil)

	res, err := p.Ingest(ctx, IngestRequest{
		TenantID: "tenant-a", OwnerID: "alice", SourceType: "file",
		Title: "kickoff.txt", ContentType: "text/plain", Raw: raw,
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if res.Status != IngestIndexed {
		t.Errorf("status = %s", res.Status)
	}
	if res.ChunksIndexed != 1 {
		t.Errorf("chunks indexed = %d", res.ChunksIndexed)
	}
	if res.DocumentID != insertedID {
		t.Errorf("document id = %s, inserted = %s", res.DocumentID, insertedID)
	}
}

func TestIngest_SnippetKeepsRunesIntact(t *testing.T) {
	p, m := newTestPipeline(t)

	// One-byte offset so the snippet cap lands inside a 3-byte rune.
	raw := []byte("a" + strings.Repeat("日", 110))

	m.docs.EXPECT().GetByTenantAndHash(gomock.Any(), "tenant-a", gomock.Any()).
		Return(nil, storage.ErrNotFound)
	m.docs.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil)
	m.docs.EXPECT().GetByID(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, id string) (*storage.DocumentRecord, error) {
			return &storage.DocumentRecord{
				ID: id, TenantID: "tenant-a", SourceType: "note",
				Status: storage.StatusPending, CreatedAt: time.Unix(1700000000, 0),
			}, nil
		})
	m.vectors.EXPECT().EnsureCollection(gomock.Any(), "kb_tenant-a", testVectorSize).Return(nil)
	m.embedder.EXPECT().EmbedText(gomock.Any(), gomock.Any()).Return(testVector(), nil)
	m.chunks.EXPECT().InsertBatch(gomock.Any(), gomock.Any()).Return(nil)
	m.vectors.EXPECT().Upsert(gomock.Any(), "kb_tenant-a", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, points []vectorstore.Point) error {
			for _, pt := range points {
				snippet, _ := pt.Meta["snippet"].(string)
				if !utf8.ValidString(snippet) {
					t.Errorf("snippet is not valid UTF-8: %q", snippet)
				}
				if len(snippet) > snippetMaxChars {
					t.Errorf("snippet length = %d, cap is %d", len(snippet), snippetMaxChars)
				}
			}
			return nil
		})
	m.docs.EXPECT().SetStatus(gomock.Any(), gomock.Any(), storage.StatusIndexed, "", 1).Return(nil)

	res, err := p.Ingest(context.Background(), IngestRequest{
		TenantID: "tenant-a", SourceType: "note", ContentType: "text/plain", Raw: raw,
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if res.Status != IngestIndexed {
		t.Errorf("status = %s", res.Status)
	}
}

func TestIngest_AlreadyIndexed(t *testing.T) {
	p, m := newTestPipeline(t)

	m.docs.EXPECT().GetByTenantAndHash(gomock.Any(), "tenant-a", gomock.Any()).
		Return(&storage.DocumentRecord{
			ID: "doc-1", TenantID: "tenant-a", Status: storage.StatusIndexed, ChunkCount: 3,
		}, nil)

	// No embedding, chunking writes or vector calls happen on the dedup path.
	res, err := p.Ingest(context.Background(), IngestRequest{
		TenantID: "tenant-a", SourceType: "note", ContentType: "text/plain",
		Raw: []byte("Identical bytes submitted a second time."),
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if res.Status != IngestAlreadyIndexed {
		t.Errorf("status = %s", res.Status)
	}
	if res.DocumentID != "doc-1" || res.ChunksIndexed != 3 {
		t.Errorf("result = %+v", res)
	}
}

func TestIngest_SkippedUnsupported(t *testing.T) {
	p, _ := newTestPipeline(t)

	res, err := p.Ingest(context.Background(), IngestRequest{
		TenantID: "tenant-a", SourceType: "file", ContentType: "image/png",
		Raw: []byte{0x89, 0x50, 0x4e, 0x47},
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if res.Status != IngestSkippedUnsupported {
		t.Errorf("status = %s", res.Status)
	}
	if res.DocumentID != "" {
		t.Errorf("no document row should exist, got id %s", res.DocumentID)
	}
}

func TestIngest_EmbeddingFailureMarksFailed(t *testing.T) {
	p, m := newTestPipeline(t)

	m.docs.EXPECT().GetByTenantAndHash(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, storage.ErrNotFound)
	m.docs.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil)
	m.docs.EXPECT().GetByID(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, id string) (*storage.DocumentRecord, error) {
			return &storage.DocumentRecord{ID: id, TenantID: "tenant-a", Status: storage.StatusPending}, nil
		})
	m.vectors.EXPECT().EnsureCollection(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	m.embedder.EXPECT().EmbedText(gomock.Any(), gomock.Any()).
		Return(nil, errors.New("backend down"))

	var recordedError string
	m.docs.EXPECT().SetStatus(gomock.Any(), gomock.Any(), storage.StatusFailed, gomock.Any(), 0).
		DoAndReturn(func(_ context.Context, _ string, _ storage.DocumentStatus, lastError string, _ int) error {
			recordedError = lastError
			return nil
		})

	res, err := p.Ingest(context.Background(), IngestRequest{
		TenantID: "tenant-a", SourceType: "file", ContentType: "text/plain",
		Raw: []byte("Some text that will fail to embed."),
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if res.Status != IngestFailed {
		t.Errorf("status = %s", res.Status)
	}
	if !strings.Contains(recordedError, "chunk 0") {
		t.Errorf("last error should name the failing chunk: %q", recordedError)
	}
}

func TestIngest_RetriesFailedDocument(t *testing.T) {
	p, m := newTestPipeline(t)

	m.docs.EXPECT().GetByTenantAndHash(gomock.Any(), "tenant-a", gomock.Any()).
		Return(&storage.DocumentRecord{
			ID: "doc-1", TenantID: "tenant-a", SourceType: "file", Title: "retry.txt",
			Status: storage.StatusFailed, LastError: "embedding chunk 0 failed",
			CreatedAt: time.Unix(1700000000, 0),
		}, nil)

	// Compensating delete of the partial first attempt.
	m.chunks.EXPECT().ListIDsByDocument(gomock.Any(), "doc-1").Return([]string{"chunk-old"}, nil)
	m.vectors.EXPECT().CollectionExists(gomock.Any(), "kb_tenant-a").Return(true, nil)
	m.vectors.EXPECT().Delete(gomock.Any(), "kb_tenant-a", []string{"chunk-old"}).Return(nil)
	m.chunks.EXPECT().DeleteByDocument(gomock.Any(), "doc-1").Return(nil)

	// Full re-run from chunk 0.
	m.vectors.EXPECT().EnsureCollection(gomock.Any(), "kb_tenant-a", testVectorSize).Return(nil)
	m.embedder.EXPECT().EmbedText(gomock.Any(), gomock.Any()).Return(testVector(), nil)
	m.chunks.EXPECT().InsertBatch(gomock.Any(), gomock.Any()).Return(nil)
	m.vectors.EXPECT().Upsert(gomock.Any(), "kb_tenant-a", gomock.Any()).Return(nil)
	m.docs.EXPECT().SetStatus(gomock.Any(), "doc-1", storage.StatusIndexed, "", 1).Return(nil)

	res, err := p.Ingest(context.Background(), IngestRequest{
		TenantID: "tenant-a", SourceType: "file", Title: "retry.txt",
		ContentType: "text/plain", Raw: []byte("Text that failed last time."),
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if res.Status != IngestIndexed {
		t.Errorf("status = %s", res.Status)
	}
	if res.DocumentID != "doc-1" {
		t.Errorf("retry must reuse the existing document id, got %s", res.DocumentID)
	}
}

func TestIngest_MissingTenant(t *testing.T) {
	p, _ := newTestPipeline(t)
	if _, err := p.Ingest(context.Background(), IngestRequest{Raw: []byte("text")}); err == nil {
		t.Error("Ingest() should fail without a tenant id")
	}
}

func TestIngestBatch_PreservesOrder(t *testing.T) {
	p, m := newTestPipeline(t)

	// Both requests dedup to already-indexed documents.
	m.docs.EXPECT().GetByTenantAndHash(gomock.Any(), "tenant-a", gomock.Any()).
		DoAndReturn(func(_ context.Context, _, hash string) (*storage.DocumentRecord, error) {
			return &storage.DocumentRecord{ID: "doc-" + hash[:4], Status: storage.StatusIndexed, ChunkCount: 1}, nil
		}).Times(2)

	results := p.IngestBatch(context.Background(), []IngestRequest{
		{TenantID: "tenant-a", ContentType: "text/plain", Raw: []byte("First document body text.")},
		{TenantID: "tenant-a", ContentType: "text/plain", Raw: []byte("Second document body text.")},
	})
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	for i, res := range results {
		if res.Status != IngestAlreadyIndexed {
			t.Errorf("results[%d].Status = %s", i, res.Status)
		}
	}
	if results[0].DocumentID == results[1].DocumentID {
		t.Error("distinct inputs mapped to the same document")
	}
}

func TestDeleteDocument(t *testing.T) {
	p, m := newTestPipeline(t)

	m.docs.EXPECT().GetByID(gomock.Any(), "doc-1").
		Return(&storage.DocumentRecord{ID: "doc-1", TenantID: "tenant-a"}, nil)
	m.chunks.EXPECT().ListIDsByDocument(gomock.Any(), "doc-1").Return([]string{"c1", "c2"}, nil)
	m.vectors.EXPECT().Delete(gomock.Any(), "kb_tenant-a", []string{"c1", "c2"}).Return(nil)
	m.docs.EXPECT().Delete(gomock.Any(), "doc-1", "tenant-a").Return(nil)

	if err := p.DeleteDocument(context.Background(), "doc-1", "tenant-a"); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}
}

func TestDeleteDocument_CrossTenant(t *testing.T) {
	p, m := newTestPipeline(t)

	m.docs.EXPECT().GetByID(gomock.Any(), "doc-1").
		Return(&storage.DocumentRecord{ID: "doc-1", TenantID: "tenant-a"}, nil)

	err := p.DeleteDocument(context.Background(), "doc-1", "tenant-b")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("cross-tenant delete should look like not-found, got %v", err)
	}
}

func TestStats(t *testing.T) {
	p, m := newTestPipeline(t)

	m.docs.EXPECT().Stats(gomock.Any(), "tenant-a").
		Return(&storage.TenantStats{
			TotalDocuments: 2, TotalChunks: 5,
			BySourceType: map[string]int{"file": 1, "email": 1},
		}, nil)
	m.vectors.EXPECT().CollectionExists(gomock.Any(), "kb_tenant-a").Return(true, nil)
	m.vectors.EXPECT().Info(gomock.Any(), "kb_tenant-a").
		Return(&vectorstore.CollectionInfo{VectorSize: testVectorSize, PointsCount: 5}, nil)

	stats, err := p.Stats(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalDocuments != 2 || stats.TotalChunks != 5 || stats.VectorPoints != 5 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestStats_VectorStoreDown(t *testing.T) {
	p, m := newTestPipeline(t)

	m.docs.EXPECT().Stats(gomock.Any(), "tenant-a").
		Return(&storage.TenantStats{TotalDocuments: 1, TotalChunks: 1, BySourceType: map[string]int{"note": 1}}, nil)
	m.vectors.EXPECT().CollectionExists(gomock.Any(), "kb_tenant-a").
		Return(false, vectorstore.ErrUnavailable)

	stats, err := p.Stats(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("Stats() should not fail when the vector store is down: %v", err)
	}
	if stats.TotalDocuments != 1 || stats.VectorPoints != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestContentHash_Deterministic(t *testing.T) {
	a := ContentHash("Normalized text body.")
	b := ContentHash("Normalized text body.")
	if a != b {
		t.Error("identical text must hash identically")
	}
	if a == ContentHash("Different text body.") {
		t.Error("different text must not collide")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
}
