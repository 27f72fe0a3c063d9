package rag

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_reranker.go -package=mocks knowledgehub/internal/rag Reranker

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"knowledgehub/internal/contextutil"
	"knowledgehub/internal/storage"
	"knowledgehub/internal/vectorstore"
)

const (
	defaultTopK = 10
	maxTopK     = 50
)

// Embedder turns a query into an embedding vector.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Config holds the tuning parameters of the hybrid engine.
type Config struct {
	CollectionPrefix string
	RRFK             int
	LexicalBaseScore float64
	SemanticTimeout  time.Duration
	KeywordTimeout   time.Duration
	ContextMaxChars  int
}

// Engine runs hybrid retrieval: semantic search over the tenant's vector
// collection and lexical search over the metadata store, fused with
// reciprocal rank fusion. Either backend failing degrades the query to the
// healthy one instead of failing it.
type Engine struct {
	chunks   storage.ChunkStore
	vectors  vectorstore.VectorStore
	embedder Embedder
	reranker Reranker
	cfg      Config
}

// NewEngine creates a hybrid query engine. reranker may be nil to disable
// reranking entirely.
func NewEngine(chunks storage.ChunkStore, vectors vectorstore.VectorStore, embedder Embedder, reranker Reranker, cfg Config) *Engine {
	return &Engine{
		chunks:   chunks,
		vectors:  vectors,
		embedder: embedder,
		reranker: reranker,
		cfg:      cfg,
	}
}

// Search runs both backends in parallel, fuses their rankings and returns
// the top results. The query is embedded exactly once. Empty results are a
// valid outcome, not an error.
func (e *Engine) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if req.TenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if req.Query == "" {
		return nil, fmt.Errorf("query is required")
	}
	topK := req.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}

	// Both backends fetch more than topK so fusion has overlap to work with.
	candidateK := 2 * topK

	var (
		semantic         []QueryResult
		lexical          []QueryResult
		semanticDegraded bool
		keywordDegraded  bool
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sctx, cancel := context.WithTimeout(gctx, e.cfg.SemanticTimeout)
		defer cancel()

		results, err := e.searchSemantic(sctx, req, candidateK)
		if err != nil {
			logger.WarnContext(gctx, "semantic search degraded", "tenant_id", req.TenantID, "error", err)
			semanticDegraded = true
			return nil
		}
		semantic = results
		return nil
	})

	g.Go(func() error {
		kctx, cancel := context.WithTimeout(gctx, e.cfg.KeywordTimeout)
		defer cancel()

		results, err := e.searchKeyword(kctx, req, candidateK)
		if err != nil {
			logger.WarnContext(gctx, "keyword search degraded", "tenant_id", req.TenantID, "error", err)
			keywordDegraded = true
			return nil
		}
		lexical = results
		return nil
	})

	_ = g.Wait()

	fused := fuseRRF(semantic, lexical, e.cfg.RRFK)

	if (req.Rerank == nil || *req.Rerank) && e.reranker != nil {
		fused = rerankTop(ctx, e.reranker, req.Query, fused, 3*topK)
	}
	if len(fused) > topK {
		fused = fused[:topK]
	}

	e.hydrateTexts(ctx, fused)

	logger.DebugContext(ctx, "hybrid search completed",
		"tenant_id", req.TenantID, "results", len(fused),
		"semantic", len(semantic), "keyword", len(lexical),
		"degraded", semanticDegraded || keywordDegraded)

	return &SearchResponse{
		Results:  fused,
		Degraded: semanticDegraded || keywordDegraded,
	}, nil
}

func (e *Engine) searchSemantic(ctx context.Context, req SearchRequest, k int) ([]QueryResult, error) {
	logger := contextutil.LoggerFromContext(ctx)

	vec, err := e.embedder.EmbedText(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("query embedding failed: %w", err)
	}

	collection := vectorstore.CollectionName(e.cfg.CollectionPrefix, req.TenantID)
	exists, err := e.vectors.CollectionExists(ctx, collection)
	if err != nil {
		return nil, err
	}
	if !exists {
		// Nothing indexed for this tenant yet.
		return nil, nil
	}

	hits, err := e.vectors.Search(ctx, collection, vec, k, vectorstore.Filter{
		TenantID:    req.TenantID,
		SourceTypes: req.SourceTypes,
	})
	if err != nil {
		return nil, err
	}

	results := make([]QueryResult, 0, len(hits))
	for _, hit := range hits {
		// A cross-tenant point here means the collection mapping is broken.
		// Dropping the row is not enough to trust the response, but it must
		// never be surfaced.
		if tenant, _ := hit.Meta["tenant_id"].(string); tenant != req.TenantID {
			logger.ErrorContext(ctx, "tenant isolation violation: dropping foreign point",
				"collection", collection, "point_id", hit.PointID)
			continue
		}
		results = append(results, semanticResult(hit))
	}
	return results, nil
}

func semanticResult(hit vectorstore.SearchResult) QueryResult {
	r := QueryResult{
		ChunkID:       hit.PointID,
		SemanticScore: float64(hit.Score),
	}
	if v, ok := hit.Meta["document_id"].(string); ok {
		r.DocumentID = v
	}
	if v, ok := hit.Meta["source_type"].(string); ok {
		r.SourceType = v
	}
	if v, ok := hit.Meta["title"].(string); ok {
		r.Title = v
	}
	if v, ok := hit.Meta["snippet"].(string); ok {
		r.Text = v
	}
	if v, ok := hit.Meta["chunk_index"].(int64); ok {
		r.ChunkIndex = int(v)
	}
	if v, ok := hit.Meta["created_at"].(int64); ok {
		r.CreatedAt = time.Unix(v, 0).UTC()
	}
	return r
}

func (e *Engine) searchKeyword(ctx context.Context, req SearchRequest, k int) ([]QueryResult, error) {
	tokens := Tokenize(req.Query)
	if len(tokens) == 0 {
		return nil, nil
	}

	matches, err := e.chunks.SearchKeyword(ctx, req.TenantID, tokens, req.SourceTypes, k)
	if err != nil {
		return nil, err
	}

	results := make([]QueryResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, QueryResult{
			ChunkID:      m.Chunk.ID,
			DocumentID:   m.Chunk.DocumentID,
			SourceType:   m.SourceType,
			Title:        m.Title,
			Text:         m.Chunk.Text,
			ChunkIndex:   m.Chunk.ChunkIndex,
			CreatedAt:    m.DocCreatedAt,
			LexicalScore: e.cfg.LexicalBaseScore,
		})
	}
	return results, nil
}

// hydrateTexts replaces payload snippets with full chunk text for results
// that only the semantic backend produced. Best effort: a missing row
// keeps the snippet.
func (e *Engine) hydrateTexts(ctx context.Context, results []QueryResult) {
	for i := range results {
		if results[i].Provenance != ProvenanceSemantic {
			continue
		}
		chunk, err := e.chunks.GetByID(ctx, results[i].ChunkID)
		if err != nil {
			continue
		}
		results[i].Text = chunk.Text
	}
}
