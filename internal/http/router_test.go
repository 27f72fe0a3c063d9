package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"knowledgehub/internal/indexer"
	"knowledgehub/internal/rag"
	"knowledgehub/internal/storage"
	storagemocks "knowledgehub/internal/storage/mocks"
	vsmocks "knowledgehub/internal/vectorstore/mocks"
)

type stubEmbedder struct{}

func (stubEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i := range vecs {
		vecs[i] = []float32{1, 0}
	}
	return vecs, nil
}

func (stubEmbedder) EmbedText(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func newTestDeps(t *testing.T) *Deps {
	t.Helper()
	ctrl := gomock.NewController(t)

	db, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	docs := storagemocks.NewMockDocumentStore(ctrl)
	chunks := storagemocks.NewMockChunkStore(ctrl)
	vectors := vsmocks.NewMockVectorStore(ctrl)
	vectors.EXPECT().CollectionExists(gomock.Any(), gomock.Any()).Return(false, nil).AnyTimes()
	chunks.EXPECT().SearchKeyword(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, nil).AnyTimes()

	pipeline := indexer.NewPipeline(docs, chunks, vectors, stubEmbedder{}, "kb", 2, 500, 2)
	engine := rag.NewEngine(chunks, vectors, stubEmbedder{}, rag.TokenOverlapReranker{}, rag.Config{
		CollectionPrefix: "kb",
		RRFK:             60,
		LexicalBaseScore: 0.25,
		SemanticTimeout:  time.Second,
		KeywordTimeout:   time.Second,
		ContextMaxChars:  2000,
	})

	return &Deps{DB: db, Pipeline: pipeline, Engine: engine, VectorStore: vectors}
}

func TestNewRouter(t *testing.T) {
	if NewRouter(newTestDeps(t)) == nil {
		t.Fatal("NewRouter() returned nil")
	}
}

func TestRouter_Routes(t *testing.T) {
	router := NewRouter(newTestDeps(t))

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{
			name:       "POST /api/search with invalid body",
			method:     http.MethodPost,
			path:       "/api/search",
			body:       "not json",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "POST /api/search works",
			method:     http.MethodPost,
			path:       "/api/search",
			body:       `{"tenant_id":"t","query":"hello world"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "GET /api/search method not allowed",
			method:     http.MethodGet,
			path:       "/api/search",
			wantStatus: http.StatusMethodNotAllowed,
		},
		{
			name:       "POST /api/context missing tenant",
			method:     http.MethodPost,
			path:       "/api/context",
			body:       `{"query":"hello"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "POST /api/ingest missing tenant",
			method:     http.MethodPost,
			path:       "/api/ingest",
			body:       `{"content":"hello"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "DELETE /api/documents without tenant",
			method:     http.MethodDelete,
			path:       "/api/documents/doc-1",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "GET /api/stats without tenant",
			method:     http.MethodGet,
			path:       "/api/stats",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "GET /healthz",
			method:     http.MethodGet,
			path:       "/healthz",
			wantStatus: http.StatusOK,
		},
		{
			name:       "unknown route",
			method:     http.MethodGet,
			path:       "/nope",
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body *strings.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			} else {
				body = strings.NewReader("")
			}
			req := httptest.NewRequest(tt.method, tt.path, body)
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Router %s %s status = %v, want %v", tt.method, tt.path, w.Code, tt.wantStatus)
			}
		})
	}
}

func TestRouter_MiddlewareApplied(t *testing.T) {
	router := NewRouter(newTestDeps(t))

	req := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader("{}"))
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("Router should apply CORS middleware")
	}
}
