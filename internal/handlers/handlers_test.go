package handlers

import (
	"context"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"knowledgehub/internal/indexer"
	"knowledgehub/internal/rag"
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

type testMocks struct {
	docs    *storagemocks.MockDocumentStore
	chunks  *storagemocks.MockChunkStore
	vectors *vsmocks.MockVectorStore
}

func newTestPipeline(t *testing.T) (*indexer.Pipeline, testMocks) {
	t.Helper()
	ctrl := gomock.NewController(t)
	m := testMocks{
		docs:    storagemocks.NewMockDocumentStore(ctrl),
		chunks:  storagemocks.NewMockChunkStore(ctrl),
		vectors: vsmocks.NewMockVectorStore(ctrl),
	}
	return indexer.NewPipeline(m.docs, m.chunks, m.vectors, stubEmbedder{}, "kb", 2, 500, 2), m
}

func newTestEngine(t *testing.T) (*rag.Engine, testMocks) {
	t.Helper()
	ctrl := gomock.NewController(t)
	m := testMocks{
		chunks:  storagemocks.NewMockChunkStore(ctrl),
		vectors: vsmocks.NewMockVectorStore(ctrl),
	}
	engine := rag.NewEngine(m.chunks, m.vectors, stubEmbedder{}, rag.TokenOverlapReranker{}, rag.Config{
		CollectionPrefix: "kb",
		RRFK:             60,
		LexicalBaseScore: 0.25,
		SemanticTimeout:  time.Second,
		KeywordTimeout:   time.Second,
		ContextMaxChars:  2000,
	})
	return engine, m
}
