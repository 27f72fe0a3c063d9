package main

import (
	"log"
	"log/slog"
	nethttp "net/http"
	"os"

	"knowledgehub/internal/config"
	"knowledgehub/internal/http"
	"knowledgehub/internal/indexer"
	"knowledgehub/internal/llm"
	"knowledgehub/internal/rag"
	"knowledgehub/internal/storage"
	"knowledgehub/internal/vectorstore"
)

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure structured logging with configurable level and format
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	// Initialize database
	db, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	// Create repository instances
	documentRepo := storage.NewDocumentRepo(db)
	chunkRepo := storage.NewChunkRepo(db)

	// Initialize Qdrant vector store. Tenant collections are created lazily
	// on first ingest, so nothing to ensure here.
	vectorStore, err := vectorstore.NewQdrantStore(cfg.QdrantURL)
	if err != nil {
		log.Fatalf("Failed to create Qdrant client: %v", err)
	}
	slog.Info("Qdrant client ready", "url", cfg.QdrantURL, "collection_prefix", cfg.CollectionPrefix)

	embedder := llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModel, cfg.VectorSize)
	slog.Info("Embedding client configured", "model", cfg.EmbeddingModel, "vector_size", cfg.VectorSize)

	// Create ingestion pipeline
	pipeline := indexer.NewPipeline(
		documentRepo,
		chunkRepo,
		vectorStore,
		embedder,
		cfg.CollectionPrefix,
		cfg.VectorSize,
		cfg.ChunkMaxTokens,
		cfg.IngestConcurrency,
	)

	// Create hybrid query engine
	engine := rag.NewEngine(chunkRepo, vectorStore, embedder, rag.TokenOverlapReranker{}, rag.Config{
		CollectionPrefix: cfg.CollectionPrefix,
		RRFK:             cfg.RRFK,
		LexicalBaseScore: cfg.LexicalBaseScore,
		SemanticTimeout:  cfg.SemanticSearchTimeout,
		KeywordTimeout:   cfg.KeywordSearchTimeout,
		ContextMaxChars:  cfg.ContextMaxChars,
	})
	slog.Info("Hybrid query engine initialized", "rrf_k", cfg.RRFK)

	// Create router with dependencies
	deps := &http.Deps{
		DB:          db,
		Pipeline:    pipeline,
		Engine:      engine,
		VectorStore: vectorStore,
	}
	router := http.NewRouter(deps)

	// Start API server
	addr := ":" + cfg.APIPort
	slog.Info("Starting API server", "addr", addr)
	if err := nethttp.ListenAndServe(addr, router); err != nil {
		log.Fatalf("API server failed to start: %v", err)
	}
}
