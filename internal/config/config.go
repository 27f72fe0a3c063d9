package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the knowledge engine.
type Config struct {
	LogLevel  slog.Level
	LogFormat string

	APIPort string
	DBPath  string

	EmbeddingBaseURL string
	EmbeddingModel   string
	EmbeddingAPIKey  string

	QdrantURL        string
	CollectionPrefix string
	VectorSize       int

	// Retrieval tuning. The defaults were chosen empirically; they are
	// configurable rather than corpus-adaptive (see DESIGN.md).
	RRFK             int
	LexicalBaseScore float64

	ChunkMaxTokens    int
	IngestConcurrency int

	SemanticSearchTimeout time.Duration
	KeywordSearchTimeout  time.Duration

	ContextMaxChars int
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates required fields.
// If a .env file exists in the current directory or project root, it will be loaded automatically.
// Environment variables already set take precedence over .env file values.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	// Check current directory first, then walk up to find project root (where go.mod is)
	_ = godotenv.Load() // Try current directory

	wd, err := os.Getwd()
	if err == nil {
		dir := wd
		for i := 0; i < 5; i++ { // Limit search depth
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break // Reached filesystem root
			}
			dir = parent
		}
	}

	cfg := &Config{
		LogLevel:         parseLogLevel(getEnv("LOG_LEVEL", "info")),
		LogFormat:        getEnv("LOG_FORMAT", "text"),
		APIPort:          getEnv("API_PORT", "9000"),
		DBPath:           getEnv("DB_PATH", "./data/knowledgehub.db"),
		EmbeddingBaseURL: getEnv("EMBEDDING_BASE_URL", "http://localhost:8081"),
		EmbeddingModel:   getEnv("EMBEDDING_MODEL_NAME", "granite-embedding-278m-multilingual"),
		EmbeddingAPIKey:  getEnv("EMBEDDING_API_KEY", "dummy-key"),
		QdrantURL:        getEnv("QDRANT_URL", "http://localhost:6333"),
		CollectionPrefix: getEnv("QDRANT_COLLECTION_PREFIX", "kb"),
	}

	// Must match the output vector size of the embeddings model. If the
	// vector size changes, every tenant collection must be recreated.
	vectorSizeStr := getEnv("QDRANT_VECTOR_SIZE", "")
	if vectorSizeStr == "" {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE is required")
	}
	vectorSize, err := strconv.Atoi(vectorSizeStr)
	if err != nil {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE must be a valid integer: %w", err)
	}
	if vectorSize <= 0 {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE must be greater than 0")
	}
	cfg.VectorSize = vectorSize

	cfg.RRFK, err = getEnvInt("RRF_K", 60)
	if err != nil {
		return nil, err
	}
	if cfg.RRFK < 1 {
		return nil, fmt.Errorf("RRF_K must be at least 1")
	}

	cfg.LexicalBaseScore, err = getEnvFloat("LEXICAL_BASE_SCORE", 0.25)
	if err != nil {
		return nil, err
	}

	cfg.ChunkMaxTokens, err = getEnvInt("CHUNK_MAX_TOKENS", 500)
	if err != nil {
		return nil, err
	}
	if cfg.ChunkMaxTokens < 1 {
		return nil, fmt.Errorf("CHUNK_MAX_TOKENS must be at least 1")
	}

	cfg.IngestConcurrency, err = getEnvInt("INGEST_CONCURRENCY", 4)
	if err != nil {
		return nil, err
	}
	if cfg.IngestConcurrency < 1 {
		return nil, fmt.Errorf("INGEST_CONCURRENCY must be at least 1")
	}

	cfg.SemanticSearchTimeout, err = getEnvDuration("SEMANTIC_SEARCH_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.KeywordSearchTimeout, err = getEnvDuration("KEYWORD_SEARCH_TIMEOUT", 8*time.Second)
	if err != nil {
		return nil, err
	}

	cfg.ContextMaxChars, err = getEnvInt("CONTEXT_MAX_CHARS", 2000)
	if err != nil {
		return nil, err
	}
	if cfg.ContextMaxChars < 1 {
		return nil, fmt.Errorf("CONTEXT_MAX_CHARS must be at least 1")
	}

	// Create the data directory if it doesn't exist (for the DB file)
	dataDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return parsed, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid number: %w", key, err)
	}
	return parsed, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration (e.g. 5s): %w", key, err)
	}
	return parsed, nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
