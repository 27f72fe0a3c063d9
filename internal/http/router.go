package http

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"knowledgehub/internal/handlers"
	"knowledgehub/internal/indexer"
	"knowledgehub/internal/rag"
	"knowledgehub/internal/vectorstore"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	DB          *sql.DB
	Pipeline    *indexer.Pipeline
	Engine      *rag.Engine
	VectorStore vectorstore.VectorStore
}

// NewRouter creates the HTTP router with all API routes.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(LoggerMiddleware)
	r.Use(RequestLogger)
	r.Use(CORS)

	ingestHandler := handlers.NewIngestHandler(deps.Pipeline)
	documentHandler := handlers.NewDocumentHandler(deps.Pipeline)
	searchHandler := handlers.NewSearchHandler(deps.Engine)
	contextHandler := handlers.NewContextHandler(deps.Engine)
	statsHandler := handlers.NewStatsHandler(deps.Pipeline)
	healthHandler := handlers.NewHealthHandler(deps.DB, deps.VectorStore)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodPost, "/ingest", ingestHandler)
		r.Method(http.MethodDelete, "/documents/{id}", documentHandler)
		r.Method(http.MethodPost, "/search", searchHandler)
		r.Method(http.MethodPost, "/context", contextHandler)
		r.Method(http.MethodGet, "/stats", statsHandler)
	})

	r.Method(http.MethodGet, "/healthz", healthHandler)

	return r
}
