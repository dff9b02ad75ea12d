package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/parchment-ai/corpusd/internal/api"
	"github.com/parchment-ai/corpusd/internal/api/handlers"
	"github.com/parchment-ai/corpusd/internal/api/middleware"
)

type RouterConfig struct {
	IngestHandler    *handlers.IngestHandler
	DocumentHandler  *handlers.DocumentHandler
	SearchHandler    *handlers.SearchHandler
	ReconcileHandler *handlers.ReconcileHandler

	// MaxBodyBytes caps request bodies; uploads larger than this are
	// rejected up front. Zero uses the default.
	MaxBodyBytes int64
}

const defaultMaxBodyBytes int64 = 50 * 1024 * 1024

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	maxBodyBytes := cfg.MaxBodyBytes
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.TenantScope)

		r.Route("/documents", func(r chi.Router) {
			r.Post("/", cfg.IngestHandler.Ingest)
			r.Get("/", cfg.DocumentHandler.List)
			r.Get("/stats", cfg.DocumentHandler.Stats)
			r.Get("/{id}", cfg.DocumentHandler.Get)
			r.Get("/{id}/chunks", cfg.DocumentHandler.GetChunks)
			r.Delete("/{id}", cfg.DocumentHandler.Delete)
		})

		r.Post("/search", cfg.SearchHandler.Search)
		r.Post("/reconcile", cfg.ReconcileHandler.Reconcile)
	})

	return r
}
