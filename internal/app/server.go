package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/doclyn/doclyn/internal/api/handlers"
	"github.com/doclyn/doclyn/internal/config"
	"github.com/doclyn/doclyn/internal/core"
	"github.com/doclyn/doclyn/internal/core/pipeline"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(ctx context.Context, cfg *config.Config, store core.DocumentStore, obj core.ObjectClient, ing *pipeline.Ingestor, orch *pipeline.Orchestrator, emb core.EmbeddingProvider) *Server {
	docHandler := handlers.NewDocumentHandler(store, obj, ing, orch, emb, cfg)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8888"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(api chi.Router) {
		// The SSE and download endpoints stream for longer than the
		// per-request timeout allows, so it applies to the rest only.
		api.Group(func(timed chi.Router) {
			timed.Use(middleware.Timeout(60 * time.Second))
			timed.Post("/documents/upload", docHandler.UploadDocument)
			timed.Get("/documents", docHandler.GetDocuments)
			timed.Get("/documents/{document_id}/status", docHandler.GetStatus)
			timed.Get("/documents/{document_id}/chunks", docHandler.GetChunks)
			timed.Get("/documents/{document_id}/search", docHandler.SearchChunks)
			timed.Post("/documents/{document_id}/cancel", docHandler.CancelProcessing)
			timed.Delete("/documents/{document_id}", docHandler.DeleteDocument)
			timed.Get("/processors", docHandler.GetSupportedTypes)
		})
		api.Get("/documents/{document_id}/events", docHandler.StreamEvents)
		api.Get("/documents/{document_id}/download", docHandler.DownloadDocument)
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv}
}

// Start runs the HTTP server.
func (s *Server) Start() {
	log.Printf("HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}
