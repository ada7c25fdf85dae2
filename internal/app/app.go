// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/doclyn/doclyn/internal/config"
	"github.com/doclyn/doclyn/internal/core"
	db "github.com/doclyn/doclyn/internal/core/database"
	"github.com/doclyn/doclyn/internal/core/llm"
	objectclient "github.com/doclyn/doclyn/internal/core/object-client"
	"github.com/doclyn/doclyn/internal/core/pipeline"
	"github.com/doclyn/doclyn/internal/core/processors"
	"github.com/doclyn/doclyn/internal/core/status"
)

type App struct {
	Store        core.DocumentStore
	ObjectClient core.ObjectClient
	Embedder     *llm.GeminiEmbedder
	Ingestor     *pipeline.Ingestor
	Server       *Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	store, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Database initialized and ready.")

	objClient, err := objectclient.NewS3Client(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Object client initialized and ready.")

	embedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel, cfg.EmbedRPS)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
	}

	orch := pipeline.NewOrchestrator(
		processors.NewDefaultRegistry(),
		embedder,
		store,
		status.NewTracker(),
		pipeline.Config{
			ChunkSize:    cfg.ChunkSize,
			ChunkOverlap: cfg.ChunkOverlap,
			StageTimeout: time.Duration(cfg.StageTimeoutSeconds) * time.Second,
		},
	)

	ing, err := pipeline.NewIngestor(store, objClient, orch, cfg.WorkerCount)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the ingestor, %w", err)
	}
	ing.Start(ctx)

	server := NewServer(ctx, cfg, store, objClient, ing, orch, embedder)

	return &App{
		Store:        store,
		ObjectClient: objClient,
		Embedder:     embedder,
		Ingestor:     ing,
		Server:       server,
	}, nil
}

func (a *App) Close() {
	if a.Ingestor != nil {
		_ = a.Ingestor.Stop()
	}
	if a.Embedder != nil {
		_ = a.Embedder.Close()
	}
	if a.Store != nil {
		_ = a.Store.Close()
	}
}
