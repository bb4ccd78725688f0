package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"study-assistant/internal/api"
	"study-assistant/internal/chromemdb"
	"study-assistant/internal/config"
	"study-assistant/internal/db"
	"study-assistant/internal/embedding"
	"study-assistant/internal/llmservice"
	"study-assistant/internal/models"
	"study-assistant/internal/parser"
	"study-assistant/internal/rag"
)

// App owns every long lived client of the assistant
type App struct {
	Config  *config.Config
	DB      *bun.DB
	Vectors *chromemdb.VectorDBManager
	Service *rag.Service
}

// New connects the stores and builds the pipeline described by cfg
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	bunDB, err := db.ConnectDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	if err := db.InitDB(ctx, bunDB); err != nil {
		bunDB.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	embedder, err := embedding.NewFromConfig(&cfg.EmbedLLM)
	if err != nil {
		bunDB.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	vectors, err := chromemdb.NewVectorDBManager(&cfg.VectorStore, embedder.Dimension())
	if err != nil {
		bunDB.Close()
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}

	var generator rag.Generator
	generator, err = llmservice.NewFromConfig(&cfg.InferenceLLM)
	if err != nil {
		// ingestion and listing still work, queries report the cause
		log.Warn().Err(err).Msg("LLM unavailable, queries will fail")
		generator = unavailable{err: err}
	}

	svc := rag.NewService(rag.Components{
		Extractor: parser.NewExtractor(cfg.RAG.AllowedTypes),
		Splitter:  parser.NewSplitter(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap),
		Embedder:  embedder,
		Index:     vectors,
		Catalog:   db.NewDocumentStore(bunDB),
		Messages:  db.NewMessageStore(bunDB),
		FAQs:      db.NewFAQStore(bunDB),
		Generator: generator,
	}, cfg.RAG.TopK)

	log.Info().
		Str("database", cfg.Database.Driver).
		Str("collection", cfg.VectorStore.Collection).
		Int("chunks", vectors.Count()).
		Msg("Study assistant ready")

	return &App{Config: cfg, DB: bunDB, Vectors: vectors, Service: svc}, nil
}

func (a *App) Router() *gin.Engine {
	return api.SetupRouter(a.Service, api.RouterConfig{
		AllowOrigins: a.Config.Server.AllowedOrigins,
		MaxUploadMB:  a.Config.Server.MaxUploadMB,
	})
}

// Close releases the metadata store, chromem keeps no open handles
func (a *App) Close() error {
	return a.DB.Close()
}

type unavailable struct {
	err error
}

func (u unavailable) Generate(context.Context, string, string, string) (string, error) {
	return "", fmt.Errorf("%w: %w", models.ErrGeneration, u.err)
}
