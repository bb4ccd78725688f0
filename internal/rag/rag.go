package rag

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"study-assistant/internal/models"
)

type Extractor interface {
	DetectFileType(filename string) (string, error)
	ExtractText(filename string, data []byte) (string, error)
}

type Splitter interface {
	Split(text string) ([]string, error)
}

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex stores chunk vectors keyed by chunk id
type VectorIndex interface {
	Add(ctx context.Context, chunks []models.Chunk) error
	Search(ctx context.Context, vector []float32, k int) ([]models.SearchResult, error)
	Lookup(ctx context.Context, documentID string) ([]models.Chunk, error)
	Delete(ctx context.Context, ids []string) error
	Count() int
}

type Catalog interface {
	Create(ctx context.Context, doc models.Document) error
	List(ctx context.Context) ([]models.Document, error)
	Get(ctx context.Context, id string) (models.Document, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

type ConversationLog interface {
	AppendExchange(ctx context.Context, sessionID, question, answer string, sources []string) ([]models.ChatMessage, error)
	History(ctx context.Context, sessionID string) ([]models.ChatMessage, error)
}

type FAQStore interface {
	Seed(ctx context.Context, items []models.FAQItem) (int, error)
	List(ctx context.Context) ([]models.FAQItem, error)
	Count(ctx context.Context) (int, error)
}

type Generator interface {
	Generate(ctx context.Context, contextText, question, sessionID string) (string, error)
}

// Components are the collaborators of a Service
type Components struct {
	Extractor Extractor
	Splitter  Splitter
	Embedder  Embedder
	Index     VectorIndex
	Catalog   Catalog
	Messages  ConversationLog
	FAQs      FAQStore
	Generator Generator
}

// Service runs the ingestion and query pipelines and keeps the catalog and
// the vector index consistent
type Service struct {
	Components
	topK int
}

func NewService(c Components, topK int) *Service {
	if topK <= 0 {
		topK = 5
	}
	return &Service{Components: c, topK: topK}
}

// Query answers question from the indexed passages and the FAQ set, then
// records the exchange in the session history. Any failing stage aborts the
// query and no answer is returned.
func (s *Service) Query(ctx context.Context, question, sessionID string) (models.PromptResponse, error) {
	question = strings.TrimSpace(question)
	if question == "" || strings.TrimSpace(sessionID) == "" {
		return models.PromptResponse{}, models.StageError(models.StageInput, models.ErrInvalidInput, models.ErrInvalidInput)
	}

	vector, err := s.Embedder.EmbedQuery(ctx, question)
	if err != nil {
		return models.PromptResponse{}, models.StageError(models.StageEmbed, models.ErrEmbedding, err)
	}

	results, err := s.Index.Search(ctx, vector, s.topK)
	if err != nil {
		return models.PromptResponse{}, models.StageError(models.StageSearch, models.ErrStore, err)
	}

	faqs, err := s.FAQs.List(ctx)
	if err != nil {
		return models.PromptResponse{}, models.StageError(models.StageFAQ, models.ErrStore, err)
	}

	contextText, sources := AssembleContext(results, faqs)
	log.Debug().Str("session_id", sessionID).Int("passages", len(results)).Strs("sources", sources).Msg("Context assembled")

	answer, err := s.Generator.Generate(ctx, contextText, question, sessionID)
	if err != nil {
		return models.PromptResponse{}, models.StageError(models.StageGenerate, models.ErrGeneration, err)
	}

	if _, err := s.Messages.AppendExchange(ctx, sessionID, question, answer, sources); err != nil {
		return models.PromptResponse{}, models.StageError(models.StageHistory, models.ErrStore, err)
	}

	return models.PromptResponse{Query: question, Content: answer, Sources: sources}, nil
}

func (s *Service) History(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, models.StageError(models.StageInput, models.ErrInvalidInput, models.ErrInvalidInput)
	}
	msgs, err := s.Messages.History(ctx, sessionID)
	if err != nil {
		return nil, models.StageError(models.StageHistory, models.ErrStore, err)
	}
	return msgs, nil
}

func (s *Service) ListDocuments(ctx context.Context) ([]models.Document, error) {
	docs, err := s.Catalog.List(ctx)
	if err != nil {
		return nil, models.StageError(models.StageCatalog, models.ErrStore, err)
	}
	return docs, nil
}

// SeedFAQs inserts the reference FAQs once. It reports how many were added,
// zero when the set already existed.
func (s *Service) SeedFAQs(ctx context.Context) (int, error) {
	n, err := s.FAQs.Seed(ctx, models.SeedFAQs)
	if err != nil {
		return 0, models.StageError(models.StageFAQ, models.ErrStore, err)
	}
	if n > 0 {
		log.Info().Int("faqs", n).Msg("Seeded FAQs")
	}
	return n, nil
}

func (s *Service) ListFAQs(ctx context.Context) ([]models.FAQItem, error) {
	faqs, err := s.FAQs.List(ctx)
	if err != nil {
		return nil, models.StageError(models.StageFAQ, models.ErrStore, err)
	}
	return faqs, nil
}

func (s *Service) Stats(ctx context.Context) (models.Stats, error) {
	docs, err := s.Catalog.Count(ctx)
	if err != nil {
		return models.Stats{}, models.StageError(models.StageCatalog, models.ErrStore, err)
	}
	faqs, err := s.FAQs.Count(ctx)
	if err != nil {
		return models.Stats{}, models.StageError(models.StageFAQ, models.ErrStore, err)
	}
	return models.Stats{Documents: docs, Chunks: s.Index.Count(), FAQs: faqs}, nil
}
