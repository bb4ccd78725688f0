package rag

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"study-assistant/internal/helper"
	"study-assistant/internal/models"
)

// Ingest extracts, chunks, embeds and indexes one upload, then registers it
// in the catalog. Vectors are written before the catalog record so a
// visible record always has its chunks; when the record cannot be written
// the vectors are removed again.
func (s *Service) Ingest(ctx context.Context, filename string, data []byte) (models.Document, error) {
	filename = filepath.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		return models.Document{}, models.StageError(models.StageInput, models.ErrInvalidInput, fmt.Errorf("%w: missing filename", models.ErrInvalidInput))
	}

	fileType, err := s.Extractor.DetectFileType(filename)
	if err != nil {
		return models.Document{}, models.StageError(models.StageExtract, models.ErrUnsupportedFormat, err)
	}

	text, err := s.Extractor.ExtractText(filename, data)
	if err != nil {
		return models.Document{}, models.StageError(models.StageExtract, models.ErrExtraction, err)
	}

	passages, err := s.Splitter.Split(text)
	if err != nil {
		return models.Document{}, models.StageError(models.StageChunk, models.ErrExtraction, err)
	}
	if len(passages) == 0 {
		return models.Document{}, models.StageError(models.StageChunk, models.ErrEmptyContent, models.ErrEmptyContent)
	}

	vectors, err := s.Embedder.Embed(ctx, passages)
	if errors.Is(err, models.ErrInvalidInput) {
		// passages without a single word carry nothing to retrieve
		err = fmt.Errorf("%w: %s: %v", models.ErrEmptyContent, filename, err)
		return models.Document{}, models.StageError(models.StageEmbed, models.ErrEmptyContent, err)
	}
	if err != nil {
		return models.Document{}, models.StageError(models.StageEmbed, models.ErrEmbedding, err)
	}

	docID, err := helper.GenerateUUID()
	if err != nil {
		return models.Document{}, models.StageError(models.StageIndex, models.ErrStore, err)
	}

	chunks := make([]models.Chunk, len(passages))
	ids := make([]string, len(passages))
	for i, p := range passages {
		ids[i] = models.ChunkID(docID, i)
		chunks[i] = models.Chunk{
			ID:         ids[i],
			DocumentID: docID,
			Filename:   filename,
			Index:      i,
			Content:    p,
			Embedding:  vectors[i],
		}
	}

	if err := s.Index.Add(ctx, chunks); err != nil {
		// a failed batch may have written part of the chunks
		err = s.compensate(ctx, docID, ids, err)
		return models.Document{}, models.StageError(models.StageIndex, models.ErrStore, err)
	}

	doc := models.Document{
		ID:         docID,
		Filename:   filename,
		FileType:   fileType,
		ChunkCount: len(chunks),
		UploadDate: time.Now().UTC(),
	}
	if err := s.Catalog.Create(ctx, doc); err != nil {
		err = s.compensate(ctx, docID, ids, err)
		return models.Document{}, models.StageError(models.StageCatalog, models.ErrStore, err)
	}

	log.Info().Str("doc_id", docID).Str("filename", filename).Int("chunks", len(chunks)).Msg("Document ingested")
	return doc, nil
}

// compensate removes the chunks written for an ingestion that failed. A
// failed cleanup is logged and joined to cause.
func (s *Service) compensate(ctx context.Context, docID string, ids []string, cause error) error {
	// cleanup must run even when ctx is what failed
	ctx = context.WithoutCancel(ctx)
	if err := s.Index.Delete(ctx, ids); err != nil {
		log.Error().Err(err).Str("doc_id", docID).Msg("Failed to remove chunks of failed ingestion")
		return errors.Join(cause, fmt.Errorf("cleanup of %d chunks failed: %w", len(ids), err))
	}
	log.Warn().Err(cause).Str("doc_id", docID).Int("chunks", len(ids)).Msg("Rolled back chunks of failed ingestion")
	return cause
}

// DeleteDocument removes a document and every chunk tagged with its id.
// Chunks go first: when their deletion fails the catalog record stays, and
// when the catalog deletion fails the chunks are restored. An id unknown to
// both stores is reported as models.ErrNotFound.
func (s *Service) DeleteDocument(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return models.StageError(models.StageInput, models.ErrInvalidInput, models.ErrInvalidInput)
	}

	_, err := s.Catalog.Get(ctx, id)
	inCatalog := err == nil
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return models.StageError(models.StageCatalog, models.ErrStore, err)
	}

	chunks, err := s.Index.Lookup(ctx, id)
	if err != nil {
		return models.StageError(models.StageIndex, models.ErrStore, err)
	}
	if !inCatalog && len(chunks) == 0 {
		return models.StageError(models.StageCatalog, models.ErrNotFound, fmt.Errorf("document %s: %w", id, models.ErrNotFound))
	}

	ids := make([]string, len(chunks))
	for i, ch := range chunks {
		ids[i] = ch.ID
	}
	if err := s.Index.Delete(ctx, ids); err != nil {
		err = s.restore(ctx, id, chunks, err)
		return models.StageError(models.StageIndex, models.ErrStore, err)
	}

	if inCatalog {
		if err := s.Catalog.Delete(ctx, id); err != nil && !errors.Is(err, models.ErrNotFound) {
			err = s.restore(ctx, id, chunks, err)
			return models.StageError(models.StageCatalog, models.ErrStore, err)
		}
	} else {
		log.Warn().Str("doc_id", id).Int("chunks", len(chunks)).Msg("Removed chunks without catalog record")
	}

	log.Info().Str("doc_id", id).Int("chunks", len(chunks)).Msg("Document deleted")
	return nil
}

// restore re-adds the saved chunks that are no longer indexed
func (s *Service) restore(ctx context.Context, docID string, saved []models.Chunk, cause error) error {
	if len(saved) == 0 {
		return cause
	}
	ctx = context.WithoutCancel(ctx)

	current, err := s.Index.Lookup(ctx, docID)
	if err != nil {
		log.Error().Err(err).Str("doc_id", docID).Msg("Failed to check chunks for restore")
		return errors.Join(cause, fmt.Errorf("restore failed: %w", err))
	}
	present := make(map[string]bool, len(current))
	for _, ch := range current {
		present[ch.ID] = true
	}
	missing := make([]models.Chunk, 0, len(saved))
	for _, ch := range saved {
		if !present[ch.ID] {
			missing = append(missing, ch)
		}
	}
	if len(missing) == 0 {
		return cause
	}

	if err := s.Index.Add(ctx, missing); err != nil {
		log.Error().Err(err).Str("doc_id", docID).Int("chunks", len(missing)).Msg("Failed to restore chunks")
		return errors.Join(cause, fmt.Errorf("restore of %d chunks failed: %w", len(missing), err))
	}
	log.Warn().Err(cause).Str("doc_id", docID).Int("chunks", len(missing)).Msg("Restored chunks after failed deletion")
	return cause
}
