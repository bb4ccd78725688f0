package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"study-assistant/internal/models"
)

type DocumentRecord struct {
	bun.BaseModel `bun:"table:documents,alias:d"`
	ID            string    `bun:"id,pk"`
	Filename      string    `bun:"filename,notnull"`
	FileType      string    `bun:"file_type,notnull"`
	ChunkCount    int       `bun:"chunk_count,notnull"`
	UploadDate    time.Time `bun:"upload_date,notnull"`
}

func (r *DocumentRecord) toModel() models.Document {
	return models.Document{
		ID:         r.ID,
		Filename:   r.Filename,
		FileType:   r.FileType,
		ChunkCount: r.ChunkCount,
		UploadDate: r.UploadDate.UTC(),
	}
}

// DocumentStore is the catalog of ingested documents
type DocumentStore struct {
	db *bun.DB
}

func NewDocumentStore(db *bun.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

func (s *DocumentStore) Create(ctx context.Context, doc models.Document) error {
	rec := &DocumentRecord{
		ID:         doc.ID,
		Filename:   doc.Filename,
		FileType:   doc.FileType,
		ChunkCount: doc.ChunkCount,
		UploadDate: doc.UploadDate.UTC(),
	}
	if _, err := s.db.NewInsert().Model(rec).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert document %s: %w", doc.ID, err)
	}
	return nil
}

func (s *DocumentStore) List(ctx context.Context) ([]models.Document, error) {
	var recs []DocumentRecord
	err := s.db.NewSelect().Model(&recs).OrderExpr("upload_date ASC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	docs := make([]models.Document, 0, len(recs))
	for i := range recs {
		docs = append(docs, recs[i].toModel())
	}
	return docs, nil
}

// Get returns models.ErrNotFound for an unknown id
func (s *DocumentStore) Get(ctx context.Context, id string) (models.Document, error) {
	rec := new(DocumentRecord)
	err := s.db.NewSelect().Model(rec).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Document{}, fmt.Errorf("document %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to get document %s: %w", id, err)
	}
	return rec.toModel(), nil
}

// Delete returns models.ErrNotFound when no row was removed
func (s *DocumentStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.NewDelete().Model((*DocumentRecord)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("document %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func (s *DocumentStore) Count(ctx context.Context) (int, error) {
	n, err := s.db.NewSelect().Model((*DocumentRecord)(nil)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}
