package db

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"study-assistant/internal/helper"
	"study-assistant/internal/models"
)

type FAQRecord struct {
	bun.BaseModel `bun:"table:faqs,alias:f"`
	ID            string `bun:"id,pk"`
	Position      int    `bun:"position,notnull"`
	Question      string `bun:"question,notnull"`
	Answer        string `bun:"answer,notnull"`
	Category      string `bun:"category"`
}

type FAQStore struct {
	db *bun.DB
}

func NewFAQStore(db *bun.DB) *FAQStore {
	return &FAQStore{db: db}
}

// Seed inserts items unless any FAQ exists already. It returns the number
// of FAQs inserted.
func (s *FAQStore) Seed(ctx context.Context, items []models.FAQItem) (int, error) {
	inserted := 0
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		n, err := tx.NewSelect().Model((*FAQRecord)(nil)).Count(ctx)
		if err != nil {
			return fmt.Errorf("failed to count faqs: %w", err)
		}
		if n > 0 || len(items) == 0 {
			return nil
		}

		recs := make([]FAQRecord, 0, len(items))
		for i, item := range items {
			id := item.ID
			if id == "" {
				if id, err = helper.GenerateUUID(); err != nil {
					return err
				}
			}
			recs = append(recs, FAQRecord{
				ID:       id,
				Position: i,
				Question: item.Question,
				Answer:   item.Answer,
				Category: item.Category,
			})
		}
		if _, err := tx.NewInsert().Model(&recs).Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert faqs: %w", err)
		}
		inserted = len(recs)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// List returns the FAQs in seed order
func (s *FAQStore) List(ctx context.Context) ([]models.FAQItem, error) {
	var recs []FAQRecord
	if err := s.db.NewSelect().Model(&recs).OrderExpr("position ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list faqs: %w", err)
	}
	items := make([]models.FAQItem, 0, len(recs))
	for _, r := range recs {
		items = append(items, models.FAQItem{
			ID:       r.ID,
			Question: r.Question,
			Answer:   r.Answer,
			Category: r.Category,
		})
	}
	return items, nil
}

func (s *FAQStore) Count(ctx context.Context) (int, error) {
	n, err := s.db.NewSelect().Model((*FAQRecord)(nil)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count faqs: %w", err)
	}
	return n, nil
}
