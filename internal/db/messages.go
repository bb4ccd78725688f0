package db

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/uptrace/bun"

	"study-assistant/internal/helper"
	"study-assistant/internal/models"
)

type MessageRecord struct {
	bun.BaseModel `bun:"table:chat_messages,alias:m"`
	ID            string    `bun:"id,pk"`
	SessionID     string    `bun:"session_id,notnull"`
	Role          string    `bun:"role,notnull"`
	Content       string    `bun:"content,notnull"`
	Sources       []string  `bun:"sources,nullzero"`
	Timestamp     time.Time `bun:"created_at,notnull"`
}

func (r *MessageRecord) toModel() models.ChatMessage {
	return models.ChatMessage{
		ID:        r.ID,
		SessionID: r.SessionID,
		Role:      models.Role(r.Role),
		Content:   r.Content,
		Sources:   r.Sources,
		Timestamp: r.Timestamp.UTC(),
	}
}

// MessageStore is the append-only conversation log
type MessageStore struct {
	db  *bun.DB
	now func() time.Time
}

func NewMessageStore(db *bun.DB) *MessageStore {
	return &MessageStore{db: db, now: time.Now}
}

// timestamps are kept at microsecond precision, the finest every dialect stores
func (s *MessageStore) timestamp(after time.Time) time.Time {
	ts := s.now().UTC().Truncate(time.Microsecond)
	if !ts.After(after) {
		ts = after.Add(time.Microsecond)
	}
	return ts
}

func newRecord(sessionID string, role models.Role, content string, sources []string, ts time.Time) (*MessageRecord, error) {
	id, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	return &MessageRecord{
		ID:        id,
		SessionID: sessionID,
		Role:      string(role),
		Content:   content,
		Sources:   sources,
		Timestamp: ts,
	}, nil
}

// Append stores a single message with a server assigned id and timestamp
func (s *MessageStore) Append(ctx context.Context, sessionID string, role models.Role, content string, sources []string) (models.ChatMessage, error) {
	if role != models.RoleAssistant {
		sources = nil
	}
	rec, err := newRecord(sessionID, role, content, sources, s.timestamp(time.Time{}))
	if err != nil {
		return models.ChatMessage{}, err
	}
	if _, err := s.db.NewInsert().Model(rec).Exec(ctx); err != nil {
		return models.ChatMessage{}, fmt.Errorf("failed to insert message: %w", err)
	}
	return rec.toModel(), nil
}

// AppendExchange stores the user question and the assistant answer in one
// transaction. The answer is always timestamped after the question.
func (s *MessageStore) AppendExchange(ctx context.Context, sessionID, question, answer string, sources []string) ([]models.ChatMessage, error) {
	if sources == nil {
		sources = []string{}
	}
	user, err := newRecord(sessionID, models.RoleUser, question, nil, s.timestamp(time.Time{}))
	if err != nil {
		return nil, err
	}
	assistant, err := newRecord(sessionID, models.RoleAssistant, answer, sources, s.timestamp(user.Timestamp))
	if err != nil {
		return nil, err
	}

	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(user).Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert user message: %w", err)
		}
		if _, err := tx.NewInsert().Model(assistant).Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert assistant message: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return []models.ChatMessage{user.toModel(), assistant.toModel()}, nil
}

// History returns the messages of a session, oldest first
func (s *MessageStore) History(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	var recs []MessageRecord
	err := s.db.NewSelect().
		Model(&recs).
		Where("session_id = ?", sessionID).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load history of %s: %w", sessionID, err)
	}

	msgs := make([]models.ChatMessage, 0, len(recs))
	for i := range recs {
		msgs = append(msgs, recs[i].toModel())
	}
	// text timestamps in sqlite do not always sort lexically
	slices.SortStableFunc(msgs, func(a, b models.ChatMessage) int { return a.Timestamp.Compare(b.Timestamp) })
	return msgs, nil
}
