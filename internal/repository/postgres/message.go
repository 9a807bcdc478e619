package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nimbuschat/nimbus-backend/internal/repository"
)

// MessageRepository implements repository.MessageRepository using PostgreSQL
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository creates a new PostgreSQL message repository
func NewMessageRepository(db *sqlx.DB) repository.MessageRepository {
	return &MessageRepository{db: db}
}

// Upsert inserts or replaces a message keyed on id. Replaying the same write
// is idempotent, which is the only retry mechanism messages get.
func (r *MessageRepository) Upsert(ctx context.Context, message *repository.Message) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO messages (id, session_id, user_id, content, sender, created_at, model_used, tokens_used)
		VALUES (:id, :session_id, :user_id, :content, :sender, :created_at, :model_used, :tokens_used)
		ON CONFLICT (id) DO UPDATE
		SET content = EXCLUDED.content, model_used = EXCLUDED.model_used, tokens_used = EXCLUDED.tokens_used
	`

	_, err := r.db.NamedExecContext(ctx, query, message)
	return err
}

// ListBySession retrieves a session's messages in ascending timestamp order
func (r *MessageRepository) ListBySession(ctx context.Context, userID uuid.UUID, sessionID string) ([]repository.Message, error) {
	var messages []repository.Message
	query := `
		SELECT id, session_id, user_id, content, sender, created_at, model_used, tokens_used
		FROM messages
		WHERE session_id = $1 AND user_id = $2
		ORDER BY created_at ASC
	`

	err := r.db.SelectContext(ctx, &messages, query, sessionID, userID)
	if err != nil {
		return nil, err
	}

	return messages, nil
}

// Search filters a session's messages by case-insensitive substring match,
// preserving timestamp order
func (r *MessageRepository) Search(ctx context.Context, userID uuid.UUID, sessionID, query string) ([]repository.Message, error) {
	var messages []repository.Message
	q := `
		SELECT id, session_id, user_id, content, sender, created_at, model_used, tokens_used
		FROM messages
		WHERE session_id = $1 AND user_id = $2 AND content ILIKE '%' || $3 || '%'
		ORDER BY created_at ASC
	`

	err := r.db.SelectContext(ctx, &messages, q, sessionID, userID, query)
	if err != nil {
		return nil, err
	}

	return messages, nil
}

// DeleteBySession removes all messages in a session, scoped to the owning user
func (r *MessageRepository) DeleteBySession(ctx context.Context, userID uuid.UUID, sessionID string) error {
	query := "DELETE FROM messages WHERE session_id = $1 AND user_id = $2"
	_, err := r.db.ExecContext(ctx, query, sessionID, userID)
	return err
}
