package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nimbuschat/nimbus-backend/internal/repository"
)

// ChatSessionRepository implements repository.ChatSessionRepository using PostgreSQL
type ChatSessionRepository struct {
	db *sqlx.DB
}

// NewChatSessionRepository creates a new PostgreSQL chat session repository
func NewChatSessionRepository(db *sqlx.DB) repository.ChatSessionRepository {
	return &ChatSessionRepository{db: db}
}

// Upsert inserts or replaces a session keyed on id. Last writer wins on the
// same id; the remote updated_at column is whatever the caller sent.
func (r *ChatSessionRepository) Upsert(ctx context.Context, session *repository.ChatSession) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = time.Now()
	}

	query := `
		INSERT INTO chat_sessions (id, user_id, title, created_at, updated_at)
		VALUES (:id, :user_id, :title, :created_at, :updated_at)
		ON CONFLICT (id) DO UPDATE
		SET title = EXCLUDED.title, updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.NamedExecContext(ctx, query, session)
	return err
}

// Get retrieves a session by ID, scoped to the owning user
func (r *ChatSessionRepository) Get(ctx context.Context, userID uuid.UUID, id string) (*repository.ChatSession, error) {
	var session repository.ChatSession
	query := `
		SELECT id, user_id, title, created_at, updated_at
		FROM chat_sessions
		WHERE id = $1 AND user_id = $2
	`

	err := r.db.GetContext(ctx, &session, query, id, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return &session, nil
}

// List retrieves the user's sessions, most recently updated first
func (r *ChatSessionRepository) List(ctx context.Context, userID uuid.UUID) ([]*repository.ChatSession, error) {
	var sessions []*repository.ChatSession
	query := `
		SELECT id, user_id, title, created_at, updated_at
		FROM chat_sessions
		WHERE user_id = $1
		ORDER BY updated_at DESC
	`

	err := r.db.SelectContext(ctx, &sessions, query, userID)
	if err != nil {
		return nil, err
	}

	return sessions, nil
}

// Delete deletes a session row. Callers must delete the session's messages
// first; there is no cascade.
func (r *ChatSessionRepository) Delete(ctx context.Context, userID uuid.UUID, id string) error {
	query := "DELETE FROM chat_sessions WHERE id = $1 AND user_id = $2"
	_, err := r.db.ExecContext(ctx, query, id, userID)
	return err
}
