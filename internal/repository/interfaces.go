package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/nimbuschat/nimbus-backend/internal/models"
)

// ChatSession is the chat_sessions row shape.
type ChatSession struct {
	ID        string    `db:"id"`
	UserID    uuid.UUID `db:"user_id"`
	Title     string    `db:"title"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Message is the messages row shape. Sender at rest is "user" or
// "assistant"; the client-facing "bot" tag is converted at this boundary.
type Message struct {
	ID         string         `db:"id"`
	SessionID  string         `db:"session_id"`
	UserID     uuid.UUID      `db:"user_id"`
	Content    string         `db:"content"`
	Sender     string         `db:"sender"`
	CreatedAt  time.Time      `db:"created_at"`
	ModelUsed  sql.NullString `db:"model_used"`
	TokensUsed sql.NullInt64  `db:"tokens_used"`
}

// UsageDay is the usage_daily row shape, one row per user per day.
type UsageDay struct {
	UserID       uuid.UUID `db:"user_id"`
	Day          time.Time `db:"day"`
	MessagesSent int       `db:"messages_sent"`
	TokensUsed   int       `db:"tokens_used"`
	APICalls     int       `db:"api_calls"`
}

// ChatSessionRepository defines session storage operations.
type ChatSessionRepository interface {
	// Upsert inserts or replaces the session keyed on id.
	Upsert(ctx context.Context, session *ChatSession) error
	Get(ctx context.Context, userID uuid.UUID, id string) (*ChatSession, error)
	// List returns the user's sessions ordered by updated_at descending.
	List(ctx context.Context, userID uuid.UUID) ([]*ChatSession, error)
	Delete(ctx context.Context, userID uuid.UUID, id string) error
}

// MessageRepository defines message storage operations.
type MessageRepository interface {
	// Upsert inserts or replaces the message keyed on id, making retries
	// idempotent. Messages are never updated in place otherwise.
	Upsert(ctx context.Context, message *Message) error
	// ListBySession returns the session's messages ordered by created_at
	// ascending.
	ListBySession(ctx context.Context, userID uuid.UUID, sessionID string) ([]Message, error)
	// Search filters a session's messages by case-insensitive substring.
	Search(ctx context.Context, userID uuid.UUID, sessionID, query string) ([]Message, error)
	// DeleteBySession removes all of a session's messages. Callers delete
	// messages before the session row; no cascade is assumed.
	DeleteBySession(ctx context.Context, userID uuid.UUID, sessionID string) error
}

// UsageRepository aggregates per-day usage counters.
type UsageRepository interface {
	// Increment atomically bumps the user's counters for the given day,
	// creating the row on first use.
	Increment(ctx context.Context, userID uuid.UUID, day time.Time, messagesDelta, tokensDelta, apiCallsDelta int) error
	GetDay(ctx context.Context, userID uuid.UUID, day time.Time) (*UsageDay, error)
}

// StoredSender maps the client sender tag to its at-rest label.
func StoredSender(s models.Sender) string {
	if s == models.SenderBot {
		return models.StoredSenderAssistant
	}
	return string(models.SenderUser)
}

// LocalSender maps the at-rest sender label to the client tag.
func LocalSender(s string) models.Sender {
	if s == models.StoredSenderAssistant {
		return models.SenderBot
	}
	return models.SenderUser
}

// ToModel converts a message row into the client view model.
func (m Message) ToModel() models.Message {
	msg := models.Message{
		ID:        m.ID,
		SessionID: m.SessionID,
		Sender:    LocalSender(m.Sender),
		Text:      m.Content,
		Timestamp: m.CreatedAt,
	}
	if m.ModelUsed.Valid {
		msg.Model = m.ModelUsed.String
	}
	if m.TokensUsed.Valid {
		msg.Tokens = int(m.TokensUsed.Int64)
	}
	return msg
}

// ToModel converts a session row into the client view model.
func (s ChatSession) ToModel() models.Session {
	return models.Session{
		ID:        s.ID,
		Title:     s.Title,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}
