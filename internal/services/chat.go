package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nimbuschat/nimbus-backend/internal/llm"
	"github.com/nimbuschat/nimbus-backend/internal/models"
	"github.com/nimbuschat/nimbus-backend/internal/realtime"
	"github.com/nimbuschat/nimbus-backend/internal/repository"
)

const (
	defaultSessionTitle = "New Chat"
	maxTitleLength      = 48
)

var (
	// ErrSessionNotFound is returned when a session does not exist for the user
	ErrSessionNotFound = errors.New("session not found")
	// ErrEmptyMessage is returned when a message has no content
	ErrEmptyMessage = errors.New("message content is empty")
	// ErrEmptyTitle is returned when a rename carries no usable title
	ErrEmptyTitle = errors.New("title is empty")
)

// ChatService manages chat sessions, messages, and assistant replies
type ChatService struct {
	sessions repository.ChatSessionRepository
	messages repository.MessageRepository
	usage    repository.UsageRepository
	llm      llm.Completer
	hub      *realtime.Hub
	log      *logrus.Logger
}

// NewChatService creates a new chat service
func NewChatService(
	sessions repository.ChatSessionRepository,
	messages repository.MessageRepository,
	usage repository.UsageRepository,
	completer llm.Completer,
	hub *realtime.Hub,
	log *logrus.Logger,
) *ChatService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ChatService{
		sessions: sessions,
		messages: messages,
		usage:    usage,
		llm:      completer,
		hub:      hub,
		log:      log,
	}
}

// CreateSession creates a new chat session for the user
func (s *ChatService) CreateSession(ctx context.Context, userID uuid.UUID) (*models.Session, error) {
	now := time.Now()
	row := &repository.ChatSession{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     defaultSessionTitle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessions.Upsert(ctx, row); err != nil {
		return nil, err
	}
	s.hub.NotifySessionChanged(ctx, userID.String(), row.ID)

	session := row.ToModel()
	return &session, nil
}

// ListSessions returns the user's sessions, most recently updated first
func (s *ChatService) ListSessions(ctx context.Context, userID uuid.UUID) ([]models.Session, error) {
	rows, err := s.sessions.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	sessions := make([]models.Session, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, row.ToModel())
	}
	return sessions, nil
}

// GetSession retrieves one of the user's sessions
func (s *ChatService) GetSession(ctx context.Context, userID uuid.UUID, id string) (*models.Session, error) {
	row, err := s.sessions.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrSessionNotFound
	}
	session := row.ToModel()
	return &session, nil
}

// RenameSession updates a session's title
func (s *ChatService) RenameSession(ctx context.Context, userID uuid.UUID, id, title string) (*models.Session, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}

	row, err := s.sessions.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrSessionNotFound
	}

	row.Title = title
	row.UpdatedAt = time.Now()
	if err := s.sessions.Upsert(ctx, row); err != nil {
		return nil, err
	}
	s.hub.NotifySessionChanged(ctx, userID.String(), row.ID)

	session := row.ToModel()
	return &session, nil
}

// DeleteSession removes a session and its messages. Messages go first; the
// schema does not cascade.
func (s *ChatService) DeleteSession(ctx context.Context, userID uuid.UUID, id string) error {
	row, err := s.sessions.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if row == nil {
		return ErrSessionNotFound
	}

	if err := s.messages.DeleteBySession(ctx, userID, id); err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, userID, id); err != nil {
		return err
	}
	s.hub.NotifySessionChanged(ctx, userID.String(), id)
	return nil
}

// ListMessages returns a session's messages in chronological order
func (s *ChatService) ListMessages(ctx context.Context, userID uuid.UUID, sessionID string) ([]models.Message, error) {
	rows, err := s.messages.ListBySession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	return toModels(rows), nil
}

// SearchMessages filters a session's messages by case-insensitive substring
func (s *ChatService) SearchMessages(ctx context.Context, userID uuid.UUID, sessionID, query string) ([]models.Message, error) {
	if strings.TrimSpace(query) == "" {
		return s.ListMessages(ctx, userID, sessionID)
	}
	rows, err := s.messages.Search(ctx, userID, sessionID, query)
	if err != nil {
		return nil, err
	}
	return toModels(rows), nil
}

// SendMessage persists the user's message, generates the assistant reply from
// the full session history, and persists that too. Both rows are broadcast on
// the user's sync channel as they land.
func (s *ChatService) SendMessage(ctx context.Context, userID uuid.UUID, sessionID, content, model string) (userMsg, botMsg models.Message, err error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return userMsg, botMsg, ErrEmptyMessage
	}

	session, err := s.sessions.Get(ctx, userID, sessionID)
	if err != nil {
		return userMsg, botMsg, err
	}
	if session == nil {
		return userMsg, botMsg, ErrSessionNotFound
	}

	now := time.Now()
	userRow := &repository.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		UserID:    userID,
		Content:   content,
		Sender:    repository.StoredSender(models.SenderUser),
		CreatedAt: now,
	}
	if err := s.messages.Upsert(ctx, userRow); err != nil {
		return userMsg, botMsg, err
	}
	s.countUsage(ctx, userID, now, 1, 0, 0)
	s.hub.NotifyMessageChanged(ctx, userID.String(), userRow.ID)

	// First user turn names the session.
	if session.Title == defaultSessionTitle {
		session.Title = deriveTitle(content)
	}
	session.UpdatedAt = now
	if err := s.sessions.Upsert(ctx, session); err != nil {
		s.log.WithError(err).WithField("session_id", sessionID).Warn("failed to bump session")
	} else {
		s.hub.NotifySessionChanged(ctx, userID.String(), sessionID)
	}

	history, err := s.messages.ListBySession(ctx, userID, sessionID)
	if err != nil {
		return userRow.ToModel(), botMsg, err
	}

	completion, err := s.llm.Complete(ctx, model, toModels(history))
	if err != nil {
		return userRow.ToModel(), botMsg, err
	}

	botRow := &repository.Message{
		ID:         uuid.New().String(),
		SessionID:  sessionID,
		UserID:     userID,
		Content:    completion.Content,
		Sender:     models.StoredSenderAssistant,
		CreatedAt:  time.Now(),
		ModelUsed:  sql.NullString{String: completion.Model, Valid: completion.Model != ""},
		TokensUsed: sql.NullInt64{Int64: int64(completion.TokensUsed), Valid: completion.TokensUsed > 0},
	}
	if err := s.messages.Upsert(ctx, botRow); err != nil {
		return userRow.ToModel(), botMsg, err
	}
	s.countUsage(ctx, userID, botRow.CreatedAt, 0, completion.TokensUsed, 1)
	s.hub.NotifyMessageChanged(ctx, userID.String(), botRow.ID)

	return userRow.ToModel(), botRow.ToModel(), nil
}

// Usage returns the user's counters for the given day
func (s *ChatService) Usage(ctx context.Context, userID uuid.UUID, day time.Time) (*repository.UsageDay, error) {
	return s.usage.GetDay(ctx, userID, day)
}

// countUsage bumps daily counters. Counting failures are logged, never
// surfaced; usage is advisory.
func (s *ChatService) countUsage(ctx context.Context, userID uuid.UUID, day time.Time, messages, tokens, apiCalls int) {
	if err := s.usage.Increment(ctx, userID, day, messages, tokens, apiCalls); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("failed to record usage")
	}
}

func toModels(rows []repository.Message) []models.Message {
	out := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ToModel())
	}
	return out
}

func deriveTitle(content string) string {
	title := strings.Join(strings.Fields(content), " ")
	if utf8.RuneCountInString(title) <= maxTitleLength {
		return title
	}
	runes := []rune(title)
	return strings.TrimSpace(string(runes[:maxTitleLength])) + "..."
}
