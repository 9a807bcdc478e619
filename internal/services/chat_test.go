package services

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbuschat/nimbus-backend/internal/llm"
	"github.com/nimbuschat/nimbus-backend/internal/models"
	"github.com/nimbuschat/nimbus-backend/internal/realtime"
	"github.com/nimbuschat/nimbus-backend/internal/repository"
)

type fakeSessionRepo struct {
	rows map[string]repository.ChatSession
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{rows: make(map[string]repository.ChatSession)}
}

func (f *fakeSessionRepo) Upsert(_ context.Context, s *repository.ChatSession) error {
	f.rows[s.ID] = *s
	return nil
}

func (f *fakeSessionRepo) Get(_ context.Context, userID uuid.UUID, id string) (*repository.ChatSession, error) {
	row, ok := f.rows[id]
	if !ok || row.UserID != userID {
		return nil, nil
	}
	return &row, nil
}

func (f *fakeSessionRepo) List(_ context.Context, userID uuid.UUID) ([]*repository.ChatSession, error) {
	var out []*repository.ChatSession
	for id := range f.rows {
		row := f.rows[id]
		if row.UserID == userID {
			out = append(out, &row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (f *fakeSessionRepo) Delete(_ context.Context, userID uuid.UUID, id string) error {
	if row, ok := f.rows[id]; ok && row.UserID == userID {
		delete(f.rows, id)
	}
	return nil
}

type fakeMessageRepo struct {
	rows []repository.Message
}

func (f *fakeMessageRepo) Upsert(_ context.Context, m *repository.Message) error {
	for i, row := range f.rows {
		if row.ID == m.ID {
			f.rows[i] = *m
			return nil
		}
	}
	f.rows = append(f.rows, *m)
	return nil
}

func (f *fakeMessageRepo) ListBySession(_ context.Context, userID uuid.UUID, sessionID string) ([]repository.Message, error) {
	var out []repository.Message
	for _, row := range f.rows {
		if row.SessionID == sessionID && row.UserID == userID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeMessageRepo) Search(ctx context.Context, userID uuid.UUID, sessionID, query string) ([]repository.Message, error) {
	all, _ := f.ListBySession(ctx, userID, sessionID)
	var out []repository.Message
	for _, row := range all {
		if strings.Contains(strings.ToLower(row.Content), strings.ToLower(query)) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeMessageRepo) DeleteBySession(_ context.Context, userID uuid.UUID, sessionID string) error {
	kept := f.rows[:0]
	for _, row := range f.rows {
		if row.SessionID != sessionID || row.UserID != userID {
			kept = append(kept, row)
		}
	}
	f.rows = kept
	return nil
}

type fakeUsageRepo struct {
	messages, tokens, calls int
}

func (f *fakeUsageRepo) Increment(_ context.Context, _ uuid.UUID, _ time.Time, messagesDelta, tokensDelta, apiCallsDelta int) error {
	f.messages += messagesDelta
	f.tokens += tokensDelta
	f.calls += apiCallsDelta
	return nil
}

func (f *fakeUsageRepo) GetDay(_ context.Context, userID uuid.UUID, day time.Time) (*repository.UsageDay, error) {
	return &repository.UsageDay{
		UserID:       userID,
		Day:          day,
		MessagesSent: f.messages,
		TokensUsed:   f.tokens,
		APICalls:     f.calls,
	}, nil
}

type fakeCompleter struct {
	reply   string
	history []models.Message
}

func (f *fakeCompleter) Complete(_ context.Context, _ string, history []models.Message) (*llm.Completion, error) {
	f.history = history
	return &llm.Completion{Content: f.reply, Model: "gpt-4o-mini", TokensUsed: 42}, nil
}

func (f *fakeCompleter) StreamComplete(context.Context, string, []models.Message) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk, 1)
	ch <- llm.StreamChunk{Delta: f.reply, FinishReason: "stop"}
	close(ch)
	return ch, nil
}

type fixture struct {
	svc      *ChatService
	sessions *fakeSessionRepo
	messages *fakeMessageRepo
	usage    *fakeUsageRepo
	llm      *fakeCompleter
	userID   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	sessions := newFakeSessionRepo()
	messages := &fakeMessageRepo{}
	usage := &fakeUsageRepo{}
	completer := &fakeCompleter{reply: "Hello from the assistant"}
	hub := realtime.NewHub(rdb)

	return &fixture{
		svc:      NewChatService(sessions, messages, usage, completer, hub, nil),
		sessions: sessions,
		messages: messages,
		usage:    usage,
		llm:      completer,
		userID:   uuid.New(),
	}
}

func TestSendMessagePersistsBothTurns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.CreateSession(ctx, f.userID)
	require.NoError(t, err)

	userMsg, botMsg, err := f.svc.SendMessage(ctx, f.userID, session.ID, "what is a goroutine?", "")
	require.NoError(t, err)

	assert.Equal(t, models.SenderUser, userMsg.Sender)
	assert.Equal(t, models.SenderBot, botMsg.Sender)
	assert.Equal(t, "Hello from the assistant", botMsg.Text)
	assert.Equal(t, "gpt-4o-mini", botMsg.Model)
	assert.Equal(t, 42, botMsg.Tokens)

	// At rest the bot turn is stored as "assistant".
	require.Len(t, f.messages.rows, 2)
	assert.Equal(t, "user", f.messages.rows[0].Sender)
	assert.Equal(t, "assistant", f.messages.rows[1].Sender)

	// The completion saw the user's turn.
	require.NotEmpty(t, f.llm.history)
	assert.Equal(t, "what is a goroutine?", f.llm.history[len(f.llm.history)-1].Text)
}

func TestSendMessageCountsUsage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.CreateSession(ctx, f.userID)
	require.NoError(t, err)

	_, _, err = f.svc.SendMessage(ctx, f.userID, session.ID, "hello", "")
	require.NoError(t, err)

	assert.Equal(t, 1, f.usage.messages)
	assert.Equal(t, 42, f.usage.tokens)
	assert.Equal(t, 1, f.usage.calls)
}

func TestSendMessageDerivesTitleFromFirstTurn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.CreateSession(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, "New Chat", session.Title)

	_, _, err = f.svc.SendMessage(ctx, f.userID, session.ID, "explain   channel  buffering", "")
	require.NoError(t, err)

	got, err := f.svc.GetSession(ctx, f.userID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "explain channel buffering", got.Title)

	// A second turn must not retitle.
	_, _, err = f.svc.SendMessage(ctx, f.userID, session.ID, "and select loops?", "")
	require.NoError(t, err)
	got, err = f.svc.GetSession(ctx, f.userID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "explain channel buffering", got.Title)
}

func TestSendMessageTruncatesLongTitle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.CreateSession(ctx, f.userID)
	require.NoError(t, err)

	long := strings.Repeat("goroutine ", 20)
	_, _, err = f.svc.SendMessage(ctx, f.userID, session.ID, long, "")
	require.NoError(t, err)

	got, err := f.svc.GetSession(ctx, f.userID, session.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(got.Title, "..."))
	assert.LessOrEqual(t, len([]rune(got.Title)), maxTitleLength+3)
}

func TestSendMessageValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.CreateSession(ctx, f.userID)
	require.NoError(t, err)

	_, _, err = f.svc.SendMessage(ctx, f.userID, session.ID, "   ", "")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, _, err = f.svc.SendMessage(ctx, f.userID, "no-such-session", "hi", "")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRenameSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.CreateSession(ctx, f.userID)
	require.NoError(t, err)

	renamed, err := f.svc.RenameSession(ctx, f.userID, session.ID, "  Weekend plans  ")
	require.NoError(t, err)
	assert.Equal(t, "Weekend plans", renamed.Title)

	_, err = f.svc.RenameSession(ctx, f.userID, session.ID, "   ")
	assert.ErrorIs(t, err, ErrEmptyTitle)

	_, err = f.svc.RenameSession(ctx, f.userID, "no-such-session", "title")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDeleteSessionRemovesMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.CreateSession(ctx, f.userID)
	require.NoError(t, err)

	_, _, err = f.svc.SendMessage(ctx, f.userID, session.ID, "hello", "")
	require.NoError(t, err)
	require.NotEmpty(t, f.messages.rows)

	require.NoError(t, f.svc.DeleteSession(ctx, f.userID, session.ID))

	assert.Empty(t, f.messages.rows)
	_, err = f.svc.GetSession(ctx, f.userID, session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.ErrorIs(t, f.svc.DeleteSession(ctx, f.userID, session.ID), ErrSessionNotFound)
}

func TestSearchMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.CreateSession(ctx, f.userID)
	require.NoError(t, err)

	_, _, err = f.svc.SendMessage(ctx, f.userID, session.ID, "tell me about Goroutines", "")
	require.NoError(t, err)
	_, _, err = f.svc.SendMessage(ctx, f.userID, session.ID, "now channels", "")
	require.NoError(t, err)

	hits, err := f.svc.SearchMessages(ctx, f.userID, session.ID, "goroutines")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "tell me about Goroutines", hits[0].Text)

	// Blank query falls back to the full listing.
	all, err := f.svc.SearchMessages(ctx, f.userID, session.ID, "  ")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestSessionsAreScopedToUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.CreateSession(ctx, f.userID)
	require.NoError(t, err)

	other := uuid.New()
	_, err = f.svc.GetSession(ctx, other, session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	list, err := f.svc.ListSessions(ctx, other)
	require.NoError(t, err)
	assert.Empty(t, list)
}
