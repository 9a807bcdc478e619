package syncer

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nimbuschat/nimbus-backend/internal/chatstore"
	"github.com/nimbuschat/nimbus-backend/internal/models"
	"github.com/nimbuschat/nimbus-backend/internal/notify"
	"github.com/nimbuschat/nimbus-backend/internal/realtime"
	"github.com/nimbuschat/nimbus-backend/internal/repository"
)

// Syncer keeps a local chat store and the remote store eventually
// consistent, triggered one-directionally by local changes and by
// sign-in/out. It owns no chat state of its own; the only thing it tracks is
// which writes are still unconfirmed, via the pending ledger.
//
// Failure policy: every remote call failure is logged, surfaced once as a
// transient user notification, and otherwise dropped. Local state is never
// rolled back to match a failed remote write, so local and remote can
// diverge until the next full load.
type Syncer struct {
	store    *chatstore.Store
	sessions repository.ChatSessionRepository
	messages repository.MessageRepository
	usage    repository.UsageRepository
	notifier notify.Notifier
	pending  *realtime.PendingLedger
	log      *logrus.Entry

	userID   uuid.UUID
	signedIn bool
}

// New creates a syncer bound to the given store and repositories. The
// notifier receives failure notifications; the pending ledger may be nil
// when no realtime channel is attached.
func New(store *chatstore.Store, sessions repository.ChatSessionRepository, messages repository.MessageRepository, usage repository.UsageRepository, notifier notify.Notifier, pending *realtime.PendingLedger) *Syncer {
	if notifier == nil {
		notifier = notify.Discard
	}
	return &Syncer{
		store:    store,
		sessions: sessions,
		messages: messages,
		usage:    usage,
		notifier: notifier,
		pending:  pending,
		log:      logrus.WithField("component", "syncer"),
	}
}

// SignIn hydrates the local store from the remote store: all of the user's
// sessions ordered by recency, then the messages of the current session
// only. Messages for other sessions load lazily on switch, to bound the
// initial load.
func (s *Syncer) SignIn(ctx context.Context, userID uuid.UUID) error {
	s.userID = userID
	s.signedIn = true

	rows, err := s.sessions.List(ctx, userID)
	if err != nil {
		return s.failRemote("load sessions", err)
	}

	loaded := make([]models.Session, 0, len(rows))
	for _, row := range rows {
		loaded = append(loaded, row.ToModel())
	}
	s.store.SetSessions(loaded)

	// If the locally current session is not among the loaded ones, fall
	// back to the most recently updated session.
	if _, ok := s.store.Session(s.store.CurrentID()); !ok || s.store.CurrentID() == "" {
		if len(loaded) > 0 {
			s.store.SwitchSession(loaded[0].ID)
		}
	}

	return s.loadCurrentMessages(ctx)
}

// SignOut clears all local chat state. The remote store is untouched.
func (s *Syncer) SignOut() {
	s.signedIn = false
	s.userID = uuid.Nil
	s.store.Clear()
	s.pending.Reset()
}

// SignedIn reports whether a user is signed in.
func (s *Syncer) SignedIn() bool {
	return s.signedIn
}

// AppendMessage applies a message to the local store and persists it.
func (s *Syncer) AppendMessage(ctx context.Context, msg models.Message) models.Message {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if msg.SessionID == "" {
		msg.SessionID = s.store.CurrentID()
	}
	s.store.AddMessage(msg)
	s.PersistMessage(ctx, msg)
	return msg
}

// PersistMessage upserts a locally appended message, mapping the client
// sender tag to the remote schema's label, then bumps the per-day usage
// counters attributed to the sender. A failed upsert skips the usage call:
// one user action surfaces at most one notification, and usage never counts
// a message that was not stored.
func (s *Syncer) PersistMessage(ctx context.Context, msg models.Message) {
	if !s.signedIn {
		return
	}

	row := &repository.Message{
		ID:        msg.ID,
		SessionID: msg.SessionID,
		UserID:    s.userID,
		Content:   msg.Text,
		Sender:    repository.StoredSender(msg.Sender),
		CreatedAt: msg.Timestamp,
	}
	if msg.Model != "" {
		row.ModelUsed = sql.NullString{String: msg.Model, Valid: true}
	}
	if msg.Tokens > 0 {
		row.TokensUsed = sql.NullInt64{Int64: int64(msg.Tokens), Valid: true}
	}

	if err := s.messages.Upsert(ctx, row); err != nil {
		s.failRemote("persist message", err)
		return
	}
	s.pending.Add(msg.ID)

	if err := s.usage.Increment(ctx, s.userID, msg.Timestamp, 1, msg.Tokens, 1); err != nil {
		s.failRemote("record usage", err)
	}
}

// PersistSession upserts the given session's id, title and updated_at.
func (s *Syncer) PersistSession(ctx context.Context, id string) {
	if !s.signedIn {
		return
	}
	sess, ok := s.store.Session(id)
	if !ok {
		return
	}

	row := &repository.ChatSession{
		ID:        sess.ID,
		UserID:    s.userID,
		Title:     sess.Title,
		CreatedAt: sess.CreatedAt,
		UpdatedAt: sess.UpdatedAt,
	}
	if err := s.sessions.Upsert(ctx, row); err != nil {
		s.failRemote("persist session", err)
	} else {
		s.pending.Add(sess.ID)
	}
}

// CreateSession creates a session locally and writes it through.
func (s *Syncer) CreateSession(ctx context.Context) string {
	id := s.store.CreateSession()
	s.PersistSession(ctx, id)
	return id
}

// RenameSession applies a title change locally and writes it through. Empty
// titles are rejected by the store before any remote call happens.
func (s *Syncer) RenameSession(ctx context.Context, id, title string) {
	before, ok := s.store.Session(id)
	s.store.UpdateSessionTitle(id, title)
	after, _ := s.store.Session(id)
	if ok && after.Title != before.Title {
		s.PersistSession(ctx, id)
	}
}

// SwitchSession changes the current session and reloads its messages from
// the remote store. Unknown ids are ignored.
func (s *Syncer) SwitchSession(ctx context.Context, id string) error {
	before := s.store.CurrentID()
	s.store.SwitchSession(id)
	if s.store.CurrentID() == before {
		return nil
	}
	s.PersistSession(ctx, id)
	return s.loadCurrentMessages(ctx)
}

// DeleteSession removes the session locally and then from the remote store.
// The local removal always happens, even when the remote calls fail; the
// design accepts that divergence. Messages are deleted before the session
// row because no cascade is assumed, and the two deletes are not atomic.
func (s *Syncer) DeleteSession(ctx context.Context, id string) {
	s.store.DeleteSession(id)
	if !s.signedIn {
		return
	}

	if err := s.messages.DeleteBySession(ctx, s.userID, id); err != nil {
		s.failRemote("delete session", err)
		return
	}
	if err := s.sessions.Delete(ctx, s.userID, id); err != nil {
		s.failRemote("delete session", err)
	}
}

func (s *Syncer) loadCurrentMessages(ctx context.Context) error {
	current := s.store.CurrentID()
	if current == "" || !s.signedIn {
		return nil
	}

	rows, err := s.messages.ListBySession(ctx, s.userID, current)
	if err != nil {
		return s.failRemote("load messages", err)
	}
	msgs := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, row.ToModel())
	}
	s.store.SetMessages(msgs)
	return nil
}

// failRemote logs a remote-call failure and surfaces it to the user exactly
// once. There is no retry and no rollback.
func (s *Syncer) failRemote(op string, err error) error {
	s.log.WithError(err).WithField("op", op).Warn("remote call failed")
	s.notifier.Notify(notify.Notification{
		Level:   notify.LevelError,
		Message: fmt.Sprintf("Could not %s, changes may not be saved", op),
		Time:    time.Now(),
	})
	return fmt.Errorf("%s: %w", op, err)
}
