package chatstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbuschat/nimbus-backend/internal/models"
)

func TestStore_CreateSession(t *testing.T) {
	s := New()

	id := s.CreateSession()
	require.NotEmpty(t, id)
	assert.Equal(t, id, s.CurrentID())

	sessions := s.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, id, sessions[0].ID)
	assert.Empty(t, s.Messages())

	// New sessions go to the front of the list.
	second := s.CreateSession()
	sessions = s.Sessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, second, sessions[0].ID)
	assert.Equal(t, second, s.CurrentID())
}

func TestStore_SwitchSession(t *testing.T) {
	s := New()
	a := s.CreateSession()
	b := s.CreateSession()

	s.SwitchSession(a)
	assert.Equal(t, a, s.CurrentID())

	// Unknown ids are ignored.
	s.SwitchSession("nope")
	assert.Equal(t, a, s.CurrentID())

	s.SwitchSession(b)
	assert.Equal(t, b, s.CurrentID())
}

func TestStore_CurrentAlwaysValid(t *testing.T) {
	s := New()

	check := func() {
		cur := s.CurrentID()
		if cur == "" {
			return
		}
		_, ok := s.Session(cur)
		assert.True(t, ok, "current id %q not in session list", cur)
	}

	ids := make([]string, 0, 4)
	for i := 0; i < 4; i++ {
		ids = append(ids, s.CreateSession())
		check()
	}
	s.SwitchSession(ids[1])
	check()
	s.DeleteSession(ids[1])
	check()
	s.DeleteSession(ids[3])
	check()
	s.DeleteSession(s.CurrentID())
	check()
	s.DeleteSession(s.CurrentID())
	check()
	assert.Empty(t, s.CurrentID())
	assert.Empty(t, s.Sessions())
}

func TestStore_DeleteCurrentPicksMostRecentlyUpdated(t *testing.T) {
	s := New()
	a := s.CreateSession()
	b := s.CreateSession()
	c := s.CreateSession()

	// Touch a so it is the most recently updated of the survivors.
	s.AddMessage(models.Message{SessionID: a, Sender: models.SenderUser, Text: "ping", Timestamp: time.Now().Add(time.Minute)})

	s.DeleteSession(c)
	assert.Equal(t, a, s.CurrentID())

	_, ok := s.Session(c)
	assert.False(t, ok)
	assert.Empty(t, s.MessagesFor(c))
	_ = b
}

func TestStore_UpdateSessionTitle(t *testing.T) {
	s := New()
	id := s.CreateSession()

	s.UpdateSessionTitle(id, "Trip planning")
	sess, ok := s.Session(id)
	require.True(t, ok)
	assert.Equal(t, "Trip planning", sess.Title)

	// Empty and whitespace-only titles are no-ops.
	s.UpdateSessionTitle(id, "")
	s.UpdateSessionTitle(id, "   ")
	sess, _ = s.Session(id)
	assert.Equal(t, "Trip planning", sess.Title)

	// Unknown id is a no-op.
	s.UpdateSessionTitle("nope", "x")
}

func TestStore_AddMessageAppendOrder(t *testing.T) {
	s := New()
	s.CreateSession()

	s.AddMessage(models.Message{Sender: models.SenderUser, Text: "hi", Timestamp: time.Now()})
	s.AddMessage(models.Message{Sender: models.SenderBot, Text: "hello", Timestamp: time.Now()})

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Text)
	assert.Equal(t, models.SenderUser, msgs[0].Sender)
	assert.Equal(t, "hello", msgs[1].Text)
	assert.Equal(t, models.SenderBot, msgs[1].Sender)

	// Appends never reorder what came before.
	s.AddMessage(models.Message{Sender: models.SenderUser, Text: "third", Timestamp: time.Now()})
	msgs = s.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "hi", msgs[0].Text)
	assert.Equal(t, "hello", msgs[1].Text)
}

func TestStore_AddMessageDefaultsZeroTimestamp(t *testing.T) {
	s := New()
	old := s.CreateSession()
	cur := s.CreateSession()
	before := time.Now()

	s.AddMessage(models.Message{Sender: models.SenderUser, Text: "no clock set"})

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].Timestamp.IsZero())

	// The session's recency must move forward, never rewind to the zero
	// time, or the delete fallback would pick the wrong survivor.
	sess, ok := s.Session(cur)
	require.True(t, ok)
	assert.False(t, sess.UpdatedAt.Before(before))

	// With old and cur surviving, the fallback must land on cur, the one
	// the message just touched.
	extra := s.CreateSession()
	s.DeleteSession(extra)
	assert.Equal(t, cur, s.CurrentID())
	_ = old
}

func TestStore_AddMessageWithoutSession(t *testing.T) {
	s := New()
	// No current session: the message has nowhere to go.
	s.AddMessage(models.Message{Sender: models.SenderUser, Text: "lost"})
	assert.Empty(t, s.Messages())
}

func TestStore_PendingFiles(t *testing.T) {
	s := New()

	s.AddFiles([]models.FileRef{
		{ID: "f1", Name: "notes.txt", MimeType: "text/plain", Size: 12},
		{ID: "f2", Name: "pic.png", MimeType: "image/png", Size: 2048},
	})
	require.Len(t, s.Files(), 2)

	s.RemoveFile("f1")
	files := s.Files()
	require.Len(t, files, 1)
	assert.Equal(t, "f2", files[0].ID)

	// Absent id is a no-op.
	s.RemoveFile("f1")
	assert.Len(t, s.Files(), 1)

	s.ClearFiles()
	assert.Empty(t, s.Files())
}

func TestStore_SetSessionsDropsUnknownCurrent(t *testing.T) {
	s := New()
	s.CreateSession()

	loaded := []models.Session{
		{ID: "r1", Title: "Remote one", UpdatedAt: time.Now()},
		{ID: "r2", Title: "Remote two", UpdatedAt: time.Now().Add(-time.Hour)},
	}
	s.SetSessions(loaded)

	assert.Empty(t, s.CurrentID())
	assert.Len(t, s.Sessions(), 2)

	s.SwitchSession("r1")
	s.SetMessages([]models.Message{
		{ID: "m1", SessionID: "r1", Sender: models.SenderUser, Text: "hi"},
	})
	require.Len(t, s.Messages(), 1)
}

func TestStore_SearchMessages(t *testing.T) {
	s := New()
	s.CreateSession()
	s.AddMessage(models.Message{Sender: models.SenderUser, Text: "Plan the Lisbon trip"})
	s.AddMessage(models.Message{Sender: models.SenderBot, Text: "Sure, when do you leave?"})
	s.AddMessage(models.Message{Sender: models.SenderUser, Text: "lisbon in may"})

	hits := s.SearchMessages("lisbon")
	require.Len(t, hits, 2)
	assert.Equal(t, "Plan the Lisbon trip", hits[0].Text)

	assert.Len(t, s.SearchMessages(""), 3)
	assert.Empty(t, s.SearchMessages("porto"))
}

func TestStore_SubscribeSignalsOnMutation(t *testing.T) {
	s := New()
	ch, cancel := s.Subscribe()
	defer cancel()

	s.CreateSession()
	select {
	case <-ch:
	default:
		t.Fatal("expected change signal after CreateSession")
	}

	// Signals coalesce: many mutations, at most one pending signal.
	s.AddMessage(models.Message{Sender: models.SenderUser, Text: "a"})
	s.AddMessage(models.Message{Sender: models.SenderUser, Text: "b"})
	select {
	case <-ch:
	default:
		t.Fatal("expected change signal after AddMessage")
	}
	select {
	case <-ch:
		t.Fatal("signals should coalesce")
	default:
	}
}

func TestStore_ClearOnSignOut(t *testing.T) {
	s := New()
	s.CreateSession()
	s.AddMessage(models.Message{Sender: models.SenderUser, Text: "hi"})
	s.AddFiles([]models.FileRef{{ID: "f1"}})

	s.Clear()
	assert.Empty(t, s.Sessions())
	assert.Empty(t, s.CurrentID())
	assert.Empty(t, s.Messages())
	assert.Empty(t, s.Files())
}
