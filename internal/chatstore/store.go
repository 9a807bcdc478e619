package chatstore

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nimbuschat/nimbus-backend/internal/models"
)

// Store holds the client-visible chat state: the session list, the messages
// of each known session, the pending attachments for the next outgoing
// message, and a couple of UI flags. It is the single source of truth a
// client renders from; the sync engine keeps it aligned with the remote
// store.
//
// All operations are synchronous state transitions guarded by one mutex.
// Nothing here blocks or performs I/O.
type Store struct {
	mu sync.RWMutex

	sessions  []models.Session
	currentID string
	messages  map[string][]models.Message
	files     []models.FileRef

	streaming bool
	model     string

	subs    map[int]chan struct{}
	nextSub int
}

// New initializes an empty store.
func New() *Store {
	return &Store{
		messages: make(map[string][]models.Message),
		subs:     make(map[int]chan struct{}),
	}
}

// Subscribe registers a change listener. The returned channel receives a
// coalesced signal after every mutation; the cancel func removes the
// subscription. Listeners re-read state via the snapshot accessors.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan struct{}, 1)
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// notify must be called with s.mu held.
func (s *Store) notify() {
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// CreateSession generates a new empty session, places it at the front of the
// session list and marks it current. Nothing is persisted here; the sync
// engine observes the change and writes it through.
func (s *Store) CreateSession() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	sess := models.Session{
		ID:        uuid.New().String(),
		Title:     "New Chat",
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions = append([]models.Session{sess}, s.sessions...)
	s.currentID = sess.ID
	s.messages[sess.ID] = nil
	s.notify()
	return sess.ID
}

// SwitchSession sets the current session. Unknown ids are ignored.
func (s *Store) SwitchSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOf(id) < 0 {
		return
	}
	s.currentID = id
	s.notify()
}

// DeleteSession removes a session and its messages from local state. If the
// deleted session was current, the most recently updated remaining session
// becomes current, or "" when none remain.
func (s *Store) DeleteSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return
	}
	s.sessions = append(s.sessions[:idx], s.sessions[idx+1:]...)
	delete(s.messages, id)

	if s.currentID == id {
		s.currentID = ""
		var latest time.Time
		for _, sess := range s.sessions {
			if s.currentID == "" || sess.UpdatedAt.After(latest) {
				latest = sess.UpdatedAt
				s.currentID = sess.ID
			}
		}
	}
	s.notify()
}

// UpdateSessionTitle renames a session. Empty or whitespace-only titles and
// unknown ids are rejected as no-ops.
func (s *Store) UpdateSessionTitle(id, title string) {
	title = strings.TrimSpace(title)
	if title == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return
	}
	s.sessions[idx].Title = title
	s.sessions[idx].UpdatedAt = time.Now()
	s.notify()
}

// AddMessage appends a message to its session's list, preserving arrival
// order. A message without a session id belongs to the current session, and
// a zero timestamp defaults to now. The owning session's UpdatedAt is bumped
// so recency ordering tracks activity.
func (s *Store) AddMessage(msg models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.SessionID == "" {
		msg.SessionID = s.currentID
	}
	if msg.SessionID == "" {
		return
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], msg)
	if idx := s.indexOf(msg.SessionID); idx >= 0 {
		s.sessions[idx].UpdatedAt = msg.Timestamp
	}
	s.notify()
}

// AddFiles appends pending attachments for the next outgoing message.
func (s *Store) AddFiles(files []models.FileRef) {
	if len(files) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = append(s.files, files...)
	s.notify()
}

// RemoveFile drops one pending attachment. Absent ids are ignored.
func (s *Store) RemoveFile(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, f := range s.files {
		if f.ID == id {
			s.files = append(s.files[:i], s.files[i+1:]...)
			s.notify()
			return
		}
	}
}

// ClearFiles drops all pending attachments, typically after a send.
func (s *Store) ClearFiles() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.files) == 0 {
		return
	}
	s.files = nil
	s.notify()
}

// SetSessions bulk-replaces the session list. Used only by the sync engine
// when rehydrating from the remote store.
func (s *Store) SetSessions(sessions []models.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = append([]models.Session(nil), sessions...)
	known := make(map[string]bool, len(sessions))
	for _, sess := range sessions {
		known[sess.ID] = true
	}
	for id := range s.messages {
		if !known[id] {
			delete(s.messages, id)
		}
	}
	if s.currentID != "" && !known[s.currentID] {
		s.currentID = ""
	}
	s.notify()
}

// SetMessages bulk-replaces the current session's messages. Used only by the
// sync engine after loading from the remote store.
func (s *Store) SetMessages(msgs []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentID == "" {
		return
	}
	s.messages[s.currentID] = append([]models.Message(nil), msgs...)
	s.notify()
}

// Clear wipes all chat state, used on sign-out.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = nil
	s.currentID = ""
	s.messages = make(map[string][]models.Message)
	s.files = nil
	s.notify()
}

// SetStreaming toggles the "assistant reply in flight" UI flag.
func (s *Store) SetStreaming(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaming = v
	s.notify()
}

// SetModel records the selected model.
func (s *Store) SetModel(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = model
	s.notify()
}

// CurrentID returns the current session id, or "" when none.
func (s *Store) CurrentID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentID
}

// Sessions returns a snapshot of the session list.
func (s *Store) Sessions() []models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Session(nil), s.sessions...)
}

// Session returns the session with the given id, if known.
func (s *Store) Session(id string) (models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.indexOf(id); idx >= 0 {
		return s.sessions[idx], true
	}
	return models.Session{}, false
}

// Messages returns a snapshot of the current session's messages in arrival
// order.
func (s *Store) Messages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Message(nil), s.messages[s.currentID]...)
}

// MessagesFor returns a snapshot of the given session's messages.
func (s *Store) MessagesFor(sessionID string) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Message(nil), s.messages[sessionID]...)
}

// SearchMessages filters the current session's messages by case-insensitive
// substring match, preserving order.
func (s *Store) SearchMessages(query string) []models.Message {
	query = strings.ToLower(strings.TrimSpace(query))

	s.mu.RLock()
	defer s.mu.RUnlock()
	if query == "" {
		return append([]models.Message(nil), s.messages[s.currentID]...)
	}
	var out []models.Message
	for _, m := range s.messages[s.currentID] {
		if strings.Contains(strings.ToLower(m.Text), query) {
			out = append(out, m)
		}
	}
	return out
}

// Files returns a snapshot of the pending attachment list.
func (s *Store) Files() []models.FileRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.FileRef(nil), s.files...)
}

// Streaming reports the streaming UI flag.
func (s *Store) Streaming() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streaming
}

// Model returns the selected model.
func (s *Store) Model() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

// indexOf must be called with s.mu held.
func (s *Store) indexOf(id string) int {
	for i, sess := range s.sessions {
		if sess.ID == id {
			return i
		}
	}
	return -1
}
