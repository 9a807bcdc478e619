package realtime

import (
	"time"

	"github.com/nimbuschat/nimbus-backend/internal/models"
)

// EventType identifies a realtime channel event.
type EventType string

const (
	// EventSessionChanged signals a chat_sessions row change for the user.
	EventSessionChanged EventType = "session_changed"
	// EventMessageChanged signals a messages row change for the user.
	EventMessageChanged EventType = "message_changed"
	// EventPresenceChanged carries the full set of present devices after any
	// membership change.
	EventPresenceChanged EventType = "presence_changed"
	// EventConnected acknowledges a successful channel join.
	EventConnected EventType = "connected"
)

// Event is one message on a user's sync channel.
type Event struct {
	Type      EventType       `json:"type"`
	UserID    string          `json:"user_id,omitempty"`
	RowID     string          `json:"row_id,omitempty"`
	Devices   []models.Device `json:"devices,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
