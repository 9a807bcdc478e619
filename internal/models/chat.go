package models

import "time"

// Sender identifies who produced a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// StoredSenderAssistant is the at-rest label for bot output. The client-side
// Sender type uses "bot"; conversion happens only at the repository boundary.
const StoredSenderAssistant = "assistant"

// Session is a titled, ordered container of messages owned by one user.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is a single chat turn. Immutable once persisted; retries go
// through upsert-by-id rather than in-place updates.
type Message struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Sender      Sender    `json:"sender"`
	Text        string    `json:"text"`
	Timestamp   time.Time `json:"timestamp"`
	Model       string    `json:"model,omitempty"`
	Tokens      int       `json:"tokens,omitempty"`
	Attachments []FileRef `json:"attachments,omitempty"`
}

// FileRef describes a file attached to the next outgoing message. It is
// transient on the client; the durable copy lives in object storage and is
// referenced by RemoteURL.
type FileRef struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	MimeType      string `json:"mime_type"`
	Size          int64  `json:"size"`
	ExtractedText string `json:"extracted_text,omitempty"`
	RemoteURL     string `json:"remote_url,omitempty"`
}

// Device is one client currently present on the user's sync channel.
type Device struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Type     string    `json:"type"`
	LastSeen time.Time `json:"last_seen"`
}

// DeviceSyncStatus is the derived, ephemeral view of cross-device sync.
// It is rebuilt from realtime channel events and never persisted.
type DeviceSyncStatus struct {
	IsConnected    bool       `json:"is_connected"`
	LastSync       *time.Time `json:"last_sync"`
	PendingChanges int        `json:"pending_changes"`
	Devices        []Device   `json:"devices"`
}
