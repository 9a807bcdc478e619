package notify

import "time"

// Level classifies a notification.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notification is a transient, user-visible message. Failed remote writes
// surface here exactly once; nothing is queued for retry.
type Notification struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Notifier receives transient user notifications.
type Notifier interface {
	Notify(n Notification)
}

// Func adapts a function to the Notifier interface.
type Func func(n Notification)

// Notify implements Notifier.
func (f Func) Notify(n Notification) { f(n) }

// Discard drops every notification. Useful as a default.
var Discard Notifier = Func(func(Notification) {})
