package realtime

import "sync"

// PendingLedger tracks row ids written locally whose change events have not
// yet come back over the realtime channel. Entries are cleared only when the
// event for that exact row id arrives, so the pending count never drifts the
// way a bare increment/decrement counter would.
type PendingLedger struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewPendingLedger initializes an empty ledger.
func NewPendingLedger() *PendingLedger {
	return &PendingLedger{ids: make(map[string]struct{})}
}

// Add records a row id as pending. Nil-safe so callers can run without a
// realtime channel attached.
func (l *PendingLedger) Add(id string) {
	if l == nil || id == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ids[id] = struct{}{}
}

// Resolve clears a pending entry, reporting whether it existed.
func (l *PendingLedger) Resolve(id string) bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.ids[id]; !ok {
		return false
	}
	delete(l.ids, id)
	return true
}

// Len returns the number of unconfirmed writes.
func (l *PendingLedger) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ids)
}

// Reset drops all entries, used on sign-out and channel teardown.
func (l *PendingLedger) Reset() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ids = make(map[string]struct{})
}
