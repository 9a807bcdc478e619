package realtime

import (
	"sync"
	"time"

	"github.com/nimbuschat/nimbus-backend/internal/models"
)

// StatusTracker folds a channel's event stream into the derived
// DeviceSyncStatus value. It is display-only and fully ephemeral: teardown
// resets everything.
//
// Pending changes are counted from the write ledger: an entry clears only
// when the change event for that exact row id arrives, never on unrelated
// events.
type StatusTracker struct {
	mu       sync.RWMutex
	pending  *PendingLedger
	lastSync *time.Time
	devices  []models.Device
	online   bool
}

// NewStatusTracker creates a tracker over the given pending ledger. A nil
// ledger reports zero pending changes.
func NewStatusTracker(pending *PendingLedger) *StatusTracker {
	return &StatusTracker{pending: pending}
}

// Apply folds one channel event into the status.
func (t *StatusTracker) Apply(ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Type {
	case EventConnected:
		t.online = true
	case EventSessionChanged, EventMessageChanged:
		ts := ev.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		t.lastSync = &ts
		t.pending.Resolve(ev.RowID)
	case EventPresenceChanged:
		t.devices = append([]models.Device(nil), ev.Devices...)
	}
}

// Run folds events until the stream closes, then tears down.
func (t *StatusTracker) Run(events <-chan Event) {
	for ev := range events {
		t.Apply(ev)
	}
	t.Teardown()
}

// Teardown resets the tracker; no queued state survives.
func (t *StatusTracker) Teardown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.online = false
	t.lastSync = nil
	t.devices = nil
	t.pending.Reset()
}

// Status returns the current derived value.
func (t *StatusTracker) Status() models.DeviceSyncStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return models.DeviceSyncStatus{
		IsConnected:    t.online,
		LastSync:       t.lastSync,
		PendingChanges: t.pending.Len(),
		Devices:        append([]models.Device(nil), t.devices...),
	}
}
