package realtime

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/nimbuschat/nimbus-backend/internal/models"
)

const (
	presencePrefix = "presence:user:"
	redisTimeout   = 3 * time.Second
)

// Hub owns the server side of the per-user sync channel: it accepts
// websocket connections, forwards row-change events published on the bus,
// and maintains the presence set of connected devices in redis so every
// instance sees the same membership.
type Hub struct {
	bus *Bus
	rdb *redis.Client
	log *logrus.Entry

	mu    sync.Mutex
	users map[string]*userChannel
}

type userChannel struct {
	conns  map[*websocket.Conn]chan Event
	cancel func()
}

// NewHub creates a hub backed by the given redis client.
func NewHub(rdb *redis.Client) *Hub {
	return &Hub{
		bus: NewBus(rdb),
		rdb: rdb,
		log: logrus.WithField("component", "realtime.hub"),
		users: make(map[string]*userChannel),
	}
}

// Bus exposes the underlying event bus, for client-side subscriptions.
func (h *Hub) Bus() *Bus {
	return h.bus
}

// NotifySessionChanged publishes a chat_sessions row change on the user's
// channel.
func (h *Hub) NotifySessionChanged(ctx context.Context, userID, rowID string) {
	h.publish(ctx, userID, Event{Type: EventSessionChanged, UserID: userID, RowID: rowID, Timestamp: time.Now()})
}

// NotifyMessageChanged publishes a messages row change on the user's
// channel.
func (h *Hub) NotifyMessageChanged(ctx context.Context, userID, rowID string) {
	h.publish(ctx, userID, Event{Type: EventMessageChanged, UserID: userID, RowID: rowID, Timestamp: time.Now()})
}

func (h *Hub) publish(ctx context.Context, userID string, ev Event) {
	if err := h.bus.Publish(ctx, userID, ev); err != nil {
		h.log.WithError(err).WithField("user_id", userID).Warn("failed to publish sync event")
	}
}

// Track records a device as present and broadcasts the new membership set.
func (h *Hub) Track(ctx context.Context, userID string, device models.Device) error {
	device.LastSeen = time.Now()
	payload, err := json.Marshal(device)
	if err != nil {
		return err
	}
	rctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	if err := h.rdb.HSet(rctx, presencePrefix+userID, device.ID, payload).Err(); err != nil {
		return err
	}
	return h.publishPresence(ctx, userID)
}

// Untrack removes a device from the presence set and broadcasts the new
// membership set.
func (h *Hub) Untrack(ctx context.Context, userID, deviceID string) error {
	rctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	if err := h.rdb.HDel(rctx, presencePrefix+userID, deviceID).Err(); err != nil && err != redis.Nil {
		return err
	}
	return h.publishPresence(ctx, userID)
}

// Presence returns the user's current device set, most recently seen first.
func (h *Hub) Presence(ctx context.Context, userID string) ([]models.Device, error) {
	rctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	fields, err := h.rdb.HGetAll(rctx, presencePrefix+userID).Result()
	if err != nil {
		return nil, err
	}
	devices := make([]models.Device, 0, len(fields))
	for _, raw := range fields {
		var d models.Device
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			h.log.WithError(err).Warn("dropping malformed presence entry")
			continue
		}
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].LastSeen.After(devices[j].LastSeen) })
	return devices, nil
}

func (h *Hub) publishPresence(ctx context.Context, userID string) error {
	devices, err := h.Presence(ctx, userID)
	if err != nil {
		return err
	}
	return h.bus.Publish(ctx, userID, Event{
		Type:      EventPresenceChanged,
		UserID:    userID,
		Devices:   devices,
		Timestamp: time.Now(),
	})
}

// HandleConn serves one websocket connection for the given user and device.
// It blocks until the peer disconnects. On teardown the device is untracked
// and, when it was the user's last connection on this instance, the bus
// subscription is released.
func (h *Hub) HandleConn(c *websocket.Conn, userID string, device models.Device) {
	ctx := context.Background()
	out := h.register(userID, c)

	if err := h.Track(ctx, userID, device); err != nil {
		h.log.WithError(err).WithField("user_id", userID).Warn("failed to track device")
	}

	// Join acknowledgment, then the writer pump. The presence set itself
	// arrives via the broadcast Track just triggered.
	if err := c.WriteJSON(Event{Type: EventConnected, UserID: userID, Timestamp: time.Now()}); err != nil {
		h.unregister(ctx, userID, c, device.ID)
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range out {
			if err := c.WriteJSON(ev); err != nil {
				return
			}
		}
	}()

	// Read loop: the only client-to-server traffic is the heartbeat, which
	// refreshes the device's last_seen.
	for {
		var in struct {
			Type string `json:"type"`
		}
		if err := c.ReadJSON(&in); err != nil {
			break
		}
		if in.Type == "ping" {
			if err := h.Track(ctx, userID, device); err != nil {
				h.log.WithError(err).Warn("failed to refresh presence")
			}
		}
	}

	// The writer pump exits only when its channel closes, so detach before
	// waiting on it, then untrack.
	h.detach(userID, c)
	<-done
	h.unregister(ctx, userID, c, device.ID)
}

func (h *Hub) register(userID string, c *websocket.Conn) chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	uc, ok := h.users[userID]
	if !ok {
		events, cancel := h.bus.Subscribe(context.Background(), userID)
		uc = &userChannel{
			conns:  make(map[*websocket.Conn]chan Event),
			cancel: cancel,
		}
		h.users[userID] = uc
		go h.forward(userID, events)
	}

	out := make(chan Event, 16)
	uc.conns[c] = out
	return out
}

// detach removes the connection from the user's channel, closing its event
// channel so the writer pump can exit, and releases the bus subscription when
// it was the user's last connection on this instance. Calling it again for
// the same connection is a no-op.
func (h *Hub) detach(userID string, c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	uc, ok := h.users[userID]
	if !ok {
		return
	}
	if out, present := uc.conns[c]; present {
		delete(uc.conns, c)
		close(out)
	}
	if len(uc.conns) == 0 {
		uc.cancel()
		delete(h.users, userID)
	}
}

// unregister detaches the connection and removes its device from presence.
func (h *Hub) unregister(ctx context.Context, userID string, c *websocket.Conn, deviceID string) {
	h.detach(userID, c)

	if err := h.Untrack(ctx, userID, deviceID); err != nil {
		h.log.WithError(err).WithField("user_id", userID).Warn("failed to untrack device")
	}
}

func (h *Hub) forward(userID string, events <-chan Event) {
	for ev := range events {
		h.mu.Lock()
		uc, ok := h.users[userID]
		if !ok {
			h.mu.Unlock()
			return
		}
		for _, out := range uc.conns {
			select {
			case out <- ev:
			default:
				// Slow consumers drop events rather than stall the channel.
			}
		}
		h.mu.Unlock()
	}
}
