package realtime

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	wsclient "github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbuschat/nimbus-backend/internal/models"
)

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(testRedis(t))
	ctx := context.Background()

	events, cancel := bus.Subscribe(ctx, "u1")
	defer cancel()
	time.Sleep(50 * time.Millisecond)

	sent := Event{Type: EventMessageChanged, UserID: "u1", RowID: "m1", Timestamp: time.Now().UTC()}
	require.NoError(t, bus.Publish(ctx, "u1", sent))

	select {
	case got := <-events:
		assert.Equal(t, EventMessageChanged, got.Type)
		assert.Equal(t, "m1", got.RowID)
		assert.Equal(t, "u1", got.UserID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_ChannelsAreScopedPerUser(t *testing.T) {
	bus := NewBus(testRedis(t))
	ctx := context.Background()

	events, cancel := bus.Subscribe(ctx, "u1")
	defer cancel()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, bus.Publish(ctx, "u2", Event{Type: EventSessionChanged, UserID: "u2", RowID: "s1"}))

	select {
	case ev := <-events:
		t.Fatalf("event for another user leaked: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestHub_PresenceMembership(t *testing.T) {
	hub := NewHub(testRedis(t))
	ctx := context.Background()

	laptop := models.Device{ID: "d1", Name: "laptop", Type: "desktop"}
	phone := models.Device{ID: "d2", Name: "phone", Type: "mobile"}

	require.NoError(t, hub.Track(ctx, "u1", laptop))
	require.NoError(t, hub.Track(ctx, "u1", phone))

	devices, err := hub.Presence(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, devices, 2)

	require.NoError(t, hub.Untrack(ctx, "u1", "d1"))
	devices, err = hub.Presence(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "d2", devices[0].ID)

	// Presence is per user.
	devices, err = hub.Presence(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestHub_TrackBroadcastsMembership(t *testing.T) {
	hub := NewHub(testRedis(t))
	ctx := context.Background()

	events, cancel := hub.Bus().Subscribe(ctx, "u1")
	defer cancel()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, hub.Track(ctx, "u1", models.Device{ID: "d1", Name: "laptop", Type: "desktop"}))

	select {
	case ev := <-events:
		assert.Equal(t, EventPresenceChanged, ev.Type)
		require.Len(t, ev.Devices, 1)
		assert.Equal(t, "d1", ev.Devices[0].ID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for presence broadcast")
	}
}

func TestHub_HandleConnTearsDownOnDisconnect(t *testing.T) {
	hub := NewHub(testRedis(t))
	ctx := context.Background()

	returned := make(chan struct{})
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		hub.HandleConn(c, "u1", models.Device{ID: "d1", Name: "laptop", Type: "desktop"})
		close(returned)
	}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	defer func() { _ = app.Shutdown() }()

	conn, _, err := wsclient.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws", nil)
	require.NoError(t, err)

	var ack Event
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, EventConnected, ack.Type)

	require.NoError(t, conn.Close())

	// A quiet channel must not keep the handler alive once the peer is
	// gone.
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return after peer disconnect")
	}

	devices, err := hub.Presence(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, devices, "device should be untracked on disconnect")
}

func TestStatusTracker_Folding(t *testing.T) {
	ledger := NewPendingLedger()
	tracker := NewStatusTracker(ledger)

	status := tracker.Status()
	assert.False(t, status.IsConnected)
	assert.Nil(t, status.LastSync)
	assert.Zero(t, status.PendingChanges)

	tracker.Apply(Event{Type: EventConnected})
	assert.True(t, tracker.Status().IsConnected)

	ledger.Add("m1")
	ledger.Add("m2")
	assert.Equal(t, 2, tracker.Status().PendingChanges)

	// Unrelated row ids leave the ledger alone.
	tracker.Apply(Event{Type: EventMessageChanged, RowID: "other", Timestamp: time.Now()})
	assert.Equal(t, 2, tracker.Status().PendingChanges)
	require.NotNil(t, tracker.Status().LastSync)

	tracker.Apply(Event{Type: EventMessageChanged, RowID: "m1", Timestamp: time.Now()})
	assert.Equal(t, 1, tracker.Status().PendingChanges)

	tracker.Apply(Event{Type: EventPresenceChanged, Devices: []models.Device{{ID: "d1", Name: "laptop"}}})
	require.Len(t, tracker.Status().Devices, 1)

	tracker.Teardown()
	status = tracker.Status()
	assert.False(t, status.IsConnected)
	assert.Nil(t, status.LastSync)
	assert.Zero(t, status.PendingChanges)
	assert.Empty(t, status.Devices)
}

func TestDetectDevice(t *testing.T) {
	d := DetectDevice()
	assert.NotEmpty(t, d.ID)
	assert.NotEmpty(t, d.Name)
	assert.Contains(t, []string{"desktop", "mobile", "browser"}, d.Type)
}
