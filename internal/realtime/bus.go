package realtime

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const channelPrefix = "sync:user:"

// Bus fans sync events out to every server instance holding a connection
// for the user, over redis pub/sub. A single-instance deployment still goes
// through redis; the channel contract stays the same either way.
type Bus struct {
	rdb *redis.Client
	log *logrus.Entry
}

// NewBus creates a bus on the given redis client.
func NewBus(rdb *redis.Client) *Bus {
	return &Bus{
		rdb: rdb,
		log: logrus.WithField("component", "realtime.bus"),
	}
}

// Publish sends an event on the user's channel.
func (b *Bus) Publish(ctx context.Context, userID string, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channelPrefix+userID, payload).Err()
}

// Subscribe opens the user's channel, returning a stream of decoded events
// and a cancel func. Undecodable payloads are logged and skipped. The stream
// closes after cancel.
func (b *Bus) Subscribe(ctx context.Context, userID string) (<-chan Event, func()) {
	sub := b.rdb.Subscribe(ctx, channelPrefix+userID)
	out := make(chan Event, 16)

	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.log.WithError(err).Warn("dropping malformed sync event")
				continue
			}
			select {
			case out <- ev:
			default:
				b.log.WithField("user_id", userID).Warn("sync event buffer full, dropping")
			}
		}
	}()

	return out, func() { _ = sub.Close() }
}
