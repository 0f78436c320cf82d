// Package events provides real-time event delivery: a Redis pub/sub bus for
// cross-instance notification of freshly inserted event ids, the writer that
// couples event log inserts to bus publishes, and the per-instance SSE hub
// that fans bus messages out to connected clients.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// ChannelEventsNew is the single logical bus channel. Every instance's hub
// subscribes to it; every writer publishes to it.
const ChannelEventsNew = "events:new"

// BusMessage is the wire payload on ChannelEventsNew.
type BusMessage struct {
	EventID string `json:"event_id"`
}

// Bus is the cross-instance notification channel. Delivery is at-most-once
// per receiver with no persistence — an instance that is down misses
// notifications, and clients recover via the `since` catch-up.
type Bus struct {
	pub *redis.Client // shared command client (publishes)
	sub *redis.Client // dedicated subscriber client
}

// NewBus creates a Bus over two Redis clients: pub for PUBLISH commands and
// sub for the blocking SUBSCRIBE connection. They must be separate clients
// so queue traffic never stalls behind a subscription.
func NewBus(pub, sub *redis.Client) *Bus {
	return &Bus{pub: pub, sub: sub}
}

// Publish broadcasts a freshly inserted event id. Best-effort: callers log
// and swallow the returned error — a lost notification is recovered by
// catch-up, a failed insert is not.
func (b *Bus) Publish(ctx context.Context, eventID string) error {
	payload, err := json.Marshal(BusMessage{EventID: eventID})
	if err != nil {
		return fmt.Errorf("failed to marshal bus message: %w", err)
	}
	if err := b.pub.Publish(ctx, ChannelEventsNew, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", ChannelEventsNew, err)
	}
	return nil
}

// Subscribe starts delivering received event ids to handler and returns the
// unsubscribe function. The subscription is confirmed with Redis before
// Subscribe returns, so a successful return means the receiver is live.
// Malformed messages are dropped with a warning.
func (b *Bus) Subscribe(ctx context.Context, handler func(eventID string)) (func(), error) {
	pubsub := b.sub.Subscribe(ctx, ChannelEventsNew)

	// Wait for the subscription ack so callers can rely on "subscribed
	// before catch-up" ordering.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", ChannelEventsNew, err)
	}

	var once sync.Once
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range pubsub.Channel() {
			var bm BusMessage
			if err := json.Unmarshal([]byte(msg.Payload), &bm); err != nil || bm.EventID == "" {
				slog.Warn("Dropping malformed bus message",
					"channel", ChannelEventsNew, "payload", msg.Payload)
				continue
			}
			handler(bm.EventID)
		}
	}()

	unsubscribe := func() {
		once.Do(func() {
			if err := pubsub.Close(); err != nil {
				slog.Warn("Failed to close bus subscription", "error", err)
			}
			<-done
		})
	}
	return unsubscribe, nil
}
