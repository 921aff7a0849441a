package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/zulelabs/marketd/internal/domain"
)

// Channels carrying marketplace events. Listings and sales are separated so
// indexers can subscribe to only the traffic they care about.
const (
	ChannelListings = "marketd:listings"
	ChannelSales    = "marketd:sales"
)

// EventBus implements domain.EventBus on Redis Pub/Sub. Delivery is
// best-effort live fan-out; the postgres event journal is the durable record.
type EventBus struct {
	rdb *redis.Client
}

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client) *EventBus {
	return &EventBus{rdb: c.Underlying()}
}

// ChannelFor routes an event type to its pub/sub channel.
func ChannelFor(t domain.EventType) string {
	if t == domain.EventListingSold {
		return ChannelSales
	}
	return ChannelListings
}

// Publish marshals e as JSON and publishes it on its channel.
func (b *EventBus) Publish(ctx context.Context, e domain.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("redis: encode event %s: %w", e.ID, err)
	}
	if err := b.rdb.Publish(ctx, ChannelFor(e.Type), payload).Err(); err != nil {
		return fmt.Errorf("redis: publish event %s: %w", e.ID, err)
	}
	return nil
}

// Subscribe returns a channel of raw event payloads for the given pub/sub
// channel (glob patterns allowed). The subscription closes with the context.
func (b *EventBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var pubsub *redis.PubSub
	if strings.ContainsAny(channel, "*?[") {
		pubsub = b.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = b.rdb.Subscribe(ctx, channel)
	}

	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

var _ domain.EventBus = (*EventBus)(nil)
