// Package bus provides an in-process event bus for local mode and tests,
// mirroring the redis pub/sub bus used in serve mode.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/zulelabs/marketd/internal/domain"
)

// Channel names, matching the redis bus so subscribers work against either.
const (
	ChannelListings = "marketd:listings"
	ChannelSales    = "marketd:sales"
)

type subscriber struct {
	channel string
	ch      chan []byte
}

// Memory fans events out to in-process subscribers. Slow subscribers drop
// messages rather than block publishers, matching pub/sub semantics.
type Memory struct {
	mu   sync.Mutex
	subs map[int]subscriber
	next int
}

// NewMemory creates an empty bus.
func NewMemory() *Memory {
	return &Memory{subs: make(map[int]subscriber)}
}

// channelFor routes an event type to its channel.
func channelFor(t domain.EventType) string {
	if t == domain.EventListingSold {
		return ChannelSales
	}
	return ChannelListings
}

// Publish marshals e as JSON and delivers it to every subscriber of its
// channel.
func (b *Memory) Publish(_ context.Context, e domain.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("bus: encode event %s: %w", e.ID, err)
	}
	channel := channelFor(e.Type)

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		if sub.channel != channel {
			continue
		}
		select {
		case sub.ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel of event payloads for the named channel,
// closed when ctx ends.
func (b *Memory) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 128)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = subscriber{channel: channel, ch: ch}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}

var _ domain.EventBus = (*Memory)(nil)
