package memory

import (
	"context"
	"sync"

	"time"

	"github.com/zulelabs/marketd/internal/domain"
)

// EventJournal is an append-only in-memory event record.
type EventJournal struct {
	mu     sync.Mutex
	events []domain.Event
}

// NewEventJournal creates an empty journal.
func NewEventJournal() *EventJournal {
	return &EventJournal{}
}

func (j *EventJournal) Append(_ context.Context, e domain.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, e)
	return nil
}

func (j *EventJournal) ListSince(_ context.Context, since time.Time, opts domain.ListOpts) ([]domain.Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var out []domain.Event
	for _, e := range j.events {
		if !e.At.Before(since) {
			out = append(out, e)
		}
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

// Events returns a snapshot of everything appended so far.
func (j *EventJournal) Events() []domain.Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]domain.Event, len(j.events))
	copy(out, j.events)
	return out
}

var _ domain.EventJournal = (*EventJournal)(nil)
