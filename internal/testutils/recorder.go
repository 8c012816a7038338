package testutils

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xevox/wearlink/internal/bus"
)

// EventRecorder captures bus events for assertions. Subscribe it before
// triggering the behavior under test; the bus has no replay.
type EventRecorder struct {
	mu     sync.Mutex
	events []bus.Event
	sub    *bus.Subscription
	wake   chan struct{}
}

// NewEventRecorder subscribes a recorder to b.
func NewEventRecorder(b *bus.Bus) *EventRecorder {
	r := &EventRecorder{wake: make(chan struct{}, 1)}
	r.sub = b.Subscribe(r.record)
	return r
}

func (r *EventRecorder) record(ev bus.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Unsubscribe detaches the recorder from the bus.
func (r *EventRecorder) Unsubscribe() {
	r.sub.Unsubscribe()
}

// Events returns a snapshot of everything recorded so far, in order.
func (r *EventRecorder) Events() []bus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bus.Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns recorded events of one type, in order.
func (r *EventRecorder) OfType(t bus.EventType) []bus.Event {
	var out []bus.Event
	for _, ev := range r.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// Count returns the number of recorded events of one type.
func (r *EventRecorder) Count(t bus.EventType) int {
	return len(r.OfType(t))
}

// WaitFor blocks until at least n events of type t were recorded, or the
// timeout elapses.
func (r *EventRecorder) WaitFor(t bus.EventType, n int, timeout time.Duration) ([]bus.Event, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for {
		if evs := r.OfType(t); len(evs) >= n {
			return evs, nil
		}
		select {
		case <-ctx.Done():
			return r.OfType(t), fmt.Errorf("timed out waiting for %d %q events (got %d)", n, t, r.Count(t))
		case <-r.wake:
		}
	}
}
