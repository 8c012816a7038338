// Package bus is the in-process publish/subscribe channel between the
// session manager and its UI observers.
package bus

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xevox/wearlink/internal/classify"
	"github.com/xevox/wearlink/internal/telemetry"
)

// EventType names the session lifecycle events observers can react to.
type EventType string

const (
	ScanStarted             EventType = "scanStarted"
	ScanStopped             EventType = "scanStopped"
	ScanError               EventType = "scanError"
	DeviceFound             EventType = "deviceFound"
	ConnectionStatusChanged EventType = "connectionStatusChanged"
	HealthDataReceived      EventType = "healthDataReceived"
	HealthDataError         EventType = "healthDataError"
	BluetoothError          EventType = "bluetoothError"
)

// Event is one session notification. Which payload fields are set depends
// on Type. ConnectionStatusChanged deliberately carries no initiator: an
// explicit disconnect and a transport-initiated one look the same to
// observers, an ambiguity the shipped product has as well.
type Event struct {
	Type      EventType
	Device    *classify.ClassifiedDevice
	Sample    *telemetry.Sample
	Connected bool
	Timeout   time.Duration
	Err       error
}

// Handler receives published events. Handlers run synchronously on the
// publisher's goroutine, in subscription order.
type Handler func(Event)

type subscriber struct {
	id      uint64
	handler Handler
}

// Bus delivers events to subscribers in subscription order and isolates a
// panicking handler from the rest. There is no replay: a subscriber added
// after an event fired never receives it.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscriber
	nextID uint64
	logger *logrus.Logger
}

// New creates an event bus.
func New(logger *logrus.Logger) *Bus {
	if logger == nil {
		logger = logrus.New()
	}
	return &Bus{logger: logger}
}

// Subscription identifies one subscriber for later removal.
type Subscription struct {
	id  uint64
	bus *Bus
}

// Unsubscribe removes the handler. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.bus == nil {
		return
	}
	s.bus.remove(s.id)
	s.bus = nil
}

// Subscribe registers a handler and returns its subscription token.
func (b *Bus) Subscribe(h Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.subs = append(b.subs, subscriber{id: b.nextID, handler: h})
	return &Subscription{id: b.nextID, bus: b}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subs {
		if sub.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers the event to every current subscriber. A handler panic
// is logged and does not prevent delivery to the remaining handlers.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	subs := make([]subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, sub := range subs {
		b.dispatch(sub, ev)
	}
}

func (b *Bus) dispatch(sub subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithFields(logrus.Fields{
				"event":      ev.Type,
				"subscriber": sub.id,
				"panic":      r,
			}).Error("Event handler panicked")
		}
	}()
	sub.handler(ev)
}

// SubscriberCount reports the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
