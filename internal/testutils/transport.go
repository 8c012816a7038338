// Package testutils provides fake session collaborators for tests: a
// scriptable transport, links with controllable failure modes, and an
// event recorder for bus assertions.
package testutils

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xevox/wearlink/internal/device"
)

// FakeAdvertisement implements device.Advertisement from plain fields.
type FakeAdvertisement struct {
	AdvID          string
	AdvName        string
	AdvAddr        string
	AdvRSSI        int
	AdvConnectable bool
}

// NewAdvertisement builds a connectable advertisement with address equal
// to id and a plausible signal strength.
func NewAdvertisement(id, name string) *FakeAdvertisement {
	return &FakeAdvertisement{
		AdvID:          id,
		AdvName:        name,
		AdvAddr:        id,
		AdvRSSI:        -55,
		AdvConnectable: true,
	}
}

// WithAddr overrides the hardware address.
func (a *FakeAdvertisement) WithAddr(addr string) *FakeAdvertisement {
	a.AdvAddr = addr
	return a
}

// WithRSSI overrides the signal strength.
func (a *FakeAdvertisement) WithRSSI(rssi int) *FakeAdvertisement {
	a.AdvRSSI = rssi
	return a
}

func (a *FakeAdvertisement) ID() string        { return a.AdvID }
func (a *FakeAdvertisement) LocalName() string { return a.AdvName }
func (a *FakeAdvertisement) Addr() string      { return a.AdvAddr }
func (a *FakeAdvertisement) RSSI() int         { return a.AdvRSSI }
func (a *FakeAdvertisement) Connectable() bool { return a.AdvConnectable }

// FakeTransport is a scriptable device.Transport. Scan delivers the
// configured advertisements once, then blocks until the context ends,
// mimicking a platform scan that keeps running until stopped.
type FakeTransport struct {
	mu sync.Mutex

	State          device.AdapterState
	Advertisements []device.Advertisement
	// Repeat redelivers the advertisement list this many extra times, for
	// duplicate-suppression tests.
	Repeat  int
	ScanErr error

	// ConnectErr fails Connect outright. Links maps peripheral id to the
	// link Connect hands out; ids not present get a fresh default link.
	ConnectErr error
	Links      map[string]*FakeLink

	// ConnectHold, when set, keeps Connect in flight until the channel is
	// closed or the context ends. For in-flight-connect tests.
	ConnectHold chan struct{}

	connectCalls []string
}

// NewTransport creates a powered-on fake transport.
func NewTransport(advs ...device.Advertisement) *FakeTransport {
	return &FakeTransport{
		State:          device.AdapterPoweredOn,
		Advertisements: advs,
		Links:          make(map[string]*FakeLink),
	}
}

func (t *FakeTransport) AdapterState() device.AdapterState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.State
}

func (t *FakeTransport) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	t.mu.Lock()
	advs := t.Advertisements
	repeat := t.Repeat
	scanErr := t.ScanErr
	t.mu.Unlock()

	if scanErr != nil {
		return scanErr
	}

	for i := 0; i <= repeat; i++ {
		for _, adv := range advs {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			handler(adv)
		}
	}

	<-ctx.Done()
	return ctx.Err()
}

func (t *FakeTransport) Connect(ctx context.Context, id string, opts *device.ConnectOptions) (device.Link, error) {
	t.mu.Lock()
	t.connectCalls = append(t.connectCalls, id)
	hold := t.ConnectHold
	connectErr := t.ConnectErr
	t.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if connectErr != nil {
		return nil, connectErr
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if link, ok := t.Links[id]; ok {
		return link, nil
	}
	link := NewLink()
	t.Links[id] = link
	return link, nil
}

// ConnectCalls returns the peripheral ids Connect was invoked with.
func (t *FakeTransport) ConnectCalls() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.connectCalls))
	copy(out, t.connectCalls)
	return out
}

// FakeLink is a controllable device.Link. The zero value behaves like a
// tracker with no readable metrics: discovery succeeds with one service,
// ReadMetrics reports ErrUnsupported.
type FakeLink struct {
	mu sync.Mutex

	ServiceUUIDs []string
	DiscoverErr  error

	Metrics map[string]float64
	ReadErr error

	disconnected chan struct{}
	closeOnce    sync.Once

	discoverCalls int
	readCalls     int
}

// NewLink creates a link whose metrics must be synthesized.
func NewLink() *FakeLink {
	return &FakeLink{
		ServiceUUIDs: []string{"180a"},
		ReadErr:      fmt.Errorf("no readable metric characteristics: %w", device.ErrUnsupported),
		disconnected: make(chan struct{}),
	}
}

// NewLinkWithMetrics creates a link that serves real metric reads.
func NewLinkWithMetrics(metrics map[string]float64) *FakeLink {
	l := NewLink()
	l.Metrics = metrics
	l.ReadErr = nil
	return l
}

func (l *FakeLink) DiscoverServices(ctx context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.discoverCalls++
	if l.DiscoverErr != nil {
		return nil, l.DiscoverErr
	}
	return l.ServiceUUIDs, nil
}

func (l *FakeLink) ReadMetrics(ctx context.Context) (map[string]float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.readCalls++
	if l.ReadErr != nil {
		return nil, l.ReadErr
	}
	out := make(map[string]float64, len(l.Metrics))
	for k, v := range l.Metrics {
		out[k] = v
	}
	return out, nil
}

func (l *FakeLink) Disconnect() error {
	l.closeOnce.Do(func() { close(l.disconnected) })
	return nil
}

func (l *FakeLink) Disconnected() <-chan struct{} {
	return l.disconnected
}

// DropConnection simulates a transport-initiated disconnect (peripheral
// out of range or powered off).
func (l *FakeLink) DropConnection() {
	l.closeOnce.Do(func() { close(l.disconnected) })
}

// ReadCalls reports how many times ReadMetrics ran.
func (l *FakeLink) ReadCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readCalls
}

// WaitTimeout is the default bound for asynchronous test assertions.
const WaitTimeout = 2 * time.Second
