package device

import (
	"context"
	"time"
)

// AdapterState describes the platform Bluetooth adapter availability.
type AdapterState int

const (
	AdapterUnknown AdapterState = iota
	AdapterPoweredOn
	AdapterPoweredOff
	AdapterUnauthorized
	AdapterUnsupported
)

func (s AdapterState) String() string {
	switch s {
	case AdapterPoweredOn:
		return "powered_on"
	case AdapterPoweredOff:
		return "powered_off"
	case AdapterUnauthorized:
		return "unauthorized"
	case AdapterUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Advertisement is a single discovery callback payload from the platform
// scan API. A peripheral that advertises repeatedly produces a fresh
// Advertisement each time; earlier ones are superseded, never mutated.
type Advertisement interface {
	// ID is the platform-assigned peripheral identifier, stable for the
	// lifetime of the OS session.
	ID() string
	LocalName() string
	// Addr is the hardware address where the platform exposes one,
	// otherwise it mirrors ID.
	Addr() string
	RSSI() int
	Connectable() bool
}

// Transport is the minimal platform BLE surface the session manager
// consumes. Implementations wrap a real stack (see the goble subpackage)
// or a fake one for tests.
type Transport interface {
	AdapterState() AdapterState

	// Scan delivers advertisements to handler until ctx is cancelled or the
	// platform reports a scan failure. allowDup controls whether repeated
	// advertisements from the same peripheral are redelivered.
	Scan(ctx context.Context, allowDup bool, handler func(Advertisement)) error

	// Connect establishes a link to the peripheral with the given id.
	// The returned Link has not had service discovery performed yet.
	Connect(ctx context.Context, id string, opts *ConnectOptions) (Link, error)
}

// Link is a live connection to one peripheral. It is exclusively owned by
// the connection controller once established.
type Link interface {
	// DiscoverServices queries the peripheral's GATT services. A link that
	// connects but cannot be queried for services is treated as a
	// connection failure by the controller, not a degraded success.
	DiscoverServices(ctx context.Context) ([]string, error)

	// ReadMetrics reads real health metrics from the peripheral. It returns
	// ErrUnsupported when the transport exposes no decode path for this
	// device class; the sampler then falls back to synthetic values.
	ReadMetrics(ctx context.Context) (map[string]float64, error)

	Disconnect() error

	// Disconnected is closed when the transport itself reports the link
	// gone (peripheral out of range, powered off).
	Disconnected() <-chan struct{}
}

// ConnectOptions configures link establishment.
type ConnectOptions struct {
	ConnectTimeout time.Duration
}

// DefaultConnectTimeout bounds a connect attempt when the caller does not
// override it.
const DefaultConnectTimeout = 30 * time.Second
