// Package scan owns time-boxed BLE discovery: it runs the platform scan,
// classifies advertisements, de-duplicates peripherals, and publishes
// discovery events on the session bus.
//
// Adapter problems caught before the scan starts (Bluetooth off, missing
// permission) are published as bluetoothError, not scanError: no scan
// session exists yet, so there is no session for a scanError to terminate.
// scanError is reserved for a platform failure of a running scan.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/xevox/wearlink/internal/bus"
	"github.com/xevox/wearlink/internal/classify"
	"github.com/xevox/wearlink/internal/device"
)

// DefaultScanTimeout bounds a scan when the caller passes no duration.
const DefaultScanTimeout = 10 * time.Second

// Controller drives discovery. States are Idle and Scanning; Start while
// Scanning stops the running scan first, so two scans never overlap.
type Controller struct {
	transport device.Transport
	events    *bus.Bus
	logger    *logrus.Logger

	mu       sync.Mutex
	scanning bool
	cancel   context.CancelFunc
	done     chan struct{}

	// seen de-dups by peripheral id and hardware address so a device fires
	// deviceFound at most once per scan session even when the platform
	// redelivers advertisements.
	seen  *hashmap.Map[string, struct{}]
	found []*classify.ClassifiedDevice
}

// NewController creates a scan controller publishing on events.
func NewController(transport device.Transport, events *bus.Bus, logger *logrus.Logger) *Controller {
	if logger == nil {
		logger = logrus.New()
	}
	return &Controller{
		transport: transport,
		events:    events,
		logger:    logger,
	}
}

// Start begins a scan bounded by timeout and returns once scanning is
// under way. Discovery results arrive as deviceFound events; the scan ends
// with exactly one of scanStopped or scanError. An unusable adapter fails
// Start itself, with a bluetoothError event and no scan session. A zero
// timeout uses DefaultScanTimeout.
func (c *Controller) Start(timeout time.Duration) error {
	// No overlapping scans: stop the previous one first.
	c.Stop()

	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}

	if state := c.transport.AdapterState(); state != device.AdapterPoweredOn {
		err := adapterError(state)
		c.events.Publish(bus.Event{Type: bus.BluetoothError, Err: err})
		return err
	}

	c.mu.Lock()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	done := make(chan struct{})
	c.scanning = true
	c.cancel = cancel
	c.done = done
	c.seen = hashmap.New[string, struct{}]()
	c.found = nil
	c.mu.Unlock()

	c.logger.WithField("timeout", timeout).Info("Starting device scan")
	c.events.Publish(bus.Event{Type: bus.ScanStarted, Timeout: timeout})

	go c.run(ctx, cancel, done)
	return nil
}

func (c *Controller) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}) {
	defer close(done)
	defer cancel()

	err := c.transport.Scan(ctx, false, c.handleAdvertisement)

	c.mu.Lock()
	c.scanning = false
	count := len(c.found)
	c.mu.Unlock()

	// Timeout and manual stop are the expected terminal states, not errors.
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		c.logger.WithField("error", err).Error("Scan failed")
		c.events.Publish(bus.Event{Type: bus.ScanError, Err: err})
		return
	}

	c.logger.WithField("device_count", count).Info("Scan completed")
	c.events.Publish(bus.Event{Type: bus.ScanStopped})
}

// handleAdvertisement classifies one advertisement and emits deviceFound
// for peripherals not seen before in this session. Unnamed or unmatched
// peripherals are dropped silently.
func (c *Controller) handleAdvertisement(adv device.Advertisement) {
	classified := classify.Classify(adv)
	if classified == nil {
		return
	}

	if _, loaded := c.seen.GetOrInsert(classified.ID, struct{}{}); loaded {
		return
	}
	if classified.Address != classified.ID {
		if _, loaded := c.seen.GetOrInsert(classified.Address, struct{}{}); loaded {
			return
		}
	}

	c.mu.Lock()
	c.found = append(c.found, classified)
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"device":       classified.Name,
		"address":      classified.Address,
		"type":         classified.DeviceType,
		"manufacturer": classified.Manufacturer,
		"rssi":         classified.SignalStrength,
	}).Info("Discovered supported device")

	c.events.Publish(bus.Event{Type: bus.DeviceFound, Device: classified})
}

// Stop ends the running scan, if any, and waits for it to wind down. The
// terminating event is still published exactly once by the scan goroutine.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.cancel = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		<-done
	}
}

// IsScanning reports whether a scan session is active.
func (c *Controller) IsScanning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scanning
}

// Discovered returns the devices found so far in the current or most
// recent scan session, in discovery order.
func (c *Controller) Discovered() []*classify.ClassifiedDevice {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*classify.ClassifiedDevice, len(c.found))
	copy(out, c.found)
	return out
}

// Lookup finds a discovered device by peripheral id or address.
func (c *Controller) Lookup(id string) *classify.ClassifiedDevice {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range c.found {
		if d.ID == id || d.Address == id {
			return d
		}
	}
	return nil
}

func adapterError(state device.AdapterState) error {
	switch state {
	case device.AdapterUnauthorized:
		return fmt.Errorf("%w: grant Bluetooth permission in system settings", device.ErrPermissionDenied)
	default:
		return fmt.Errorf("%w: adapter state %s", device.ErrAdapterUnavailable, state)
	}
}
