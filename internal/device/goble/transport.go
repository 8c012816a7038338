package goble

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
	"github.com/sirupsen/logrus"

	"github.com/xevox/wearlink/internal/device"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
var DeviceFactory = func() (ble.Device, error) {
	return darwin.NewDevice()
}

// BLETransport implements device.Transport on top of go-ble/ble.
type BLETransport struct {
	logger *logrus.Logger
}

// NewTransport creates a device.Transport backed by the platform BLE stack.
func NewTransport(logger *logrus.Logger) *BLETransport {
	if logger == nil {
		logger = logrus.New()
	}
	return &BLETransport{logger: logger}
}

// AdapterState probes the platform adapter by attempting to acquire it.
// go-ble exposes the adapter state only through initialization errors, so
// the probe maps those onto the state enum.
func (t *BLETransport) AdapterState() device.AdapterState {
	dev, err := DeviceFactory()
	if err != nil {
		msg := strings.ToLower(err.Error())
		switch {
		case strings.Contains(msg, "have=4"), strings.Contains(msg, "turned off"):
			return device.AdapterPoweredOff
		case strings.Contains(msg, "have=3"), strings.Contains(msg, "unauthorized"):
			return device.AdapterUnauthorized
		case strings.Contains(msg, "unsupported"):
			return device.AdapterUnsupported
		default:
			return device.AdapterUnknown
		}
	}
	ble.SetDefaultDevice(dev)
	return device.AdapterPoweredOn
}

// Scan wraps the raw ble.Device.Scan, converting ble.Advertisement to
// device.Advertisement and normalizing platform errors.
func (t *BLETransport) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	dev, err := DeviceFactory()
	if err != nil {
		return device.NormalizeError(err)
	}
	ble.SetDefaultDevice(dev)

	bleHandler := func(adv ble.Advertisement) {
		handler(newAdvertisement(adv))
	}
	if err := dev.Scan(ctx, allowDup, bleHandler); err != nil {
		return device.NormalizeError(err)
	}
	return nil
}

// Connect dials the peripheral and returns a link. Service discovery is the
// caller's responsibility (Link.DiscoverServices).
func (t *BLETransport) Connect(ctx context.Context, id string, opts *device.ConnectOptions) (device.Link, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("peripheral id is empty")
	}
	if opts == nil {
		opts = &device.ConnectOptions{ConnectTimeout: device.DefaultConnectTimeout}
	}

	dev, err := DeviceFactory()
	if err != nil {
		return nil, device.NormalizeError(err)
	}
	ble.SetDefaultDevice(dev)

	timeout := opts.ConnectTimeout
	if timeout == 0 {
		timeout = device.DefaultConnectTimeout
	}
	connCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	t.logger.WithFields(logrus.Fields{
		"id":      id,
		"timeout": timeout,
	}).Info("Dialing BLE peripheral...")

	client, err := ble.Dial(connCtx, ble.NewAddr(id))
	if err != nil {
		if connCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: connect to %q: %v", device.ErrTimeout, id, err)
		}
		return nil, fmt.Errorf("connect to %q: %w", id, device.NormalizeError(err))
	}

	return newLink(client, t.logger), nil
}
