package session

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xevox/wearlink/internal/bus"
	"github.com/xevox/wearlink/internal/classify"
	"github.com/xevox/wearlink/internal/device"
	"github.com/xevox/wearlink/internal/scan"
)

// Manager is the explicit owned object holding the whole device session
// machinery: transport handle, scan controller, connection controller,
// sampler, and the event bus UI observers subscribe to. It is constructed
// once at app start and passed by reference; there is no package-global
// instance.
type Manager struct {
	transport device.Transport
	events    *bus.Bus
	scanner   *scan.Controller
	conn      *ConnectionController
	sampler   *Sampler
	registrar Registrar
	logger    *logrus.Logger

	scanTimeout time.Duration
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	ScanTimeout    time.Duration
	ConnectTimeout time.Duration
	SampleInterval time.Duration

	// Rand overrides the sampler's randomness source, for tests.
	Rand *rand.Rand
}

// Backend is the full backend surface the manager consumes.
type Backend interface {
	Uploader
	Registrar
}

// NewManager wires the session components together. A nil backend is
// allowed: samples are broadcast on the bus without being uploaded and no
// device registration happens.
func NewManager(transport device.Transport, backend Backend, opts ManagerOptions, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}

	events := bus.New(logger)

	m := &Manager{
		transport: transport,
		events:    events,
		scanner:   scan.NewController(transport, events, logger),
		conn:      NewConnectionController(transport, events, opts.ConnectTimeout, logger),
		sampler:   NewSampler(backend, events, opts.SampleInterval, opts.Rand, logger),
		registrar: backend,
		logger:    logger,

		scanTimeout: opts.ScanTimeout,
	}

	m.conn.SetLifecycleHooks(m.handleConnected, m.handleDisconnected)
	return m
}

// Events returns the session event bus.
func (m *Manager) Events() *bus.Bus {
	return m.events
}

// Scan starts a discovery session bounded by timeout. A zero timeout uses
// the configured default.
func (m *Manager) Scan(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = m.scanTimeout
	}
	return m.scanner.Start(timeout)
}

// StopScan ends the current discovery session, if any.
func (m *Manager) StopScan() {
	m.scanner.Stop()
}

// IsScanning reports whether discovery is running.
func (m *Manager) IsScanning() bool {
	return m.scanner.IsScanning()
}

// Discovered lists the supported devices found in the current or most
// recent scan session, in discovery order.
func (m *Manager) Discovered() []*classify.ClassifiedDevice {
	return m.scanner.Discovered()
}

// Connect pairs with a previously discovered device by peripheral id or
// address. Connecting to an id the classifier never produced is rejected,
// a second guard behind the UI's own filtering.
func (m *Manager) Connect(ctx context.Context, deviceID string) (*ConnectedSession, error) {
	dev := m.scanner.Lookup(deviceID)
	if dev == nil {
		return nil, fmt.Errorf("connect %q: %w", deviceID, device.ErrUnsupportedDevice)
	}
	return m.conn.Connect(ctx, dev)
}

// Disconnect releases the current session, if any.
func (m *Manager) Disconnect() error {
	return m.conn.Disconnect()
}

// Current returns the active session, or nil.
func (m *Manager) Current() *ConnectedSession {
	return m.conn.Current()
}

// Close tears the manager down: scan stopped, session released.
func (m *Manager) Close() error {
	m.scanner.Stop()
	return m.conn.Disconnect()
}

// handleConnected starts sampling and registers the device with the
// backend. Registration failure is logged and non-fatal: the session stays
// up and telemetry still flows.
func (m *Manager) handleConnected(sess *ConnectedSession) {
	m.sampler.Start(sess)

	if m.registrar == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := m.registrar.RegisterDevice(ctx, sess.Device); err != nil {
			m.logger.WithFields(logrus.Fields{
				"device": sess.Device.Name,
				"error":  err,
			}).Warn("Backend device registration failed")
		}
	}()
}

// handleDisconnected stops sampling before the disconnect event goes out,
// then tells the backend. Both are best-effort.
func (m *Manager) handleDisconnected(sess *ConnectedSession) {
	m.sampler.Stop()

	if m.registrar == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := m.registrar.UnregisterDevice(ctx); err != nil {
			m.logger.WithFields(logrus.Fields{
				"device": sess.Device.Name,
				"error":  err,
			}).Debug("Backend device unregistration failed")
		}
	}()
}
