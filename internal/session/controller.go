package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/xevox/wearlink/internal/bus"
	"github.com/xevox/wearlink/internal/classify"
	"github.com/xevox/wearlink/internal/device"
)

// connState is the connection controller's lifecycle position.
type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
)

// ConnectionController establishes and releases the single live transport
// link. All state mutation happens inside its own operations; there is no
// external writer.
type ConnectionController struct {
	transport device.Transport
	events    *bus.Bus
	logger    *logrus.Logger

	connectTimeout time.Duration

	// onConnected/onDisconnected are lifecycle hooks the manager uses to
	// start and stop the sampler. onDisconnected runs before the
	// connectionStatusChanged(false) event is published, so no sampler
	// events trail the disconnect notification.
	onConnected    func(*ConnectedSession)
	onDisconnected func(*ConnectedSession)

	mu      sync.Mutex
	state   connState
	session *ConnectedSession
}

// NewConnectionController creates a connection controller publishing on
// events. A zero connectTimeout uses device.DefaultConnectTimeout.
func NewConnectionController(transport device.Transport, events *bus.Bus, connectTimeout time.Duration, logger *logrus.Logger) *ConnectionController {
	if logger == nil {
		logger = logrus.New()
	}
	if connectTimeout == 0 {
		connectTimeout = device.DefaultConnectTimeout
	}
	return &ConnectionController{
		transport:      transport,
		events:         events,
		logger:         logger,
		connectTimeout: connectTimeout,
	}
}

// SetLifecycleHooks installs the connected/disconnected callbacks. Must be
// called before the first Connect.
func (c *ConnectionController) SetLifecycleHooks(onConnected, onDisconnected func(*ConnectedSession)) {
	c.onConnected = onConnected
	c.onDisconnected = onDisconnected
}

// Connect establishes a session with the given classified device. Any
// existing session is released first, sequentially, so there is never more
// than one live link. The returned session is Connected only after service
// discovery succeeded; a link that cannot be queried for services is a
// connection failure, not a degraded success.
//
// An in-flight connect cannot be cancelled by a second call: concurrent
// attempts fail with ErrConnecting and the caller retries after the first
// attempt settles.
func (c *ConnectionController) Connect(ctx context.Context, dev *classify.ClassifiedDevice) (*ConnectedSession, error) {
	if dev == nil || !dev.Supported {
		return nil, fmt.Errorf("connect: %w", device.ErrUnsupportedDevice)
	}

	// Claim the connecting state and take ownership of any old session in
	// one critical section, so two concurrent Connect calls can never both
	// pass the guard and dial.
	c.mu.Lock()
	if c.state == stateConnecting {
		c.mu.Unlock()
		return nil, fmt.Errorf("connect: %w", device.ErrConnecting)
	}
	old := c.session
	c.session = nil
	c.state = stateConnecting
	c.mu.Unlock()

	// One link at a time: release the old session before dialing. This also
	// publishes connectionStatusChanged(false) for the old device before
	// the new device's (true) event.
	if old != nil {
		if err := c.teardown(old); err != nil {
			c.logger.WithField("error", err).Warn("Releasing previous session reported an error")
		}
	}

	c.logger.WithFields(logrus.Fields{
		"device": dev.Name,
		"id":     dev.ID,
		"type":   dev.DeviceType,
	}).Info("Connecting to device")

	link, err := c.transport.Connect(ctx, dev.ID, &device.ConnectOptions{ConnectTimeout: c.connectTimeout})
	if err != nil {
		c.setDisconnected()
		return nil, fmt.Errorf("connect %q: %w", dev.Name, err)
	}

	services, err := link.DiscoverServices(ctx)
	if err != nil {
		if dErr := link.Disconnect(); dErr != nil {
			c.logger.WithField("error", dErr).Debug("Link teardown after failed discovery")
		}
		c.setDisconnected()
		return nil, fmt.Errorf("connect %q: service discovery: %w", dev.Name, err)
	}

	sess := &ConnectedSession{
		ID:          uuid.NewString(),
		Device:      dev,
		ConnectedAt: time.Now(),
		link:        link,
	}

	c.mu.Lock()
	c.state = stateConnected
	c.session = sess
	c.mu.Unlock()

	// Watch for transport-initiated disconnects (out of range, powered
	// off). They tear the session down exactly like an explicit call.
	go c.monitor(sess)

	c.logger.WithFields(logrus.Fields{
		"device":   dev.Name,
		"session":  sess.ID,
		"services": len(services),
	}).Info("Device connected")

	if c.onConnected != nil {
		c.onConnected(sess)
	}
	c.events.Publish(bus.Event{Type: bus.ConnectionStatusChanged, Connected: true, Device: dev})

	return sess, nil
}

// Disconnect releases the current session. Calling it with no session is a
// no-op. Exactly one connectionStatusChanged(false) event is published per
// released session, whether the release was explicit or transport-driven.
func (c *ConnectionController) Disconnect() error {
	c.mu.Lock()
	sess := c.session
	if sess == nil {
		c.mu.Unlock()
		c.logger.Debug("Disconnect called but no session is active")
		return nil
	}
	c.session = nil
	c.state = stateDisconnected
	c.mu.Unlock()

	return c.teardown(sess)
}

// monitor waits for the platform's disconnect notification and runs the
// same teardown path as an explicit Disconnect. Whoever clears c.session
// first owns the teardown; the other path becomes a no-op.
func (c *ConnectionController) monitor(sess *ConnectedSession) {
	<-sess.link.Disconnected()

	c.mu.Lock()
	if c.session != sess {
		c.mu.Unlock()
		return
	}
	c.session = nil
	c.state = stateDisconnected
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"device":  sess.Device.Name,
		"session": sess.ID,
	}).Warn("Transport reported disconnection")

	if err := c.teardown(sess); err != nil {
		c.logger.WithField("error", err).Debug("Teardown after transport disconnect")
	}
}

// teardown stops the sampler, releases the link, and publishes the
// disconnect event, in that order.
func (c *ConnectionController) teardown(sess *ConnectedSession) error {
	if c.onDisconnected != nil {
		c.onDisconnected(sess)
	}

	err := sess.link.Disconnect()

	c.logger.WithFields(logrus.Fields{
		"device":  sess.Device.Name,
		"session": sess.ID,
	}).Info("Device disconnected")

	c.events.Publish(bus.Event{Type: bus.ConnectionStatusChanged, Connected: false, Device: sess.Device})
	return err
}

// Current returns the active session, or nil when disconnected.
func (c *ConnectionController) Current() *ConnectedSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// IsConnected reports whether a session is live.
func (c *ConnectionController) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateConnected
}

func (c *ConnectionController) setDisconnected() {
	c.mu.Lock()
	c.state = stateDisconnected
	c.mu.Unlock()
}
