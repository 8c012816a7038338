package session

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xevox/wearlink/internal/bus"
	"github.com/xevox/wearlink/internal/telemetry"
)

// DefaultSampleInterval is the sampling tick period when no override is
// configured.
const DefaultSampleInterval = 30 * time.Second

// Sampler runs the fixed-interval telemetry loop of a connected session.
// Each tick reads real metrics from the link when the transport exposes a
// decode path, otherwise synthesizes a bounded sample, then forwards the
// result to the backend. Upload failures are logged and broadcast as
// healthDataError; they never stop the loop.
type Sampler struct {
	uploader Uploader
	events   *bus.Bus
	logger   *logrus.Logger
	interval time.Duration
	rng      *rand.Rand

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewSampler creates a sampler. A zero interval uses
// DefaultSampleInterval; a nil rng seeds one from the clock.
func NewSampler(uploader Uploader, events *bus.Bus, interval time.Duration, rng *rand.Rand, logger *logrus.Logger) *Sampler {
	if logger == nil {
		logger = logrus.New()
	}
	if interval == 0 {
		interval = DefaultSampleInterval
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Sampler{
		uploader: uploader,
		events:   events,
		logger:   logger,
		interval: interval,
		rng:      rng,
	}
}

// Start begins the sampling loop for sess. A loop already running is
// stopped first; timers never leak across reconnects.
func (s *Sampler) Start(sess *ConnectedSession) {
	s.Stop()

	s.mu.Lock()
	stop := make(chan struct{})
	done := make(chan struct{})
	s.stop = stop
	s.done = done
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"device":   sess.Device.Name,
		"interval": s.interval,
	}).Info("Telemetry sampling started")

	go s.loop(sess, stop, done)
}

// Stop cancels the sampling loop and waits for the in-flight tick, if any,
// to finish. Safe to call when not running.
func (s *Sampler) Stop() {
	s.mu.Lock()
	stop := s.stop
	done := s.done
	s.stop = nil
	s.done = nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
	s.logger.Debug("Telemetry sampling stopped")
}

func (s *Sampler) loop(sess *ConnectedSession, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.tick(sess, stop)
		}
	}
}

// tick produces and forwards one sample. Exactly one of healthDataReceived
// or healthDataError is published per tick.
func (s *Sampler) tick(sess *ConnectedSession, stop <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	sample := s.sample(ctx, sess)

	// No backend configured: broadcast only.
	if s.uploader == nil {
		s.events.Publish(bus.Event{Type: bus.HealthDataReceived, Device: sess.Device, Sample: sample})
		return
	}

	if err := s.uploader.UploadTelemetry(ctx, sample); err != nil {
		s.logger.WithFields(logrus.Fields{
			"device": sess.Device.Name,
			"error":  err,
		}).Warn("Telemetry upload failed")
		s.events.Publish(bus.Event{Type: bus.HealthDataError, Device: sess.Device, Err: err})
		return
	}

	s.events.Publish(bus.Event{Type: bus.HealthDataReceived, Device: sess.Device, Sample: sample})
}

// sample reads real metrics when the link has a decode path for this
// device class, otherwise synthesizes. The SourceIsDevice flag keeps the
// two paths distinguishable downstream.
func (s *Sampler) sample(ctx context.Context, sess *ConnectedSession) *telemetry.Sample {
	sample := &telemetry.Sample{
		Timestamp:  time.Now(),
		DeviceID:   sess.Device.Address,
		DeviceType: sess.Device.DeviceType,
	}

	metrics, err := sess.link.ReadMetrics(ctx)
	if err == nil && len(metrics) > 0 {
		sample.Metrics = metrics
		sample.SourceIsDevice = true
		return sample
	}
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"device": sess.Device.Name,
			"error":  err,
		}).Debug("No real metrics available, synthesizing")
	}

	sample.Metrics = telemetry.Synthesize(sess.Device.DeviceType, s.rng)
	sample.SourceIsDevice = false
	return sample
}
