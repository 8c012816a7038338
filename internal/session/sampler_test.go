package session

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/xevox/wearlink/internal/bus"
	"github.com/xevox/wearlink/internal/classify"
	"github.com/xevox/wearlink/internal/telemetry"
	"github.com/xevox/wearlink/internal/testutils"
)

const testInterval = 20 * time.Millisecond

// SamplerTestSuite exercises the fixed-interval telemetry loop
type SamplerTestSuite struct {
	suite.Suite

	backend  *testutils.FakeBackend
	events   *bus.Bus
	recorder *testutils.EventRecorder
	sampler  *Sampler
}

func (s *SamplerTestSuite) SetupTest() {
	logger := quietLogger()
	s.backend = testutils.NewBackend()
	s.events = bus.New(logger)
	s.recorder = testutils.NewEventRecorder(s.events)
	s.sampler = NewSampler(s.backend, s.events, testInterval, rand.New(rand.NewSource(42)), logger)
}

func (s *SamplerTestSuite) TearDownTest() {
	s.sampler.Stop()
	s.recorder.Unsubscribe()
}

func (s *SamplerTestSuite) session(link *testutils.FakeLink) *ConnectedSession {
	return &ConnectedSession{
		ID:          "sess-1",
		Device:      classifiedDevice("id-1", "ET-475 Health", classify.TypeET475),
		ConnectedAt: time.Now(),
		link:        link,
	}
}

func (s *SamplerTestSuite) TestSynthesizedSamples() {
	// GOAL: Verify a link without readable metrics yields synthesized samples
	// on the sampling interval
	//
	// TEST SCENARIO: Start sampler → samples uploaded and broadcast →
	// SourceIsDevice false → values inside the device family's ranges

	s.sampler.Start(s.session(testutils.NewLink()))

	uploads, err := s.backend.WaitForUploads(2, testutils.WaitTimeout)
	s.Require().NoError(err, "samples MUST flow on the interval")

	sample := uploads[0]
	s.Assert().Equal("id-1", sample.DeviceID)
	s.Assert().Equal(classify.TypeET475, sample.DeviceType)
	s.Assert().False(sample.SourceIsDevice, "sample MUST be marked synthetic")
	s.Assert().False(sample.Timestamp.IsZero())

	s.Require().Contains(sample.Metrics, telemetry.MetricHeartRate)
	hr := sample.Metrics[telemetry.MetricHeartRate]
	s.Assert().GreaterOrEqual(hr, 60.0)
	s.Assert().Less(hr, 90.0)

	evs, err := s.recorder.WaitFor(bus.HealthDataReceived, 2, testutils.WaitTimeout)
	s.Require().NoError(err)
	s.Assert().Same(uploads[0], evs[0].Sample, "broadcast sample MUST be the uploaded one")
	s.Assert().Zero(s.recorder.Count(bus.HealthDataError))
}

func (s *SamplerTestSuite) TestDeviceMetricsPreferred() {
	// GOAL: Verify real device reads win over synthesis
	//
	// TEST SCENARIO: Link serves heart rate and battery → samples carry
	// exactly those metrics → SourceIsDevice true

	link := testutils.NewLinkWithMetrics(map[string]float64{
		telemetry.MetricHeartRate:    72,
		telemetry.MetricBatteryLevel: 88,
	})
	s.sampler.Start(s.session(link))

	uploads, err := s.backend.WaitForUploads(1, testutils.WaitTimeout)
	s.Require().NoError(err)

	sample := uploads[0]
	s.Assert().True(sample.SourceIsDevice, "sample MUST be marked as real")
	s.Assert().Equal(map[string]float64{
		telemetry.MetricHeartRate:    72,
		telemetry.MetricBatteryLevel: 88,
	}, sample.Metrics)
}

func (s *SamplerTestSuite) TestUploadFailureKeepsSampling() {
	// GOAL: Verify upload failures broadcast healthDataError without
	// stopping the loop
	//
	// TEST SCENARIO: Backend rejects every upload → healthDataError per tick
	// → loop keeps ticking → no healthDataReceived

	uploadErr := errors.New("backend unreachable")
	s.backend.UploadErr = uploadErr

	s.sampler.Start(s.session(testutils.NewLink()))

	evs, err := s.recorder.WaitFor(bus.HealthDataError, 3, testutils.WaitTimeout)
	s.Require().NoError(err, "loop MUST keep ticking through failures")
	s.Assert().ErrorIs(evs[0].Err, uploadErr)
	s.Assert().Zero(s.recorder.Count(bus.HealthDataReceived))
}

func (s *SamplerTestSuite) TestOneEventPerTick() {
	// GOAL: Verify each tick produces exactly one sampler event
	//
	// TEST SCENARIO: N uploads observed → received + error event count
	// equals upload count once the loop is stopped

	s.sampler.Start(s.session(testutils.NewLink()))

	_, err := s.backend.WaitForUploads(3, testutils.WaitTimeout)
	s.Require().NoError(err)
	s.sampler.Stop()

	uploads := len(s.backend.Uploads())
	events := s.recorder.Count(bus.HealthDataReceived) + s.recorder.Count(bus.HealthDataError)
	s.Assert().Equal(uploads, events)
}

func (s *SamplerTestSuite) TestStopHaltsLoop() {
	// GOAL: Verify no sampler events fire after Stop returns
	//
	// TEST SCENARIO: Sampling → Stop → wait two intervals → event and upload
	// counts unchanged

	s.sampler.Start(s.session(testutils.NewLink()))

	_, err := s.backend.WaitForUploads(1, testutils.WaitTimeout)
	s.Require().NoError(err)

	s.sampler.Stop()
	uploadsAtStop := len(s.backend.Uploads())
	eventsAtStop := s.recorder.Count(bus.HealthDataReceived)

	time.Sleep(3 * testInterval)

	s.Assert().Equal(uploadsAtStop, len(s.backend.Uploads()))
	s.Assert().Equal(eventsAtStop, s.recorder.Count(bus.HealthDataReceived))

	// Stop again is safe
	s.sampler.Stop()
}

func (s *SamplerTestSuite) TestRestartReplacesLoop() {
	// GOAL: Verify Start for a new session stops the previous loop first
	//
	// TEST SCENARIO: Sampling session A → Start session B → only B's device
	// id appears in subsequent uploads

	s.sampler.Start(s.session(testutils.NewLink()))
	_, err := s.backend.WaitForUploads(1, testutils.WaitTimeout)
	s.Require().NoError(err)

	sessB := &ConnectedSession{
		ID:          "sess-2",
		Device:      classifiedDevice("id-2", "Mi Band 7", classify.TypeMiBand),
		ConnectedAt: time.Now(),
		link:        testutils.NewLink(),
	}
	s.sampler.Start(sessB)
	countAtRestart := len(s.backend.Uploads())

	uploads, err := s.backend.WaitForUploads(countAtRestart+2, testutils.WaitTimeout)
	s.Require().NoError(err)
	for _, sample := range uploads[countAtRestart:] {
		s.Assert().Equal("id-2", sample.DeviceID, "only the new session MUST produce samples")
	}
}

func (s *SamplerTestSuite) TestNoBackendBroadcastOnly() {
	// GOAL: Verify sampling works without a configured backend
	//
	// TEST SCENARIO: Nil uploader → samples broadcast on the bus → no
	// healthDataError

	sampler := NewSampler(nil, s.events, testInterval, rand.New(rand.NewSource(9)), quietLogger())
	sampler.Start(s.session(testutils.NewLink()))
	defer sampler.Stop()

	evs, err := s.recorder.WaitFor(bus.HealthDataReceived, 2, testutils.WaitTimeout)
	s.Require().NoError(err)
	s.Require().NotNil(evs[0].Sample)
	s.Assert().Zero(s.recorder.Count(bus.HealthDataError))
}

func TestSamplerTestSuite(t *testing.T) {
	suite.Run(t, new(SamplerTestSuite))
}
