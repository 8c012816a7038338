package scan_test

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/xevox/wearlink/internal/bus"
	"github.com/xevox/wearlink/internal/device"
	"github.com/xevox/wearlink/internal/scan"
	"github.com/xevox/wearlink/internal/testutils"
)

// ScanControllerTestSuite exercises discovery against a scriptable
// transport
type ScanControllerTestSuite struct {
	suite.Suite

	transport *testutils.FakeTransport
	events    *bus.Bus
	recorder  *testutils.EventRecorder
	ctrl      *scan.Controller
}

func (s *ScanControllerTestSuite) SetupTest() {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	s.transport = testutils.NewTransport()
	s.events = bus.New(logger)
	s.recorder = testutils.NewEventRecorder(s.events)
	s.ctrl = scan.NewController(s.transport, s.events, logger)
}

func (s *ScanControllerTestSuite) TearDownTest() {
	s.ctrl.Stop()
	s.recorder.Unsubscribe()
}

func (s *ScanControllerTestSuite) TestScanLifecycle() {
	// GOAL: Verify a scan session runs start to timeout with the right events
	//
	// TEST SCENARIO: Start bounded scan → deviceFound per supported device →
	// scanStopped on timeout → no scanError

	s.transport.Advertisements = []device.Advertisement{
		testutils.NewAdvertisement("id-1", "ET-475 Health"),
		testutils.NewAdvertisement("id-2", "Random Speaker XYZ"),
		testutils.NewAdvertisement("id-3", "Mi Band 7"),
	}

	err := s.ctrl.Start(100 * time.Millisecond)
	s.Require().NoError(err, "scan MUST start")
	s.Assert().True(s.ctrl.IsScanning(), "controller MUST report scanning")

	_, err = s.recorder.WaitFor(bus.ScanStopped, 1, testutils.WaitTimeout)
	s.Require().NoError(err, "scan MUST stop on its own at the timeout")

	s.Assert().False(s.ctrl.IsScanning())
	s.Assert().Equal(1, s.recorder.Count(bus.ScanStarted))
	s.Assert().Equal(2, s.recorder.Count(bus.DeviceFound), "the speaker MUST be filtered out")
	s.Assert().Zero(s.recorder.Count(bus.ScanError))

	found := s.ctrl.Discovered()
	s.Require().Len(found, 2)
	s.Assert().Equal("ET-475 Health", found[0].Name)
	s.Assert().Equal("Mi Band 7", found[1].Name)
}

func (s *ScanControllerTestSuite) TestEmptyScan() {
	// GOAL: Verify a scan that finds nothing still terminates cleanly
	//
	// TEST SCENARIO: No advertisements → scanStarted then scanStopped →
	// zero deviceFound events

	err := s.ctrl.Start(100 * time.Millisecond)
	s.Require().NoError(err)

	_, err = s.recorder.WaitFor(bus.ScanStopped, 1, testutils.WaitTimeout)
	s.Require().NoError(err)

	s.Assert().Equal(1, s.recorder.Count(bus.ScanStarted))
	s.Assert().Zero(s.recorder.Count(bus.DeviceFound))
	s.Assert().Empty(s.ctrl.Discovered())
}

func (s *ScanControllerTestSuite) TestDuplicateSuppression() {
	// GOAL: Verify a peripheral fires deviceFound at most once per session
	//
	// TEST SCENARIO: Platform redelivers the same advertisements → single
	// deviceFound per peripheral → Discovered has no duplicates

	s.transport.Advertisements = []device.Advertisement{
		testutils.NewAdvertisement("id-1", "ET-475 Health"),
	}
	s.transport.Repeat = 5

	s.Require().NoError(s.ctrl.Start(100 * time.Millisecond))
	_, err := s.recorder.WaitFor(bus.ScanStopped, 1, testutils.WaitTimeout)
	s.Require().NoError(err)

	s.Assert().Equal(1, s.recorder.Count(bus.DeviceFound))
	s.Assert().Len(s.ctrl.Discovered(), 1)
}

func (s *ScanControllerTestSuite) TestDuplicateAddressDifferentID() {
	// GOAL: Verify de-duplication also keys on the hardware address
	//
	// TEST SCENARIO: Two peripheral ids share one address → second one is
	// dropped as a duplicate

	s.transport.Advertisements = []device.Advertisement{
		testutils.NewAdvertisement("id-1", "ET-475 Health").WithAddr("AA:BB:CC:DD:EE:FF"),
		testutils.NewAdvertisement("id-2", "ET-475 Health").WithAddr("AA:BB:CC:DD:EE:FF"),
	}

	s.Require().NoError(s.ctrl.Start(100 * time.Millisecond))
	_, err := s.recorder.WaitFor(bus.ScanStopped, 1, testutils.WaitTimeout)
	s.Require().NoError(err)

	s.Assert().Equal(1, s.recorder.Count(bus.DeviceFound))
}

func (s *ScanControllerTestSuite) TestRestartResetsSession() {
	// GOAL: Verify a new Start ends the running scan and clears its results
	//
	// TEST SCENARIO: Scan finds a device → Start again → previous scan
	// terminated → device list rebuilt from scratch

	s.transport.Advertisements = []device.Advertisement{
		testutils.NewAdvertisement("id-1", "ET-475 Health"),
	}

	s.Require().NoError(s.ctrl.Start(10 * time.Second))
	_, err := s.recorder.WaitFor(bus.DeviceFound, 1, testutils.WaitTimeout)
	s.Require().NoError(err)

	s.Require().NoError(s.ctrl.Start(100 * time.Millisecond))

	// First session terminated, second ran to its timeout: one terminal
	// event each, found again in the new session.
	_, err = s.recorder.WaitFor(bus.ScanStopped, 2, testutils.WaitTimeout)
	s.Require().NoError(err)

	s.Assert().Equal(2, s.recorder.Count(bus.ScanStarted))
	s.Assert().Equal(2, s.recorder.Count(bus.DeviceFound))
	s.Assert().Len(s.ctrl.Discovered(), 1)
}

func (s *ScanControllerTestSuite) TestManualStop() {
	// GOAL: Verify Stop ends the session with a single scanStopped event
	//
	// TEST SCENARIO: Start long scan → Stop → scanStopped exactly once →
	// results from the stopped session remain queryable

	s.transport.Advertisements = []device.Advertisement{
		testutils.NewAdvertisement("id-1", "Mi Band 7"),
	}

	s.Require().NoError(s.ctrl.Start(10 * time.Second))
	_, err := s.recorder.WaitFor(bus.DeviceFound, 1, testutils.WaitTimeout)
	s.Require().NoError(err)

	s.ctrl.Stop()

	_, err = s.recorder.WaitFor(bus.ScanStopped, 1, testutils.WaitTimeout)
	s.Require().NoError(err)
	s.Assert().Equal(1, s.recorder.Count(bus.ScanStopped))
	s.Assert().False(s.ctrl.IsScanning())
	s.Assert().Len(s.ctrl.Discovered(), 1, "results MUST survive the stop")

	// Stop again is a no-op
	s.ctrl.Stop()
	s.Assert().Equal(1, s.recorder.Count(bus.ScanStopped))
}

func (s *ScanControllerTestSuite) TestAdapterOff() {
	// GOAL: Verify scanning with Bluetooth off fails up front
	//
	// TEST SCENARIO: Adapter powered off → Start returns adapter error →
	// bluetoothError published → nothing started

	s.transport.State = device.AdapterPoweredOff

	err := s.ctrl.Start(100 * time.Millisecond)
	s.Require().Error(err)
	s.Assert().ErrorIs(err, device.ErrAdapterUnavailable)
	s.Assert().Equal(1, s.recorder.Count(bus.BluetoothError))
	s.Assert().Zero(s.recorder.Count(bus.ScanStarted))
	s.Assert().False(s.ctrl.IsScanning())
}

func (s *ScanControllerTestSuite) TestAdapterUnauthorized() {
	// GOAL: Verify missing Bluetooth permission maps to the permission error
	//
	// TEST SCENARIO: Adapter unauthorized → Start fails with
	// ErrPermissionDenied

	s.transport.State = device.AdapterUnauthorized

	err := s.ctrl.Start(100 * time.Millisecond)
	s.Require().Error(err)
	s.Assert().ErrorIs(err, device.ErrPermissionDenied)
}

func (s *ScanControllerTestSuite) TestScanError() {
	// GOAL: Verify a platform scan failure surfaces as scanError
	//
	// TEST SCENARIO: Transport scan fails → scanError published with cause →
	// no scanStopped

	scanErr := errors.New("hci device busy")
	s.transport.ScanErr = scanErr

	s.Require().NoError(s.ctrl.Start(100 * time.Millisecond))

	evs, err := s.recorder.WaitFor(bus.ScanError, 1, testutils.WaitTimeout)
	s.Require().NoError(err)
	s.Assert().ErrorIs(evs[0].Err, scanErr)
	s.Assert().Zero(s.recorder.Count(bus.ScanStopped))
	s.Assert().False(s.ctrl.IsScanning())
}

func (s *ScanControllerTestSuite) TestLookup() {
	// GOAL: Verify discovered devices resolve by peripheral id and address
	//
	// TEST SCENARIO: Device found → Lookup by id and by address both hit →
	// unknown id misses

	s.transport.Advertisements = []device.Advertisement{
		testutils.NewAdvertisement("id-1", "ET-475 Health").WithAddr("AA:BB:CC:DD:EE:FF"),
	}

	s.Require().NoError(s.ctrl.Start(100 * time.Millisecond))
	_, err := s.recorder.WaitFor(bus.ScanStopped, 1, testutils.WaitTimeout)
	s.Require().NoError(err)

	s.Require().NotNil(s.ctrl.Lookup("id-1"))
	s.Require().NotNil(s.ctrl.Lookup("AA:BB:CC:DD:EE:FF"))
	s.Assert().Nil(s.ctrl.Lookup("id-404"))
}

func TestScanControllerTestSuite(t *testing.T) {
	suite.Run(t, new(ScanControllerTestSuite))
}
