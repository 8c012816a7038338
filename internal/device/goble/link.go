package goble

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/xevox/wearlink/internal/device"
	"github.com/xevox/wearlink/internal/telemetry"
)

// Standard GATT identifiers for the metric characteristics the sampler can
// actually decode. Most tracker families use proprietary protocols; for
// those ReadMetrics reports ErrUnsupported and the sampler synthesizes.
var (
	heartRateServiceUUID = ble.UUID16(0x180D)
	heartRateCharUUID    = ble.UUID16(0x2A37)
	batteryServiceUUID   = ble.UUID16(0x180F)
	batteryCharUUID      = ble.UUID16(0x2A19)
)

// bleLink implements device.Link over a live ble.Client.
type bleLink struct {
	client ble.Client
	logger *logrus.Logger

	mu      sync.RWMutex
	profile *ble.Profile

	disconnected chan struct{}
	closeOnce    sync.Once
}

func newLink(client ble.Client, logger *logrus.Logger) *bleLink {
	l := &bleLink{
		client:       client,
		logger:       logger,
		disconnected: make(chan struct{}),
	}

	// go-ble's Darwin client surfaces CoreBluetooth disconnect reports on a
	// channel; bridge it to the Link contract.
	if dc, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		go func() {
			<-dc.Disconnected()
			l.logger.Warn("Platform reported peripheral disconnection")
			l.closeOnce.Do(func() { close(l.disconnected) })
		}()
	} else {
		logger.Debug("Client does not expose a Disconnected() channel")
	}

	return l
}

func (l *bleLink) DiscoverServices(ctx context.Context) ([]string, error) {
	profile, err := l.client.DiscoverProfile(true)
	if err != nil {
		return nil, fmt.Errorf("discover services: %w", device.NormalizeError(err))
	}

	l.mu.Lock()
	l.profile = profile
	l.mu.Unlock()

	uuids := make([]string, 0, len(profile.Services))
	names := make([]string, 0, len(profile.Services))
	for _, svc := range profile.Services {
		uuid := svc.UUID.String()
		uuids = append(uuids, uuid)
		names = append(names, serviceName(uuid))
	}

	l.logger.WithFields(logrus.Fields{
		"count":    len(uuids),
		"services": names,
	}).Debug("Service discovery complete")
	return uuids, nil
}

// ReadMetrics reads the standard heart-rate and battery characteristics
// when the peripheral exposes them. Proprietary tracker protocols are not
// decoded here; callers get ErrUnsupported and fall back to synthesis.
func (l *bleLink) ReadMetrics(ctx context.Context) (map[string]float64, error) {
	l.mu.RLock()
	profile := l.profile
	l.mu.RUnlock()

	if profile == nil {
		return nil, fmt.Errorf("read metrics: %w", device.ErrNotConnected)
	}

	metrics := make(map[string]float64)

	if char := findCharacteristic(profile, heartRateServiceUUID, heartRateCharUUID); char != nil {
		data, err := l.client.ReadCharacteristic(char)
		if err != nil {
			l.logger.WithField("error", err).Debug("Heart rate read failed")
		} else if hr, ok := decodeHeartRate(data); ok {
			metrics[telemetry.MetricHeartRate] = hr
		}
	}

	if char := findCharacteristic(profile, batteryServiceUUID, batteryCharUUID); char != nil {
		data, err := l.client.ReadCharacteristic(char)
		if err != nil {
			l.logger.WithField("error", err).Debug("Battery level read failed")
		} else if len(data) >= 1 {
			metrics[telemetry.MetricBatteryLevel] = float64(data[0])
		}
	}

	if len(metrics) == 0 {
		return nil, fmt.Errorf("no readable metric characteristics: %w", device.ErrUnsupported)
	}
	return metrics, nil
}

func (l *bleLink) Disconnect() error {
	l.closeOnce.Do(func() { close(l.disconnected) })
	if err := l.client.CancelConnection(); err != nil {
		return fmt.Errorf("cancel connection: %w", device.NormalizeError(err))
	}
	return nil
}

func (l *bleLink) Disconnected() <-chan struct{} {
	return l.disconnected
}

// findCharacteristic locates a characteristic inside a service by UUID.
func findCharacteristic(profile *ble.Profile, svcUUID, charUUID ble.UUID) *ble.Characteristic {
	for _, svc := range profile.Services {
		if !svc.UUID.Equal(svcUUID) {
			continue
		}
		for _, char := range svc.Characteristics {
			if char.UUID.Equal(charUUID) {
				return char
			}
		}
	}
	return nil
}

// decodeHeartRate parses a Heart Rate Measurement value (GATT 0x2A37).
// Bit 0 of the flags byte selects uint8 vs uint16 little-endian format.
func decodeHeartRate(data []byte) (float64, bool) {
	if len(data) < 2 {
		return 0, false
	}
	if data[0]&0x01 == 0 {
		return float64(data[1]), true
	}
	if len(data) < 3 {
		return 0, false
	}
	return float64(uint16(data[1]) | uint16(data[2])<<8), true
}
