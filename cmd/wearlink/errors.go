package main

import (
	"errors"

	"github.com/xevox/wearlink/internal/device"
)

// FormatUserError turns taxonomy errors into actionable messages. Errors
// outside the taxonomy pass through unchanged.
func FormatUserError(err error) string {
	switch {
	case errors.Is(err, device.ErrAdapterUnavailable):
		return "Bluetooth is unavailable - turn Bluetooth on and try again"
	case errors.Is(err, device.ErrPermissionDenied):
		return "Bluetooth access was denied - grant Bluetooth permission in system settings and try again"
	case errors.Is(err, device.ErrUnsupportedDevice):
		return "that device is not a supported health tracker - run 'wearlink scan' to list supported devices"
	case errors.Is(err, device.ErrConnecting):
		return "a connection attempt is already in progress - wait for it to finish and try again"
	case errors.Is(err, device.ErrTimeout):
		return "the device did not respond in time - move closer to it and try again"
	default:
		return err.Error()
	}
}
