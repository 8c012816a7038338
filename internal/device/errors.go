package device

import (
	"errors"
	"fmt"
	"strings"
)

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	Connecting       ConnectionState = "connecting"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrConnecting       = &ConnectionError{State: Connecting}
)

// Operation errors
var (
	// ErrAdapterUnavailable means Bluetooth is off or the host has no usable
	// adapter. Fatal to the current operation; requires user action.
	ErrAdapterUnavailable = errors.New("bluetooth adapter unavailable")

	// ErrPermissionDenied means the OS denied Bluetooth access. No retry
	// without user intervention.
	ErrPermissionDenied = errors.New("bluetooth permission denied")

	// ErrUnsupportedDevice marks a connect attempt against a peripheral the
	// classifier did not recognize.
	ErrUnsupportedDevice = errors.New("unsupported device")

	ErrTimeout     = errors.New("timeout")
	ErrUnsupported = errors.New("unsupported")
)

// NormalizeError maps known platform error strings to the structured error
// taxonomy. It ensures consistent handling even if the upstream library
// changes messages slightly. Returns wrapped errors to preserve original
// context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "central manager has invalid state: have=4"):
		// Darwin StatePoweredOff
		return fmt.Errorf("%w: %v", ErrAdapterUnavailable, err)
	case strings.Contains(msg, "central manager has invalid state: have=3"):
		// Darwin StateUnauthorized
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case containsIgnoreCase(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", ErrAdapterUnavailable, err)
	case containsIgnoreCase(msg, "permission"):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case containsIgnoreCase(msg, "device not connected"),
		containsIgnoreCase(msg, "disconnected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case containsIgnoreCase(msg, "device already connected"):
		return fmt.Errorf("%w: %v", ErrAlreadyConnected, err)
	default:
		return err
	}
}

// containsIgnoreCase checks substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}
