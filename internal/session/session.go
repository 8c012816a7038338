// Package session owns the device session lifecycle: a single live
// connection to one peripheral at a time, and the telemetry sampling loop
// tied to it.
package session

import (
	"context"
	"time"

	"github.com/xevox/wearlink/internal/classify"
	"github.com/xevox/wearlink/internal/device"
	"github.com/xevox/wearlink/internal/telemetry"
)

// ConnectedSession is the one live pairing between the app and a
// peripheral. At most one exists at any time; starting a new connection
// releases the old session first. The link is exclusively owned by the
// connection controller.
type ConnectedSession struct {
	ID          string
	Device      *classify.ClassifiedDevice
	ConnectedAt time.Time

	link device.Link
}

// Link exposes the transport handle to the sampler. External callers have
// no business with it.
func (s *ConnectedSession) Link() device.Link {
	return s.link
}

// Uploader forwards telemetry samples to the backend.
type Uploader interface {
	UploadTelemetry(ctx context.Context, sample *telemetry.Sample) error
}

// Registrar announces device connect/disconnect to the backend.
type Registrar interface {
	RegisterDevice(ctx context.Context, dev *classify.ClassifiedDevice) error
	UnregisterDevice(ctx context.Context) error
}
