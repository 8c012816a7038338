package testutils

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xevox/wearlink/internal/classify"
	"github.com/xevox/wearlink/internal/telemetry"
)

// FakeBackend records uploads and device registrations. Error fields fail
// the corresponding call while still recording it.
type FakeBackend struct {
	mu sync.Mutex

	UploadErr     error
	RegisterErr   error
	UnregisterErr error

	uploads     []*telemetry.Sample
	registered  []*classify.ClassifiedDevice
	unregisters int

	wake chan struct{}
}

// NewBackend creates a backend fake that accepts everything.
func NewBackend() *FakeBackend {
	return &FakeBackend{wake: make(chan struct{}, 1)}
}

func (b *FakeBackend) signal() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *FakeBackend) UploadTelemetry(ctx context.Context, sample *telemetry.Sample) error {
	b.mu.Lock()
	b.uploads = append(b.uploads, sample)
	err := b.UploadErr
	b.mu.Unlock()
	b.signal()
	return err
}

func (b *FakeBackend) RegisterDevice(ctx context.Context, dev *classify.ClassifiedDevice) error {
	b.mu.Lock()
	b.registered = append(b.registered, dev)
	err := b.RegisterErr
	b.mu.Unlock()
	b.signal()
	return err
}

func (b *FakeBackend) UnregisterDevice(ctx context.Context) error {
	b.mu.Lock()
	b.unregisters++
	err := b.UnregisterErr
	b.mu.Unlock()
	b.signal()
	return err
}

// Uploads returns the samples received so far, in order.
func (b *FakeBackend) Uploads() []*telemetry.Sample {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*telemetry.Sample, len(b.uploads))
	copy(out, b.uploads)
	return out
}

// Registered returns the devices registered so far, in order.
func (b *FakeBackend) Registered() []*classify.ClassifiedDevice {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*classify.ClassifiedDevice, len(b.registered))
	copy(out, b.registered)
	return out
}

// Unregisters reports how many times UnregisterDevice ran.
func (b *FakeBackend) Unregisters() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unregisters
}

// WaitForUploads blocks until at least n samples arrived or the timeout
// elapses.
func (b *FakeBackend) WaitForUploads(n int, timeout time.Duration) ([]*telemetry.Sample, error) {
	err := b.waitFor(timeout, func() int { return len(b.Uploads()) }, n, "uploads")
	return b.Uploads(), err
}

// WaitForRegistrations blocks until at least n devices registered or the
// timeout elapses.
func (b *FakeBackend) WaitForRegistrations(n int, timeout time.Duration) ([]*classify.ClassifiedDevice, error) {
	err := b.waitFor(timeout, func() int { return len(b.Registered()) }, n, "registrations")
	return b.Registered(), err
}

// WaitForUnregisters blocks until UnregisterDevice ran at least n times.
func (b *FakeBackend) WaitForUnregisters(n int, timeout time.Duration) error {
	return b.waitFor(timeout, b.Unregisters, n, "unregisters")
}

func (b *FakeBackend) waitFor(timeout time.Duration, count func() int, n int, what string) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if count() >= n {
			return nil
		}
		select {
		case <-deadline.C:
			return fmt.Errorf("timed out waiting for %d %s (got %d)", n, what, count())
		case <-b.wake:
		}
	}
}
