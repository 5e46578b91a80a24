package camera

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDeviceBusy means another owner currently holds the handle.
	ErrDeviceBusy = errors.New("camera device busy")
	// ErrDeviceUnavailable means the device cannot be opened at all.
	// This is a permanent condition; retrying will not help.
	ErrDeviceUnavailable = errors.New("camera device unavailable")
)

// CaptureError reports a failed capture attempt. Transient failures
// (read timeout, momentary I/O error) may be retried; permanent ones
// must not be.
type CaptureError struct {
	Reason    string
	Transient bool
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture failed: %s", e.Reason)
}

// IsTransient reports whether err is a capture failure worth retrying.
func IsTransient(err error) bool {
	var ce *CaptureError
	return errors.As(err, &ce) && ce.Transient
}

// Shot is one captured image plus its metadata.
type Shot struct {
	Data    []byte
	Width   int
	Height  int
	TakenAt time.Time
}

// Handle is an exclusively held camera. Release is idempotent and safe
// on every exit path.
type Handle interface {
	Capture(ctx context.Context) (*Shot, error)
	Release()
}

// Camera owns the physical device. Acquire hands out at most one live
// Handle; Probe answers "is the device reachable" without taking it.
type Camera interface {
	Acquire() (Handle, error)
	Probe() bool
}
