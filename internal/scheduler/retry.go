package scheduler

import (
	"errors"
	"time"

	"github.com/carenod/timecourse-for-raspi/internal/camera"
)

// Decision is the retry policy's answer for one failed attempt.
// Retry false means escalate to fault.
type Decision struct {
	Retry bool
	After time.Duration
}

// RetryPolicy decides, purely from the failure kind and the attempt
// count, whether a capture failure is retried or escalated. Keeping it
// a pure function is what makes it testable without hardware.
type RetryPolicy struct {
	// MaxRetries is how many times a transient failure is retried
	// before escalating. The first failed attempt counts as attempt 1.
	MaxRetries int
	// Backoff is the fixed wait before each retry.
	Backoff time.Duration
}

// Decide returns the action for the attempt-th consecutive failure.
// Only transient camera failures are ever retried; DeviceBusy counts
// as transient (the holder may release), everything else escalates
// immediately.
func (p RetryPolicy) Decide(err error, attempt int) Decision {
	transient := camera.IsTransient(err) || errors.Is(err, camera.ErrDeviceBusy)
	if transient && attempt <= p.MaxRetries {
		return Decision{Retry: true, After: p.Backoff}
	}
	return Decision{}
}
