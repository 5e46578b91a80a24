package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/carenod/timecourse-for-raspi/internal/camera"
)

func TestRetryPolicyDecide(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, Backoff: 500 * time.Millisecond}

	transient := &camera.CaptureError{Reason: "timeout", Transient: true}
	permanent := &camera.CaptureError{Reason: "device gone", Transient: false}

	tests := []struct {
		name    string
		err     error
		attempt int
		retry   bool
	}{
		{"transient first attempt", transient, 1, true},
		{"transient at budget", transient, 3, true},
		{"transient past budget", transient, 4, false},
		{"permanent first attempt", permanent, 1, false},
		{"device unavailable", camera.ErrDeviceUnavailable, 1, false},
		{"device busy is transient", camera.ErrDeviceBusy, 1, true},
		{"device busy past budget", camera.ErrDeviceBusy, 4, false},
		{"plain error", errors.New("boom"), 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := policy.Decide(tt.err, tt.attempt)
			if d.Retry != tt.retry {
				t.Errorf("Decide(%v, %d).Retry = %v, want %v", tt.err, tt.attempt, d.Retry, tt.retry)
			}
			if d.Retry && d.After != policy.Backoff {
				t.Errorf("expected backoff %s, got %s", policy.Backoff, d.After)
			}
			if !d.Retry && d.After != 0 {
				t.Errorf("escalation must not carry a backoff, got %s", d.After)
			}
		})
	}
}
