package camera

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Stub is the development-mode camera used when no real device is
// attached. It produces small deterministic frames and can be scripted
// to fail, which is what the scheduler tests lean on.
type Stub struct {
	Width  int
	Height int

	mu       sync.Mutex
	acquired bool
	shots    int
	// queued errors returned by Capture before succeeding again
	failures []error
	// when set, Acquire fails with this error
	acquireErr error
}

func NewStub(width, height int) *Stub {
	return &Stub{Width: width, Height: height}
}

// FailNext queues errs to be returned by the next Capture calls, in order.
func (s *Stub) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, errs...)
}

// SetAcquireError makes Acquire fail until cleared with nil.
func (s *Stub) SetAcquireError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acquireErr = err
}

// Shots returns how many captures have succeeded.
func (s *Stub) Shots() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shots
}

func (s *Stub) Acquire() (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.acquireErr != nil {
		return nil, s.acquireErr
	}
	if s.acquired {
		return nil, ErrDeviceBusy
	}
	s.acquired = true
	return &stubHandle{stub: s}, nil
}

func (s *Stub) Probe() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquireErr == nil
}

type stubHandle struct {
	stub     *Stub
	mu       sync.Mutex
	released bool
}

func (h *stubHandle) Capture(ctx context.Context) (*Shot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return nil, &CaptureError{Reason: "handle released", Transient: false}
	}
	if err := ctx.Err(); err != nil {
		return nil, &CaptureError{Reason: "capture timeout", Transient: true}
	}

	h.stub.mu.Lock()
	defer h.stub.mu.Unlock()

	if len(h.stub.failures) > 0 {
		err := h.stub.failures[0]
		h.stub.failures = h.stub.failures[1:]
		return nil, err
	}

	h.stub.shots++
	data := []byte(fmt.Sprintf("stub frame %d", h.stub.shots))

	return &Shot{
		Data:    data,
		Width:   h.stub.Width,
		Height:  h.stub.Height,
		TakenAt: time.Now(),
	}, nil
}

func (h *stubHandle) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return
	}
	h.released = true

	h.stub.mu.Lock()
	h.stub.acquired = false
	h.stub.mu.Unlock()
}
