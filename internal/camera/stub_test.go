package camera

import (
	"context"
	"errors"
	"testing"
)

func TestStubExclusiveAcquire(t *testing.T) {
	s := NewStub(640, 480)

	h, err := s.Acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if _, err := s.Acquire(); !errors.Is(err, ErrDeviceBusy) {
		t.Fatalf("expected ErrDeviceBusy, got %v", err)
	}

	h.Release()
	h2, err := s.Acquire()
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	h2.Release()
}

func TestStubReleaseIdempotent(t *testing.T) {
	s := NewStub(640, 480)
	h, _ := s.Acquire()

	h.Release()
	h.Release() // must be safe

	if _, err := h.Capture(context.Background()); err == nil {
		t.Fatal("expected capture on released handle to fail")
	}
}

func TestStubScriptedFailures(t *testing.T) {
	s := NewStub(640, 480)
	h, _ := s.Acquire()
	defer h.Release()

	want := &CaptureError{Reason: "timeout", Transient: true}
	s.FailNext(want)

	_, err := h.Capture(context.Background())
	if !IsTransient(err) {
		t.Fatalf("expected transient failure, got %v", err)
	}

	shot, err := h.Capture(context.Background())
	if err != nil {
		t.Fatalf("expected success after scripted failure: %v", err)
	}
	if shot.Width != 640 || shot.Height != 480 {
		t.Errorf("unexpected dimensions %dx%d", shot.Width, shot.Height)
	}
	if s.Shots() != 1 {
		t.Errorf("expected 1 successful shot, got %d", s.Shots())
	}
}

func TestIsTransient(t *testing.T) {
	if IsTransient(ErrDeviceUnavailable) {
		t.Error("device unavailable is permanent")
	}
	if IsTransient(&CaptureError{Reason: "encode", Transient: false}) {
		t.Error("non-transient capture error misclassified")
	}
	if !IsTransient(&CaptureError{Reason: "timeout", Transient: true}) {
		t.Error("transient capture error misclassified")
	}
}
