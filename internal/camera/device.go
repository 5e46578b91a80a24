package camera

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Device is the gocv-backed camera. One Device per physical camera;
// the scheduler loop is its only acquirer during a session.
type Device struct {
	index  int
	width  int
	height int
	warmup time.Duration

	mu       sync.Mutex
	acquired bool
}

type Options struct {
	Device string // numeric index as string, e.g. "0"
	Width  int
	Height int
	Warmup time.Duration
}

func NewDevice(opts Options) (*Device, error) {
	idx, err := strconv.Atoi(opts.Device)
	if err != nil {
		return nil, fmt.Errorf("invalid device ID: %s", opts.Device)
	}
	return &Device{
		index:  idx,
		width:  opts.Width,
		height: opts.Height,
		warmup: opts.Warmup,
	}, nil
}

func (d *Device) Acquire() (Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.acquired {
		return nil, ErrDeviceBusy
	}

	cap, err := gocv.OpenVideoCapture(d.index)
	if err != nil {
		return nil, ErrDeviceUnavailable
	}
	if !cap.IsOpened() {
		cap.Close()
		return nil, ErrDeviceUnavailable
	}

	cap.Set(gocv.VideoCaptureFrameWidth, float64(d.width))
	cap.Set(gocv.VideoCaptureFrameHeight, float64(d.height))

	// Sensor warm-up before the first exposure is usable.
	if d.warmup > 0 {
		time.Sleep(d.warmup)
	}

	d.acquired = true
	log.Printf("📷 Camera %d acquired (%dx%d)", d.index, d.width, d.height)

	h := &deviceHandle{dev: d, cap: cap}
	h.readFrame = h.read
	return h, nil
}

// Probe opens and immediately closes the device. When a handle is held
// the device is by definition reachable.
func (d *Device) Probe() bool {
	d.mu.Lock()
	if d.acquired {
		d.mu.Unlock()
		return true
	}
	d.mu.Unlock()

	cap, err := gocv.OpenVideoCapture(d.index)
	if err != nil {
		return false
	}
	defer cap.Close()
	return cap.IsOpened()
}

type readResult struct {
	shot *Shot
	err  error
}

type deviceHandle struct {
	dev *Device

	// readFrame indirection exists so tests can exercise the timeout
	// path without a physical camera.
	readFrame func() (*Shot, error)

	mu       sync.Mutex
	cap      *gocv.VideoCapture
	released bool
	// pending is non-nil while a timed-out read is still inside
	// OpenCV. The reader goroutine owns cap until it sends here; no
	// second read may start and cap must not close before then.
	pending chan readResult
}

func (h *deviceHandle) Capture(ctx context.Context) (*Shot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return nil, &CaptureError{Reason: "handle released", Transient: false}
	}

	if h.pending != nil {
		select {
		case <-h.pending:
			// The abandoned read finished after its deadline. Its
			// frame is stale; drop it and capture fresh.
			h.pending = nil
		default:
			return nil, &CaptureError{Reason: "previous read still in flight", Transient: true}
		}
	}

	done := make(chan readResult, 1)
	go func() {
		shot, err := h.readFrame()
		done <- readResult{shot, err}
	}()

	select {
	case r := <-done:
		return r.shot, r.err
	case <-ctx.Done():
		// Abandoned, not interrupted: the goroutine still holds cap.
		// Remember it so later captures and Release stay off cap until
		// it reports back.
		h.pending = done
		return nil, &CaptureError{Reason: "capture timeout", Transient: true}
	}
}

func (h *deviceHandle) read() (*Shot, error) {
	img := gocv.NewMat()
	defer img.Close()

	if ok := h.cap.Read(&img); !ok || img.Empty() {
		return nil, &CaptureError{Reason: "failed to read frame", Transient: true}
	}

	buf, err := gocv.IMEncode(".jpg", img)
	if err != nil {
		return nil, &CaptureError{Reason: fmt.Sprintf("jpeg encode: %v", err), Transient: false}
	}
	defer buf.Close()

	data := make([]byte, len(buf.GetBytes()))
	copy(data, buf.GetBytes())

	return &Shot{
		Data:    data,
		Width:   img.Cols(),
		Height:  img.Rows(),
		TakenAt: time.Now(),
	}, nil
}

func (h *deviceHandle) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return
	}

	// Closing cap under a live read crashes inside OpenCV. Wait for
	// the abandoned read to drain first.
	if h.pending != nil {
		<-h.pending
		h.pending = nil
	}

	h.released = true
	if h.cap != nil {
		h.cap.Close()
	}

	h.dev.mu.Lock()
	h.dev.acquired = false
	h.dev.mu.Unlock()

	log.Printf("📷 Camera %d released", h.dev.index)
}
