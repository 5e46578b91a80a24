package scheduler

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/carenod/timecourse-for-raspi/internal/camera"
	"github.com/carenod/timecourse-for-raspi/internal/models"
	"github.com/carenod/timecourse-for-raspi/internal/session"
	"github.com/carenod/timecourse-for-raspi/internal/store"
)

// LowDiskReason is the last_error recorded when the loop force-pauses
// a session because the data volume dropped below the floor. Operators
// resume via the API once space is recovered.
const LowDiskReason = "disk space below floor"

// HealthSource is what the loop needs from the health monitor.
type HealthSource interface {
	LowDisk(floorBytes uint64) bool
}

// Loop is the single timing authority. It is the only actor that
// touches the camera while a session is live; the API only reads
// session snapshots and requests transitions.
type Loop struct {
	clock   Clock
	machine *session.Manager
	cam     camera.Camera
	frames  *store.Store
	health  HealthSource
	policy  RetryPolicy

	tick           time.Duration
	captureTimeout time.Duration
	diskFloor      uint64

	// per-run state; reset when the session id changes
	runID       string
	handle      camera.Handle
	seq         int
	runStarted  time.Time
	lastCapture time.Time
	attempts    int
	nextRetryAt time.Time
}

type LoopOptions struct {
	Clock          Clock
	Machine        *session.Manager
	Camera         camera.Camera
	Frames         *store.Store
	Health         HealthSource
	Policy         RetryPolicy
	Tick           time.Duration
	CaptureTimeout time.Duration
	DiskFloorBytes uint64
}

func NewLoop(opts LoopOptions) *Loop {
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	if opts.Tick <= 0 {
		opts.Tick = 250 * time.Millisecond
	}
	if opts.CaptureTimeout <= 0 {
		opts.CaptureTimeout = 10 * time.Second
	}
	return &Loop{
		clock:          opts.Clock,
		machine:        opts.Machine,
		cam:            opts.Camera,
		frames:         opts.Frames,
		health:         opts.Health,
		policy:         opts.Policy,
		tick:           opts.Tick,
		captureTimeout: opts.CaptureTimeout,
		diskFloor:      opts.DiskFloorBytes,
	}
}

// Run ticks until ctx is cancelled. Stop/pause requests take effect at
// tick boundaries; an in-flight capture always finishes first.
func (l *Loop) Run(ctx context.Context) {
	log.Printf("⏱️ Capture loop started (tick %s)", l.tick)
	ticker := time.NewTicker(l.tick)
	defer ticker.Stop()
	defer l.releaseHandle()

	for {
		select {
		case <-ctx.Done():
			log.Println("⏱️ Capture loop stopped")
			return
		case <-ticker.C:
			l.Tick(ctx)
		}
	}
}

// Tick performs exactly one scheduling iteration. Exported so tests
// can drive the loop with a fake clock instead of a ticker.
func (l *Loop) Tick(ctx context.Context) {
	snap, ok := l.machine.Snapshot()
	if !ok {
		return
	}

	// A new run resets the schedule and the sequence numbering.
	if snap.ID != l.runID {
		l.resetRun(snap.ID)
	}

	switch snap.State {
	case models.StateRunning:
		// fall through below
	case models.StatePaused:
		// Keep the handle warm across a pause; captures stay off.
		return
	default:
		l.releaseHandle()
		return
	}

	now := l.clock.Now()

	// The elapsed clock starts at the first running tick and keeps
	// counting through pauses, matching the planned wall-clock window.
	if l.runStarted.IsZero() {
		l.runStarted = now
	}

	// A bounded session completes on its own once the window elapses.
	if d := snap.Duration(); d > 0 && now.Sub(l.runStarted) >= d {
		if _, err := l.machine.Stop(); err == nil {
			log.Printf("🏁 Session %s completed: duration reached (%d frames)", snap.ID, snap.FrameCount)
		}
		l.releaseHandle()
		return
	}

	// Health gate: low disk forces a pause, never an error. The
	// session stays resumable once space is recovered externally.
	if l.health != nil && l.health.LowDisk(l.diskFloor) {
		if _, err := l.machine.PauseWithReason(LowDiskReason); err == nil {
			log.Printf("⛔ Low disk: session %s paused", snap.ID)
		}
		return
	}

	// Back off between retries of a failed capture.
	if !l.nextRetryAt.IsZero() && now.Before(l.nextRetryAt) {
		return
	}

	if !l.due(now, snap.Interval()) {
		return
	}

	if l.handle == nil {
		h, err := l.cam.Acquire()
		if err != nil {
			l.onFailure(snap, now, err)
			return
		}
		l.handle = h
	}

	cctx, cancel := context.WithTimeout(ctx, l.captureTimeout)
	timer := time.Now()
	shot, err := l.handle.Capture(cctx)
	cancel()
	captureDuration.Observe(time.Since(timer).Seconds())

	if err != nil {
		l.onFailure(snap, now, err)
		return
	}

	l.commit(snap, now, shot)
}

// due applies the catch-up collapse: however many intervals were
// missed, at most one capture fires and the schedule restarts from
// now. A stalled process never floods the disk on wake-up.
func (l *Loop) due(now time.Time, interval time.Duration) bool {
	if l.lastCapture.IsZero() {
		return true
	}
	return now.Sub(l.lastCapture) >= interval
}

func (l *Loop) commit(snap models.Session, now time.Time, shot *camera.Shot) {
	// A stop or fault may have landed while the capture was in flight.
	// The late frame is discarded before it reaches the manifest, so
	// manifest length and frame_count stay in agreement.
	cur, ok := l.machine.Snapshot()
	if !ok || cur.ID != snap.ID ||
		(cur.State != models.StateRunning && cur.State != models.StatePaused) {
		log.Printf("🗑️ Dropping late frame for session %s", snap.ID)
		return
	}

	frame, err := l.frames.Append(snap.ID, l.seq, shot.Data, shot.TakenAt)
	if err != nil {
		l.onStorageFailure(snap, err)
		return
	}

	l.seq++
	l.lastCapture = now
	l.attempts = 0
	l.nextRetryAt = time.Time{}

	if s, counted := l.machine.RecordFrame(); counted {
		frameCount.Set(float64(s.FrameCount))
	}
	capturesTotal.Inc()
	log.Printf("📸 Frame %d captured (%d bytes)", frame.Sequence, frame.SizeBytes)
}

func (l *Loop) onFailure(snap models.Session, now time.Time, err error) {
	l.attempts++
	decision := l.policy.Decide(err, l.attempts)

	if decision.Retry {
		captureFailures.WithLabelValues("transient").Inc()
		l.nextRetryAt = now.Add(decision.After)
		log.Printf("⚠️ Capture attempt %d failed (%v), retrying in %s", l.attempts, err, decision.After)
		return
	}

	captureFailures.WithLabelValues("permanent").Inc()

	// The failed slot keeps its sequence number as a gap marker so the
	// numbering stays auditable.
	if gerr := l.frames.AppendGap(snap.ID, l.seq, err.Error(), now); gerr != nil {
		log.Printf("⚠️ Failed to record gap marker: %v", gerr)
	} else {
		l.seq++
	}

	if _, ferr := l.machine.Fault(err.Error()); ferr != nil {
		log.Printf("⚠️ Fault transition rejected: %v", ferr)
	}
	l.releaseHandle()
	l.attempts = 0
	l.nextRetryAt = time.Time{}
}

func (l *Loop) onStorageFailure(snap models.Session, err error) {
	if errors.Is(err, store.ErrStorageFull) {
		captureFailures.WithLabelValues("storage_full").Inc()
		if _, perr := l.machine.PauseWithReason(LowDiskReason); perr == nil {
			log.Printf("⛔ Storage full: session %s paused", snap.ID)
		}
		return
	}

	captureFailures.WithLabelValues("write").Inc()
	if _, ferr := l.machine.Fault(err.Error()); ferr != nil {
		log.Printf("⚠️ Fault transition rejected: %v", ferr)
	}
	l.releaseHandle()
}

func (l *Loop) resetRun(id string) {
	l.releaseHandle()
	l.runID = id
	l.seq = 0
	l.runStarted = time.Time{}
	l.lastCapture = time.Time{}
	l.attempts = 0
	l.nextRetryAt = time.Time{}
	frameCount.Set(0)
}

func (l *Loop) releaseHandle() {
	if l.handle != nil {
		l.handle.Release()
		l.handle = nil
	}
}
