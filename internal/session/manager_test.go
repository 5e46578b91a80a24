package session

import (
	"errors"
	"sync"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/carenod/timecourse-for-raspi/internal/models"
)

// Helper to create a disposable in-memory DB
func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Session{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// driveTo walks a fresh session into the wanted state.
func driveTo(t *testing.T, m *Manager, state models.SessionState) {
	t.Helper()

	if _, err := m.Create("test", 1, 0, 640, 480); err != nil {
		t.Fatalf("create: %v", err)
	}
	var err error
	switch state {
	case models.StateArmed:
	case models.StateRunning:
		_, err = m.Start()
	case models.StatePaused:
		if _, err = m.Start(); err == nil {
			_, err = m.Pause()
		}
	case models.StateCompleted:
		if _, err = m.Start(); err == nil {
			_, err = m.Stop()
		}
	case models.StateError:
		if _, err = m.Start(); err == nil {
			_, err = m.Fault("boom")
		}
	case models.StateIdle:
		if _, err = m.Start(); err == nil {
			if _, err = m.Stop(); err == nil {
				_, err = m.Reset()
			}
		}
	}
	if err != nil {
		t.Fatalf("drive to %s: %v", state, err)
	}

	if s, _ := m.Snapshot(); s.State != state {
		t.Fatalf("drive to %s landed in %s", state, s.State)
	}
}

func TestTransitionTable(t *testing.T) {
	states := []models.SessionState{
		models.StateIdle, models.StateArmed, models.StateRunning,
		models.StatePaused, models.StateCompleted, models.StateError,
	}

	// allowed maps action -> the states it may fire from.
	allowed := map[Action][]models.SessionState{
		ActionStart:  {models.StateArmed},
		ActionPause:  {models.StateRunning},
		ActionResume: {models.StatePaused},
		ActionStop:   {models.StateRunning, models.StatePaused},
		ActionFault:  {models.StateRunning, models.StatePaused},
		ActionReset:  {models.StateCompleted, models.StateError},
	}
	want := map[Action]models.SessionState{
		ActionStart:  models.StateRunning,
		ActionPause:  models.StatePaused,
		ActionResume: models.StateRunning,
		ActionStop:   models.StateCompleted,
		ActionFault:  models.StateError,
		ActionReset:  models.StateIdle,
	}

	for action, okStates := range allowed {
		for _, from := range states {
			t.Run(string(action)+"_from_"+string(from), func(t *testing.T) {
				m := NewManager(setupDB(t))
				driveTo(t, m, from)

				var err error
				if action == ActionFault {
					_, err = m.Fault("boom")
				} else {
					_, err = m.Apply(action)
				}

				legal := false
				for _, s := range okStates {
					if s == from {
						legal = true
					}
				}

				snap, _ := m.Snapshot()
				if legal {
					if err != nil {
						t.Fatalf("expected %s from %s to succeed: %v", action, from, err)
					}
					if snap.State != want[action] {
						t.Fatalf("expected state %s, got %s", want[action], snap.State)
					}
				} else {
					var invalid *InvalidTransitionError
					if !errors.As(err, &invalid) {
						t.Fatalf("expected InvalidTransitionError for %s from %s, got %v", action, from, err)
					}
					if snap.State != from {
						t.Fatalf("failed transition mutated state: %s -> %s", from, snap.State)
					}
				}
			})
		}
	}
}

func TestStartResetsCounters(t *testing.T) {
	m := NewManager(setupDB(t))
	driveTo(t, m, models.StateRunning)

	s, _ := m.Snapshot()
	if s.StartedAt == nil {
		t.Error("expected started_at to be set")
	}
	if s.FrameCount != 0 {
		t.Errorf("expected frame_count 0, got %d", s.FrameCount)
	}
}

func TestCreateWhileActive(t *testing.T) {
	m := NewManager(setupDB(t))
	driveTo(t, m, models.StateRunning)

	if _, err := m.Create("second", 1, 0, 640, 480); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive, got %v", err)
	}
}

func TestCreateReplacesFinished(t *testing.T) {
	m := NewManager(setupDB(t))
	driveTo(t, m, models.StateCompleted)

	s, err := m.Create("second", 2, 0, 640, 480)
	if err != nil {
		t.Fatalf("create after completed: %v", err)
	}
	if s.State != models.StateArmed {
		t.Errorf("expected armed, got %s", s.State)
	}
}

func TestConcurrentStop(t *testing.T) {
	m := NewManager(setupDB(t))
	driveTo(t, m, models.StateRunning)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.Stop()
		}(i)
	}
	wg.Wait()

	var okCount, invalidCount int
	for _, err := range errs {
		var invalid *InvalidTransitionError
		switch {
		case err == nil:
			okCount++
		case errors.As(err, &invalid):
			invalidCount++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if okCount != 1 || invalidCount != 1 {
		t.Fatalf("expected exactly one winner, got %d ok / %d invalid", okCount, invalidCount)
	}

	if s, _ := m.Snapshot(); s.State != models.StateCompleted {
		t.Errorf("expected completed, got %s", s.State)
	}
}

func TestRecordFrame(t *testing.T) {
	m := NewManager(setupDB(t))
	driveTo(t, m, models.StateRunning)

	for i := 0; i < 3; i++ {
		if _, counted := m.RecordFrame(); !counted {
			t.Fatal("expected frame to count while running")
		}
	}
	if s, _ := m.Snapshot(); s.FrameCount != 3 {
		t.Errorf("expected frame_count 3, got %d", s.FrameCount)
	}

	// A capture finishing after stop is discarded.
	if _, err := m.Stop(); err != nil {
		t.Fatal(err)
	}
	if _, counted := m.RecordFrame(); counted {
		t.Error("expected frame not to count after stop")
	}
}

func TestRestartReconciliation(t *testing.T) {
	db := setupDB(t)

	m1 := NewManager(db)
	driveTo(t, m1, models.StateRunning)

	// A new manager on the same DB simulates a process restart.
	m2 := NewManager(db)
	s, ok := m2.Snapshot()
	if !ok {
		t.Fatal("expected a session after restart")
	}
	if s.State != models.StateError {
		t.Errorf("expected error after restart, got %s", s.State)
	}
	if s.LastError != RestartReason {
		t.Errorf("expected last_error %q, got %q", RestartReason, s.LastError)
	}
	if s.EndedAt == nil {
		t.Error("expected ended_at to be set")
	}
}

func TestRestartLeavesFinishedAlone(t *testing.T) {
	db := setupDB(t)

	m1 := NewManager(db)
	driveTo(t, m1, models.StateCompleted)

	m2 := NewManager(db)
	if s, _ := m2.Snapshot(); s.State != models.StateCompleted {
		t.Errorf("expected completed to survive restart, got %s", s.State)
	}
}

func TestCreateStoresDuration(t *testing.T) {
	m := NewManager(setupDB(t))

	s, err := m.Create("bounded", 60, 2, 640, 480)
	if err != nil {
		t.Fatal(err)
	}
	if s.DurationHours != 2 {
		t.Errorf("expected duration_hours 2, got %v", s.DurationHours)
	}
	if got := s.TotalFrames(); got != 120 {
		t.Errorf("expected 120 expected frames (2h at 60s), got %d", got)
	}
}

func TestDeleteClearsCurrent(t *testing.T) {
	m := NewManager(setupDB(t))
	driveTo(t, m, models.StateCompleted)

	s, _ := m.Snapshot()
	if err := m.Delete(s.ID); err != nil {
		t.Fatal(err)
	}

	// The deleted row must not linger as the current snapshot.
	if _, ok := m.Snapshot(); ok {
		t.Error("expected no snapshot after deleting the current session")
	}
	if _, err := m.Get(s.ID); err == nil {
		t.Error("expected the row to be gone")
	}
}

func TestPauseWithReason(t *testing.T) {
	m := NewManager(setupDB(t))
	driveTo(t, m, models.StateRunning)

	s, err := m.PauseWithReason("disk space below floor")
	if err != nil {
		t.Fatal(err)
	}
	if s.State != models.StatePaused || s.LastError != "disk space below floor" {
		t.Errorf("unexpected snapshot: %s / %q", s.State, s.LastError)
	}

	// Resume clears the advisory reason.
	s, err = m.Resume()
	if err != nil {
		t.Fatal(err)
	}
	if s.LastError != "" {
		t.Errorf("expected last_error cleared, got %q", s.LastError)
	}
}
