package session

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/carenod/timecourse-for-raspi/internal/models"
	"github.com/carenod/timecourse-for-raspi/internal/utils"
)

// Action is a requested state-machine transition.
type Action string

const (
	ActionArm    Action = "arm"
	ActionStart  Action = "start"
	ActionPause  Action = "pause"
	ActionResume Action = "resume"
	ActionStop   Action = "stop"
	ActionFault  Action = "fault"
	ActionReset  Action = "reset"
)

// ErrNoSession means no session has been created yet.
var ErrNoSession = errors.New("no session")

// ErrSessionActive means a session is armed, running or paused and a
// new one cannot be created until it finishes.
var ErrSessionActive = errors.New("a session is already active")

// InvalidTransitionError rejects an action not allowed from the current
// state. Local and recoverable; the state is left untouched.
type InvalidTransitionError struct {
	From   models.SessionState
	Action Action
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: cannot %s from %s", e.Action, e.From)
}

// RestartReason is the last_error recorded when a crashed process left
// a session in a live state.
const RestartReason = "interrupted by restart"

// Manager is the single owner of the current Session. Every mutation
// funnels through apply(); readers get value snapshots. Each committed
// transition is persisted so a restart can reconcile reality.
type Manager struct {
	mu      sync.Mutex
	db      *gorm.DB
	current *models.Session
}

func NewManager(db *gorm.DB) *Manager {
	m := &Manager{db: db}
	m.reconcile()
	return m
}

// reconcile runs once at startup. A session found in running/paused
// cannot be trusted after an uncontrolled restart: it becomes error.
func (m *Manager) reconcile() {
	var last models.Session
	err := m.db.Order("updated_at DESC").First(&last).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("⚠️ Error loading last session: %v", err)
		}
		return
	}

	if last.State == models.StateRunning || last.State == models.StatePaused {
		now := time.Now()
		last.State = models.StateError
		last.LastError = RestartReason
		last.EndedAt = &now
		if err := m.db.Save(&last).Error; err != nil {
			log.Printf("⚠️ Failed to persist restart reconciliation: %v", err)
		}
		log.Printf("🔁 Session %s reconciled to error after restart", last.ID)
	}

	m.current = &last
}

// Snapshot returns a copy of the current session.
func (m *Manager) Snapshot() (models.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return models.Session{}, false
	}
	return *m.current, true
}

// Create makes a new armed session. durationHours bounds the run (zero
// means open-ended). Fails with ErrSessionActive while the previous
// session is armed, running or paused.
func (m *Manager) Create(name string, intervalSeconds, durationHours float64, width, height int) (models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current.Active() {
		return models.Session{}, ErrSessionActive
	}

	if name == "" {
		name = "timelapse_" + time.Now().Format("20060102_150405")
	}

	s := &models.Session{
		ID:              uuid.NewString(),
		Name:            utils.Sanitize(name, "timelapse"),
		State:           models.StateArmed,
		IntervalSeconds: intervalSeconds,
		DurationHours:   durationHours,
		Width:           width,
		Height:          height,
	}

	if err := m.db.Create(s).Error; err != nil {
		return models.Session{}, err
	}

	m.current = s
	log.Printf("🎬 Session %s armed (interval %.1fs)", s.ID, intervalSeconds)
	return *s, nil
}

// Start begins capturing: armed → running.
func (m *Manager) Start() (models.Session, error) { return m.transition(ActionStart, "") }

// Pause suspends capturing: running → paused.
func (m *Manager) Pause() (models.Session, error) { return m.transition(ActionPause, "") }

// PauseWithReason is the loop's forced pause (e.g. low disk). The
// reason lands in last_error so operators can tell it apart.
func (m *Manager) PauseWithReason(reason string) (models.Session, error) {
	return m.transition(ActionPause, reason)
}

// Resume continues capturing: paused → running. Clears last_error.
func (m *Manager) Resume() (models.Session, error) { return m.transition(ActionResume, "") }

// Stop ends the run: running|paused → completed.
func (m *Manager) Stop() (models.Session, error) { return m.transition(ActionStop, "") }

// Fault aborts the run: running|paused → error.
func (m *Manager) Fault(reason string) (models.Session, error) {
	return m.transition(ActionFault, reason)
}

// Reset returns a finished session to idle: error|completed → idle.
func (m *Manager) Reset() (models.Session, error) { return m.transition(ActionReset, "") }

// Apply dispatches a named action; the HTTP layer uses this.
func (m *Manager) Apply(action Action) (models.Session, error) {
	switch action {
	case ActionStart, ActionPause, ActionResume, ActionStop, ActionReset:
		return m.transition(action, "")
	default:
		return models.Session{}, fmt.Errorf("unknown action %q", action)
	}
}

// RecordFrame bumps frame_count after a successful capture. It is a
// no-op once the session has left running/paused (an in-flight capture
// finishing after a stop is discarded).
func (m *Manager) RecordFrame() (models.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return models.Session{}, false
	}
	if m.current.State != models.StateRunning && m.current.State != models.StatePaused {
		return *m.current, false
	}

	m.current.FrameCount++
	m.persist()
	return *m.current, true
}

func (m *Manager) transition(action Action, reason string) (models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return models.Session{}, ErrNoSession
	}

	s := m.current
	now := time.Now()

	switch action {
	case ActionStart:
		if s.State != models.StateArmed {
			return *s, &InvalidTransitionError{From: s.State, Action: action}
		}
		s.State = models.StateRunning
		s.StartedAt = &now
		s.FrameCount = 0
		s.LastError = ""

	case ActionPause:
		if s.State != models.StateRunning {
			return *s, &InvalidTransitionError{From: s.State, Action: action}
		}
		s.State = models.StatePaused
		s.LastError = reason

	case ActionResume:
		if s.State != models.StatePaused {
			return *s, &InvalidTransitionError{From: s.State, Action: action}
		}
		s.State = models.StateRunning
		s.LastError = ""

	case ActionStop:
		if s.State != models.StateRunning && s.State != models.StatePaused {
			return *s, &InvalidTransitionError{From: s.State, Action: action}
		}
		s.State = models.StateCompleted
		s.EndedAt = &now

	case ActionFault:
		if s.State != models.StateRunning && s.State != models.StatePaused {
			return *s, &InvalidTransitionError{From: s.State, Action: action}
		}
		s.State = models.StateError
		s.LastError = reason
		s.EndedAt = &now

	case ActionReset:
		if s.State != models.StateError && s.State != models.StateCompleted {
			return *s, &InvalidTransitionError{From: s.State, Action: action}
		}
		s.State = models.StateIdle
		s.LastError = ""

	default:
		return *s, &InvalidTransitionError{From: s.State, Action: action}
	}

	m.persist()
	log.Printf("🔀 Session %s → %s", s.ID, s.State)
	return *s, nil
}

// persist must be called with m.mu held. A save failure is logged, not
// fatal: the in-memory state stays authoritative and the next
// transition retries the write.
func (m *Manager) persist() {
	if err := m.db.Save(m.current).Error; err != nil {
		log.Printf("⚠️ Failed to persist session %s: %v", m.current.ID, err)
	}
}

// List returns past and present sessions, newest first.
func (m *Manager) List() ([]models.Session, error) {
	var sessions []models.Session
	err := m.db.Order("created_at DESC").Find(&sessions).Error
	return sessions, err
}

// Get fetches one session by id.
func (m *Manager) Get(id string) (models.Session, error) {
	var s models.Session
	err := m.db.First(&s, "id = ?", id).Error
	return s, err
}

// Delete removes a session row. Active sessions are refused; deleting
// the current finished session also drops it from the snapshot so
// readers never see a row that is gone from the database.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current.ID == id && m.current.Active() {
		return ErrSessionActive
	}
	if err := m.db.Delete(&models.Session{}, "id = ?", id).Error; err != nil {
		return err
	}
	if m.current != nil && m.current.ID == id {
		m.current = nil
	}
	return nil
}
