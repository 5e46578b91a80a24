package models

import "time"

// SessionState is the lifecycle state of a timelapse session.
type SessionState string

const (
	StateIdle      SessionState = "idle"
	StateArmed     SessionState = "armed"
	StateRunning   SessionState = "running"
	StatePaused    SessionState = "paused"
	StateCompleted SessionState = "completed"
	StateError     SessionState = "error"
)

// Session represents one timelapse run. There is at most one row per
// session id; the session package is the only writer.
type Session struct {
	ID              string       `gorm:"primaryKey" json:"id"`
	Name            string       `gorm:"index" json:"name"`
	State           SessionState `gorm:"index" json:"state"`
	IntervalSeconds float64      `json:"interval_seconds"`
	DurationHours   float64      `json:"duration_hours"`
	Width           int          `json:"width"`
	Height          int          `json:"height"`
	StartedAt       *time.Time   `json:"started_at"`
	EndedAt         *time.Time   `json:"ended_at"`
	FrameCount      int          `json:"frame_count"`
	LastError       string       `json:"last_error,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Interval returns the capture period as a duration.
func (s *Session) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds * float64(time.Second))
}

// Duration returns the planned run length. Zero means open-ended; the
// session then runs until stopped manually.
func (s *Session) Duration() time.Duration {
	return time.Duration(s.DurationHours * float64(time.Hour))
}

// TotalFrames is the expected frame count for a bounded session, 0
// when open-ended.
func (s *Session) TotalFrames() int {
	if s.DurationHours <= 0 || s.IntervalSeconds <= 0 {
		return 0
	}
	return int(s.Duration() / s.Interval())
}

// Progress is the percentage of expected frames captured so far,
// clamped to 100. Open-ended sessions report 0.
func (s *Session) Progress() float64 {
	total := s.TotalFrames()
	if total == 0 {
		return 0
	}
	p := float64(s.FrameCount) / float64(total) * 100
	if p > 100 {
		return 100
	}
	return p
}

// Active reports whether the session blocks creation of a new one.
func (s *Session) Active() bool {
	switch s.State {
	case StateArmed, StateRunning, StatePaused:
		return true
	}
	return false
}
