package models

import "time"

// Frame is one manifest entry: either a captured image or a gap marker
// recording a sequence number consumed by an escalated capture failure.
type Frame struct {
	SessionID  string    `json:"session_id"`
	Sequence   int       `json:"sequence"`
	CapturedAt time.Time `json:"captured_at"`
	Path       string    `json:"path,omitempty"`
	SizeBytes  int64     `json:"size_bytes,omitempty"`
	Checksum   string    `json:"checksum,omitempty"` // sha256 hex
	Gap        bool      `json:"gap,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

// Manifest is the durable per-session index of frames, ordered by sequence.
type Manifest struct {
	SessionID string  `json:"session_id"`
	Frames    []Frame `json:"frames"`
}
