package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/carenod/timecourse-for-raspi/internal/models"
)

// ErrStorageFull means the data volume is below the configured floor.
// Not retriable without operator intervention.
var ErrStorageFull = errors.New("storage full")

// WriteError wraps a storage I/O failure.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string { return fmt.Sprintf("write failed (%s): %v", e.Op, e.Err) }
func (e *WriteError) Unwrap() error { return e.Err }

// Store owns the on-disk frame layout:
//
//	<root>/sessions/<id>/frames/frame_000042.jpg
//	<root>/sessions/<id>/manifest.json
//
// The manifest is only ever replaced whole, via write-to-temp + rename,
// and only after the frame file it references is fully on disk. A crash
// can leave an orphan frame file but never a manifest entry without a
// complete file.
type Store struct {
	root       string
	floorBytes uint64

	mu        sync.Mutex
	manifests map[string]*models.Manifest
}

func New(root string, floorMB int) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(root, "sessions"), 0755); err != nil {
		return nil, &WriteError{Op: "mkdir", Err: err}
	}
	return &Store{
		root:       root,
		floorBytes: uint64(floorMB) * 1024 * 1024,
		manifests:  make(map[string]*models.Manifest),
	}, nil
}

func (s *Store) sessionDir(sessionID string) string {
	return filepath.Join(s.root, "sessions", sessionID)
}

// FramePath returns the final path for a frame file.
func (s *Store) FramePath(sessionID string, seq int) string {
	return filepath.Join(s.sessionDir(sessionID), "frames", fmt.Sprintf("frame_%06d.jpg", seq))
}

// FreeBytes reports the free space on the volume holding the store.
func (s *Store) FreeBytes() (uint64, error) {
	usage, err := disk.Usage(s.root)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// Append durably writes one frame and records it in the manifest.
func (s *Store) Append(sessionID string, seq int, data []byte, takenAt time.Time) (*models.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if free, err := s.FreeBytes(); err == nil && free < s.floorBytes {
		return nil, ErrStorageFull
	}

	framesDir := filepath.Join(s.sessionDir(sessionID), "frames")
	if err := os.MkdirAll(framesDir, 0755); err != nil {
		return nil, &WriteError{Op: "mkdir", Err: err}
	}

	final := s.FramePath(sessionID, seq)
	if err := writeFileAtomic(final, data); err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	frame := models.Frame{
		SessionID:  sessionID,
		Sequence:   seq,
		CapturedAt: takenAt,
		Path:       final,
		SizeBytes:  int64(len(data)),
		Checksum:   hex.EncodeToString(sum[:]),
	}

	if err := s.appendRecord(sessionID, frame); err != nil {
		return nil, err
	}
	return &frame, nil
}

// AppendGap records a sequence number consumed by an escalated capture
// failure, so the numbering stays auditable. No file is written.
func (s *Store) AppendGap(sessionID string, seq int, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appendRecord(sessionID, models.Frame{
		SessionID:  sessionID,
		Sequence:   seq,
		CapturedAt: at,
		Gap:        true,
		Reason:     reason,
	})
}

// List returns the ordered frame records for a session, gaps included.
func (s *Store) List(sessionID string) ([]models.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.loadManifest(sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Frame, len(m.Frames))
	copy(out, m.Frames)
	return out, nil
}

// Sessions lists the session ids that have data on disk.
func (s *Store) Sessions() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "sessions"))
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// DeleteSession removes a session's frames and manifest.
func (s *Store) DeleteSession(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.manifests, sessionID)
	return os.RemoveAll(s.sessionDir(sessionID))
}

// appendRecord must be called with s.mu held. The caller has already
// made the frame file durable; ordering file-then-manifest is what
// keeps the manifest a subset of what is physically on disk.
func (s *Store) appendRecord(sessionID string, frame models.Frame) error {
	m, err := s.loadManifest(sessionID)
	if err != nil {
		return err
	}

	for _, f := range m.Frames {
		if f.Sequence == frame.Sequence {
			return &WriteError{Op: "manifest", Err: fmt.Errorf("duplicate sequence %d", frame.Sequence)}
		}
	}
	m.Frames = append(m.Frames, frame)

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return &WriteError{Op: "manifest", Err: err}
	}

	path := filepath.Join(s.sessionDir(sessionID), "manifest.json")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &WriteError{Op: "mkdir", Err: err}
	}
	if err := writeFileAtomic(path, data); err != nil {
		// Roll the in-memory copy back so a later retry re-appends.
		m.Frames = m.Frames[:len(m.Frames)-1]
		return err
	}
	return nil
}

func (s *Store) loadManifest(sessionID string) (*models.Manifest, error) {
	if m, ok := s.manifests[sessionID]; ok {
		return m, nil
	}

	m := &models.Manifest{SessionID: sessionID}
	path := filepath.Join(s.sessionDir(sessionID), "manifest.json")
	data, err := os.ReadFile(path)
	if err == nil {
		if jerr := json.Unmarshal(data, m); jerr != nil {
			return nil, &WriteError{Op: "manifest", Err: jerr}
		}
	} else if !os.IsNotExist(err) {
		return nil, &WriteError{Op: "manifest", Err: err}
	}

	s.manifests[sessionID] = m
	return m, nil
}

// writeFileAtomic writes data to a temp file in the target directory,
// fsyncs, then renames over the final path.
func writeFileAtomic(final string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(final), ".tmp-*")
	if err != nil {
		return &WriteError{Op: "create", Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &WriteError{Op: "write", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &WriteError{Op: "fsync", Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &WriteError{Op: "close", Err: err}
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return &WriteError{Op: "rename", Err: err}
	}
	return nil
}
