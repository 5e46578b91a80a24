package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/carenod/timecourse-for-raspi/internal/archive"
	"github.com/carenod/timecourse-for-raspi/internal/models"
	"github.com/carenod/timecourse-for-raspi/internal/session"
	"github.com/carenod/timecourse-for-raspi/internal/storage"
	"github.com/carenod/timecourse-for-raspi/internal/store"
)

// SessionHandler owns the session control surface. It never touches
// the camera: transitions go through the state machine and the capture
// loop picks them up at its next tick.
type SessionHandler struct {
	machine *session.Manager
	frames  *store.Store
	archive storage.Provider
	width   int
	height  int
}

func NewSessionHandler(machine *session.Manager, frames *store.Store, archiveTarget storage.Provider, width, height int) *SessionHandler {
	return &SessionHandler{
		machine: machine,
		frames:  frames,
		archive: archiveTarget,
		width:   width,
		height:  height,
	}
}

// CreateSession creates and arms a new session.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var input struct {
		Name            string  `json:"name"`
		IntervalSeconds float64 `json:"interval_seconds" binding:"required"`
		DurationHours   float64 `json:"duration_hours"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Bad parameters are rejected here, before the state machine.
	if input.IntervalSeconds <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interval_seconds must be positive"})
		return
	}
	if input.DurationHours < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "duration_hours cannot be negative"})
		return
	}

	s, err := h.machine.Create(input.Name, input.IntervalSeconds, input.DurationHours, h.width, h.height)
	if err != nil {
		if errors.Is(err, session.ErrSessionActive) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		slog.Error("Failed to create session", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusCreated, s)
}

// Transition returns a handler applying one named action. Losing a
// transition race (two stops) yields 409, never corrupted state.
func (h *SessionHandler) Transition(action session.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := h.machine.Apply(action)
		if err != nil {
			var invalid *session.InvalidTransitionError
			switch {
			case errors.As(err, &invalid):
				c.JSON(http.StatusConflict, gin.H{
					"error": invalid.Error(),
					"state": invalid.From,
				})
			case errors.Is(err, session.ErrNoSession):
				c.JSON(http.StatusNotFound, gin.H{"error": "no session"})
			default:
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			}
			return
		}
		c.JSON(http.StatusOK, s)
	}
}

// GetSession returns the current session snapshot with progress
// against the planned duration (0 for open-ended sessions).
func (h *SessionHandler) GetSession(c *gin.Context) {
	s, ok := h.machine.Snapshot()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no session"})
		return
	}
	c.JSON(http.StatusOK, struct {
		models.Session
		TotalFrames int     `json:"total_frames"`
		Progress    float64 `json:"progress"`
	}{s, s.TotalFrames(), s.Progress()})
}

// ListSessions returns past and present sessions, newest first.
func (h *SessionHandler) ListSessions(c *gin.Context) {
	sessions, err := h.machine.List()
	if err != nil {
		slog.Error("Failed to list sessions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sessions})
}

// ArchiveSession streams a session's frames and manifest as a ZIP.
func (h *SessionHandler) ArchiveSession(c *gin.Context) {
	s, err := h.machine.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", s.Name+".zip"))

	if err := archive.WriteZip(c.Writer, h.frames, s.ID); err != nil {
		// Headers are gone; all we can do is log and cut the stream.
		slog.Error("ZIP export failed", "session", s.ID, "error", err)
	}
}

// TransferSession copies a session to the configured archive target
// (USB mount or S3 bucket).
func (h *SessionHandler) TransferSession(c *gin.Context) {
	s, err := h.machine.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	moved, err := archive.Transfer(h.archive, h.frames, s)
	if err != nil {
		slog.Error("Transfer failed", "session", s.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Transfer failed: %v", err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Session transferred",
		"frames":  moved,
	})
}

// ListArchive lists keys already present on the archive target, so an
// operator can check what made it off the device before wiping it.
func (h *SessionHandler) ListArchive(c *gin.Context) {
	keys, err := h.archive.List(c.Query("prefix"))
	if err != nil {
		slog.Error("Failed to list archive", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Archive listing failed"})
		return
	}
	if keys == nil {
		keys = []string{}
	}

	c.JSON(http.StatusOK, gin.H{
		"data": keys,
		"meta": gin.H{"count": len(keys)},
	})
}

// DeleteSession removes a finished session's frames and record.
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	id := c.Param("id")

	if err := h.machine.Delete(id); err != nil {
		if errors.Is(err, session.ErrSessionActive) {
			c.JSON(http.StatusConflict, gin.H{"error": "Session is active"})
			return
		}
		slog.Error("Failed to delete session", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if err := h.frames.DeleteSession(id); err != nil {
		slog.Error("Failed to delete frames", "session", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Delete failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Session deleted", "id": id})
}
