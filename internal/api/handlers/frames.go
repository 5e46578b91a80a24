package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/carenod/timecourse-for-raspi/internal/models"
	"github.com/carenod/timecourse-for-raspi/internal/session"
	"github.com/carenod/timecourse-for-raspi/internal/store"
)

// FrameHandler serves the frame listing and individual frame files.
// It reads the manifest only; the capture loop is the sole writer.
type FrameHandler struct {
	machine *session.Manager
	frames  *store.Store
}

func NewFrameHandler(machine *session.Manager, frames *store.Store) *FrameHandler {
	return &FrameHandler{machine: machine, frames: frames}
}

type frameView struct {
	models.Frame
	URL string `json:"url,omitempty"`
}

// GetFrames returns a paginated frame listing for the current session
// (or ?session_id= for a past one) with retrieval links.
func (h *FrameHandler) GetFrames(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		s, ok := h.machine.Snapshot()
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no session"})
			return
		}
		sessionID = s.ID
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit > 200 {
		limit = 200 // Hard cap to protect the server
	}
	if limit <= 0 || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pagination"})
		return
	}

	records, err := h.frames.List(sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Manifest read failed"})
		return
	}

	total := len(records)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	data := make([]frameView, 0, end-offset)
	for _, rec := range records[offset:end] {
		v := frameView{Frame: rec}
		if !rec.Gap {
			v.URL = fmt.Sprintf("/api/v1/frames/%d?session_id=%s", rec.Sequence, sessionID)
		}
		data = append(data, v)
	}

	c.JSON(http.StatusOK, gin.H{
		"data": data,
		"meta": gin.H{
			"total":  total,
			"limit":  limit,
			"offset": offset,
		},
	})
}

// GetFrame serves one captured JPEG.
func (h *FrameHandler) GetFrame(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		s, ok := h.machine.Snapshot()
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no session"})
			return
		}
		sessionID = s.ID
	}

	seq, err := strconv.Atoi(c.Param("seq"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sequence number"})
		return
	}

	records, err := h.frames.List(sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Manifest read failed"})
		return
	}

	for _, rec := range records {
		if rec.Sequence != seq {
			continue
		}
		if rec.Gap {
			c.JSON(http.StatusNotFound, gin.H{"error": "sequence is a gap marker", "reason": rec.Reason})
			return
		}
		c.File(rec.Path)
		return
	}

	c.JSON(http.StatusNotFound, gin.H{"error": "Frame not found"})
}
