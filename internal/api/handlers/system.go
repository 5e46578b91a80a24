package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/carenod/timecourse-for-raspi/internal/camera"
	"github.com/carenod/timecourse-for-raspi/internal/health"
)

// SystemHandler exposes host vitals and the camera probe. The probe is
// the only camera access the API is allowed.
type SystemHandler struct {
	cam     camera.Camera
	monitor *health.Monitor
}

func NewSystemHandler(cam camera.Camera, monitor *health.Monitor) *SystemHandler {
	return &SystemHandler{cam: cam, monitor: monitor}
}

// GetHealth returns the latest HealthSample.
func (h *SystemHandler) GetHealth(c *gin.Context) {
	sample, ok := h.monitor.Latest()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no sample yet"})
		return
	}
	c.JSON(http.StatusOK, sample)
}

// GetHealthHistory returns the retained ring of samples, oldest first.
func (h *SystemHandler) GetHealthHistory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.monitor.History()})
}

// GetSystem mirrors the dashboard's one-shot status call: camera
// reachability plus disk headroom and the server clock.
func (h *SystemHandler) GetSystem(c *gin.Context) {
	resp := gin.H{
		"camera_available": h.cam.Probe(),
		"current_time":     time.Now().Format(time.RFC3339),
	}

	if sample, ok := h.monitor.Latest(); ok {
		resp["disk_free_gb"] = float64(sample.DiskFreeBytes) / (1 << 30)
		resp["disk_total_gb"] = float64(sample.DiskTotalBytes) / (1 << 30)
		resp["disk_used_percent"] = sample.DiskUsedPercent
		resp["cpu_temp_c"] = sample.CPUTempC
	}

	c.JSON(http.StatusOK, resp)
}
