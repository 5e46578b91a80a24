package models

import "time"

// HealthSample is a single point-in-time reading of the host vitals the
// capture loop cares about.
type HealthSample struct {
	Time            time.Time `json:"time"`
	DiskFreeBytes   uint64    `json:"disk_free_bytes"`
	DiskTotalBytes  uint64    `json:"disk_total_bytes"`
	DiskUsedPercent float64   `json:"disk_used_percent"`
	Load1           float64   `json:"load_1"`
	CPUTempC        float64   `json:"cpu_temp_c"` // 0 when no sensor is exposed
}
