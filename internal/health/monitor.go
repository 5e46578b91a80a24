package health

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"

	"github.com/carenod/timecourse-for-raspi/internal/models"
)

// Monitor periodically samples the host vitals the capture loop and
// the API care about: free disk on the data volume, load average and
// the SoC temperature. History is ring-buffered; only the most recent
// samples are kept.
type Monitor struct {
	path     string
	interval time.Duration

	mu      sync.RWMutex
	samples []models.HealthSample
	next    int
	filled  bool
}

func NewMonitor(dataPath string, interval time.Duration, historySize int) *Monitor {
	if historySize <= 0 {
		historySize = 240
	}
	return &Monitor{
		path:     dataPath,
		interval: interval,
		samples:  make([]models.HealthSample, historySize),
	}
}

// Run samples until ctx is cancelled. One sample is taken immediately
// so Latest never reports empty after startup.
func (m *Monitor) Run(ctx context.Context) {
	m.sample()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *Monitor) sample() {
	s := models.HealthSample{Time: time.Now()}

	if usage, err := disk.Usage(m.path); err == nil {
		s.DiskFreeBytes = usage.Free
		s.DiskTotalBytes = usage.Total
		s.DiskUsedPercent = usage.UsedPercent
	} else {
		log.Printf("⚠️ Disk sample failed: %v", err)
	}

	if avg, err := load.Avg(); err == nil {
		s.Load1 = avg.Load1
	}

	s.CPUTempC = coreTemp()

	m.mu.Lock()
	m.samples[m.next] = s
	m.next = (m.next + 1) % len(m.samples)
	if m.next == 0 {
		m.filled = true
	}
	m.mu.Unlock()
}

// coreTemp is best effort: headless boards expose different sensor
// names and many dev machines expose none at all.
func coreTemp() float64 {
	temps, err := host.SensorsTemperatures()
	if err != nil || len(temps) == 0 {
		return 0
	}
	for _, t := range temps {
		key := strings.ToLower(t.SensorKey)
		if strings.Contains(key, "cpu") || strings.Contains(key, "core") || strings.Contains(key, "soc") {
			return t.Temperature
		}
	}
	return temps[0].Temperature
}

// Latest returns the most recent sample.
func (m *Monitor) Latest() (models.HealthSample, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx := (m.next - 1 + len(m.samples)) % len(m.samples)
	s := m.samples[idx]
	if s.Time.IsZero() {
		return models.HealthSample{}, false
	}
	return s, true
}

// History returns retained samples, oldest first.
func (m *Monitor) History() []models.HealthSample {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.HealthSample
	if m.filled {
		out = append(out, m.samples[m.next:]...)
	}
	out = append(out, m.samples[:m.next]...)

	// Drop zero slots from a partially filled ring.
	valid := out[:0]
	for _, s := range out {
		if !s.Time.IsZero() {
			valid = append(valid, s)
		}
	}
	return valid
}

// LowDisk reports whether the latest sample shows free space under
// floorBytes. Unknown (no sample yet) is not low: the loop must not
// pause a session because the monitor has not started.
func (m *Monitor) LowDisk(floorBytes uint64) bool {
	s, ok := m.Latest()
	if !ok {
		return false
	}
	return s.DiskFreeBytes < floorBytes
}
