package scheduler

import "github.com/prometheus/client_golang/prometheus"

// Metrics
var (
	capturesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "timecourse_captures_total", Help: "Frames captured"},
	)
	captureFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "timecourse_capture_failures_total", Help: "Capture failures"},
		[]string{"cause"},
	)
	captureDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "timecourse_capture_duration_seconds",
			Help:    "Capture time",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
	)
	frameCount = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "timecourse_session_frame_count", Help: "Frames in current session"},
	)
)

func RegisterMetrics() {
	prometheus.MustRegister(capturesTotal, captureFailures, captureDuration, frameCount)
}
