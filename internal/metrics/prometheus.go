package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flashtrap_frames_processed_total",
		Help: "Total number of frames processed, by final status",
	}, []string{"status"})

	CandidatesDetectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flashtrap_candidates_detected_total",
		Help: "Total number of flash candidates found before deduplication",
	})

	CandidatesRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flashtrap_candidates_removed_total",
		Help: "Total number of candidates removed as recurring artifacts",
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flashtrap_stage_duration_seconds",
		Help:    "Duration of pipeline stages",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	}, []string{"stage"})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flashtrap_active_workers",
		Help: "Number of detection workers currently processing a frame",
	})
)
