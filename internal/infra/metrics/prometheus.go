package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nonverbal_jobs_processed_total",
		Help: "Total number of analysis jobs processed, by outcome",
	}, []string{"status"})

	JobProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nonverbal_job_processing_duration_seconds",
		Help:    "Duration of analysis job stages",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	FramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nonverbal_frames_total",
		Help: "Sampled frames across all jobs, by outcome (analyzed, skipped)",
	}, []string{"outcome"})

	DetectorCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nonverbal_detector_calls_total",
		Help: "Perception worker calls, by detector and result",
	}, []string{"detector", "result"})

	DetectorCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nonverbal_detector_call_duration_seconds",
		Help:    "Latency of a single perception worker call",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"detector"})

	Scores = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nonverbal_scores",
		Help:    "Distribution of successful analysis scores, by signal",
		Buckets: prometheus.LinearBuckets(10, 10, 10),
	}, []string{"signal"})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nonverbal_active_workers",
		Help: "Number of currently active workers processing jobs",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nonverbal_retry_total",
		Help: "Total number of retries",
	}, []string{"attempt"})
)
