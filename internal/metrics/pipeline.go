// Package metrics exposes prometheus instrumentation for the morph pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "morphd_jobs_started_total",
		Help: "Total number of morph jobs started",
	})

	JobsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "morphd_jobs_completed_total",
		Help: "Total number of morph jobs that reached a complete result",
	})

	JobsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "morphd_jobs_failed_total",
		Help: "Total number of morph jobs that ended in error, by stage",
	}, []string{"stage"})

	StageDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "morphd_stage_duration_seconds",
		Help:    "Wall-clock duration of each pipeline stage",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"stage"})

	FramesMorphedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "morphd_frames_morphed_total",
		Help: "Total number of morph frames produced, by interpolation mode",
	}, []string{"mode"})

	FramesAnnotatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "morphd_frames_annotated_total",
		Help: "Total number of frames annotated with classifier attention",
	})

	AnnotationFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "morphd_annotation_failures_total",
		Help: "Total number of per-frame annotation failures degraded to unknown",
	})

	ProgressEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "morphd_progress_events_total",
		Help: "Total number of progress events appended, by kind",
	}, []string{"kind"})

	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "morphd_sessions_active",
		Help: "Number of sessions currently tracked by the registry",
	})

	SessionsEvictedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "morphd_sessions_evicted_total",
		Help: "Total number of sessions evicted after the retention window",
	})

	DetectorFallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "morphd_detector_fallback_total",
		Help: "Total number of jobs that fell back to unweighted blend morphing",
	})
)

// IncJobFailed records a failed job attributed to the stage it failed in.
func IncJobFailed(stage string) {
	if stage == "" {
		stage = "unknown"
	}
	JobsFailedTotal.WithLabelValues(stage).Inc()
}

// ObserveStage records the duration of one pipeline stage.
func ObserveStage(stage string, seconds float64) {
	StageDurationSeconds.WithLabelValues(stage).Observe(seconds)
}
