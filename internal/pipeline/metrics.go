package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FilesTotal counts files by outcome: loaded, failed or skipped.
	FilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docingest",
			Subsystem: "pipeline",
			Name:      "files_total",
			Help:      "Files processed by the ingestion pipeline",
		},
		[]string{"result"},
	)

	// PhaseDuration tracks time spent per phase.
	PhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docingest",
			Subsystem: "pipeline",
			Name:      "phase_duration_seconds",
			Help:      "Duration of ingestion phases in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		},
		[]string{"phase"},
	)

	chunksCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "docingest",
		Subsystem: "pipeline",
		Name:      "chunks_created_total",
		Help:      "Chunks produced by the split phase",
	})

	vectorsUploaded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "docingest",
		Subsystem: "pipeline",
		Name:      "vectors_uploaded_total",
		Help:      "Vector points written to the store",
	})

	redactions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "docingest",
		Subsystem: "pipeline",
		Name:      "redactions_total",
		Help:      "Credential matches masked in chunk text",
	})
)

func observePhase(phase Phase, start time.Time) {
	PhaseDuration.WithLabelValues(string(phase)).Observe(time.Since(start).Seconds())
}

func recordResult(res *IngestionResult) {
	FilesTotal.WithLabelValues("loaded").Add(float64(res.DocumentsLoaded))
	FilesTotal.WithLabelValues("failed").Add(float64(len(res.FailedFiles)))
	FilesTotal.WithLabelValues("skipped").Add(float64(res.FilesSkipped))
}
