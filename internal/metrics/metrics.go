// Package metrics holds the prometheus collectors shared by the pipeline
// stages and served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "briefcast"

var (
	// ItemsCollected counts items returned per source after filtering.
	ItemsCollected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "items_collected_total",
		Help:      "News items collected, by source.",
	}, []string{"source"})

	// SourceErrors counts adapter failures.
	SourceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "source_errors_total",
		Help:      "Source adapter failures, by source.",
	}, []string{"source"})

	// StageItems counts items leaving each pipeline stage.
	StageItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stage_items_total",
		Help:      "Items produced by each pipeline stage.",
	}, []string{"stage"})

	// StageFailures counts per-item failures inside a stage.
	StageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stage_failures_total",
		Help:      "Per-item failures, by pipeline stage.",
	}, []string{"stage"})

	// RunDuration observes full pipeline runs.
	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of scheduled jobs.",
		Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
	}, []string{"kind", "status"})

	// CatalogEntries is the size of the catalog after the last write.
	CatalogEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "catalog_entries",
		Help:      "Entries in the published catalog after the last write.",
	})
)
