// Package metrics holds the Prometheus instruments shared across the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BatchesRequested counts snapshot requests accepted per channel.
	BatchesRequested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_batches_requested_total",
		Help: "Total number of inventory snapshot requests by channel",
	}, []string{"channel"})

	// BatchesCompleted counts batches reaching a terminal state.
	BatchesCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_batches_terminal_total",
		Help: "Total number of batches reaching a terminal state by channel and status",
	}, []string{"channel", "status"})

	// PollsPerformed counts individual polls of external report jobs.
	PollsPerformed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_polls_total",
		Help: "Total number of external report polls by channel and outcome",
	}, []string{"channel", "outcome"}) // outcome: processing, completed, failed, transport_error

	// RowsIngested counts inventory rows landed per channel.
	RowsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_rows_ingested_total",
		Help: "Total number of inventory rows ingested by channel",
	}, []string{"channel"})

	// IngestDuration tracks how long ingesting one batch takes.
	IngestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inventory_ingest_duration_seconds",
		Help:    "Time taken to classify and persist one batch by channel",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"channel"})

	// RematchedRows counts rows reclassified by the rematch engine.
	RematchedRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_rematched_rows_total",
		Help: "Total number of rows whose match status changed during rematch",
	}, []string{"channel"})

	// RematchDuration tracks rematch run durations.
	RematchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inventory_rematch_duration_seconds",
		Help:    "Time taken for one rematch run by scope",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15},
	}, []string{"scope"}) // scope: sku, batch

	// MappingsImported counts bulk mapping import rows by outcome.
	MappingsImported = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_mapping_import_rows_total",
		Help: "Total number of bulk mapping import rows by outcome",
	}, []string{"outcome"}) // outcome: upserted, skipped, error

	// PollTasksInFlight tracks claimed poll queue tasks.
	PollTasksInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "inventory_poll_tasks_in_flight",
		Help: "Number of poll queue tasks currently claimed by workers",
	})
)
