// Package metrics defines the Prometheus collectors for the ingestion
// pipeline and exposes an HTTP endpoint for scraping.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cycle result label values.
const (
	CycleOK      = "ok"
	CycleSkipped = "skipped"
	CycleError   = "error"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	FetchAttemptsTotal   *prometheus.CounterVec
	IngestCyclesTotal    *prometheus.CounterVec
	RowsParsedTotal      prometheus.Counter
	RowsDroppedTotal     prometheus.Counter
	ItemsUpsertedTotal   prometheus.Counter
	LastSuccessTimestamp prometheus.Gauge
}

// New creates all collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FetchAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wb_fetch_attempts_total",
				Help: "Total HTTP attempts against the tariffs feed by status (ok, error).",
			},
			[]string{"status"},
		),
		IngestCyclesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_cycles_total",
				Help: "Total ingestion cycles by result (ok, skipped, error).",
			},
			[]string{"result"},
		),
		RowsParsedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tariff_rows_parsed_total",
				Help: "Total tariff rows successfully canonicalized.",
			},
		),
		RowsDroppedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tariff_rows_dropped_total",
				Help: "Total source elements dropped during canonicalization; growth signals upstream schema drift.",
			},
		),
		ItemsUpsertedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tariff_items_upserted_total",
				Help: "Total daily items written by upsert.",
			},
		),
		LastSuccessTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ingest_last_success_timestamp_seconds",
				Help: "Unix timestamp of the last successful ingestion cycle.",
			},
		),
	}
}
