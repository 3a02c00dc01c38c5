package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RowsIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "compliance",
		Name:      "rows_ingested_total",
		Help:      "Total raw rows ingested across all tenants.",
	})
	RowsStaged = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "compliance",
		Name:      "rows_staged_total",
		Help:      "Total rows persisted to staging.",
	})
	RowsExcluded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "compliance",
		Name:      "rows_excluded_total",
		Help:      "Total rows excluded by rules or eligibility checks.",
	})
	RunsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "compliance",
		Name:      "runs_failed_total",
		Help:      "Total staging executions that ended in failure.",
	})
	StageDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "compliance",
		Name:      "stage_duration_seconds",
		Help:      "Wall time of one stage invocation.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)

// Init registers collectors; call once from main.
func Init() {
	prometheus.MustRegister(RowsIngested, RowsStaged, RowsExcluded, RunsFailed, StageDuration)
}

// Handler returns the scrape endpoint handler for mounting on the router.
func Handler() http.Handler {
	return promhttp.Handler()
}
