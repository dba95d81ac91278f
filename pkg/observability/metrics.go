// Package observability exposes the engine's own operational metrics.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts what an analysis run did. One instance per process.
type Metrics struct {
	WorkloadsAnalyzed prometheus.Counter
	WorkloadsSkipped  *prometheus.CounterVec
	WorkloadsFailed   prometheus.Counter
	Opportunities     *prometheus.CounterVec
	SavingsUSD        prometheus.Counter
	RunDuration       prometheus.Histogram
}

func New(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		WorkloadsAnalyzed: factory.NewCounter(prometheus.CounterOpts{
			Name: "greenops_workloads_analyzed_total",
			Help: "Workloads that completed analysis.",
		}),
		WorkloadsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "greenops_workloads_skipped_total",
			Help: "Workloads skipped during analysis, by reason.",
		}, []string{"reason"}),
		WorkloadsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "greenops_workloads_failed_total",
			Help: "Workloads whose analysis failed after retries.",
		}),
		Opportunities: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "greenops_opportunities_total",
			Help: "Opportunities detected, by type.",
		}, []string{"type"}),
		SavingsUSD: factory.NewCounter(prometheus.CounterOpts{
			Name: "greenops_projected_savings_usd_total",
			Help: "Cumulative projected monthly savings across detected opportunities.",
		}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "greenops_run_duration_seconds",
			Help:    "Wall-clock duration of analysis runs.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
}

// Handler serves the registry over HTTP for scraping.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
