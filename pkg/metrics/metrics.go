// Package metrics exposes Prometheus metrics for validation, repair,
// interpretation and backtest hand-off.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/algomatic/stratgraph/pkg/dsl"
)

// Registry holds the service's collectors on a private Prometheus registry.
// A nil *Registry is valid and records nothing.
type Registry struct {
	reg *prometheus.Registry

	Validations     *prometheus.CounterVec
	Diagnostics     *prometheus.CounterVec
	ValidationTime  prometheus.Histogram
	Repairs         prometheus.Counter
	RepairNotes     prometheus.Counter
	LLMRequests     *prometheus.CounterVec
	LLMLatency      prometheus.Histogram
	BacktestRuns    *prometheus.CounterVec
	BacktestLatency prometheus.Histogram
}

// NewRegistry creates and registers every collector, plus the Go runtime
// and process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		Validations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stratgraph_validations_total",
				Help: "Total number of graph validations by outcome",
			},
			[]string{"result"},
		),

		Diagnostics: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stratgraph_diagnostics_total",
				Help: "Total number of validation diagnostics by category and severity",
			},
			[]string{"category", "severity"},
		),

		ValidationTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stratgraph_validation_duration_seconds",
				Help:    "Duration of one validation pass in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
			},
		),

		Repairs: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stratgraph_repairs_total",
				Help: "Total number of normalizer passes",
			},
		),

		RepairNotes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stratgraph_repair_fixes_total",
				Help: "Total number of auto-fixes applied by the normalizer",
			},
		),

		LLMRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stratgraph_llm_requests_total",
				Help: "Total number of language model requests by status",
			},
			[]string{"status"},
		),

		LLMLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stratgraph_llm_latency_seconds",
				Help:    "Language model round-trip latency in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60},
			},
		),

		BacktestRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stratgraph_backtest_runs_total",
				Help: "Total number of backtest runs by status",
			},
			[]string{"status"},
		),

		BacktestLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stratgraph_backtest_duration_seconds",
				Help:    "Wall time of a backtest run in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.Validations,
		r.Diagnostics,
		r.ValidationTime,
		r.Repairs,
		r.RepairNotes,
		r.LLMRequests,
		r.LLMLatency,
		r.BacktestRuns,
		r.BacktestLatency,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer returns the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.reg
}

// ObserveValidation records one validation result.
func (r *Registry) ObserveValidation(res dsl.Result, elapsed time.Duration) {
	if r == nil {
		return
	}
	outcome := "invalid"
	if res.IsValid {
		outcome = "valid"
	}
	r.Validations.WithLabelValues(outcome).Inc()
	r.ValidationTime.Observe(elapsed.Seconds())
	for _, d := range res.Issues {
		r.Diagnostics.WithLabelValues(d.Category.String(), d.Severity.String()).Inc()
	}
}

// ObserveRepair records one normalizer pass and the fixes it applied.
func (r *Registry) ObserveRepair(fixes int) {
	if r == nil {
		return
	}
	r.Repairs.Inc()
	r.RepairNotes.Add(float64(fixes))
}

// ObserveLLM records one language model request.
func (r *Registry) ObserveLLM(elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	r.LLMRequests.WithLabelValues(status(err)).Inc()
	r.LLMLatency.Observe(elapsed.Seconds())
}

// ObserveBacktest records one backtest run.
func (r *Registry) ObserveBacktest(elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	r.BacktestRuns.WithLabelValues(status(err)).Inc()
	r.BacktestLatency.Observe(elapsed.Seconds())
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
