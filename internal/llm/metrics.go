package llm

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus collectors for outbound model calls.
type Metrics struct {
	AttemptsTotal    *prometheus.CounterVec
	RetriesTotal     *prometheus.CounterVec
	OutcomesTotal    *prometheus.CounterVec
	AttemptDuration  *prometheus.HistogramVec
	ExtractionsTotal *prometheus.CounterVec
}

// NewMetrics registers the collectors once per process.
//
//   - grader_llm_attempts_total{service}
//   - grader_llm_retries_total{service,reason}
//   - grader_llm_calls_total{service,outcome}
//   - grader_llm_attempt_duration_seconds{service}
//   - grader_llm_json_extractions_total{strategy}
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			AttemptsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "grader",
				Subsystem: "llm",
				Name:      "attempts_total",
				Help:      "HTTP attempts sent to model services.",
			}, []string{"service"}),
			RetriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "grader",
				Subsystem: "llm",
				Name:      "retries_total",
				Help:      "Transient failures that led to a retry.",
			}, []string{"service", "reason"}),
			OutcomesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "grader",
				Subsystem: "llm",
				Name:      "calls_total",
				Help:      "Completed invocations by final outcome.",
			}, []string{"service", "outcome"}),
			AttemptDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "grader",
				Subsystem: "llm",
				Name:      "attempt_duration_seconds",
				Help:      "Latency of individual HTTP attempts.",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			}, []string{"service"}),
			ExtractionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "grader",
				Subsystem: "llm",
				Name:      "json_extractions_total",
				Help:      "Structured payload recoveries by strategy.",
			}, []string{"strategy"}),
		}
	})
	return globalMetrics
}
