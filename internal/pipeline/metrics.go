package pipeline

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus collectors for the grading pipeline.
type Metrics struct {
	JobsTotal        *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
	ExamCacheLookups *prometheus.CounterVec
	ExtractionsTotal *prometheus.CounterVec
	JobsInFlight     prometheus.Gauge
}

func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			JobsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "grader",
				Subsystem: "pipeline",
				Name:      "jobs_total",
				Help:      "Pipeline runs by outcome.",
			}, []string{"outcome"}),
			StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "grader",
				Subsystem: "pipeline",
				Name:      "stage_duration_seconds",
				Help:      "Wall time spent in each stage.",
				Buckets:   []float64{0.01, 0.1, 1, 5, 15, 60, 180, 600, 1800},
			}, []string{"stage"}),
			ExamCacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "grader",
				Subsystem: "pipeline",
				Name:      "exam_cache_lookups_total",
				Help:      "Shared question paper and answer key cache lookups.",
			}, []string{"result"}),
			ExtractionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "grader",
				Subsystem: "pipeline",
				Name:      "document_extractions_total",
				Help:      "Documents sent through vision OCR.",
			}, []string{"document"}),
			JobsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
				Namespace: "grader",
				Subsystem: "pipeline",
				Name:      "jobs_in_flight",
				Help:      "Jobs currently inside the pipeline.",
			}),
		}
	})
	return globalMetrics
}
