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

// Metrics holds Prometheus metrics for the task executor.
type Metrics struct {
	TasksTotal          *prometheus.CounterVec
	TaskDurationSeconds *prometheus.HistogramVec
	RunsTotal           *prometheus.CounterVec
	RunDurationSeconds  prometheus.Histogram
}

// NewMetrics creates and registers executor metrics, once per process.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			TasksTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "draftd_pipeline_tasks_total",
					Help: "Tasks executed, by outcome",
				},
				[]string{"status"}, // "success" or "failure"
			),
			TaskDurationSeconds: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "draftd_pipeline_task_duration_seconds",
					Help:    "Task handler execution time in seconds",
					Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
				},
				[]string{"handler"},
			),
			RunsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "draftd_pipeline_runs_total",
					Help: "Orchestrator runs, by outcome",
				},
				[]string{"outcome"}, // "completed" or "partial"
			),
			RunDurationSeconds: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "draftd_pipeline_run_duration_seconds",
					Help:    "Full run duration in seconds",
					Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
				},
			),
		}
	})
	return globalMetrics
}
