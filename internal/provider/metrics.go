package provider

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the provider dispatcher.
type Metrics struct {
	AttemptsTotal   *prometheus.CounterVec
	FailuresTotal   *prometheus.CounterVec
	FallbacksTotal  prometheus.Counter
	ExhaustedTotal  prometheus.Counter
	GenerateSeconds *prometheus.HistogramVec
	TokensUsedTotal *prometheus.CounterVec
}

// NewMetrics creates and registers dispatcher metrics.
//
// sync.Once guards registration so repeated dispatcher construction never
// panics with a duplicate-collector registration.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			AttemptsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "draftd_provider_attempts_total",
					Help: "Total generation attempts per provider",
				},
				[]string{"provider"},
			),
			FailuresTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "draftd_provider_failures_total",
					Help: "Total failed generation attempts per provider",
				},
				[]string{"provider"},
			),
			FallbacksTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "draftd_provider_fallbacks_total",
					Help: "Times the chain advanced past a failed or unavailable provider",
				},
			),
			ExhaustedTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "draftd_provider_chain_exhausted_total",
					Help: "Dispatches that failed every provider in the chain",
				},
			),
			GenerateSeconds: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "draftd_provider_generate_seconds",
					Help:    "Duration of successful provider calls in seconds",
					Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
				},
				[]string{"provider"},
			),
			TokensUsedTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "draftd_provider_tokens_used_total",
					Help: "Completion tokens reported by providers",
				},
				[]string{"provider"},
			),
		}
	})
	return globalMetrics
}
