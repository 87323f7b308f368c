package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(cascadeFallbacks, cascadeExhausted, retryAttempts) }

var (
	cascadeFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cascade_fallbacks_total",
			Help: "Cascade runs won by a candidate other than the first, per candidate list.",
		},
		[]string{"version"},
	)

	cascadeExhausted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cascade_exhausted_total",
			Help: "Cascade runs where every candidate failed, per candidate list.",
		},
		[]string{"version"},
	)

	retryAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Retries scheduled after a failed attempt, per operation.",
		},
		[]string{"operation"},
	)
)

func IncCascadeFallback(version string)  { cascadeFallbacks.WithLabelValues(norm(version)).Inc() }
func IncCascadeExhausted(version string) { cascadeExhausted.WithLabelValues(norm(version)).Inc() }
func IncRetry(operation string)          { retryAttempts.WithLabelValues(norm(operation)).Inc() }
