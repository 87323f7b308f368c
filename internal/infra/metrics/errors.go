package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(normalizedErrors) }

var normalizedErrors = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "normalized_errors_total",
		Help: "Errors surfaced to callers after normalization.",
	},
	[]string{"code", "provider"},
)

func IncNormalizedError(code, provider string) {
	normalizedErrors.WithLabelValues(code, norm(provider)).Inc()
}
