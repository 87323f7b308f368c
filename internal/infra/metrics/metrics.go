// File: internal/infra/metrics/metrics.go
package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler serves the default registry for /metrics.
func Handler() http.Handler { return promhttp.Handler() }

func norm(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "unknown"
	}
	return s
}
