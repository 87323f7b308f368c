package web

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"research-gateway/internal/apperrors"
	"research-gateway/internal/infra/logging"
	"research-gateway/internal/infra/metrics"
)

type errorBody struct {
	Error   apperrors.NormalizedError `json:"error"`
	TraceID string                    `json:"traceId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError normalizes err, logs it once and writes the error envelope.
func writeError(w http.ResponseWriter, r *http.Request, logger *zerolog.Logger, err error, provider string) {
	ne := apperrors.Normalize(err, provider)
	status := apperrors.HTTPStatus(ne.Code)
	metrics.IncNormalizedError(string(ne.Code), ne.Provider)

	ctx := r.Context()
	if ne.Provider != "unknown" {
		ctx = logging.WithProvider(ctx, ne.Provider)
	}
	l := logging.With(ctx, logger)
	ev := l.Warn()
	if status >= http.StatusInternalServerError {
		ev = l.Error()
	}
	ev.Object("error", ne).Str("path", r.URL.Path).Int("status", status).Msg("request failed")

	writeJSON(w, status, errorBody{Error: ne, TraceID: logging.TraceID(r.Context())})
}
