package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"research-gateway/internal/infra/metrics"
)

// Routes builds the router. requestTimeout bounds every route except the
// event stream, which lives as long as its subscriber.
func (h *Handler) Routes(requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(TraceID(), RequestLog(h.log), Recover(h.log))

	r.Get("/health", h.health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/research/stream", h.researchStream)

		r.Group(func(r chi.Router) {
			r.Use(Timeout(requestTimeout))
			r.Post("/research", h.startResearch)
			r.Get("/research/status", h.researchStatus)
			r.Post("/generate", h.generateContent)
			r.Get("/models", h.models)
		})
	})
	return r
}

type Server struct {
	server *http.Server
	log    *zerolog.Logger
}

func NewServer(port int, handler http.Handler, logger *zerolog.Logger) *Server {
	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: logger,
	}
}

// Start blocks until the server stops. A graceful Shutdown is not an error.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
