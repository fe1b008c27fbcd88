package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/doppel-lab/keryx/pkg/usecase"
	"github.com/doppel-lab/keryx/pkg/utils/errutil"
	"github.com/doppel-lab/keryx/pkg/utils/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/m-mizutani/goerr/v2"
)

type Server struct {
	router    *chi.Mux
	uc        *usecase.UseCases
	rateLimit *viewerRateLimiter
}

type Options func(*Server)

// WithRateLimit enables a per-viewer token bucket on the message endpoint.
// perSecond is the sustained refill rate, burst the bucket size.
func WithRateLimit(perSecond float64, burst int) Options {
	return func(s *Server) {
		s.rateLimit = newViewerRateLimiter(perSecond, burst)
	}
}

func New(uc *usecase.UseCases, opts ...Options) *Server {
	r := chi.NewRouter()

	s := &Server{
		router: r,
		uc:     uc,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler)

	r.Route("/api/agents/{agentID}", func(r chi.Router) {
		r.Use(viewerExtractor)

		// Viewer surface
		r.Group(func(r chi.Router) {
			if s.rateLimit != nil {
				r.Use(s.rateLimit.middleware)
			}
			r.Post("/messages", messageHandler(uc))
		})

		// Owner surface
		r.Group(func(r chi.Router) {
			r.Use(ownerOnly(uc))
			r.Get("/metrics", metricsHandler(uc))
			r.Get("/config", getConfigHandler(uc))
			r.Put("/config", putConfigHandler(uc))
			r.Post("/knowledge", ingestKnowledgeHandler(uc))
			r.Get("/escalations", listEscalationsHandler(uc))
			r.Post("/escalations/{escalationID}/answer", answerEscalationHandler(uc))
			r.Put("/grants/{viewerID}", putGrantHandler(uc))
		})
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// accessLogger is a middleware that logs HTTP requests
func accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			logging.Default().Info("access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondJSON marshals v and writes it with the given status code
func respondJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to marshal response"), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data) //nolint:errcheck // header already committed
}

// handleError maps use case sentinels to HTTP status codes. Anything
// unmapped is a 500.
func handleError(ctx context.Context, w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, usecase.ErrAgentNotFound),
		errors.Is(err, usecase.ErrConversationNotFound),
		errors.Is(err, usecase.ErrEscalationNotFound):
		status = http.StatusNotFound
	case errors.Is(err, usecase.ErrConfigInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, usecase.ErrEscalationClosed):
		status = http.StatusConflict
	}
	errutil.HandleHTTP(ctx, w, err, status)
}
