// Package api exposes the HTTP interface for the scrape service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/webharvest/webharvest/internal/metrics"
	"github.com/webharvest/webharvest/internal/scrape"
	"github.com/webharvest/webharvest/internal/service"
)

// Server wires HTTP handlers to the scraper.
type Server struct {
	router  chi.Router
	scraper *service.Scraper
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(scraper *service.Scraper, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{scraper: scraper, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(90 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/scrape", s.scrapeHandler)
		r.Get("/status", s.statusHandler)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type scrapeRequest struct {
	URL              string            `json:"url"`
	UserAgent        string            `json:"user_agent"`
	Headers          map[string]string `json:"headers"`
	TimeoutSeconds   int               `json:"timeout_seconds"`
	ElementsToRemove []string          `json:"elements_to_remove"`
	IncludeHTML      bool              `json:"include_html"`
}

func (s *Server) scrapeHandler(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}

	fetchReq := scrape.FetchRequest{
		URL:       req.URL,
		UserAgent: req.UserAgent,
	}
	if len(req.Headers) > 0 {
		fetchReq.Headers = http.Header{}
		for k, v := range req.Headers {
			fetchReq.Headers.Set(k, v)
		}
	}
	if req.TimeoutSeconds > 0 {
		fetchReq.Timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}

	resp, err := s.scraper.Scrape(r.Context(), fetchReq, req.ElementsToRemove)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if !req.IncludeHTML {
		resp.CleanHTML = ""
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) statusHandler(w http.ResponseWriter, _ *http.Request) {
	state, failures := s.scraper.BreakerState()
	writeJSON(w, http.StatusOK, map[string]any{
		"circuit_breaker": state,
		"failure_count":   failures,
	})
}

// statusFor translates pipeline failures into HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, scrape.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, scrape.ErrNoDomain):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	switch scrape.KindOf(err) {
	case scrape.KindTimeout:
		return http.StatusGatewayTimeout
	case scrape.KindBlocked:
		return http.StatusForbidden
	default:
		return http.StatusBadGateway
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)
		metrics.ObserveHTTPRequest(r.Method, r.URL.Path, ww.status, elapsed)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", elapsed),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
