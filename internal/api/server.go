package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/sellerguard/internal/config"
	"github.com/JakeFAU/sellerguard/internal/monitor"
	"github.com/JakeFAU/sellerguard/internal/scheduler"
)

// ServiceName is reported by the health endpoints.
const ServiceName = "sellerguard"

// Runner is the slice of *scheduler.Scheduler the server drives.
type Runner interface {
	RunNow(ctx context.Context) (scheduler.Outcome, error)
	LastOutcome() (scheduler.Outcome, bool)
	Interval() time.Duration
	State() scheduler.State
}

// Pinger reports whether a downstream dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CounterSink exposes counters and the Prometheus handler.
type CounterSink interface {
	monitor.Counters
	Handler() http.Handler
	Middleware(next http.Handler) http.Handler
}

// Deps wires a Server. Ready and Clock are optional.
type Deps struct {
	Runner  Runner
	Sink    CounterSink
	Ready   Pinger
	Clock   monitor.Clock
	Logger  *zap.Logger
	Auth    config.AuthConfig
	Timeout time.Duration
}

// Server wires HTTP handlers to the scheduler and counters.
type Server struct {
	router chi.Router
	runner Runner
	sink   CounterSink
	ready  Pinger
	clock  monitor.Clock
	logger *zap.Logger
}

type healthResponse struct {
	Status                  string             `json:"status"`
	Service                 string             `json:"service"`
	ScheduleIntervalMinutes int                `json:"scheduleIntervalMinutes"`
	State                   scheduler.State    `json:"state"`
	LastRun                 *scheduler.Outcome `json:"lastRun"`
	Timestamp               time.Time          `json:"timestamp"`
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps) (*Server, error) {
	if deps.Runner == nil {
		return nil, errors.New("api: runner is required")
	}
	if deps.Sink == nil {
		return nil, errors.New("api: counter sink is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = wallClock{}
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	s := &Server{
		runner: deps.Runner,
		sink:   deps.Sink,
		ready:  deps.Ready,
		clock:  clock,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(deps.Sink.Middleware)

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(timeout))
		r.Get("/health", s.health)
		r.Get("/healthz", s.health)
		r.Get("/readyz", s.readyz)
		r.Get("/metrics", deps.Sink.Handler().ServeHTTP)
	})

	r.Route("/v1", func(r chi.Router) {
		if deps.Auth.Enabled {
			r.Use(apiKeyMiddleware(deps.Auth.APIKey))
		}
		r.With(timeoutMiddleware(timeout)).Get("/counters", s.counters)
		// RunNow blocks for a whole pipeline pass.
		r.Post("/runs", s.triggerRun)
	})

	s.router = r
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:                  "ok",
		Service:                 ServiceName,
		ScheduleIntervalMinutes: int(s.runner.Interval() / time.Minute),
		State:                   s.runner.State(),
		Timestamp:               s.clock.Now(),
	}
	if last, ok := s.runner.LastOutcome(); ok {
		resp.LastRun = &last
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) counters(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"counters": s.sink.Snapshot()})
}

// triggerRun detaches the run from the request so a client disconnect does
// not abort targets that have not been attempted yet.
func (s *Server) triggerRun(w http.ResponseWriter, r *http.Request) {
	out, err := s.runner.RunNow(context.WithoutCancel(r.Context()))
	switch {
	case out.Skipped:
		writeJSON(w, http.StatusConflict, out)
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, out)
	default:
		writeJSON(w, http.StatusOK, out)
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the id assigned by the request-id middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("request_id", RequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.String("request_id", RequestID(r.Context())),
						zap.Any("error", rec),
					)
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
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

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
