package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/sellerguard/internal/config"
	"github.com/JakeFAU/sellerguard/internal/metrics"
	"github.com/JakeFAU/sellerguard/internal/monitor"
	"github.com/JakeFAU/sellerguard/internal/scheduler"
)

func TestServer_Health_ReportsScheduleAndLastRun(t *testing.T) {
	t.Parallel()

	runner := &mockRunner{}
	runner.On("Interval").Return(15 * time.Minute)
	runner.On("State").Return(scheduler.StateIdle)
	runner.On("LastOutcome").Return(scheduler.Outcome{
		RunID:   "run-1",
		Trigger: scheduler.TriggerScheduled,
		Result:  monitor.RunResult{ProcessedTargets: 2, SentEmails: 1},
	}, true)
	server := newTestServer(t, runner, config.AuthConfig{}, nil)

	for _, path := range []string{"/health", "/healthz"} {
		rec := serve(server, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rec.Code, path)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, "sellerguard", body["service"])
		assert.EqualValues(t, 15, body["scheduleIntervalMinutes"])
		assert.Equal(t, "2026-10-19T12:00:00Z", body["timestamp"])
		lastRun, ok := body["lastRun"].(map[string]any)
		require.True(t, ok, "lastRun should be an object")
		assert.Equal(t, "run-1", lastRun["run_id"])
	}
}

func TestServer_Health_NoRunYet(t *testing.T) {
	t.Parallel()

	runner := &mockRunner{}
	runner.On("Interval").Return(60 * time.Minute)
	runner.On("State").Return(scheduler.StateIdle)
	runner.On("LastOutcome").Return(scheduler.Outcome{}, false)
	server := newTestServer(t, runner, config.AuthConfig{}, nil)

	rec := serve(server, http.MethodGet, "/healthz", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"lastRun":null`)
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		ready  Pinger
		status int
	}{
		{name: "no dependency", ready: nil, status: http.StatusOK},
		{name: "healthy database", ready: pingFunc(func(context.Context) error { return nil }), status: http.StatusOK},
		{
			name:   "database down",
			ready:  pingFunc(func(context.Context) error { return errors.New("connection refused") }),
			status: http.StatusServiceUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			server := newTestServer(t, &mockRunner{}, config.AuthConfig{}, tt.ready)
			rec := serve(server, http.MethodGet, "/readyz", nil)
			require.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestServer_TriggerRun(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		outcome scheduler.Outcome
		err     error
		status  int
		want    string
	}{
		{
			name:    "completed",
			outcome: scheduler.Outcome{RunID: "run-7", Trigger: scheduler.TriggerManual, Result: monitor.RunResult{ProcessedTargets: 3}},
			status:  http.StatusOK,
			want:    `"processed_targets":3`,
		},
		{
			name:    "overlap",
			outcome: scheduler.Outcome{Skipped: true, Reason: scheduler.ReasonOverlap, Trigger: scheduler.TriggerManual},
			status:  http.StatusConflict,
			want:    `"reason":"overlap"`,
		},
		{
			name:    "failed",
			outcome: scheduler.Outcome{RunID: "run-8", Trigger: scheduler.TriggerManual, Error: "list active targets: boom"},
			err:     errors.New("list active targets: boom"),
			status:  http.StatusInternalServerError,
			want:    `"error":"list active targets: boom"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			runner := &mockRunner{}
			runner.On("RunNow", mock.Anything).Return(tt.outcome, tt.err).Once()
			server := newTestServer(t, runner, config.AuthConfig{}, nil)

			rec := serve(server, http.MethodPost, "/v1/runs", nil)

			require.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
			runner.AssertExpectations(t)
		})
	}
}

func TestServer_TriggerRun_DrivesScheduler(t *testing.T) {
	t.Parallel()

	sink := metrics.New(prometheus.NewRegistry())
	sched, err := scheduler.New(scheduler.Config{
		IntervalMinutes: 5,
		Counters:        sink,
		Run: func(context.Context) (monitor.RunResult, error) {
			return monitor.RunResult{ProcessedTargets: 1, CreatedChangeEvents: 1, SentEmails: 1}, nil
		},
	})
	require.NoError(t, err)
	server, err := NewServer(Deps{Runner: sched, Sink: sink, Logger: zap.NewNop()})
	require.NoError(t, err)

	rec := serve(server, http.MethodPost, "/v1/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(server, http.MethodGet, "/v1/counters", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Counters map[string]int64 `json:"counters"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(1), body.Counters[monitor.CounterRuns])
	assert.Equal(t, int64(1), body.Counters[monitor.CounterRelevantChanges])
	assert.Equal(t, int64(1), body.Counters[monitor.CounterEmailsSent])
	assert.Equal(t, int64(0), body.Counters[monitor.CounterFailures])

	rec = serve(server, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `sellerguard_pipeline_events_total{counter="runs"} 1`)
	assert.Contains(t, rec.Body.String(), `sellerguard_http_requests_total{code="200",method="POST"} 1`)
}

func TestServer_TriggerRun_SurvivesClientDisconnect(t *testing.T) {
	t.Parallel()

	targets := []string{"a", "b", "c"}
	sched, err := scheduler.New(scheduler.Config{
		IntervalMinutes: 5,
		Run: func(ctx context.Context) (monitor.RunResult, error) {
			var res monitor.RunResult
			for range targets {
				if err := ctx.Err(); err != nil {
					return res, fmt.Errorf("pipeline run canceled: %w", err)
				}
				res.ProcessedTargets++
				res.PersistedSnapshots++
			}
			return res, nil
		},
	})
	require.NoError(t, err)
	server, err := NewServer(Deps{Runner: sched, Sink: metrics.New(prometheus.NewRegistry()), Logger: zap.NewNop()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/v1/runs", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	last, ok := sched.LastOutcome()
	require.True(t, ok)
	assert.Empty(t, last.Error)
	assert.Equal(t, monitor.RunResult{ProcessedTargets: 3, PersistedSnapshots: 3}, last.Result)
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	runner := &mockRunner{}
	runner.On("Interval").Return(time.Hour)
	runner.On("State").Return(scheduler.StateIdle)
	runner.On("LastOutcome").Return(scheduler.Outcome{}, false)
	server := newTestServer(t, runner, config.AuthConfig{Enabled: true, APIKey: "secret"}, nil)

	rec := serve(server, http.MethodGet, "/v1/counters", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(server, http.MethodGet, "/v1/counters", map[string]string{"X-API-Key": "secret"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(server, http.MethodGet, "/v1/counters?api_key=secret", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Probes stay open.
	rec = serve(server, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_RequestIDMiddleware(t *testing.T) {
	t.Parallel()

	runner := &mockRunner{}
	runner.On("Interval").Return(time.Hour)
	runner.On("State").Return(scheduler.StateIdle)
	runner.On("LastOutcome").Return(scheduler.Outcome{}, false)
	core, logs := observer.New(zap.InfoLevel)
	sink := metrics.New(prometheus.NewRegistry())
	server, err := NewServer(Deps{Runner: runner, Sink: sink, Logger: zap.New(core)})
	require.NoError(t, err)

	rec := serve(server, http.MethodGet, "/healthz", nil)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = serve(server, http.MethodGet, "/healthz", map[string]string{"X-Request-ID": "req-42"})
	require.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))

	entries := logs.FilterMessage("request completed").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "req-42", entries[1].ContextMap()["request_id"])
	assert.EqualValues(t, http.StatusOK, entries[1].ContextMap()["status"])
}

func TestServer_RecoverMiddleware(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.ErrorLevel)
	handler := recoverMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestNewServer_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewServer(Deps{Sink: metrics.New(prometheus.NewRegistry())})
	require.Error(t, err)

	_, err = NewServer(Deps{Runner: &mockRunner{}})
	require.Error(t, err)
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rw.Hijack(); err == nil || err.Error() != "hijacker not supported" {
		t.Fatalf("expected unsupported hijacker error, got %v", err)
	}

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	if err != nil {
		t.Fatalf("expected successful hijack, got %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close hijacked conn: %v", err)
	}
	if err := h.CloseClient(); err != nil {
		t.Fatalf("close hijacked client: %v", err)
	}
	if buf == nil {
		t.Fatal("expected buf to be non-nil")
	}
}

// --- helpers/fakes ---

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) RunNow(ctx context.Context) (scheduler.Outcome, error) {
	args := m.Called(ctx)
	return args.Get(0).(scheduler.Outcome), args.Error(1)
}

func (m *mockRunner) LastOutcome() (scheduler.Outcome, bool) {
	args := m.Called()
	return args.Get(0).(scheduler.Outcome), args.Bool(1)
}

func (m *mockRunner) Interval() time.Duration {
	return m.Called().Get(0).(time.Duration)
}

func (m *mockRunner) State() scheduler.State {
	return m.Called().Get(0).(scheduler.State)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}

func newTestServer(t *testing.T, runner Runner, auth config.AuthConfig, ready Pinger) *Server {
	t.Helper()
	server, err := NewServer(Deps{
		Runner: runner,
		Sink:   metrics.New(prometheus.NewRegistry()),
		Ready:  ready,
		Clock:  fixedClock{now: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)},
		Logger: zap.NewNop(),
		Auth:   auth,
	})
	require.NoError(t, err)
	return server
}

func serve(server *Server, method, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(""))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}
