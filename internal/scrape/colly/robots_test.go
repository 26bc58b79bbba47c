package collyscrape

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripResult struct {
	resp *http.Response
	err  error
}

type stubRoundTripper struct {
	results []roundTripResult
	calls   int
}

func (s *stubRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	i := s.calls
	s.calls++
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	return s.results[i].resp, s.results[i].err
}

func noBackoff(n int) []time.Duration {
	return make([]time.Duration, n)
}

func TestRobotsTransport_FallsBackToAllowAllAfterTimeouts(t *testing.T) {
	t.Parallel()

	base := &stubRoundTripper{results: []roundTripResult{{err: context.DeadlineExceeded}}}
	var fallbackHost string
	transport := newRobotsTransport(base, func(host string) { fallbackHost = host })
	transport.backoff = noBackoff(3)

	req := httptest.NewRequest(http.MethodGet, "https://sellers.example.com/robots.txt", nil)
	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "User-agent: *\nAllow: /", string(body))
	assert.Equal(t, 4, base.calls)
	assert.Equal(t, "sellers.example.com", fallbackHost)
}

func TestRobotsTransport_RecoversAfterOneTimeout(t *testing.T) {
	t.Parallel()

	ok := &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}
	base := &stubRoundTripper{results: []roundTripResult{{err: context.DeadlineExceeded}, {resp: ok}}}
	transport := newRobotsTransport(base, nil)
	transport.backoff = noBackoff(3)

	resp, err := transport.RoundTrip(httptest.NewRequest(http.MethodGet, "https://example.com/robots.txt", nil))
	require.NoError(t, err)
	assert.Same(t, ok, resp)
	assert.Equal(t, 2, base.calls)
}

func TestRobotsTransport_NonTimeoutErrorsAreReturned(t *testing.T) {
	t.Parallel()

	base := &stubRoundTripper{results: []roundTripResult{{err: errors.New("connection refused")}}}
	transport := newRobotsTransport(base, nil)

	_, err := transport.RoundTrip(httptest.NewRequest(http.MethodGet, "https://example.com/robots.txt", nil))
	require.ErrorContains(t, err, "connection refused")
	assert.Equal(t, 1, base.calls)
}

func TestRobotsTransport_PagesPassThrough(t *testing.T) {
	t.Parallel()

	base := &stubRoundTripper{results: []roundTripResult{{err: context.DeadlineExceeded}}}
	transport := newRobotsTransport(base, nil)

	_, err := transport.RoundTrip(httptest.NewRequest(http.MethodGet, "https://example.com/fees", nil))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, base.calls)
}
