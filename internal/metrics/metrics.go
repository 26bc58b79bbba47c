// Package metrics implements the observability sink: in-process counters
// mirrored to Prometheus collectors on a dedicated registry.
package metrics

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JakeFAU/sellerguard/internal/monitor"
)

// Sink holds the pipeline counters and every Prometheus collector the
// service exports.
type Sink struct {
	mu     sync.Mutex
	counts map[string]int64

	registry *prometheus.Registry

	pipelineEvents *prometheus.CounterVec
	scrapeAttempts *prometheus.CounterVec
	rateLimitDelay *prometheus.HistogramVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

var _ monitor.Counters = (*Sink)(nil)

// New creates a Sink registered on reg. A nil reg gets a fresh registry with
// the Go runtime and process collectors.
func New(reg *prometheus.Registry) *Sink {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	factory := promauto.With(reg)
	s := &Sink{
		counts:   make(map[string]int64),
		registry: reg,
		pipelineEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sellerguard_pipeline_events_total",
				Help: "Pipeline counters (runs, failures, relevant_changes, emails_sent, skipped_runs).",
			},
			[]string{"counter"},
		),
		scrapeAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sellerguard_scrape_attempts_total",
				Help: "Single scrape attempts, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		),
		rateLimitDelay: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sellerguard_scrape_rate_limit_delay_seconds",
				Help:    "Time spent waiting on the per-site scrape rate limiter.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sellerguard_http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sellerguard_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30},
			},
			[]string{"method", "route"},
		),
	}
	for _, name := range []string{
		monitor.CounterRuns,
		monitor.CounterFailures,
		monitor.CounterRelevantChanges,
		monitor.CounterEmailsSent,
		monitor.CounterSkippedRuns,
	} {
		s.counts[name] = 0
		s.pipelineEvents.WithLabelValues(name)
	}
	return s
}

// Increment adds amount to the named counter and returns the new value.
// Negative amounts are ignored.
func (s *Sink) Increment(name string, amount int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if amount > 0 {
		s.counts[name] += amount
		s.pipelineEvents.WithLabelValues(name).Add(float64(amount))
	}
	return s.counts[name]
}

// Snapshot returns a copy of all counters.
func (s *Sink) Snapshot() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out
}

// Names returns the known counter names in sorted order.
func (s *Sink) Names() []string {
	snap := s.Snapshot()
	names := make([]string, 0, len(snap))
	for k := range snap {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Registry exposes the underlying Prometheus registry.
func (s *Sink) Registry() *prometheus.Registry {
	return s.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

// SanitizeSite extracts a lowercase hostname from a URL, or "unknown".
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
