// Package ratelimit spaces scrape attempts per host with a token bucket.
package ratelimit

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/sellerguard/internal/monitor"
	"github.com/JakeFAU/sellerguard/internal/scrape"
)

// DelayObserver is told how long a wait took. Waits under a millisecond are
// not reported.
type DelayObserver func(host string, d time.Duration)

// Config holds rate limiter configuration. A non-positive RPS disables
// limiting.
type Config struct {
	RPS   float64
	Burst int
}

// Limiter manages per-host rate limits.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
	observe  DelayObserver
}

// New creates a Limiter. observe may be nil.
func New(cfg Config, observe DelayObserver) *Limiter {
	r := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    burst,
		observe:  observe,
	}
}

// Wait blocks until a token is available for the host of rawURL.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := hostOf(rawURL)
	l.mu.Lock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return scrape.NewTransient(rawURL, 0, "rate limit wait", err)
	}
	if d := time.Since(start); d > time.Millisecond && l.observe != nil {
		l.observe(host, d)
	}
	return nil
}

// Wrap returns an Attempter that waits for a token before each attempt.
func (l *Limiter) Wrap(next scrape.Attempter) scrape.Attempter {
	return scrape.AttempterFunc(func(ctx context.Context, rawURL string) (monitor.ScrapeResult, error) {
		if err := l.Wait(ctx, rawURL); err != nil {
			return monitor.ScrapeResult{}, err
		}
		return next.Attempt(ctx, rawURL)
	})
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
