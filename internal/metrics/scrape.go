package metrics

import (
	"context"
	"time"

	"github.com/JakeFAU/sellerguard/internal/monitor"
	"github.com/JakeFAU/sellerguard/internal/scrape"
)

// Scrape attempt outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeTransient = "transient"
	OutcomePermanent = "permanent"
)

// ObserveScrape counts one scrape attempt for the host of rawURL.
func (s *Sink) ObserveScrape(rawURL string, err error) {
	outcome := OutcomeSuccess
	switch {
	case err == nil:
	case scrape.IsTransient(err):
		outcome = OutcomeTransient
	default:
		outcome = OutcomePermanent
	}
	s.scrapeAttempts.WithLabelValues(SanitizeSite(rawURL), outcome).Inc()
}

// ObserveRateLimitDelay records how long a scrape waited for its site's
// rate limiter.
func (s *Sink) ObserveRateLimitDelay(site string, d time.Duration) {
	s.rateLimitDelay.WithLabelValues(SanitizeSite(site)).Observe(d.Seconds())
}

// InstrumentAttempter wraps next so every single attempt is counted.
func (s *Sink) InstrumentAttempter(next scrape.Attempter) scrape.Attempter {
	return scrape.AttempterFunc(func(ctx context.Context, url string) (monitor.ScrapeResult, error) {
		res, err := next.Attempt(ctx, url)
		s.ObserveScrape(url, err)
		return res, err
	})
}
