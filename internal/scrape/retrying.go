package scrape

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sellerguard/internal/monitor"
	"github.com/JakeFAU/sellerguard/internal/retry"
)

// Attempter performs exactly one scrape attempt.
type Attempter interface {
	Attempt(ctx context.Context, url string) (monitor.ScrapeResult, error)
}

// AttempterFunc adapts a function to Attempter.
type AttempterFunc func(ctx context.Context, url string) (monitor.ScrapeResult, error)

// Attempt calls f.
func (f AttempterFunc) Attempt(ctx context.Context, url string) (monitor.ScrapeResult, error) {
	return f(ctx, url)
}

// Retrying implements monitor.Scraper by retrying transient failures of an
// Attempter. Each attempt runs under its own timeout.
type Retrying struct {
	attempter Attempter
	policy    retry.Policy
	timeout   time.Duration
	logger    *zap.Logger
}

var _ monitor.Scraper = (*Retrying)(nil)

// NewRetrying wraps attempter. A zero timeout disables the per-attempt deadline.
func NewRetrying(attempter Attempter, policy retry.Policy, timeout time.Duration, logger *zap.Logger) (*Retrying, error) {
	if attempter == nil {
		return nil, errors.New("scrape attempter is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrying{
		attempter: attempter,
		policy:    policy.Normalize(),
		timeout:   timeout,
		logger:    logger,
	}, nil
}

// Scrape fetches url, retrying transient failures up to the policy bound.
func (r *Retrying) Scrape(ctx context.Context, url string) (monitor.ScrapeResult, error) {
	hooks := retry.Hooks{
		Retryable: IsTransient,
		OnFailure: func(attempt int, err error, willRetry bool) {
			r.logger.Error("scrape attempt failed",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", r.policy.MaxAttempts),
				zap.Bool("transient", IsTransient(err)),
				zap.Bool("will_retry", willRetry),
				zap.Error(err),
			)
		},
	}
	result, err := retry.Do(ctx, r.policy, hooks, func(ctx context.Context, attempt int) (monitor.ScrapeResult, error) {
		res, err := r.attemptOnce(ctx, url)
		if err != nil {
			return monitor.ScrapeResult{}, annotate(err, url, attempt, r.timeout)
		}
		return res, nil
	})
	if err != nil {
		return monitor.ScrapeResult{}, err
	}
	return result, nil
}

func (r *Retrying) attemptOnce(ctx context.Context, url string) (monitor.ScrapeResult, error) {
	if r.timeout <= 0 {
		return r.attempter.Attempt(ctx, url)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	res, err := r.attempter.Attempt(attemptCtx, url)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		var se *Error
		if !errors.As(err, &se) {
			return monitor.ScrapeResult{}, NewTransient(url, 0, "request timed out after "+r.timeout.String(), err)
		}
	}
	return res, err
}

// annotate guarantees the returned error is a *Error stamped with the attempt
// number. Unknown errors are treated as permanent, except caller timeouts.
func annotate(err error, url string, attempt int, timeout time.Duration) error {
	var se *Error
	if !errors.As(err, &se) {
		if errors.Is(err, context.DeadlineExceeded) {
			se = NewTransient(url, 0, "request timed out after "+timeout.String(), err)
		} else {
			se = NewPermanent(url, 0, "unexpected scrape failure", err)
		}
		se.Attempt = attempt
		return se
	}
	if se.URL == "" {
		se.URL = url
	}
	se.Attempt = attempt
	return err
}
