// Package retry runs bounded attempts with linear, capped backoff. Both
// external boundaries (page scraping and alert delivery) share it.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Default policy values.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 3 * time.Second
)

// SleepFunc waits for d or until ctx finishes.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy bounds the number of attempts and the wait between them.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Sleep is injectable so tests never wait on the wall clock.
	Sleep SleepFunc
}

// DefaultPolicy returns three attempts with 1s, 2s backoff capped at 3s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Sleep:       ContextSleep,
	}
}

// Normalize fills unset or invalid fields with defaults.
func (p Policy) Normalize() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.Sleep == nil {
		p.Sleep = ContextSleep
	}
	return p
}

// Backoff returns min(MaxDelay, BaseDelay*attempt). Attempts are 1-based.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay * time.Duration(attempt)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Attempt is one invocation of the guarded call.
type Attempt[T any] func(ctx context.Context, attempt int) (T, error)

// Hooks customize how Do classifies and reports failures.
type Hooks struct {
	// Retryable reports whether err may succeed on a later attempt.
	Retryable func(err error) bool
	// OnFailure observes every failed attempt before the retry decision.
	OnFailure func(attempt int, err error, willRetry bool)
}

// Do calls fn until it succeeds, returns a non-retryable error, or the policy
// runs out of attempts. The last error is returned unchanged.
func Do[T any](ctx context.Context, policy Policy, hooks Hooks, fn Attempt[T]) (T, error) {
	p := policy.Normalize()
	var zero T
	for attempt := 1; ; attempt++ {
		result, err := fn(ctx, attempt)
		if err == nil {
			return result, nil
		}
		willRetry := attempt < p.MaxAttempts &&
			ctx.Err() == nil &&
			hooks.Retryable != nil && hooks.Retryable(err)
		if hooks.OnFailure != nil {
			hooks.OnFailure(attempt, err, willRetry)
		}
		if !willRetry {
			return zero, err
		}
		if sleepErr := p.Sleep(ctx, p.Backoff(attempt)); sleepErr != nil {
			return zero, fmt.Errorf("retry wait interrupted after attempt %d: %w", attempt, err)
		}
	}
}

// ContextSleep waits for d unless ctx is done first.
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("sleep canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
