package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var (
	errTransient = errors.New("transient")
	errPermanent = errors.New("permanent")
)

func isTransient(err error) bool { return errors.Is(err, errTransient) }

type recordingSleep struct {
	waits []time.Duration
}

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func TestPolicyBackoff(t *testing.T) {
	t.Parallel()

	p := Policy{BaseDelay: time.Second, MaxDelay: 3 * time.Second}
	require.Equal(t, time.Second, p.Backoff(1))
	require.Equal(t, 2*time.Second, p.Backoff(2))
	require.Equal(t, 3*time.Second, p.Backoff(3))
	require.Equal(t, 3*time.Second, p.Backoff(10))
	require.Equal(t, time.Second, p.Backoff(0))
}

func TestPolicyNormalize(t *testing.T) {
	t.Parallel()

	p := Policy{MaxAttempts: -2, BaseDelay: -time.Second}.Normalize()
	require.Equal(t, 1, p.MaxAttempts)
	require.Equal(t, time.Duration(0), p.BaseDelay)
	require.Equal(t, DefaultMaxDelay, p.MaxDelay)
	require.NotNil(t, p.Sleep)
}

func TestDo_AlwaysTransientExhaustsAttempts(t *testing.T) {
	t.Parallel()

	rec := &recordingSleep{}
	policy := Policy{MaxAttempts: 4, BaseDelay: time.Second, MaxDelay: 3 * time.Second, Sleep: rec.sleep}
	calls := 0
	_, err := Do(context.Background(), policy, Hooks{Retryable: isTransient},
		func(_ context.Context, _ int) (string, error) {
			calls++
			return "", errTransient
		})

	require.ErrorIs(t, err, errTransient)
	require.Equal(t, 4, calls)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, rec.waits)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	t.Parallel()

	rec := &recordingSleep{}
	policy := Policy{MaxAttempts: 5, Sleep: rec.sleep}
	calls := 0
	_, err := Do(context.Background(), policy, Hooks{Retryable: isTransient},
		func(_ context.Context, _ int) (int, error) {
			calls++
			return 0, errPermanent
		})

	require.ErrorIs(t, err, errPermanent)
	require.Equal(t, 1, calls)
	require.Empty(t, rec.waits)
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	rec := &recordingSleep{}
	policy := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Sleep: rec.sleep}
	var failures []int
	got, err := Do(context.Background(), policy, Hooks{
		Retryable: isTransient,
		OnFailure: func(attempt int, _ error, willRetry bool) {
			require.True(t, willRetry)
			failures = append(failures, attempt)
		},
	}, func(_ context.Context, attempt int) (int, error) {
		if attempt < 3 {
			return 0, errTransient
		}
		return attempt, nil
	})

	require.NoError(t, err)
	require.Equal(t, 3, got)
	require.Equal(t, []int{1, 2}, failures)
}

func TestDo_CanceledContextStopsRetrying(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Do(ctx, Policy{MaxAttempts: 5, Sleep: (&recordingSleep{}).sleep}, Hooks{Retryable: isTransient},
		func(_ context.Context, _ int) (int, error) {
			calls++
			cancel()
			return 0, errTransient
		})

	require.ErrorIs(t, err, errTransient)
	require.Equal(t, 1, calls)
}

func TestDo_SleepInterrupted(t *testing.T) {
	t.Parallel()

	sleepErr := errors.New("woken")
	policy := Policy{MaxAttempts: 3, Sleep: func(context.Context, time.Duration) error { return sleepErr }}
	_, err := Do(context.Background(), policy, Hooks{Retryable: isTransient},
		func(_ context.Context, _ int) (int, error) { return 0, errTransient })

	require.ErrorIs(t, err, errTransient)
	require.Contains(t, err.Error(), "retry wait interrupted")
}

func TestContextSleep(t *testing.T) {
	t.Parallel()

	require.NoError(t, ContextSleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, ContextSleep(ctx, time.Hour), context.Canceled)
}
