// Package scheduler drives the pipeline on a fixed interval and guarantees
// at most one run is in flight at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sellerguard/internal/clock/system"
	"github.com/JakeFAU/sellerguard/internal/id/uuid"
	"github.com/JakeFAU/sellerguard/internal/monitor"
)

// ErrInvalidConfig is returned by New for unusable configuration.
var ErrInvalidConfig = errors.New("invalid scheduler config")

// ReasonOverlap marks a trigger skipped because a run was in flight.
const ReasonOverlap = "overlap"

// Trigger says what started a run.
type Trigger string

// Triggers.
const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
	TriggerStartup   Trigger = "startup"
)

// State is the scheduler's run state.
type State string

// States.
const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// RunFunc executes one pipeline pass.
type RunFunc func(ctx context.Context) (monitor.RunResult, error)

// Ticker is the subset of *time.Ticker the scheduler uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a Ticker firing every d.
type TickerFactory func(d time.Duration) Ticker

// Config wires a Scheduler. Counters, Logger, Clock, IDs and NewTicker are
// optional.
type Config struct {
	IntervalMinutes int
	Run             RunFunc
	Counters        monitor.Counters
	Logger          *zap.Logger
	Clock           monitor.Clock
	IDs             monitor.IDGenerator
	NewTicker       TickerFactory
}

// Outcome describes one trigger.
type Outcome struct {
	Skipped    bool              `json:"skipped"`
	Reason     string            `json:"reason,omitempty"`
	RunID      string            `json:"run_id,omitempty"`
	Trigger    Trigger           `json:"trigger"`
	StartedAt  time.Time         `json:"started_at,omitzero"`
	FinishedAt time.Time         `json:"finished_at,omitzero"`
	DurationMS int64             `json:"duration_ms"`
	Result     monitor.RunResult `json:"result"`
	Error      string            `json:"error,omitempty"`
}

// Scheduler owns the idle/running state machine.
type Scheduler struct {
	interval time.Duration
	run      RunFunc
	counters monitor.Counters
	logger   *zap.Logger
	clock    monitor.Clock
	ids      monitor.IDGenerator
	ticker   TickerFactory

	running atomic.Bool

	mu      sync.Mutex
	stop    chan struct{}
	last    *Outcome
	started bool

	wg sync.WaitGroup
}

// New validates cfg and builds an idle Scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Run == nil {
		return nil, fmt.Errorf("%w: run function is required", ErrInvalidConfig)
	}
	if cfg.IntervalMinutes <= 0 {
		return nil, fmt.Errorf("%w: interval must be a positive number of minutes, got %d", ErrInvalidConfig, cfg.IntervalMinutes)
	}
	s := &Scheduler{
		interval: time.Duration(cfg.IntervalMinutes) * time.Minute,
		run:      cfg.Run,
		counters: cfg.Counters,
		logger:   cfg.Logger,
		clock:    cfg.Clock,
		ids:      cfg.IDs,
		ticker:   cfg.NewTicker,
	}
	if s.counters == nil {
		s.counters = noopCounters{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.clock == nil {
		s.clock = system.New()
	}
	if s.ids == nil {
		s.ids = uuid.New("run-")
	}
	if s.ticker == nil {
		s.ticker = newTimeTicker
	}
	return s, nil
}

// Interval returns the configured tick interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// State reports whether a run is in flight.
func (s *Scheduler) State() State {
	if s.running.Load() {
		return StateRunning
	}
	return StateIdle
}

// LastOutcome returns the most recent completed run, if any.
func (s *Scheduler) LastOutcome() (Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Outcome{}, false
	}
	return *s.last, true
}

// Start begins ticking. Calling Start on a started scheduler is a no-op.
// Scheduled runs are detached from ctx cancellation; cancel ctx or call Stop
// to halt future ticks.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.stop = make(chan struct{})
	ticker := s.ticker(s.interval)
	stop := s.stop

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.release(stop)
				return
			case <-stop:
				return
			case <-ticker.C():
				s.RunInBackground(ctx, TriggerScheduled)
			}
		}
	}()
	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
}

// release marks the scheduler stopped when the loop owning stop exits on
// its own, so a later Start begins a fresh loop.
func (s *Scheduler) release(stop chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started && s.stop == stop {
		s.started = false
	}
}

// RunInBackground triggers a run detached from ctx cancellation. The run is
// tracked by Wait; its outcome is logged, counted and kept as LastOutcome.
func (s *Scheduler) RunInBackground(ctx context.Context, trigger Trigger) {
	runCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, _ = s.trigger(runCtx, trigger)
	}()
}

// Stop prevents future ticks. In-flight runs are not aborted. Stop is
// idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	close(s.stop)
	s.started = false
	s.logger.Info("scheduler stopped")
}

// Wait blocks until the tick loop and every background run have returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// RunNow runs the pipeline immediately unless a run is already in flight,
// in which case the outcome is skipped with ReasonOverlap. Pipeline errors
// are logged, counted and returned.
func (s *Scheduler) RunNow(ctx context.Context) (Outcome, error) {
	return s.trigger(ctx, TriggerManual)
}

func (s *Scheduler) trigger(ctx context.Context, trigger Trigger) (Outcome, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.counters.Increment(monitor.CounterSkippedRuns, 1)
		s.logger.Warn("pipeline run skipped because previous run is still in progress",
			zap.String("trigger", string(trigger)),
		)
		return Outcome{Skipped: true, Reason: ReasonOverlap, Trigger: trigger}, nil
	}
	defer s.running.Store(false)

	startedAt := s.clock.Now()
	runID := s.newRunID(startedAt)
	logger := s.logger.With(zap.String("run_id", runID), zap.String("trigger", string(trigger)))
	logger.Info("pipeline run started", zap.Time("started_at", startedAt))

	result, err := s.invoke(ctx)

	finishedAt := s.clock.Now()
	out := Outcome{
		RunID:      runID,
		Trigger:    trigger,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		DurationMS: finishedAt.Sub(startedAt).Milliseconds(),
		Result:     result,
	}

	s.counters.Increment(monitor.CounterRuns, 1)
	s.counters.Increment(monitor.CounterRelevantChanges, int64(result.CreatedChangeEvents))
	s.counters.Increment(monitor.CounterEmailsSent, int64(result.SentEmails))

	if err != nil {
		s.counters.Increment(monitor.CounterFailures, 1)
		out.Error = err.Error()
		logger.Error("pipeline run failed",
			zap.Int64("duration_ms", out.DurationMS),
			zap.Int("processed_targets", result.ProcessedTargets),
			zap.Int("failed_targets", result.FailedTargets),
			zap.Error(err),
		)
		s.record(out)
		return out, err
	}

	logger.Info("pipeline run completed",
		zap.Int64("duration_ms", out.DurationMS),
		zap.Int("processed_targets", result.ProcessedTargets),
		zap.Int("persisted_snapshots", result.PersistedSnapshots),
		zap.Int("created_change_events", result.CreatedChangeEvents),
		zap.Int("sent_emails", result.SentEmails),
	)
	s.record(out)
	return out, nil
}

// invoke calls the runner, converting a panic into an error.
func (s *Scheduler) invoke(ctx context.Context) (result monitor.RunResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline run panicked: %v", r)
		}
	}()
	return s.run(ctx)
}

func (s *Scheduler) newRunID(at time.Time) string {
	id, err := s.ids.NewID()
	if err != nil {
		s.logger.Warn("run id generation failed", zap.Error(err))
		return fmt.Sprintf("run-%d", at.UnixNano())
	}
	return id
}

func (s *Scheduler) record(out Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &out
}

type noopCounters struct{}

func (noopCounters) Increment(string, int64) int64 { return 0 }
func (noopCounters) Snapshot() map[string]int64 { return map[string]int64{} }

type timeTicker struct {
	t *time.Ticker
}

func newTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop() { t.t.Stop() }
