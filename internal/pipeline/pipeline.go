// Package pipeline turns page fetches into snapshots, change events and
// delivered alerts.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/sellerguard/internal/clock/system"
	"github.com/JakeFAU/sellerguard/internal/content"
	"github.com/JakeFAU/sellerguard/internal/detector"
	"github.com/JakeFAU/sellerguard/internal/hash/sha256"
	"github.com/JakeFAU/sellerguard/internal/monitor"
	"github.com/JakeFAU/sellerguard/internal/relevance"
	"github.com/JakeFAU/sellerguard/internal/summary"
)

// DefaultPendingLimit bounds how many pending events one run redelivers.
const DefaultPendingLimit = 50

// Deps are the collaborators of a Pipeline. Notifier is optional.
type Deps struct {
	Targets   monitor.TargetStore
	Snapshots monitor.SnapshotStore
	Events    monitor.ChangeEventStore
	Scraper   monitor.Scraper
	Notifier  monitor.Notifier
	Hasher    monitor.Hasher
	Clock     monitor.Clock
	Logger    *zap.Logger
}

// Options controls failure propagation and redelivery.
type Options struct {
	// FailFast aborts the run on the first target failure. When false every
	// target is attempted and failures are returned together as *RunError.
	FailFast bool
	// RedeliverPending retries alerts for change events that were never
	// marked notified before processing targets.
	RedeliverPending bool
	// PendingLimit caps redeliveries per run; zero means DefaultPendingLimit.
	PendingLimit int
}

// Pipeline runs one pass over every active target.
type Pipeline struct {
	deps   Deps
	opts   Options
	logger *zap.Logger
}

// New validates deps and builds a Pipeline.
func New(deps Deps, opts Options) (*Pipeline, error) {
	switch {
	case deps.Targets == nil:
		return nil, errors.New("pipeline requires a target store")
	case deps.Snapshots == nil:
		return nil, errors.New("pipeline requires a snapshot store")
	case deps.Events == nil:
		return nil, errors.New("pipeline requires a change event store")
	case deps.Scraper == nil:
		return nil, errors.New("pipeline requires a scraper")
	}
	if deps.Hasher == nil {
		deps.Hasher = sha256.New()
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PendingLimit <= 0 {
		opts.PendingLimit = DefaultPendingLimit
	}
	return &Pipeline{deps: deps, opts: opts, logger: logger}, nil
}

// RunOnce processes every active target sequentially in listing order.
//
// In isolate mode the returned result always covers all targets and a
// non-nil error is a *RunError. In fail-fast mode the first failure is
// returned as a *TargetError with the counts accumulated so far. Context
// cancellation aborts the run in both modes.
func (p *Pipeline) RunOnce(ctx context.Context) (monitor.RunResult, error) {
	var (
		result   monitor.RunResult
		failures []*TargetError
	)

	if p.opts.RedeliverPending && p.deps.Notifier != nil {
		sent, errs, err := p.redeliverPending(ctx)
		result.SentEmails += sent
		if err != nil {
			return result, err
		}
		failures = append(failures, errs...)
	}

	targets, err := p.deps.Targets.ListActive(ctx)
	if err != nil {
		return result, fmt.Errorf("list active targets: %w", err)
	}

	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("pipeline run canceled: %w", err)
		}
		result.ProcessedTargets++

		tr, terr := p.processTarget(ctx, target)
		result.PersistedSnapshots += tr.PersistedSnapshots
		result.CreatedChangeEvents += tr.CreatedChangeEvents
		result.SentEmails += tr.SentEmails
		if terr == nil {
			continue
		}

		result.FailedTargets++
		p.logger.Error("target processing failed",
			zap.Int64("target_id", target.ID),
			zap.String("url", target.URL),
			zap.String("stage", string(terr.Stage)),
			zap.Error(terr.Err),
		)
		if p.opts.FailFast {
			return result, terr
		}
		if isContextError(terr.Err) && ctx.Err() != nil {
			return result, fmt.Errorf("pipeline run canceled: %w", ctx.Err())
		}
		failures = append(failures, terr)
	}

	if len(failures) > 0 {
		return result, &RunError{Failures: failures}
	}
	return result, nil
}

func (p *Pipeline) processTarget(ctx context.Context, target monitor.Target) (monitor.RunResult, *TargetError) {
	var out monitor.RunResult
	fail := func(stage Stage, err error) (monitor.RunResult, *TargetError) {
		return out, &TargetError{TargetID: target.ID, URL: target.URL, Stage: stage, Err: err}
	}

	var previous *monitor.Snapshot
	prev, err := p.deps.Snapshots.GetLatestByTargetID(ctx, target.ID)
	switch {
	case err == nil:
		previous = &prev
	case !errors.Is(err, monitor.ErrNotFound):
		return fail(StageLoadPrevious, err)
	}

	scraped, err := p.deps.Scraper.Scrape(ctx, target.URL)
	if err != nil {
		return fail(StageScrape, err)
	}
	scrapedAt := p.deps.Clock.Now()

	normalized := content.Normalize(scraped.RawContent)
	fingerprint, err := p.deps.Hasher.Hash([]byte(normalized))
	if err != nil {
		return fail(StageFingerprint, err)
	}

	current, err := p.deps.Snapshots.Insert(ctx, monitor.Snapshot{
		TargetID:           target.ID,
		RawContent:         scraped.RawContent,
		NormalizedContent:  normalized,
		ContentFingerprint: fingerprint,
		ScrapedAt:          scrapedAt,
	})
	if err != nil {
		return fail(StageInsertSnapshot, err)
	}
	out.PersistedSnapshots++

	if !detector.IsChanged(previous, fingerprint) {
		p.logger.Debug("no content change",
			zap.Int64("target_id", target.ID),
			zap.Int64("snapshot_id", current.ID),
			zap.Bool("first_snapshot", previous == nil),
		)
		return out, nil
	}

	// previous is non-nil here: a first snapshot never counts as a change.
	rel := relevance.Score(target, previous.NormalizedContent, normalized)
	if !rel.IsRelevant {
		p.logger.Info("change below relevance threshold",
			zap.Int64("target_id", target.ID),
			zap.Int("relevance_score", rel.Score),
		)
		return out, nil
	}

	sum := summary.Summarize(target, rel)
	previousID := previous.ID
	event, err := p.deps.Events.Insert(ctx, monitor.ChangeEvent{
		TargetID:           target.ID,
		PreviousSnapshotID: &previousID,
		CurrentSnapshotID:  current.ID,
		RiskLevel:          rel.RiskLevel,
		RelevanceScore:     rel.Score,
		Summary:            sum.Summary,
		BusinessImpact:     sum.BusinessImpact,
		Recommendation:     sum.Recommendation,
	})
	if err != nil {
		return fail(StageInsertChange, err)
	}
	out.CreatedChangeEvents++
	p.logger.Info("change event created",
		zap.Int64("target_id", target.ID),
		zap.Int64("change_event_id", event.ID),
		zap.String("risk_level", string(event.RiskLevel)),
		zap.Int("relevance_score", event.RelevanceScore),
	)

	sent, stage, err := p.deliver(ctx, target, event)
	if err != nil {
		return fail(stage, err)
	}
	if sent {
		out.SentEmails++
	}
	return out, nil
}

// deliver sends the alert unless the event is already notified, then marks
// it notified with the completion time.
func (p *Pipeline) deliver(ctx context.Context, target monitor.Target, event monitor.ChangeEvent) (bool, Stage, error) {
	if p.deps.Notifier == nil || event.Notified() {
		return false, "", nil
	}
	if _, err := p.deps.Notifier.SendChangeAlert(ctx, monitor.Alert{Target: target, Event: event}); err != nil {
		return false, StageNotify, err
	}
	if _, err := p.deps.Events.MarkNotified(ctx, event.ID, p.deps.Clock.Now()); err != nil {
		return false, StageMarkNotified, err
	}
	return true, "", nil
}

func (p *Pipeline) redeliverPending(ctx context.Context) (int, []*TargetError, error) {
	pending, err := p.deps.Events.ListPendingNotification(ctx, p.opts.PendingLimit)
	if err != nil {
		return 0, nil, fmt.Errorf("list pending notifications: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil, nil
	}

	start := p.deps.Clock.Now()
	var (
		sent     int
		failures []*TargetError
	)
	for _, event := range pending {
		if err := ctx.Err(); err != nil {
			return sent, failures, fmt.Errorf("pipeline run canceled: %w", err)
		}
		target, err := p.deps.Targets.GetByID(ctx, event.TargetID)
		if err == nil {
			var ok bool
			ok, _, err = p.deliver(ctx, target, event)
			if ok {
				sent++
				continue
			}
		}
		if err == nil {
			continue
		}
		terr := &TargetError{
			TargetID:      event.TargetID,
			URL:           target.URL,
			ChangeEventID: event.ID,
			Stage:         StageRedeliverPending,
			Err:           err,
		}
		p.logger.Error("pending alert redelivery failed",
			zap.Int64("target_id", event.TargetID),
			zap.Int64("change_event_id", event.ID),
			zap.Error(err),
		)
		if p.opts.FailFast {
			return sent, failures, terr
		}
		failures = append(failures, terr)
	}
	p.logger.Info("pending alerts redelivered",
		zap.Int("pending", len(pending)),
		zap.Int("sent", sent),
		zap.Int("failed", len(failures)),
		zap.Int64("duration_ms", p.deps.Clock.Now().Sub(start).Milliseconds()),
	)
	return sent, failures, nil
}
