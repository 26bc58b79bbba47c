package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Stage names the pipeline step that failed for a target.
type Stage string

// Pipeline stages reported in TargetError.
const (
	StageLoadPrevious     Stage = "load_previous"
	StageScrape           Stage = "scrape"
	StageFingerprint      Stage = "fingerprint"
	StageInsertSnapshot   Stage = "insert_snapshot"
	StageInsertChange     Stage = "insert_change_event"
	StageNotify           Stage = "notify"
	StageMarkNotified     Stage = "mark_notified"
	StageRedeliverPending Stage = "redeliver_pending"
)

// TargetError is the failure of one target (or one pending event) in a run.
type TargetError struct {
	TargetID      int64
	URL           string
	ChangeEventID int64
	Stage         Stage
	Err           error
}

func (e *TargetError) Error() string {
	if e.ChangeEventID != 0 {
		return fmt.Sprintf("target %d (%s) change event %d: %s: %v", e.TargetID, e.URL, e.ChangeEventID, e.Stage, e.Err)
	}
	return fmt.Sprintf("target %d (%s): %s: %v", e.TargetID, e.URL, e.Stage, e.Err)
}

func (e *TargetError) Unwrap() error { return e.Err }

// RunError collects every failure of an isolate-per-target run.
type RunError struct {
	Failures []*TargetError
}

func (e *RunError) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, f.Error())
	}
	return fmt.Sprintf("pipeline run had %d failure(s): %s", len(e.Failures), strings.Join(msgs, "; "))
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *RunError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f)
	}
	return out
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
