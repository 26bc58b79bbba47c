package monitor

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// TargetStore exposes the monitored targets.
type TargetStore interface {
	ListActive(ctx context.Context) ([]Target, error)
	GetByID(ctx context.Context, id int64) (Target, error)
	Upsert(ctx context.Context, target Target) (Target, error)
}

// SnapshotStore persists snapshots.
type SnapshotStore interface {
	Insert(ctx context.Context, snapshot Snapshot) (Snapshot, error)
	// GetLatestByTargetID returns ErrNotFound when the target has no snapshots.
	GetLatestByTargetID(ctx context.Context, targetID int64) (Snapshot, error)
}

// ChangeEventStore persists change events and their notification state.
type ChangeEventStore interface {
	Insert(ctx context.Context, event ChangeEvent) (ChangeEvent, error)
	MarkNotified(ctx context.Context, id int64, at time.Time) (ChangeEvent, error)
	ListPendingNotification(ctx context.Context, limit int) ([]ChangeEvent, error)
}

// Scraper fetches the current content of a page.
type Scraper interface {
	Scrape(ctx context.Context, url string) (ScrapeResult, error)
}

// Notifier delivers change alerts. Implementations must tolerate being called
// more than once for the same event.
type Notifier interface {
	SendChangeAlert(ctx context.Context, alert Alert) (DeliveryReceipt, error)
}

// Hasher fingerprints normalized content.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Counters is the observability sink fed by the scheduler.
type Counters interface {
	Increment(name string, amount int64) int64
	Snapshot() map[string]int64
}
