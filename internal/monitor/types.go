// Package monitor defines the core types and ports shared by the change
// detection pipeline, the scheduler and the storage/provider adapters.
package monitor

import "time"

// Priority ranks how much a monitored page matters to the business.
type Priority string

// Target priorities.
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// RiskLevel classifies a relevance score.
type RiskLevel string

// Risk levels derived from relevance scores.
const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Target is a monitored URL plus the metadata used to judge its changes.
type Target struct {
	ID          int64     `json:"id" yaml:"id"`
	URL         string    `json:"url" yaml:"url"`
	DisplayName string    `json:"display_name" yaml:"display_name"`
	Priority    Priority  `json:"priority" yaml:"priority"`
	Keywords    []string  `json:"keywords" yaml:"keywords"`
	Active      bool      `json:"active" yaml:"active"`
	CreatedAt   time.Time `json:"created_at" yaml:"-"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"-"`
}

// Snapshot is one fetched and normalized capture of a target. Snapshots are
// never mutated after insert.
type Snapshot struct {
	ID                 int64     `json:"id"`
	TargetID           int64     `json:"target_id"`
	RawContent         string    `json:"raw_content"`
	NormalizedContent  string    `json:"normalized_content"`
	ContentFingerprint string    `json:"content_fingerprint"`
	ScrapedAt          time.Time `json:"scraped_at"`
	CreatedAt          time.Time `json:"created_at"`
}

// ChangeEvent records a relevant change between two snapshots of a target.
type ChangeEvent struct {
	ID                 int64      `json:"id"`
	TargetID           int64      `json:"target_id"`
	PreviousSnapshotID *int64     `json:"previous_snapshot_id,omitempty"`
	CurrentSnapshotID  int64      `json:"current_snapshot_id"`
	RiskLevel          RiskLevel  `json:"risk_level"`
	RelevanceScore     int        `json:"relevance_score"`
	Summary            string     `json:"summary"`
	BusinessImpact     string     `json:"business_impact"`
	Recommendation     string     `json:"recommendation"`
	NotifiedAt         *time.Time `json:"notified_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// Notified reports whether an alert for the event has already been delivered.
func (e ChangeEvent) Notified() bool {
	return e.NotifiedAt != nil
}

// RelevanceResult is the outcome of scoring a detected change.
type RelevanceResult struct {
	Score      int       `json:"score"`
	RiskLevel  RiskLevel `json:"risk_level"`
	IsRelevant bool      `json:"is_relevant"`
}

// ChangeSummary carries the human readable text attached to a change event.
type ChangeSummary struct {
	Summary        string
	BusinessImpact string
	Recommendation string
}

// ScrapeResult is the content returned by a Scraper.
type ScrapeResult struct {
	RawContent  string
	ContentType string
}

// Alert is the payload handed to a Notifier.
type Alert struct {
	Target Target
	Event  ChangeEvent
}

// DeliveryReceipt acknowledges a delivered alert.
type DeliveryReceipt struct {
	MessageID   string    `json:"message_id"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// RunResult aggregates the counters of one pipeline run.
type RunResult struct {
	ProcessedTargets    int `json:"processed_targets"`
	PersistedSnapshots  int `json:"persisted_snapshots"`
	CreatedChangeEvents int `json:"created_change_events"`
	SentEmails          int `json:"sent_emails"`
	FailedTargets       int `json:"failed_targets"`
}

// Observability counter names.
const (
	CounterRuns            = "runs"
	CounterFailures        = "failures"
	CounterRelevantChanges = "relevant_changes"
	CounterEmailsSent      = "emails_sent"
	CounterSkippedRuns     = "skipped_runs"
)
