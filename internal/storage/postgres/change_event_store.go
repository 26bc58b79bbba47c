package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/sellerguard/internal/monitor"
)

const changeEventTable = "change_event"

var changeEventColumns = []string{
	"id", "target_id", "previous_snapshot_id", "current_snapshot_id", "risk_level", "relevance_score",
	"summary", "business_impact", "recommendation", "notified_at", "created_at",
}

// ChangeEventStore persists change events.
type ChangeEventStore struct {
	pool pool
}

var _ monitor.ChangeEventStore = (*ChangeEventStore)(nil)

// Insert writes event and returns it with the generated id and created_at.
func (s *ChangeEventStore) Insert(ctx context.Context, event monitor.ChangeEvent) (monitor.ChangeEvent, error) {
	query, args, err := psql.Insert(changeEventTable).
		Columns("target_id", "previous_snapshot_id", "current_snapshot_id", "risk_level",
			"relevance_score", "summary", "business_impact", "recommendation").
		Values(event.TargetID, event.PreviousSnapshotID, event.CurrentSnapshotID, string(event.RiskLevel),
			event.RelevanceScore, event.Summary, event.BusinessImpact, event.Recommendation).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return monitor.ChangeEvent{}, buildErr("insert change event", err)
	}
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&event.ID, &event.CreatedAt); err != nil {
		return monitor.ChangeEvent{}, fmt.Errorf("insert change event for target %d: %w", event.TargetID, err)
	}
	return event, nil
}

// MarkNotified sets notified_at unless it is already set.
func (s *ChangeEventStore) MarkNotified(ctx context.Context, id int64, at time.Time) (monitor.ChangeEvent, error) {
	query, args, err := psql.Update(changeEventTable).
		Set("notified_at", sq.Expr("COALESCE(notified_at, ?)", at)).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING " + strings.Join(changeEventColumns, ", ")).
		ToSql()
	if err != nil {
		return monitor.ChangeEvent{}, buildErr("mark notified", err)
	}
	event, err := scanChangeEvent(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return monitor.ChangeEvent{}, monitor.ErrNotFound
	}
	if err != nil {
		return monitor.ChangeEvent{}, fmt.Errorf("mark change event %d notified: %w", id, err)
	}
	return event, nil
}

// ListPendingNotification returns un-notified events, oldest first.
func (s *ChangeEventStore) ListPendingNotification(ctx context.Context, limit int) ([]monitor.ChangeEvent, error) {
	builder := psql.Select(changeEventColumns...).
		From(changeEventTable).
		Where(sq.Eq{"notified_at": nil}).
		OrderBy("created_at", "id")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, buildErr("pending change events", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending change events: %w", err)
	}
	defer rows.Close()

	var out []monitor.ChangeEvent
	for rows.Next() {
		event, err := scanChangeEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan change event: %w", err)
		}
		out = append(out, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate change events: %w", err)
	}
	return out, nil
}

func scanChangeEvent(row pgx.Row) (monitor.ChangeEvent, error) {
	var (
		e    monitor.ChangeEvent
		risk string
	)
	err := row.Scan(
		&e.ID, &e.TargetID, &e.PreviousSnapshotID, &e.CurrentSnapshotID, &risk, &e.RelevanceScore,
		&e.Summary, &e.BusinessImpact, &e.Recommendation, &e.NotifiedAt, &e.CreatedAt,
	)
	if err != nil {
		return monitor.ChangeEvent{}, err
	}
	e.RiskLevel = monitor.RiskLevel(risk)
	return e, nil
}
