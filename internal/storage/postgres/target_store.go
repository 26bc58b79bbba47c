package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/sellerguard/internal/monitor"
)

const targetTable = "monitored_target"

var targetColumns = []string{"id", "url", "display_name", "priority", "keywords", "active", "created_at", "updated_at"}

// TargetStore reads and seeds monitored targets.
type TargetStore struct {
	pool pool
}

var _ monitor.TargetStore = (*TargetStore)(nil)

// ListActive returns active targets ordered by id.
func (s *TargetStore) ListActive(ctx context.Context) ([]monitor.Target, error) {
	query, args, err := psql.Select(targetColumns...).
		From(targetTable).
		Where(sq.Eq{"active": true}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, buildErr("list targets", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query active targets: %w", err)
	}
	defer rows.Close()

	var out []monitor.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate targets: %w", err)
	}
	return out, nil
}

// GetByID fetches one target.
func (s *TargetStore) GetByID(ctx context.Context, id int64) (monitor.Target, error) {
	query, args, err := psql.Select(targetColumns...).
		From(targetTable).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return monitor.Target{}, buildErr("get target", err)
	}
	t, err := scanTarget(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return monitor.Target{}, monitor.ErrNotFound
	}
	return t, err
}

// Upsert inserts a target or updates the row with the same url.
func (s *TargetStore) Upsert(ctx context.Context, target monitor.Target) (monitor.Target, error) {
	url := strings.TrimSpace(target.URL)
	if url == "" {
		return monitor.Target{}, errors.New("target url is required")
	}
	keywords := target.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	keywordsJSON, err := json.Marshal(keywords)
	if err != nil {
		return monitor.Target{}, fmt.Errorf("marshal keywords: %w", err)
	}
	priority := target.Priority
	if priority == "" {
		priority = monitor.PriorityLow
	}

	query, args, err := psql.Insert(targetTable).
		Columns("url", "display_name", "priority", "keywords", "active").
		Values(url, target.DisplayName, string(priority), string(keywordsJSON), target.Active).
		Suffix("ON CONFLICT (url) DO UPDATE SET " +
			"display_name = EXCLUDED.display_name, priority = EXCLUDED.priority, " +
			"keywords = EXCLUDED.keywords, active = EXCLUDED.active, updated_at = NOW() " +
			"RETURNING " + strings.Join(targetColumns, ", ")).
		ToSql()
	if err != nil {
		return monitor.Target{}, buildErr("upsert target", err)
	}
	return scanTarget(s.pool.QueryRow(ctx, query, args...))
}

func scanTarget(row pgx.Row) (monitor.Target, error) {
	var (
		t        monitor.Target
		priority string
		keywords []byte
	)
	if err := row.Scan(&t.ID, &t.URL, &t.DisplayName, &priority, &keywords, &t.Active, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return monitor.Target{}, err
		}
		return monitor.Target{}, fmt.Errorf("scan target: %w", err)
	}
	t.Priority = monitor.Priority(priority)
	if len(keywords) > 0 {
		if err := json.Unmarshal(keywords, &t.Keywords); err != nil {
			return monitor.Target{}, fmt.Errorf("decode keywords for target %d: %w", t.ID, err)
		}
	}
	return t, nil
}
