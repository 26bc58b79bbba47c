package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/sellerguard/internal/monitor"
)

const snapshotTable = "snapshot"

var snapshotColumns = []string{"id", "target_id", "raw_content", "normalized_content", "content_fingerprint", "scraped_at", "created_at"}

// SnapshotStore appends snapshots.
type SnapshotStore struct {
	pool pool
}

var _ monitor.SnapshotStore = (*SnapshotStore)(nil)

// Insert writes snapshot and returns it with the generated id and created_at.
func (s *SnapshotStore) Insert(ctx context.Context, snapshot monitor.Snapshot) (monitor.Snapshot, error) {
	query, args, err := psql.Insert(snapshotTable).
		Columns("target_id", "raw_content", "normalized_content", "content_fingerprint", "scraped_at").
		Values(snapshot.TargetID, snapshot.RawContent, snapshot.NormalizedContent, snapshot.ContentFingerprint, snapshot.ScrapedAt).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return monitor.Snapshot{}, buildErr("insert snapshot", err)
	}
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&snapshot.ID, &snapshot.CreatedAt); err != nil {
		return monitor.Snapshot{}, fmt.Errorf("insert snapshot for target %d: %w", snapshot.TargetID, err)
	}
	return snapshot, nil
}

// GetLatestByTargetID returns the newest snapshot by (scraped_at, id).
func (s *SnapshotStore) GetLatestByTargetID(ctx context.Context, targetID int64) (monitor.Snapshot, error) {
	query, args, err := psql.Select(snapshotColumns...).
		From(snapshotTable).
		Where(sq.Eq{"target_id": targetID}).
		OrderBy("scraped_at DESC", "id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return monitor.Snapshot{}, buildErr("latest snapshot", err)
	}
	var snap monitor.Snapshot
	err = s.pool.QueryRow(ctx, query, args...).Scan(
		&snap.ID, &snap.TargetID, &snap.RawContent, &snap.NormalizedContent,
		&snap.ContentFingerprint, &snap.ScrapedAt, &snap.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return monitor.Snapshot{}, monitor.ErrNotFound
	}
	if err != nil {
		return monitor.Snapshot{}, fmt.Errorf("latest snapshot for target %d: %w", targetID, err)
	}
	return snap, nil
}
