package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/sellerguard/internal/monitor"
)

// SnapshotStore appends snapshots and tracks the latest one per target.
type SnapshotStore struct {
	mu        sync.RWMutex
	clock     monitor.Clock
	nextID    int64
	snapshots []monitor.Snapshot
	latest    map[int64]int
}

var _ monitor.SnapshotStore = (*SnapshotStore)(nil)

// NewSnapshotStore constructs a SnapshotStore. A nil clock uses wall time.
func NewSnapshotStore(clock monitor.Clock) *SnapshotStore {
	return &SnapshotStore{
		clock:  clockOrDefault(clock),
		latest: make(map[int64]int),
	}
}

// Insert assigns an ID and CreatedAt and stores the snapshot.
func (s *SnapshotStore) Insert(_ context.Context, snapshot monitor.Snapshot) (monitor.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	snapshot.ID = s.nextID
	snapshot.CreatedAt = s.clock.Now()
	if snapshot.ScrapedAt.IsZero() {
		snapshot.ScrapedAt = snapshot.CreatedAt
	}
	s.snapshots = append(s.snapshots, snapshot)

	idx := len(s.snapshots) - 1
	if cur, ok := s.latest[snapshot.TargetID]; !ok || newer(snapshot, s.snapshots[cur]) {
		s.latest[snapshot.TargetID] = idx
	}
	return snapshot, nil
}

// GetLatestByTargetID returns the snapshot with the greatest (ScrapedAt, ID).
func (s *SnapshotStore) GetLatestByTargetID(_ context.Context, targetID int64) (monitor.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.latest[targetID]
	if !ok {
		return monitor.Snapshot{}, monitor.ErrNotFound
	}
	return s.snapshots[idx], nil
}

// Count returns the number of stored snapshots.
func (s *SnapshotStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}

func newer(a, b monitor.Snapshot) bool {
	if !a.ScrapedAt.Equal(b.ScrapedAt) {
		return a.ScrapedAt.After(b.ScrapedAt)
	}
	return a.ID > b.ID
}
