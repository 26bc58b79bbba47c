package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/JakeFAU/sellerguard/internal/monitor"
)

// TargetStore keeps monitored targets keyed by ID with a unique URL index.
type TargetStore struct {
	mu     sync.RWMutex
	clock  monitor.Clock
	nextID int64
	byID   map[int64]monitor.Target
	byURL  map[string]int64
}

var _ monitor.TargetStore = (*TargetStore)(nil)

// NewTargetStore constructs a TargetStore. A nil clock uses wall time.
func NewTargetStore(clock monitor.Clock) *TargetStore {
	return &TargetStore{
		clock: clockOrDefault(clock),
		byID:  make(map[int64]monitor.Target),
		byURL: make(map[string]int64),
	}
}

// ListActive returns active targets ordered by ID.
func (s *TargetStore) ListActive(_ context.Context) ([]monitor.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]monitor.Target, 0, len(s.byID))
	for _, t := range s.byID {
		if t.Active {
			out = append(out, copyTarget(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetByID fetches a target or returns monitor.ErrNotFound.
func (s *TargetStore) GetByID(_ context.Context, id int64) (monitor.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[id]
	if !ok {
		return monitor.Target{}, monitor.ErrNotFound
	}
	return copyTarget(t), nil
}

// Upsert inserts a target or updates the one with the same URL. ID and
// CreatedAt are preserved on update.
func (s *TargetStore) Upsert(_ context.Context, target monitor.Target) (monitor.Target, error) {
	url := strings.TrimSpace(target.URL)
	if url == "" {
		return monitor.Target{}, errors.New("target url is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	target.URL = url
	target.UpdatedAt = now
	if id, ok := s.byURL[url]; ok {
		existing := s.byID[id]
		target.ID = existing.ID
		target.CreatedAt = existing.CreatedAt
	} else {
		s.nextID++
		target.ID = s.nextID
		target.CreatedAt = now
		s.byURL[url] = target.ID
	}
	target = copyTarget(target)
	s.byID[target.ID] = target
	return copyTarget(target), nil
}

func copyTarget(t monitor.Target) monitor.Target {
	t.Keywords = append([]string(nil), t.Keywords...)
	return t
}
