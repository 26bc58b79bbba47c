package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/sellerguard/internal/monitor"
)

// ChangeEventStore keeps change events and their notification timestamps.
type ChangeEventStore struct {
	mu     sync.RWMutex
	clock  monitor.Clock
	nextID int64
	events map[int64]monitor.ChangeEvent
}

var _ monitor.ChangeEventStore = (*ChangeEventStore)(nil)

// NewChangeEventStore constructs a ChangeEventStore. A nil clock uses wall time.
func NewChangeEventStore(clock monitor.Clock) *ChangeEventStore {
	return &ChangeEventStore{
		clock:  clockOrDefault(clock),
		events: make(map[int64]monitor.ChangeEvent),
	}
}

// Insert assigns an ID and CreatedAt and stores the event.
func (s *ChangeEventStore) Insert(_ context.Context, event monitor.ChangeEvent) (monitor.ChangeEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	event.ID = s.nextID
	event.CreatedAt = s.clock.Now()
	event = copyEvent(event)
	s.events[event.ID] = event
	return copyEvent(event), nil
}

// MarkNotified sets NotifiedAt once. Calls for an already notified event
// return it unchanged.
func (s *ChangeEventStore) MarkNotified(_ context.Context, id int64, at time.Time) (monitor.ChangeEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[id]
	if !ok {
		return monitor.ChangeEvent{}, monitor.ErrNotFound
	}
	if event.NotifiedAt == nil {
		event.NotifiedAt = &at
		s.events[id] = event
	}
	return copyEvent(event), nil
}

// ListPendingNotification returns un-notified events, oldest first. A
// non-positive limit returns all of them.
func (s *ChangeEventStore) ListPendingNotification(_ context.Context, limit int) ([]monitor.ChangeEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]monitor.ChangeEvent, 0)
	for _, e := range s.events {
		if e.NotifiedAt == nil {
			out = append(out, copyEvent(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns every stored event ordered by ID.
func (s *ChangeEventStore) All() []monitor.ChangeEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]monitor.ChangeEvent, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, copyEvent(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func copyEvent(e monitor.ChangeEvent) monitor.ChangeEvent {
	if e.PreviousSnapshotID != nil {
		prev := *e.PreviousSnapshotID
		e.PreviousSnapshotID = &prev
	}
	if e.NotifiedAt != nil {
		at := *e.NotifiedAt
		e.NotifiedAt = &at
	}
	return e
}
