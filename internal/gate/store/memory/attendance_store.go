package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/americansport/gymgate/internal/gate/store"
	"github.com/americansport/gymgate/internal/gate/types"
)

// AttendanceStore is an in-memory append-only attendance ledger.
// It is intended for use in tests and dev environments.
type AttendanceStore struct {
	mu     sync.Mutex
	events []types.AttendanceEvent
}

func NewAttendanceStore(seed ...types.AttendanceEvent) *AttendanceStore {
	s := &AttendanceStore{}
	s.events = append(s.events, seed...)
	return s
}

func (s *AttendanceStore) ReadAttendanceEvents(_ context.Context) ([]types.AttendanceEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedCopy(), nil
}

func (s *AttendanceStore) AppendAttendanceEvent(_ context.Context, ev types.AttendanceEvent) error {
	if err := store.ValidateEvent(ev); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *AttendanceStore) AppendIfSessionState(_ context.Context, ev types.AttendanceEvent, expectOpen bool) error {
	if err := store.ValidateEvent(ev); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		open   bool
		lastAt time.Time
	)
	for _, e := range s.sortedCopy() {
		if e.MemberID == ev.MemberID {
			open = e.Type == types.CheckIn
			lastAt = e.Timestamp
		}
	}
	if open != expectOpen || ev.Timestamp.Before(lastAt) {
		return store.ErrStateConflict
	}
	s.events = append(s.events, ev)
	return nil
}

// Events returns a copy of all recorded events in append order.  Test-only helper.
func (s *AttendanceStore) Events() []types.AttendanceEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.AttendanceEvent, len(s.events))
	copy(out, s.events)
	return out
}

// sortedCopy must be called with mu held.
func (s *AttendanceStore) sortedCopy() []types.AttendanceEvent {
	out := make([]types.AttendanceEvent, len(s.events))
	copy(out, s.events)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
