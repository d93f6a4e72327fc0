package service

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/americansport/gymgate/internal/gate/types"
)

// SessionInfo is derived from a member's history and never stored.
type SessionInfo struct {
	HasOpenSession bool
	LastEvent      *types.AttendanceEvent
	// LastCheckIn is the most recent CHECK_IN, open or not.
	LastCheckIn *time.Time
}

// HasOpenSession reports whether memberID's latest event is a CHECK_IN.
func HasOpenSession(memberID string, events []types.AttendanceEvent) bool {
	return SessionInfoFor(memberID, events).HasOpenSession
}

func SessionInfoFor(memberID string, events []types.AttendanceEvent) SessionInfo {
	var info SessionInfo
	for _, ev := range inTimeOrder(events) {
		ev := ev // per-iteration copy; go.mod targets go1.21 loop semantics
		if ev.MemberID != memberID {
			continue
		}
		info.LastEvent = &ev
		if ev.Type == types.CheckIn {
			at := ev.Timestamp
			info.LastCheckIn = &at
		}
	}
	info.HasOpenSession = info.LastEvent != nil && info.LastEvent.Type == types.CheckIn
	return info
}

// CloseAllOpenSessions returns a new ledger holding every input event plus
// one SYSTEM CHECK_OUT at asOf for each member whose history ends in a
// CHECK_IN.  The synthesized events are also returned on their own, ordered
// by member id.  events is not modified.
func CloseAllOpenSessions(events []types.AttendanceEvent, asOf time.Time) (all, closed []types.AttendanceEvent) {
	open := make(map[string]bool)
	for _, ev := range inTimeOrder(events) {
		open[ev.MemberID] = ev.Type == types.CheckIn
	}

	var members []string
	for id, isOpen := range open {
		if isOpen {
			members = append(members, id)
		}
	}
	sort.Strings(members)

	all = make([]types.AttendanceEvent, 0, len(events)+len(members))
	all = append(all, events...)
	for _, id := range members {
		ev := types.AttendanceEvent{
			ID:        uuid.NewString(),
			MemberID:  id,
			Type:      types.CheckOut,
			Timestamp: asOf,
			Origin:    types.OriginSystem,
		}
		closed = append(closed, ev)
		all = append(all, ev)
	}
	return all, closed
}

// CanCheckIn returns nil or a SESSION_ALREADY_OPEN rejection.
func CanCheckIn(memberID string, events []types.AttendanceEvent) *GateError {
	if HasOpenSession(memberID, events) {
		return sessionAlreadyOpen()
	}
	return nil
}

// CanCheckOut returns nil or a NO_OPEN_SESSION rejection.
func CanCheckOut(memberID string, events []types.AttendanceEvent) *GateError {
	if !HasOpenSession(memberID, events) {
		return noOpenSession()
	}
	return nil
}

// inTimeOrder copies events sorted by timestamp, keeping input order for ties.
func inTimeOrder(events []types.AttendanceEvent) []types.AttendanceEvent {
	out := make([]types.AttendanceEvent, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
