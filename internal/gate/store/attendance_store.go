package store

import (
	"context"
	"errors"

	"github.com/americansport/gymgate/internal/gate/types"
)

var (
	// ErrStateConflict is returned by a conditional append when the member's
	// latest event no longer matches the session state the caller decided on.
	ErrStateConflict = errors.New("attendance: member session state changed")

	ErrInvalidEvent = errors.New("attendance: invalid event")
)

// AttendanceStore is the shared attendance ledger.  It is append-only: no
// implementation mutates or deletes an event once written.
type AttendanceStore interface {
	// ReadAttendanceEvents returns every event ordered by timestamp ascending,
	// ties broken by append order.
	ReadAttendanceEvents(ctx context.Context) ([]types.AttendanceEvent, error)
	AppendAttendanceEvent(ctx context.Context, ev types.AttendanceEvent) error
}

// ConditionalAppender appends ev only if the member's session is currently
// open (expectOpen) or closed (!expectOpen) and ev is not stamped before the
// member's latest event, atomically with respect to other appends on the
// same store.  Either failed check returns ErrStateConflict.
type ConditionalAppender interface {
	AppendIfSessionState(ctx context.Context, ev types.AttendanceEvent, expectOpen bool) error
}

// ValidateEvent checks the fields every store requires before a write.
func ValidateEvent(ev types.AttendanceEvent) error {
	switch {
	case ev.ID == "":
		return errors.Join(ErrInvalidEvent, errors.New("id is required"))
	case ev.MemberID == "":
		return errors.Join(ErrInvalidEvent, errors.New("member_id is required"))
	case !ev.Type.Valid():
		return errors.Join(ErrInvalidEvent, errors.New("unknown event type"))
	case !ev.Origin.Valid():
		return errors.Join(ErrInvalidEvent, errors.New("unknown origin"))
	case ev.Timestamp.IsZero():
		return errors.Join(ErrInvalidEvent, errors.New("timestamp is required"))
	}
	return nil
}
