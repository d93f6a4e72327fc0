package types

import "time"

type EventType string

const (
	CheckIn  EventType = "CHECK_IN"
	CheckOut EventType = "CHECK_OUT"
)

func (t EventType) Valid() bool {
	return t == CheckIn || t == CheckOut
}

// Origin marks how an attendance event came to exist.  SYSTEM events are
// written by the end-of-day sweep and never by a member's own action.
type Origin string

const (
	OriginQR     Origin = "QR"
	OriginManual Origin = "MANUAL"
	OriginSystem Origin = "SYSTEM"
)

func (o Origin) Valid() bool {
	return o == OriginQR || o == OriginManual || o == OriginSystem
}

// AttendanceEvent is one immutable entry in the attendance ledger.
type AttendanceEvent struct {
	ID             string    `json:"id"`
	MemberID       string    `json:"member_id"`
	Type           EventType `json:"type"`
	Timestamp      time.Time `json:"ts"`
	Origin         Origin    `json:"origin"`
	PresentedToken string    `json:"presented_token,omitempty"`
}
