package service

import (
	"errors"
	"fmt"
)

// ErrorKind groups rejection reasons into the four failure families a
// kiosk cares about.
type ErrorKind string

const (
	KindIdentity      ErrorKind = "identity"
	KindHours         ErrorKind = "hours"
	KindProof         ErrorKind = "proof"
	KindStateConflict ErrorKind = "state_conflict"
)

// Reason is the machine-readable rejection code.
type Reason string

const (
	ReasonOutsideHours       Reason = "OUTSIDE_HOURS"
	ReasonBadCredentials     Reason = "BAD_CREDENTIALS"
	ReasonNotAMemberAccount  Reason = "NOT_A_MEMBER_ACCOUNT"
	ReasonTokenInvalid       Reason = "TOKEN_INVALID_OR_EXPIRED"
	ReasonSessionAlreadyOpen Reason = "SESSION_ALREADY_OPEN"
	ReasonNoOpenSession      Reason = "NO_OPEN_SESSION"
)

// GateError is a rejection.  It travels inside a Flow, not as the error
// return of a flow step.
type GateError struct {
	Kind    ErrorKind
	Reason  Reason
	Hours   ClosedReason // set for KindHours only
	Message string
}

func (e *GateError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gate %s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("gate %s: %s: %s", e.Kind, e.Reason, e.Message)
}

// Is matches the kind sentinels below, or another GateError with the same
// kind and reason.
func (e *GateError) Is(target error) bool {
	t, ok := target.(*GateError)
	if !ok {
		return false
	}
	if t.Reason == "" {
		return t.Kind == e.Kind
	}
	return t.Kind == e.Kind && t.Reason == e.Reason
}

var (
	ErrIdentity      = &GateError{Kind: KindIdentity}
	ErrHours         = &GateError{Kind: KindHours}
	ErrProof         = &GateError{Kind: KindProof}
	ErrStateConflict = &GateError{Kind: KindStateConflict}
)

var (
	// ErrInvalidTransition is returned when a flow step is called from a
	// state that does not accept it.
	ErrInvalidTransition = errors.New("gate: step not allowed in current flow state")
	ErrUnknownMember     = errors.New("gate: member id is required")
)

func badCredentials() *GateError {
	return &GateError{Kind: KindIdentity, Reason: ReasonBadCredentials, Message: "Invalid username or password"}
}

func notAMember() *GateError {
	return &GateError{Kind: KindIdentity, Reason: ReasonNotAMemberAccount, Message: "This account is not linked to a member"}
}

func outsideHours(st OperatingStatus) *GateError {
	return &GateError{Kind: KindHours, Reason: ReasonOutsideHours, Hours: st.Reason, Message: st.Message}
}

func tokenMissing() *GateError {
	return &GateError{Kind: KindProof, Reason: ReasonTokenInvalid, Message: "Scan the QR code at the front desk"}
}

func tokenRejected() *GateError {
	return &GateError{Kind: KindProof, Reason: ReasonTokenInvalid, Message: "QR code expired or invalid. Scan the current code at the front desk"}
}

func sessionAlreadyOpen() *GateError {
	return &GateError{Kind: KindStateConflict, Reason: ReasonSessionAlreadyOpen, Message: "Check-in already recorded. Check out first"}
}

func noOpenSession() *GateError {
	return &GateError{Kind: KindStateConflict, Reason: ReasonNoOpenSession, Message: "No check-in recorded to check out from"}
}
