package types

type StatusResponse struct {
	Open                 bool   `json:"open"`
	Reason               string `json:"reason,omitempty"`
	Message              string `json:"message,omitempty"`
	NextOpen             string `json:"next_open,omitempty"`
	SecondsUntilRotation int    `json:"seconds_until_rotation"`
	ServerTime           string `json:"server_time"`
}

type TokenResponse struct {
	Token                string `json:"token"`
	SecondsUntilRotation int    `json:"seconds_until_rotation"`
	Countdown            string `json:"countdown"`
	GateURL              string `json:"gate_url,omitempty"`
	ServerTime           string `json:"server_time"`
}

type BeginFlowRequest struct {
	Username string `json:"username" validate:"required"`
	Secret   string `json:"secret" validate:"required"`
	Token    string `json:"token,omitempty"` // optional, carried by the QR link
}

type ProofRequest struct {
	Ticket string `json:"ticket" validate:"required"`
	Token  string `json:"token"`
}

type ConfirmRequest struct {
	Ticket string `json:"ticket" validate:"required"`
}

type FlowResponse struct {
	Ticket        string           `json:"ticket,omitempty"`
	State         string           `json:"state"`
	MemberID      string           `json:"member_id,omitempty"`
	Action        EventType        `json:"action,omitempty"`
	ProofRequired bool             `json:"proof_required"`
	LastCheckIn   string           `json:"last_check_in,omitempty"`
	Error         *FlowError       `json:"error,omitempty"`
	Event         *AttendanceEvent `json:"event,omitempty"`
	ServerTime    string           `json:"server_time"`
}

// FlowError is the wire form of a gate rejection or a recoverable proof error.
type FlowError struct {
	Kind    string `json:"kind"`
	Reason  string `json:"reason"`
	Hours   string `json:"hours,omitempty"`
	Message string `json:"message"`
}

type SessionResponse struct {
	MemberID       string           `json:"member_id"`
	HasOpenSession bool             `json:"has_open_session"`
	LastEvent      *AttendanceEvent `json:"last_event,omitempty"`
	LastCheckIn    string           `json:"last_check_in,omitempty"`
}

type ManualRecordRequest struct {
	MemberID string    `json:"member_id" validate:"required"`
	Type     EventType `json:"type" validate:"required,oneof=CHECK_IN CHECK_OUT"`
	At       string    `json:"at,omitempty"` // RFC3339; defaults to now
}

type SweepResponse struct {
	Closed int               `json:"closed"`
	Events []AttendanceEvent `json:"events"`
	AsOf   string            `json:"as_of"`
}
