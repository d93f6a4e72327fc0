package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/americansport/gymgate/internal/gate/store"
	"github.com/americansport/gymgate/internal/gate/types"
	"github.com/americansport/gymgate/internal/telemetry"
)

type FlowState string

const (
	AwaitingIdentity     FlowState = "AWAITING_IDENTITY"
	AwaitingProof        FlowState = "AWAITING_PROOF"
	AwaitingConfirmation FlowState = "AWAITING_CONFIRMATION"
	Recorded             FlowState = "RECORDED"
	Rejected             FlowState = "REJECTED"
)

// Flow is the whole state of one gate attempt.  Each step takes a Flow and
// returns the next one; the service itself keeps nothing between steps.
type Flow struct {
	State          FlowState       `json:"state"`
	Username       string          `json:"username,omitempty"`
	MemberID       string          `json:"member_id,omitempty"`
	Action         types.EventType `json:"action,omitempty"`
	ProofRequired  bool            `json:"proof_required,omitempty"`
	PresentedToken string          `json:"presented_token,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	LastCheckIn    *time.Time      `json:"last_check_in,omitempty"`

	// Error is the rejection when State is REJECTED, or the last proof
	// error while the flow waits in AWAITING_PROOF.
	Error *GateError             `json:"-"`
	Event *types.AttendanceEvent `json:"-"`
}

func (f Flow) Terminal() bool {
	return f.State == Recorded || f.State == Rejected
}

// GateService runs the check-in/check-out flow against the shared ledger.
// Rejections come back inside the Flow; the error return is kept for
// ledger failures and for steps called out of order.
type GateService struct {
	tokens  *TokenIssuer
	ids     IdentityResolver
	store   store.AttendanceStore
	logger  zerolog.Logger
	metrics *telemetry.Metrics
}

func NewGateService(tokens *TokenIssuer, ids IdentityResolver, st store.AttendanceStore, logger zerolog.Logger) *GateService {
	return &GateService{
		tokens:  tokens,
		ids:     ids,
		store:   st,
		logger:  logger.With().Str("component", "gate").Logger(),
		metrics: telemetry.GetMetrics(),
	}
}

func (s *GateService) Now() time.Time { return s.tokens.slots.clock.Now() }

func (s *GateService) Location() *time.Location { return s.tokens.slots.Location() }

// CurrentToken is "" outside operating hours.
func (s *GateService) CurrentToken() string { return s.tokens.CurrentToken() }

func (s *GateService) GateURL(base string) string { return s.tokens.GateURL(base) }

func (s *GateService) OperatingStatus() OperatingStatus {
	return s.tokens.hours.StatusAt(s.Now())
}

func (s *GateService) TimeUntilNextRotation() time.Duration {
	return s.tokens.slots.UntilNextRotation()
}

// Begin resolves who is at the gate and fixes the action from their
// current session: an open session means CHECK_OUT with no proof, anything
// else means CHECK_IN behind a valid token.
func (s *GateService) Begin(ctx context.Context, username, secret string) (Flow, error) {
	now := s.Now()
	f := Flow{
		State:     AwaitingIdentity,
		Username:  strings.TrimSpace(username),
		StartedAt: now.UTC(),
	}
	s.metrics.FlowsStarted.Add(ctx, 1)

	id, err := s.ids.ResolveIdentity(ctx, f.Username, secret)
	if errors.Is(err, ErrBadCredentials) {
		return s.reject(ctx, f, badCredentials()), nil
	}
	if err != nil {
		return f, fmt.Errorf("resolve identity: %w", err)
	}
	if !id.IsMember() {
		return s.reject(ctx, f, notAMember()), nil
	}
	f.MemberID = id.MemberID

	if st := s.tokens.hours.StatusAt(now); !st.IsOpen {
		return s.reject(ctx, f, outsideHours(st)), nil
	}

	events, err := s.readLedger(ctx)
	if err != nil {
		return f, err
	}
	info := SessionInfoFor(f.MemberID, events)
	f.LastCheckIn = info.LastCheckIn

	if info.HasOpenSession {
		f.Action = types.CheckOut
		f.ProofRequired = false
		f.State = AwaitingConfirmation
	} else {
		f.Action = types.CheckIn
		f.ProofRequired = true
		f.State = AwaitingProof
	}

	s.logger.Debug().
		Str("member_id", f.MemberID).
		Str("action", string(f.Action)).
		Str("state", string(f.State)).
		Msg("gate flow started")
	return f, nil
}

// SubmitProof checks a presented token.  A missing or rejected token leaves
// the flow in AWAITING_PROOF with a proof error so the member can scan again.
func (s *GateService) SubmitProof(ctx context.Context, f Flow, token string) (Flow, error) {
	if f.State != AwaitingProof || f.MemberID == "" {
		return f, ErrInvalidTransition
	}
	now := s.Now()

	if st := s.tokens.hours.StatusAt(now); !st.IsOpen {
		return s.reject(ctx, f, outsideHours(st)), nil
	}

	events, err := s.readLedger(ctx)
	if err != nil {
		return f, err
	}
	if HasOpenSession(f.MemberID, events) {
		return s.reject(ctx, f, sessionAlreadyOpen()), nil
	}

	s.metrics.ProofsSubmitted.Add(ctx, 1)

	token = strings.TrimSpace(token)
	f.PresentedToken = ""
	switch {
	case token == "":
		f.Error = tokenMissing()
	case !s.tokens.IsValid(token):
		f.Error = tokenRejected()
	default:
		f.Error = nil
		f.PresentedToken = token
		f.State = AwaitingConfirmation
		return f, nil
	}

	s.countRejection(ctx, f.Error)
	s.logger.Info().
		Str("member_id", f.MemberID).
		Str("reason", string(f.Error.Reason)).
		Str("state", string(f.State)).
		Msg("gate proof refused")
	return f, nil
}

// Confirm re-checks hours, session state and, for a check-in, the token,
// against a fresh read of the ledger, then appends exactly one event.
func (s *GateService) Confirm(ctx context.Context, f Flow) (Flow, error) {
	if f.State != AwaitingConfirmation || f.MemberID == "" || !f.Action.Valid() {
		return f, ErrInvalidTransition
	}
	now := s.Now()

	if st := s.tokens.hours.StatusAt(now); !st.IsOpen {
		return s.reject(ctx, f, outsideHours(st)), nil
	}

	events, err := s.readLedger(ctx)
	if err != nil {
		return f, err
	}
	info := SessionInfoFor(f.MemberID, events)
	open := info.HasOpenSession

	switch f.Action {
	case types.CheckIn:
		if !s.tokens.IsValid(f.PresentedToken) {
			return s.reject(ctx, f, tokenRejected()), nil
		}
		if open {
			return s.reject(ctx, f, sessionAlreadyOpen()), nil
		}
	case types.CheckOut:
		if !open {
			return s.reject(ctx, f, noOpenSession()), nil
		}
	}
	if info.LastEvent != nil && now.Before(info.LastEvent.Timestamp) {
		return s.reject(ctx, f, laterEventRecorded(f.Action)), nil
	}

	ev := types.AttendanceEvent{
		ID:             uuid.NewString(),
		MemberID:       f.MemberID,
		Type:           f.Action,
		Timestamp:      now.UTC(),
		Origin:         types.OriginQR,
		PresentedToken: f.PresentedToken,
	}

	err = s.appendExpecting(ctx, ev, f.Action == types.CheckOut)
	if errors.Is(err, store.ErrStateConflict) {
		return s.reject(ctx, f, conflictFor(f.Action)), nil
	}
	if err != nil {
		s.logger.Error().Err(err).Str("member_id", f.MemberID).Msg("append attendance failed")
		return f, fmt.Errorf("append attendance: %w", err)
	}

	f.State = Recorded
	f.Error = nil
	f.Event = &ev
	s.recorded(ctx, ev)
	return f, nil
}

// SessionInfo reads the ledger and summarises memberID's session.
func (s *GateService) SessionInfo(ctx context.Context, memberID string) (SessionInfo, error) {
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return SessionInfo{}, ErrUnknownMember
	}
	events, err := s.readLedger(ctx)
	if err != nil {
		return SessionInfo{}, err
	}
	return SessionInfoFor(memberID, events), nil
}

// Ledger returns the full attendance history in time order.
func (s *GateService) Ledger(ctx context.Context) ([]types.AttendanceEvent, error) {
	return s.readLedger(ctx)
}

var (
	// ErrBackdated is returned when a manual event would land before the
	// member's latest recorded event.
	ErrBackdated = errors.New("gate: manual event predates member's last event")
	// ErrFutureDated is returned when a manual event is stamped after now.
	ErrFutureDated = errors.New("gate: manual event is in the future")
)

// RecordManual appends a front-desk entry with origin MANUAL.  Alternation
// is enforced exactly as for the gate; operating hours are not.  A zero at
// means now.  A refused alternation comes back as a *GateError.
func (s *GateService) RecordManual(ctx context.Context, memberID string, typ types.EventType, at time.Time) (types.AttendanceEvent, error) {
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return types.AttendanceEvent{}, ErrUnknownMember
	}
	if !typ.Valid() {
		return types.AttendanceEvent{}, fmt.Errorf("%w: type %q", store.ErrInvalidEvent, typ)
	}
	now := s.Now()
	if at.IsZero() {
		at = now
	}
	if at.After(now) {
		return types.AttendanceEvent{}, ErrFutureDated
	}

	events, err := s.readLedger(ctx)
	if err != nil {
		return types.AttendanceEvent{}, err
	}
	info := SessionInfoFor(memberID, events)
	if info.LastEvent != nil && at.Before(info.LastEvent.Timestamp) {
		return types.AttendanceEvent{}, ErrBackdated
	}

	var refusal *GateError
	if typ == types.CheckIn {
		refusal = CanCheckIn(memberID, events)
	} else {
		refusal = CanCheckOut(memberID, events)
	}
	if refusal != nil {
		s.countRejection(ctx, refusal)
		return types.AttendanceEvent{}, refusal
	}

	ev := types.AttendanceEvent{
		ID:        uuid.NewString(),
		MemberID:  memberID,
		Type:      typ,
		Timestamp: at.UTC(),
		Origin:    types.OriginManual,
	}
	err = s.appendExpecting(ctx, ev, typ == types.CheckOut)
	if errors.Is(err, store.ErrStateConflict) {
		return types.AttendanceEvent{}, conflictFor(typ)
	}
	if err != nil {
		return types.AttendanceEvent{}, fmt.Errorf("append attendance: %w", err)
	}

	s.recorded(ctx, ev)
	return ev, nil
}

// CloseOpenSessions appends a SYSTEM CHECK_OUT at asOf for every member
// still checked in and returns what it wrote.  A member who checks out
// between the read and the write is skipped, as is one whose check-in is
// stamped after asOf.
func (s *GateService) CloseOpenSessions(ctx context.Context, asOf time.Time) ([]types.AttendanceEvent, error) {
	events, err := s.readLedger(ctx)
	if err != nil {
		return nil, err
	}
	_, closing := CloseAllOpenSessions(events, asOf.UTC())
	latest := latestByMember(events)

	var written []types.AttendanceEvent
	for _, ev := range closing {
		if ev.Timestamp.Before(latest[ev.MemberID]) {
			s.logger.Warn().
				Str("member_id", ev.MemberID).
				Time("check_in", latest[ev.MemberID]).
				Msg("check-in is after sweep time, leaving session open")
			continue
		}
		err := s.appendExpecting(ctx, ev, true)
		if errors.Is(err, store.ErrStateConflict) {
			s.logger.Debug().Str("member_id", ev.MemberID).Msg("session closed concurrently, skipping")
			continue
		}
		if err != nil {
			return written, fmt.Errorf("close session for %s: %w", ev.MemberID, err)
		}
		written = append(written, ev)
		s.recorded(ctx, ev)
	}

	if len(written) > 0 {
		s.metrics.SessionsSwept.Add(ctx, int64(len(written)))
		s.logger.Info().
			Int("closed", len(written)).
			Time("as_of", asOf).
			Msg("open sessions closed")
	}
	return written, nil
}

// conflictFor is the refusal for an append of typ that no longer fits the
// member's session state.
func conflictFor(typ types.EventType) *GateError {
	if typ == types.CheckIn {
		return sessionAlreadyOpen()
	}
	return noOpenSession()
}

// laterEventRecorded refuses an append that would sort before the member's
// latest event.
func laterEventRecorded(typ types.EventType) *GateError {
	ge := conflictFor(typ)
	ge.Message = "A later attendance event is already recorded for this member"
	return ge
}

func latestByMember(events []types.AttendanceEvent) map[string]time.Time {
	latest := make(map[string]time.Time)
	for _, ev := range events {
		if ev.Timestamp.After(latest[ev.MemberID]) {
			latest[ev.MemberID] = ev.Timestamp
		}
	}
	return latest
}

func (s *GateService) readLedger(ctx context.Context) ([]types.AttendanceEvent, error) {
	events, err := s.store.ReadAttendanceEvents(ctx)
	if err != nil {
		s.metrics.LedgerReadErrors.Add(ctx, 1)
		s.logger.Error().Err(err).Msg("read attendance failed")
		return nil, fmt.Errorf("read attendance: %w", err)
	}
	return events, nil
}

// appendExpecting uses the store's conditional append when it has one.
// Plain stores get the pre-write re-check done by the caller only.
func (s *GateService) appendExpecting(ctx context.Context, ev types.AttendanceEvent, expectOpen bool) error {
	if ca, ok := s.store.(store.ConditionalAppender); ok {
		return ca.AppendIfSessionState(ctx, ev, expectOpen)
	}
	return s.store.AppendAttendanceEvent(ctx, ev)
}

func (s *GateService) reject(ctx context.Context, f Flow, ge *GateError) Flow {
	f.State = Rejected
	f.Error = ge
	s.countRejection(ctx, ge)

	ev := s.logger.Info().
		Str("reason", string(ge.Reason)).
		Str("kind", string(ge.Kind)).
		Str("state", string(f.State))
	if f.MemberID != "" {
		ev = ev.Str("member_id", f.MemberID)
	}
	ev.Msg("gate flow rejected")
	return f
}

func (s *GateService) countRejection(ctx context.Context, ge *GateError) {
	s.metrics.Rejections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", string(ge.Reason)),
	))
}

func (s *GateService) recorded(ctx context.Context, ev types.AttendanceEvent) {
	s.metrics.EventsRecorded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", string(ev.Type)),
		attribute.String("origin", string(ev.Origin)),
	))
	s.logger.Info().
		Str("event_id", ev.ID).
		Str("member_id", ev.MemberID).
		Str("type", string(ev.Type)).
		Str("origin", string(ev.Origin)).
		Msg("attendance recorded")
}
