package httpapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/americansport/gymgate/internal/gate/service"
	"github.com/americansport/gymgate/internal/gate/store"
	"github.com/americansport/gymgate/internal/gate/store/snapshot"
	"github.com/americansport/gymgate/internal/gate/types"
)

type Dependencies struct {
	Logger     zerolog.Logger
	Addr       string
	Gate       *service.GateService
	Sweeper    *service.SessionSweeper
	Identities service.IdentityResolver
	// TicketKey signs flow tickets.  Required.
	TicketKey []byte
	// GateBaseURL, when set, is used to build the QR link in token responses.
	GateBaseURL string
	// Snapshot, when set, enables the admin snapshot routes.
	Snapshot SnapshotAdmin
}

// SnapshotAdmin is the whole-document surface of the snapshot store.
type SnapshotAdmin interface {
	Export(w io.Writer) error
	Import(r io.Reader) error
	Reset() error
}

type Server struct {
	httpServer  *http.Server
	logger      zerolog.Logger
	gate        *service.GateService
	sweeper     *service.SessionSweeper
	identities  service.IdentityResolver
	tickets     ticketSigner
	gateBaseURL string
	snapshot    SnapshotAdmin
}

func NewServer(d Dependencies) (*Server, error) {
	if len(d.TicketKey) == 0 {
		return nil, errors.New("httpapi: ticket key is required")
	}
	sweeper := d.Sweeper
	if sweeper == nil {
		sweeper = service.NewSessionSweeper(d.Gate, service.SweeperConfig{}, d.Logger)
	}

	s := &Server{
		logger:      d.Logger,
		gate:        d.Gate,
		sweeper:     sweeper,
		identities:  d.Identities,
		tickets:     ticketSigner{key: d.TicketKey},
		gateBaseURL: d.GateBaseURL,
		snapshot:    d.Snapshot,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware(d.Logger))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/gate/status", s.handleStatus)
		r.Get("/gate/token", s.handleToken)
		r.Post("/gate/flows", s.handleBeginFlow)
		r.Post("/gate/flows/proof", s.handleProof)
		r.Post("/gate/flows/confirm", s.handleConfirm)
		r.With(s.selfOrAdmin).Get("/members/{memberID}/session", s.handleSession)

		r.Group(func(r chi.Router) {
			r.Use(s.adminOnly)
			r.Post("/admin/attendance", s.handleManualRecord)
			r.Post("/admin/sweep", s.handleSweep)
			r.Get("/admin/attendance.xlsx", s.handleExport)

			if s.snapshot != nil {
				r.Get("/admin/snapshot", s.handleSnapshotExport)
				r.Put("/admin/snapshot", s.handleSnapshotImport)
				r.Post("/admin/snapshot/reset", s.handleSnapshotReset)
			}
		})
	})

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s, nil
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) now() time.Time {
	return s.gate.Now().In(s.gate.Location())
}

// ── Gate status ──

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse(s.gate.OperatingStatus(), s.gate.TimeUntilNextRotation(), s.now())
	respond(w, r, http.StatusOK, resp)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	tok := s.gate.CurrentToken()
	if tok == "" {
		respondError(w, r, http.StatusConflict, "gate_closed", s.gate.OperatingStatus().Message)
		return
	}

	var url string
	if s.gateBaseURL != "" {
		url = s.gate.GateURL(s.gateBaseURL)
	}
	respond(w, r, http.StatusOK, tokenResponse(tok, url, s.gate.TimeUntilNextRotation(), s.now()))
}

// ── Gate flow ──

func (s *Server) handleBeginFlow(w http.ResponseWriter, r *http.Request) {
	var req types.BeginFlowRequest
	if !decodeBody(w, r, &req) {
		return
	}

	f, err := s.gate.Begin(r.Context(), req.Username, req.Secret)
	if err != nil {
		s.internalError(w, r, "begin flow", err)
		return
	}

	// A QR link carries the token, so the proof step can run right away.
	if f.State == service.AwaitingProof && req.Token != "" {
		f, err = s.gate.SubmitProof(r.Context(), f, req.Token)
		if err != nil {
			s.internalError(w, r, "submit proof", err)
			return
		}
	}

	s.respondFlow(w, r, f)
}

func (s *Server) handleProof(w http.ResponseWriter, r *http.Request) {
	var req types.ProofRequest
	if !decodeBody(w, r, &req) {
		return
	}
	f, ok := s.flowFromTicket(w, r, req.Ticket)
	if !ok {
		return
	}

	next, err := s.gate.SubmitProof(r.Context(), f, req.Token)
	if err != nil {
		s.flowStepError(w, r, "submit proof", err)
		return
	}
	s.respondFlow(w, r, next)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req types.ConfirmRequest
	if !decodeBody(w, r, &req) {
		return
	}
	f, ok := s.flowFromTicket(w, r, req.Ticket)
	if !ok {
		return
	}

	next, err := s.gate.Confirm(r.Context(), f)
	if err != nil {
		s.flowStepError(w, r, "confirm", err)
		return
	}
	s.respondFlow(w, r, next)
}

func (s *Server) flowFromTicket(w http.ResponseWriter, r *http.Request, raw string) (service.Flow, bool) {
	f, err := s.tickets.parse(raw, s.now())
	if err != nil {
		s.logger.Debug().Err(err).Msg("rejecting flow ticket")
		respondError(w, r, http.StatusBadRequest, "bad_ticket", "flow ticket is invalid, start again")
		return service.Flow{}, false
	}
	return f, true
}

// respondFlow answers 200 for every flow outcome, rejections included.
// Non-terminal flows get a fresh ticket.
func (s *Server) respondFlow(w http.ResponseWriter, r *http.Request, f service.Flow) {
	now := s.now()
	var ticket string
	if !f.Terminal() {
		var err error
		ticket, err = s.tickets.issue(f, now)
		if err != nil {
			s.internalError(w, r, "issue ticket", err)
			return
		}
	}
	respond(w, r, http.StatusOK, flowResponse(f, ticket, now))
}

func (s *Server) flowStepError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, service.ErrInvalidTransition) {
		respondError(w, r, http.StatusConflict, "invalid_transition", "this step does not apply to the flow's current state")
		return
	}
	s.internalError(w, r, op, err)
}

// ── Sessions ──

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "memberID")

	info, err := s.gate.SessionInfo(r.Context(), memberID)
	if err != nil {
		if errors.Is(err, service.ErrUnknownMember) {
			respondError(w, r, http.StatusBadRequest, "invalid_member_id", err.Error())
			return
		}
		s.internalError(w, r, "session info", err)
		return
	}
	respond(w, r, http.StatusOK, sessionResponse(memberID, info, s.gate.Location()))
}

// ── Admin ──

func (s *Server) handleManualRecord(w http.ResponseWriter, r *http.Request) {
	var req types.ManualRecordRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var at time.Time
	if req.At != "" {
		var err error
		at, err = time.Parse(time.RFC3339, req.At)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "bad_time", "at must be RFC3339")
			return
		}
	}

	ev, err := s.gate.RecordManual(r.Context(), req.MemberID, req.Type, at)
	var ge *service.GateError
	switch {
	case err == nil:
		respond(w, r, http.StatusCreated, ev)
	case errors.As(err, &ge):
		respondError(w, r, http.StatusConflict, string(ge.Reason), ge.Message)
	case errors.Is(err, service.ErrBackdated):
		respondError(w, r, http.StatusConflict, "backdated", err.Error())
	case errors.Is(err, service.ErrFutureDated):
		respondError(w, r, http.StatusBadRequest, "future_dated", err.Error())
	case errors.Is(err, store.ErrInvalidEvent), errors.Is(err, service.ErrUnknownMember):
		respondError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		s.internalError(w, r, "manual record", err)
	}
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	asOf := s.now()
	closed, err := s.sweeper.SweepNow(r.Context())
	if err != nil {
		s.internalError(w, r, "sweep", err)
		return
	}
	if closed == nil {
		closed = []types.AttendanceEvent{}
	}
	respond(w, r, http.StatusOK, types.SweepResponse{
		Closed: len(closed),
		Events: closed,
		AsOf:   asOf.Format(time.RFC3339),
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	loc := s.gate.Location()
	from, to, err := parseDateRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"), loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_range", err.Error())
		return
	}

	events, err := s.gate.Ledger(r.Context())
	if err != nil {
		s.internalError(w, r, "export", err)
		return
	}
	selected := events[:0:0]
	for _, ev := range events {
		if (from.IsZero() || !ev.Timestamp.Before(from)) && (to.IsZero() || ev.Timestamp.Before(to)) {
			selected = append(selected, ev)
		}
	}

	buf, err := attendanceWorkbook(selected, loc)
	if err != nil {
		s.internalError(w, r, "export", err)
		return
	}

	name := fmt.Sprintf("attendance-%s.xlsx", s.now().Format("20060102-1504"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// ── Snapshot ──

// maxSnapshotBody caps an imported document.
const maxSnapshotBody = 32 << 20

func (s *Server) handleSnapshotExport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.snapshot.Export(&buf); err != nil {
		s.internalError(w, r, "snapshot export", err)
		return
	}

	name := fmt.Sprintf("gymgate-snapshot-%s.json", s.now().Format("20060102-1504"))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleSnapshotImport(w http.ResponseWriter, r *http.Request) {
	err := s.snapshot.Import(http.MaxBytesReader(w, r.Body, maxSnapshotBody))
	var tooLarge *http.MaxBytesError
	switch {
	case err == nil:
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", "snapshot exceeds the size limit")
		return
	case errors.Is(err, snapshot.ErrInvalidDocument):
		writeError(w, http.StatusBadRequest, "invalid_snapshot", err.Error())
		return
	default:
		s.internalError(w, r, "snapshot import", err)
		return
	}

	s.logger.Warn().Str("admin", callerFrom(r.Context()).Username).Msg("snapshot imported")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSnapshotReset(w http.ResponseWriter, r *http.Request) {
	if err := s.snapshot.Reset(); err != nil {
		s.internalError(w, r, "snapshot reset", err)
		return
	}
	s.logger.Warn().Str("admin", callerFrom(r.Context()).Username).Msg("snapshot reset")
	w.WriteHeader(http.StatusNoContent)
}

// parseDateRange turns inclusive YYYY-MM-DD bounds into a half-open
// [from, to) instant range.  Empty bounds stay zero.
func parseDateRange(fromStr, toStr string, loc *time.Location) (from, to time.Time, err error) {
	if fromStr != "" {
		if from, err = time.ParseInLocation("2006-01-02", fromStr, loc); err != nil {
			return from, to, errors.New("from must be YYYY-MM-DD")
		}
	}
	if toStr != "" {
		if to, err = time.ParseInLocation("2006-01-02", toStr, loc); err != nil {
			return from, to, errors.New("to must be YYYY-MM-DD")
		}
		to = to.AddDate(0, 0, 1)
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return from, to, errors.New("from must not be after to")
	}
	return from, to, nil
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.logger.Error().Err(err).Str("op", op).Msg("request failed")
	respondError(w, r, http.StatusInternalServerError, "internal_error", "unexpected server error")
}
