package httpapi

import (
	"math"
	"time"

	"github.com/americansport/gymgate/internal/gate/service"
	"github.com/americansport/gymgate/internal/gate/types"
)

// ── Status / token ──

func statusResponse(st service.OperatingStatus, untilRotation time.Duration, now time.Time) types.StatusResponse {
	return types.StatusResponse{
		Open:                 st.IsOpen,
		Reason:               string(st.Reason),
		Message:              st.Message,
		NextOpen:             st.NextOpenLabel,
		SecondsUntilRotation: wholeSeconds(untilRotation),
		ServerTime:           now.Format(time.RFC3339),
	}
}

func tokenResponse(token, gateURL string, untilRotation time.Duration, now time.Time) types.TokenResponse {
	return types.TokenResponse{
		Token:                token,
		SecondsUntilRotation: wholeSeconds(untilRotation),
		Countdown:            service.FormatCountdown(untilRotation),
		GateURL:              gateURL,
		ServerTime:           now.Format(time.RFC3339),
	}
}

// ── Flows ──

func flowResponse(f service.Flow, ticket string, now time.Time) types.FlowResponse {
	resp := types.FlowResponse{
		Ticket:        ticket,
		State:         string(f.State),
		MemberID:      f.MemberID,
		Action:        f.Action,
		ProofRequired: f.ProofRequired,
		Event:         f.Event,
		ServerTime:    now.Format(time.RFC3339),
	}
	if f.LastCheckIn != nil {
		resp.LastCheckIn = f.LastCheckIn.In(now.Location()).Format(time.RFC3339)
	}
	if f.Error != nil {
		resp.Error = &types.FlowError{
			Kind:    string(f.Error.Kind),
			Reason:  string(f.Error.Reason),
			Hours:   string(f.Error.Hours),
			Message: f.Error.Message,
		}
	}
	return resp
}

// ── Sessions ──

func sessionResponse(memberID string, info service.SessionInfo, loc *time.Location) types.SessionResponse {
	resp := types.SessionResponse{
		MemberID:       memberID,
		HasOpenSession: info.HasOpenSession,
		LastEvent:      info.LastEvent,
	}
	if info.LastCheckIn != nil {
		resp.LastCheckIn = info.LastCheckIn.In(loc).Format(time.RFC3339)
	}
	return resp
}

func wholeSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}
