package service

import (
	"fmt"
	"time"
)

// Gym opening hours as fractional hours: [08:30, 23:00).
const (
	OpenHour  = 8.5
	CloseHour = 23.0
)

type ClosedReason string

const (
	NotYetOpen   ClosedReason = "not_yet_open"
	ClosedForDay ClosedReason = "closed_for_day"
)

type OperatingStatus struct {
	IsOpen        bool
	Reason        ClosedReason // empty when open
	Message       string
	NextOpenLabel string // empty when open
}

// OperatingWindow is the fixed daily window during which gate actions are
// allowed.  It is evaluated against local wall-clock time on every call.
type OperatingWindow struct {
	Open  float64
	Close float64
	Loc   *time.Location
}

func DefaultOperatingWindow(loc *time.Location) OperatingWindow {
	return OperatingWindow{Open: OpenHour, Close: CloseHour, Loc: loc}
}

func (w OperatingWindow) StatusAt(t time.Time) OperatingStatus {
	if w.Loc != nil {
		t = t.In(w.Loc)
	}
	now := float64(t.Hour()) + float64(t.Minute())/60

	switch {
	case now < w.Open:
		return OperatingStatus{
			Reason: NotYetOpen,
			Message: fmt.Sprintf("The gym opens at %s. Current time: %d:%02d",
				hourLabel(w.Open), t.Hour(), t.Minute()),
			NextOpenLabel: hourLabel(w.Open),
		}
	case now >= w.Close:
		return OperatingStatus{
			Reason: ClosedForDay,
			Message: fmt.Sprintf("The gym is closed. Hours: %s - %s",
				hourLabel(w.Open), hourLabel(w.Close)),
			NextOpenLabel: hourLabel(w.Open) + " (tomorrow)",
		}
	}
	return OperatingStatus{
		IsOpen:  true,
		Message: fmt.Sprintf("Open until %s", hourLabel(w.Close)),
	}
}

// hourLabel turns 8.5 into "8:30 AM" and 23 into "11:00 PM".
func hourLabel(h float64) string {
	mins := int(h*60 + 0.5)
	hh, mm := mins/60, mins%60
	suffix := "AM"
	if hh >= 12 {
		suffix = "PM"
	}
	hh %= 12
	if hh == 0 {
		hh = 12
	}
	return fmt.Sprintf("%d:%02d %s", hh, mm, suffix)
}
