package service

import (
	"errors"
	"fmt"
	"time"
)

// RotationIntervalMinutes is how long one access token stays current.
const RotationIntervalMinutes = 2

var ErrBadInterval = errors.New("rotation interval must divide 60 minutes")

const dateLayout = "2006-01-02"

// TimeSlot is a derived, never stored, window of wall-clock time.  Index is
// minuteOfHour / interval, so slots partition each hour with no gaps.
type TimeSlot struct {
	Date  string // local calendar date, YYYY-MM-DD
	Hour  int
	Index int
}

func (s TimeSlot) String() string {
	return fmt.Sprintf("%s %02d/%02d", s.Date, s.Hour, s.Index)
}

// SlotResolver maps instants to slots in the gym's local time zone.
type SlotResolver struct {
	clock    Clock
	loc      *time.Location
	interval int
}

func NewSlotResolver(clock Clock, loc *time.Location, intervalMinutes int) (*SlotResolver, error) {
	if intervalMinutes <= 0 || 60%intervalMinutes != 0 {
		return nil, fmt.Errorf("%w: got %d", ErrBadInterval, intervalMinutes)
	}
	if clock == nil {
		clock = SystemClock
	}
	if loc == nil {
		loc = time.Local
	}
	return &SlotResolver{clock: clock, loc: loc, interval: intervalMinutes}, nil
}

func (r *SlotResolver) Location() *time.Location { return r.loc }

func (r *SlotResolver) SlotsPerHour() int { return 60 / r.interval }

func (r *SlotResolver) SlotOf(t time.Time) TimeSlot {
	lt := t.In(r.loc)
	return TimeSlot{
		Date:  lt.Format(dateLayout),
		Hour:  lt.Hour(),
		Index: lt.Minute() / r.interval,
	}
}

func (r *SlotResolver) Current() TimeSlot {
	return r.SlotOf(r.clock.Now())
}

// Previous steps back one slot, rolling over hour and date.
func (r *SlotResolver) Previous(s TimeSlot) TimeSlot {
	if s.Index > 0 {
		return TimeSlot{Date: s.Date, Hour: s.Hour, Index: s.Index - 1}
	}
	last := r.SlotsPerHour() - 1
	if s.Hour > 0 {
		return TimeSlot{Date: s.Date, Hour: s.Hour - 1, Index: last}
	}
	return TimeSlot{Date: shiftDate(s.Date, -1), Hour: 23, Index: last}
}

func (r *SlotResolver) Next(s TimeSlot) TimeSlot {
	if s.Index < r.SlotsPerHour()-1 {
		return TimeSlot{Date: s.Date, Hour: s.Hour, Index: s.Index + 1}
	}
	if s.Hour < 23 {
		return TimeSlot{Date: s.Date, Hour: s.Hour + 1, Index: 0}
	}
	return TimeSlot{Date: shiftDate(s.Date, 1), Hour: 0, Index: 0}
}

// UntilNextRotation is display-only.  Never feed it into validation.
func (r *SlotResolver) UntilNextRotation() time.Duration {
	return r.untilNextRotationAt(r.clock.Now())
}

func (r *SlotResolver) untilNextRotationAt(t time.Time) time.Duration {
	lt := t.In(r.loc)
	into := time.Duration(lt.Minute()%r.interval)*time.Minute +
		time.Duration(lt.Second())*time.Second +
		time.Duration(lt.Nanosecond())
	return time.Duration(r.interval)*time.Minute - into
}

func shiftDate(date string, days int) string {
	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return date
	}
	return d.AddDate(0, 0, days).Format(dateLayout)
}

// FormatCountdown renders a rotation countdown the way the kiosk shows it:
// "7s" for the last ten seconds, "42 seconds" under a minute, else "m:ss".
// Partial seconds round up so the display never reads 0 before rotation.
func FormatCountdown(d time.Duration) string {
	total := int((d + time.Second - 1) / time.Second)
	if total < 0 {
		total = 0
	}
	m, s := total/60, total%60
	switch {
	case m == 0 && s <= 10:
		return fmt.Sprintf("%ds", s)
	case m == 0:
		return fmt.Sprintf("%d seconds", s)
	default:
		return fmt.Sprintf("%d:%02d", m, s)
	}
}
