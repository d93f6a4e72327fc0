package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/americansport/gymgate/internal/gate/service"
)

func newResolver(t *testing.T, now time.Time, interval int) *service.SlotResolver {
	t.Helper()
	r, err := service.NewSlotResolver(&fakeClock{now: now}, gymLoc, interval)
	require.NoError(t, err)
	return r
}

func TestNewSlotResolver_IntervalMustDivideHour(t *testing.T) {
	for _, bad := range []int{0, -2, 7, 25, 61} {
		_, err := service.NewSlotResolver(nil, gymLoc, bad)
		assert.ErrorIs(t, err, service.ErrBadInterval, "interval %d", bad)
	}
	for _, ok := range []int{1, 2, 5, 15, 30, 60} {
		_, err := service.NewSlotResolver(nil, gymLoc, ok)
		assert.NoError(t, err, "interval %d", ok)
	}
}

func TestSlotOf(t *testing.T) {
	r := newResolver(t, at(10, 0, 0), 2)

	assert.Equal(t, service.TimeSlot{Date: "2026-03-02", Hour: 10, Index: 2}, r.SlotOf(at(10, 5, 30)))
	assert.Equal(t, service.TimeSlot{Date: "2026-03-02", Hour: 0, Index: 0}, r.SlotOf(at(0, 0, 0)))
	assert.Equal(t, service.TimeSlot{Date: "2026-03-02", Hour: 23, Index: 29}, r.SlotOf(at(23, 59, 59)))
}

func TestSlotOf_UsesGymTimeZone(t *testing.T) {
	r := newResolver(t, at(10, 0, 0), 2)

	utc := time.Date(2026, 3, 3, 1, 30, 0, 0, time.UTC) // 22:30 the day before in the gym
	assert.Equal(t, service.TimeSlot{Date: "2026-03-02", Hour: 22, Index: 15}, r.SlotOf(utc))
}

func TestSlotOf_StableWithinSlot(t *testing.T) {
	r := newResolver(t, at(10, 0, 0), 2)

	want := r.SlotOf(at(10, 4, 0))
	for s := 0; s < 120; s++ {
		got := r.SlotOf(at(10, 4, 0).Add(time.Duration(s) * time.Second))
		require.Equal(t, want, got, "second %d", s)
	}
	assert.NotEqual(t, want, r.SlotOf(at(10, 6, 0)))
}

func TestPrevious(t *testing.T) {
	r := newResolver(t, at(10, 0, 0), 2)

	tests := []struct {
		name string
		in   service.TimeSlot
		want service.TimeSlot
	}{
		{"within hour", service.TimeSlot{Date: "2026-03-02", Hour: 10, Index: 5}, service.TimeSlot{Date: "2026-03-02", Hour: 10, Index: 4}},
		{"hour rollover", service.TimeSlot{Date: "2026-03-02", Hour: 10, Index: 0}, service.TimeSlot{Date: "2026-03-02", Hour: 9, Index: 29}},
		{"date rollover", service.TimeSlot{Date: "2026-03-02", Hour: 0, Index: 0}, service.TimeSlot{Date: "2026-03-01", Hour: 23, Index: 29}},
		{"month rollover", service.TimeSlot{Date: "2026-03-01", Hour: 0, Index: 0}, service.TimeSlot{Date: "2026-02-28", Hour: 23, Index: 29}},
		{"year rollover", service.TimeSlot{Date: "2026-01-01", Hour: 0, Index: 0}, service.TimeSlot{Date: "2025-12-31", Hour: 23, Index: 29}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, r.Previous(tc.in))
		})
	}
}

func TestPrevious_MatchesSlotOneIntervalEarlier(t *testing.T) {
	for _, interval := range []int{1, 2, 5, 15, 30, 60} {
		r := newResolver(t, at(10, 0, 0), interval)
		step := time.Duration(interval) * time.Minute
		start := at(0, 0, 0).Add(-2 * time.Hour)
		for ts := start; ts.Before(start.Add(4 * time.Hour)); ts = ts.Add(step) {
			require.Equal(t, r.SlotOf(ts.Add(-step)), r.Previous(r.SlotOf(ts)), "interval %d at %s", interval, ts)
			require.Equal(t, r.SlotOf(ts.Add(step)), r.Next(r.SlotOf(ts)), "interval %d at %s", interval, ts)
		}
	}
}

func TestNext_DateRollover(t *testing.T) {
	r := newResolver(t, at(10, 0, 0), 2)

	got := r.Next(service.TimeSlot{Date: "2026-02-28", Hour: 23, Index: 29})
	assert.Equal(t, service.TimeSlot{Date: "2026-03-01", Hour: 0, Index: 0}, got)
}

func TestCurrent_FollowsClock(t *testing.T) {
	clock := &fakeClock{now: at(10, 3, 0)}
	r, err := service.NewSlotResolver(clock, gymLoc, 2)
	require.NoError(t, err)

	assert.Equal(t, 1, r.Current().Index)
	clock.Set(at(10, 4, 0))
	assert.Equal(t, 2, r.Current().Index)
}

func TestUntilNextRotation(t *testing.T) {
	assert.Equal(t, 30*time.Second, newResolver(t, at(10, 5, 30), 2).UntilNextRotation())
	assert.Equal(t, 2*time.Minute, newResolver(t, at(10, 4, 0), 2).UntilNextRotation())
	assert.Equal(t, time.Second, newResolver(t, at(10, 5, 59), 2).UntilNextRotation())
	assert.Equal(t, 10*time.Minute, newResolver(t, at(10, 20, 0), 15).UntilNextRotation())
}

func TestFormatCountdown(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{7 * time.Second, "7s"},
		{10 * time.Second, "10s"},
		{1500 * time.Millisecond, "2s"},
		{11 * time.Second, "11 seconds"},
		{59 * time.Second, "59 seconds"},
		{65 * time.Second, "1:05"},
		{2 * time.Minute, "2:00"},
		{0, "0s"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, service.FormatCountdown(tc.in), "input %s", tc.in)
	}
}
