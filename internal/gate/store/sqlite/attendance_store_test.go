package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/americansport/gymgate/internal/db"
	"github.com/americansport/gymgate/internal/gate/store"
	sqlitestore "github.com/americansport/gymgate/internal/gate/store/sqlite"
	"github.com/americansport/gymgate/internal/gate/types"
)

var base = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func event(id, member string, typ types.EventType, at time.Time) types.AttendanceEvent {
	return types.AttendanceEvent{
		ID:        id,
		MemberID:  member,
		Type:      typ,
		Timestamp: at,
		Origin:    types.OriginManual,
	}
}

// ── Append / Read ──

func TestAttendanceStore_AppendThenRead(t *testing.T) {
	conn := openTestDB(t)
	s := sqlitestore.NewAttendanceStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	in := event("e1", "m1", types.CheckIn, base)
	in.Origin = types.OriginQR
	in.PresentedToken = "ASG1203abcdefgh"
	require.NoError(t, s.AppendAttendanceEvent(ctx, in))

	got, err := s.ReadAttendanceEvents(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "e1", got[0].ID)
	assert.Equal(t, types.CheckIn, got[0].Type)
	assert.Equal(t, types.OriginQR, got[0].Origin)
	assert.Equal(t, "ASG1203abcdefgh", got[0].PresentedToken)
	assert.True(t, base.Equal(got[0].Timestamp))
}

func TestAttendanceStore_ReadOrdersByTimestampThenAppend(t *testing.T) {
	conn := openTestDB(t)
	s := sqlitestore.NewAttendanceStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	require.NoError(t, s.AppendAttendanceEvent(ctx, event("late", "m1", types.CheckOut, base.Add(time.Hour))))
	require.NoError(t, s.AppendAttendanceEvent(ctx, event("tie-a", "m2", types.CheckIn, base)))
	require.NoError(t, s.AppendAttendanceEvent(ctx, event("tie-b", "m3", types.CheckIn, base)))
	require.NoError(t, s.AppendAttendanceEvent(ctx, event("early", "m1", types.CheckIn, base.Add(-time.Hour))))

	got, err := s.ReadAttendanceEvents(ctx)
	require.NoError(t, err)

	ids := make([]string, len(got))
	for i, ev := range got {
		ids[i] = ev.ID
	}
	assert.Equal(t, []string{"early", "tie-a", "tie-b", "late"}, ids)
}

func TestAttendanceStore_NullTokenReadsEmpty(t *testing.T) {
	conn := openTestDB(t)
	s := sqlitestore.NewAttendanceStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	require.NoError(t, s.AppendAttendanceEvent(ctx, event("e1", "m1", types.CheckIn, base)))

	var token sql.NullString
	require.NoError(t, conn.QueryRowContext(ctx,
		`SELECT presented_token FROM attendance_events WHERE event_id = ?`, "e1",
	).Scan(&token))
	assert.False(t, token.Valid)

	got, err := s.ReadAttendanceEvents(ctx)
	require.NoError(t, err)
	assert.Empty(t, got[0].PresentedToken)
}

func TestAttendanceStore_RejectsInvalidEvent(t *testing.T) {
	conn := openTestDB(t)
	s := sqlitestore.NewAttendanceStore(conn, newTestWriter(t, conn))

	err := s.AppendAttendanceEvent(context.Background(), event("", "m1", types.CheckIn, base))
	require.ErrorIs(t, err, store.ErrInvalidEvent)
}

func TestAttendanceStore_DuplicateIDFails(t *testing.T) {
	conn := openTestDB(t)
	s := sqlitestore.NewAttendanceStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	require.NoError(t, s.AppendAttendanceEvent(ctx, event("dup", "m1", types.CheckIn, base)))
	require.Error(t, s.AppendAttendanceEvent(ctx, event("dup", "m1", types.CheckOut, base.Add(time.Minute))))

	got, err := s.ReadAttendanceEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

// ── Conditional append ──

func TestAttendanceStore_AppendIfSessionState(t *testing.T) {
	conn := openTestDB(t)
	s := sqlitestore.NewAttendanceStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	require.NoError(t, s.AppendIfSessionState(ctx, event("in1", "m1", types.CheckIn, base), false))

	err := s.AppendIfSessionState(ctx, event("in2", "m1", types.CheckIn, base.Add(time.Minute)), false)
	require.ErrorIs(t, err, store.ErrStateConflict)

	require.NoError(t, s.AppendIfSessionState(ctx, event("out1", "m1", types.CheckOut, base.Add(2*time.Minute)), true))

	err = s.AppendIfSessionState(ctx, event("out2", "m1", types.CheckOut, base.Add(3*time.Minute)), true)
	require.ErrorIs(t, err, store.ErrStateConflict)

	got, err := s.ReadAttendanceEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestAttendanceStore_AppendIfSessionStateRefusesEarlierThanLatest(t *testing.T) {
	conn := openTestDB(t)
	s := sqlitestore.NewAttendanceStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	require.NoError(t, s.AppendAttendanceEvent(ctx, event("future-in", "m1", types.CheckIn, base.Add(2*time.Hour))))

	err := s.AppendIfSessionState(ctx, event("out", "m1", types.CheckOut, base), true)
	require.ErrorIs(t, err, store.ErrStateConflict)

	require.NoError(t, s.AppendIfSessionState(ctx, event("out-later", "m1", types.CheckOut, base.Add(2*time.Hour)), true))

	got, err := s.ReadAttendanceEvents(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "out-later", got[1].ID)
}

func TestAttendanceStore_ConcurrentCheckInsOnlyOneWins(t *testing.T) {
	conn := openTestDB(t)
	s := sqlitestore.NewAttendanceStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ev := event(string(rune('a'+i)), "m1", types.CheckIn, base.Add(time.Duration(i)*time.Second))
			err := s.AppendIfSessionState(ctx, ev, false)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, store.ErrStateConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, conflicts)
}

// ── Writer lifecycle ──

func TestAttendanceStore_AppendAfterWriterClosed(t *testing.T) {
	conn := openTestDB(t)
	w := db.NewWriter(conn)
	s := sqlitestore.NewAttendanceStore(conn, w)
	w.Close()

	err := s.AppendAttendanceEvent(context.Background(), event("e1", "m1", types.CheckIn, base))
	require.ErrorIs(t, err, db.ErrWriterClosed)
}

// ── Dev seed ──

func TestSeedDev_LeavesSessionClosed(t *testing.T) {
	conn := openTestDB(t)
	s := sqlitestore.NewAttendanceStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	opt := db.SeedDevOptions{MemberID: "member_demo_001", Now: base}
	require.NoError(t, db.SeedDev(ctx, conn, opt))
	require.NoError(t, db.SeedDev(ctx, conn, opt), "seeding twice is a no-op")

	got, err := s.ReadAttendanceEvents(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, types.CheckIn, got[0].Type)
	assert.Equal(t, types.CheckOut, got[1].Type)
}
