package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/americansport/gymgate/internal/db"
	"github.com/americansport/gymgate/internal/gate/store"
	"github.com/americansport/gymgate/internal/gate/types"
)

// AttendanceStore keeps the ledger in the attendance_events table.  Reads go
// straight to the pool; writes are funnelled through the single Writer.
type AttendanceStore struct {
	db     *sql.DB
	writer *dbpkg.Writer
	now    func() time.Time
}

func NewAttendanceStore(db *sql.DB, writer *dbpkg.Writer) *AttendanceStore {
	return &AttendanceStore{db: db, writer: writer, now: time.Now}
}

func (s *AttendanceStore) ReadAttendanceEvents(ctx context.Context) ([]types.AttendanceEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT event_id, member_id, event_type, occurred_at_ms, origin, presented_token
FROM attendance_events
ORDER BY occurred_at_ms ASC, seq ASC;`)
	if err != nil {
		return nil, fmt.Errorf("ReadAttendanceEvents query: %w", err)
	}
	defer rows.Close()

	var out []types.AttendanceEvent
	for rows.Next() {
		var (
			ev    types.AttendanceEvent
			typ   string
			orig  string
			atMs  int64
			token sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.MemberID, &typ, &atMs, &orig, &token); err != nil {
			return nil, fmt.Errorf("ReadAttendanceEvents scan: %w", err)
		}
		ev.Type = types.EventType(typ)
		ev.Origin = types.Origin(orig)
		ev.Timestamp = time.UnixMilli(atMs).UTC()
		ev.PresentedToken = token.String
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ReadAttendanceEvents rows: %w", err)
	}
	return out, nil
}

func (s *AttendanceStore) AppendAttendanceEvent(ctx context.Context, ev types.AttendanceEvent) error {
	if err := store.ValidateEvent(ev); err != nil {
		return err
	}
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return s.insert(ctx, tx, ev)
	})
}

// AppendIfSessionState runs the session check and the insert in one write
// transaction.  Since every write goes through the Writer, no other append
// can land between the two.
func (s *AttendanceStore) AppendIfSessionState(ctx context.Context, ev types.AttendanceEvent, expectOpen bool) error {
	if err := store.ValidateEvent(ev); err != nil {
		return err
	}
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var (
			last   string
			lastMs int64
		)
		err := tx.QueryRowContext(ctx, `
SELECT event_type, occurred_at_ms FROM attendance_events
WHERE member_id = ?
ORDER BY occurred_at_ms DESC, seq DESC
LIMIT 1;`, ev.MemberID).Scan(&last, &lastMs)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("AppendIfSessionState last event: %w", err)
		}

		open := last == string(types.CheckIn)
		if open != expectOpen {
			return store.ErrStateConflict
		}
		// Nothing may sort before the member's latest event.
		if last != "" && ev.Timestamp.UTC().UnixMilli() < lastMs {
			return store.ErrStateConflict
		}
		return s.insert(ctx, tx, ev)
	})
}

func (s *AttendanceStore) insert(ctx context.Context, tx *sql.Tx, ev types.AttendanceEvent) error {
	var token any
	if ev.PresentedToken != "" {
		token = ev.PresentedToken
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO attendance_events(
  event_id, member_id, event_type, occurred_at_ms, origin, presented_token, recorded_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?);`,
		ev.ID, ev.MemberID, string(ev.Type), ev.Timestamp.UTC().UnixMilli(),
		string(ev.Origin), token, s.now().UTC().UnixMilli(),
	); err != nil {
		return fmt.Errorf("append attendance insert: %w", err)
	}
	return nil
}
