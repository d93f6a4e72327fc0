package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type SeedDevOptions struct {
	// MemberID receives one closed historical visit. Empty skips seeding.
	MemberID string
	// Now anchors the seeded visit; zero means time.Now.
	Now time.Time
}

// SeedDev inserts a completed visit from the previous day so that a fresh dev
// database has history without leaving any session open.
func SeedDev(ctx context.Context, db *sql.DB, opt SeedDevOptions) error {
	if opt.MemberID == "" {
		return nil
	}
	now := opt.Now
	if now.IsZero() {
		now = time.Now()
	}
	in := now.Add(-24 * time.Hour).UTC()
	out := in.Add(90 * time.Minute)
	rec := now.UTC().UnixMilli()

	rows := []struct {
		id, typ string
		at      time.Time
	}{
		{"seed-" + opt.MemberID + "-in", "CHECK_IN", in},
		{"seed-" + opt.MemberID + "-out", "CHECK_OUT", out},
	}
	for _, r := range rows {
		if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO attendance_events(
  event_id, member_id, event_type, occurred_at_ms, origin, presented_token, recorded_at_ms
) VALUES (?, ?, ?, ?, 'MANUAL', NULL, ?);`,
			r.id, opt.MemberID, r.typ, r.at.UnixMilli(), rec,
		); err != nil {
			return fmt.Errorf("seed attendance %s: %w", r.id, err)
		}
	}
	return nil
}
