package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type Config struct {
	Path string // e.g. "./data/gymgate.db"
	Env  string // "dev" | "prod"
}

// Open opens the attendance database, creating its directory if needed, and
// applies pending migrations.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if cfg.Path == "" {
		cfg.Path = "./data/gymgate.db"
	}
	if cfg.Env == "" {
		cfg.Env = "dev"
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}

	// One connection.  Writes are serialised by Writer and reads are short
	// ledger scans, so a pool would only add SQLITE_BUSY retries.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Fail at startup, not on the first member at the gate.
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// dsn builds the modernc.org/sqlite DSN with per-connection PRAGMAs:
//   - WAL so ledger reads do not block the writer
//   - busy_timeout to ride out a checkpoint instead of failing a check-in
//   - synchronous FULL in prod: a recorded attendance event must survive a
//     power cut at the front desk.  dev keeps NORMAL.
func dsn(cfg Config) string {
	sync := "NORMAL"
	if cfg.Env == "prod" {
		sync = "FULL"
	}
	return fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(%s)&_pragma=busy_timeout(5000)",
		cfg.Path, sync,
	)
}
