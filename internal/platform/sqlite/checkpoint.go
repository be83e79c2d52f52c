package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// CheckpointMode selects how aggressively the WAL is flushed.
type CheckpointMode int

const (
	// CheckpointFast runs a single RESTART checkpoint. Suitable before an
	// online snapshot: the WAL stays open for continued writes.
	CheckpointFast CheckpointMode = iota
	// CheckpointFull runs the whole ladder (RESTART, TRUNCATE, then a FULL
	// second pass) and is used before destructive file replacement.
	CheckpointFull
)

const (
	fastBusyTimeout = 10 * time.Second
	fullBusyTimeout = 60 * time.Second

	// Pause between checkpoint steps so the OS can release transient locks.
	interStepPause = 100 * time.Millisecond

	// Settle pause after the full ladder before the caller touches the file.
	settlePause = 500 * time.Millisecond
)

// Checkpoint flushes pending WAL writes into the main database file.
//
// Checkpoint problems are never fatal: every failed step is logged as a
// warning and recorded in the returned slice, and subsequent steps still run.
// A snapshot taken after a degraded checkpoint is still attempted; integrity
// judgment is left to the snapshot's own size and checksum checks.
//
// The connection is closed before returning so that file-level operations
// performed by the caller immediately afterwards do not race an open handle.
func Checkpoint(ctx context.Context, log *slog.Logger, dbPath string, mode CheckpointMode) []string {
	var warnings []string
	warn := func(step string, err error) {
		w := fmt.Sprintf("%s: %v", step, err)
		warnings = append(warnings, w)
		log.Warn("checkpoint step failed", slog.String("step", step), slog.Any("err", err), slog.String("db", dbPath))
	}

	busy := fastBusyTimeout
	if mode == CheckpointFull {
		busy = fullBusyTimeout
	}

	opts := DefaultDBOptions()
	opts.WALMode = false // do not flip journal mode here, only flush
	opts.ForeignKeys = false
	opts.CacheSizeKiB = 0
	opts.BusyTimeout = busy
	opts.MaxOpenConns = 1
	opts.MaxIdleConns = 1

	db, err := NewDBWithOptions(ctx, dbPath, opts)
	if err != nil {
		warn("open", err)
		return warnings
	}
	defer func() { _ = db.Close() }()

	steps := []struct {
		name string
		stmt string
	}{
		// Empty immediate transaction forces commit of straggling writer state.
		{"commit-pending", "BEGIN IMMEDIATE; COMMIT;"},
		{"wal-restart", "PRAGMA wal_checkpoint(RESTART);"},
	}
	if mode == CheckpointFull {
		steps = append(steps,
			struct{ name, stmt string }{"wal-truncate", "PRAGMA wal_checkpoint(TRUNCATE);"},
			struct{ name, stmt string }{"wal-full", "PRAGMA wal_checkpoint(FULL);"},
		)
	}

	for i, step := range steps {
		if i > 0 && mode == CheckpointFull {
			sleepCtx(ctx, interStepPause)
		}
		if _, err := db.ExecContext(ctx, step.stmt); err != nil {
			warn(step.name, err)
			continue
		}
		log.Debug("checkpoint step completed", slog.String("step", step.name), slog.String("db", dbPath))
	}

	_ = db.Close()

	if mode == CheckpointFull {
		sleepCtx(ctx, settlePause)
	}

	return warnings
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// IntegrityCheck opens the database read-only and runs PRAGMA integrity_check.
// A non-"ok" result is returned as an error.
func IntegrityCheck(ctx context.Context, dbPath string) error {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", dbPath))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("failed to run integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}
