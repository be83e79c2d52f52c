package backup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"storeguard/internal/platform/sqlite"
	"storeguard/pkg/retry"
)

const (
	// snapshotAttempts bounds how often the online copy is retried when the
	// engine reports the database busy.
	snapshotAttempts = 5
	// snapshotPause is the base pause between copy attempts; kept short so
	// the loop cooperates with concurrent readers instead of starving them.
	snapshotPause = 10 * time.Millisecond
	// snapshotBusyTimeout is how long a single copy attempt waits on a
	// writer's lock before it is counted as a failed attempt.
	snapshotBusyTimeout = 10 * time.Second
)

// Snapshot produces a verified, checksummed point-in-time copy of the live
// database file at dbPath into destPath.
//
// A fast (RESTART-only) checkpoint runs first; its failure degrades the
// snapshot's guarantees but never aborts it. The finished copy must pass an
// integrity check and a minimum-size sanity check before it is accepted.
func (e *Engine) Snapshot(ctx context.Context, dbPath, destPath string) (Descriptor, error) {
	start := time.Now()

	if _, err := os.Stat(dbPath); err != nil {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrSourceMissing, dbPath)
	}

	if warnings := sqlite.Checkpoint(ctx, e.log, dbPath, sqlite.CheckpointFast); len(warnings) > 0 {
		e.log.Warn("checkpoint degraded before snapshot",
			slog.String("db", dbPath),
			slog.Int("warnings", len(warnings)))
	}

	cfg := retry.Linear(snapshotAttempts, snapshotPause)
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		e.log.Warn("snapshot copy retry",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.Any("err", err))
	}
	if err := retry.Do(ctx, cfg, func(ctx context.Context) error {
		// VACUUM INTO refuses to overwrite, so every attempt starts from a
		// clean destination. This also clears a stale file from an earlier
		// backup and the partial output of a failed previous attempt.
		if fileExists(destPath) {
			if err := os.Remove(destPath); err != nil {
				return fmt.Errorf("cannot clear destination: %w", err)
			}
		}
		return vacuumInto(ctx, dbPath, destPath)
	}); err != nil {
		_ = os.Remove(destPath)
		return Descriptor{}, fmt.Errorf("%w: %w", ErrBackupFailed, err)
	}

	if err := sqlite.IntegrityCheck(ctx, destPath); err != nil {
		return Descriptor{}, fmt.Errorf("%w: %w", ErrBackupFailed, err)
	}

	size, err := checkSnapshotSize(destPath)
	if err != nil {
		return Descriptor{}, err
	}

	checksum, err := FastChecksum(destPath)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: %w", ErrBackupFailed, err)
	}

	e.log.Info("snapshot completed",
		slog.String("db", dbPath),
		slog.String("dest", destPath),
		slog.Int64("size", size),
		slog.Duration("elapsed", time.Since(start)))

	return Descriptor{
		Path:      destPath,
		SizeBytes: uint64(size),
		Checksum:  checksum,
	}, nil
}

// checkSnapshotSize stats a finished copy and rejects anything under the
// sanity floor as corruption rather than success.
func checkSnapshotSize(destPath string) (int64, error) {
	info, err := os.Stat(destPath)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrBackupFailed, err)
	}
	if info.Size() < MinSnapshotSize {
		return 0, fmt.Errorf("%w: %d bytes", ErrTooSmall, info.Size())
	}
	return info.Size(), nil
}

// openSnapshotSource opens a read-only connection to the live database with
// the snapshot busy timeout in effect. The timeout is set through a PRAGMA
// after open; the driver does not act on busy-timeout DSN parameters.
func openSnapshotSource(ctx context.Context, dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open source database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping source database: %w", err)
	}

	timeoutMs := int(snapshotBusyTimeout.Milliseconds())
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", timeoutMs)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// vacuumInto drives the engine's consistent point-in-time copy. It runs on a
// dedicated short-lived connection so no handle stays open on dbPath after
// the copy finishes.
func vacuumInto(ctx context.Context, dbPath, destPath string) error {
	db, err := openSnapshotSource(ctx, dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	// Single-quote escaping for the SQL string literal.
	escaped := strings.ReplaceAll(destPath, "'", "''")
	if _, err := db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", escaped)); err != nil {
		return fmt.Errorf("failed to copy database: %w", err)
	}

	return nil
}
