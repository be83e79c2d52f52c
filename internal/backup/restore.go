package backup

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/natefinch/atomic"

	"storeguard/internal/platform/sqlite"
	"storeguard/internal/storage/dirs"
)

// preRestoreBackupSuffix names the standalone safety copy the startup
// restore writes before overwriting an existing database.
const preRestoreBackupSuffix = ".pre-restore-backup"

// SideFileKind selects which database side file a restore targets.
type SideFileKind int

const (
	// SideFileWAL is the write-ahead log side file.
	SideFileWAL SideFileKind = iota
	// SideFileSHM is the shared-memory side file.
	SideFileSHM
)

func (k SideFileKind) String() string {
	if k == SideFileSHM {
		return "shm"
	}
	return "wal"
}

// Path returns the side file path for a main database file.
func (k SideFileKind) Path(dbPath string) string {
	if k == SideFileSHM {
		return dirs.SHMPath(dbPath)
	}
	return dirs.WALPath(dbPath)
}

// RestoreAtStartup writes the supplied database content to target via the
// replace engine. The caller guarantees no concurrent process holds a lock
// (it runs before the application opens its own connection). A standalone
// safety copy of any pre-existing target is taken first, independent of the
// replace engine's own transient backup.
func (e *Engine) RestoreAtStartup(ctx context.Context, data []byte, target string) error {
	if fileExists(target) {
		safety := target + preRestoreBackupSuffix
		if err := copyFile(target, safety); err != nil {
			return fmt.Errorf("%w: failed to create safety backup: %w", ErrReplaceFailed, err)
		}
		e.log.Info("created pre-restore safety backup", slog.String("path", safety))
	}

	if err := e.ReplaceBytes(ctx, data, target); err != nil {
		return err
	}
	e.log.Info("database restored at startup", slog.String("target", target))
	return nil
}

// RestoreAtRuntime replaces target while the application may still hold the
// database open. It runs the full checkpoint ladder first so the engine's
// own handles release the file before the swap is attempted.
func (e *Engine) RestoreAtRuntime(ctx context.Context, data []byte, target string) error {
	if fileExists(target) {
		sqlite.Checkpoint(ctx, e.log, target, sqlite.CheckpointFull)
	}

	if err := e.ReplaceBytes(ctx, data, target); err != nil {
		return err
	}
	e.log.Info("database restored at runtime", slog.String("target", target))
	return nil
}

// RestoreSideFile writes a WAL or SHM side file for the database at dbPath.
// Side files carry no atomicity guarantee: the engine regenerates them on
// next open, they only need to be present or absent as the engine expects.
func (e *Engine) RestoreSideFile(data []byte, dbPath string, kind SideFileKind) (string, error) {
	path := kind.Path(dbPath)
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to restore %s file: %w", kind, err)
	}
	e.log.Info("side file restored",
		slog.String("kind", kind.String()),
		slog.String("path", path),
		slog.Int("size", len(data)))
	return path, nil
}
