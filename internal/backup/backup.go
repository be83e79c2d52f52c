package backup

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"storeguard/pkg/retry"
)

// Descriptor describes a completed snapshot. Never mutated after creation.
type Descriptor struct {
	Path      string
	SizeBytes uint64
	Checksum  string
}

// Result is the caller-facing backup result shape.
type Result struct {
	Success  bool   `json:"success"`
	Size     uint64 `json:"size"`
	Checksum string `json:"checksum"`
}

// Result converts the descriptor to the shape returned to the UI layer.
func (d Descriptor) Result() Result {
	return Result{Success: true, Size: d.SizeBytes, Checksum: d.Checksum}
}

// Engine bundles the backup, restore and cleanup operations around a logger.
//
// rename, remove and forceRemove are seams over the os layer so tests can
// simulate locked files and failing renames without platform tricks. The
// retry configs carry the documented lock-absorbing backoffs and are
// shortened in tests.
type Engine struct {
	log         *slog.Logger
	rename      func(oldpath, newpath string) error
	remove      func(path string) error
	forceRemove func(path string) error

	removeRetry retry.Config
	renameRetry retry.Config
}

// NewEngine creates a backup engine.
func NewEngine(log *slog.Logger) *Engine {
	return &Engine{
		log:         log,
		rename:      os.Rename,
		remove:      os.Remove,
		forceRemove: platformForceDelete,
		removeRetry: retry.Linear(removeAttempts, removeBackoff),
		renameRetry: retry.Linear(renameAttempts, renameBackoff),
	}
}

// copyFile copies src to dst, truncating dst if it exists, and syncs the
// result to disk.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return fmt.Errorf("sync %s: %w", dst, err)
	}
	return out.Close()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
