package backup

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"

	"storeguard/pkg/fallback"
)

// scratchSuffix is appended when a locked file is renamed before deletion.
const scratchSuffix = ".tmp_delete"

// ForceDelete removes a file that the OS may still have locked, escalating
// through three strategies: direct delete, a platform-privileged forced
// delete, and rename-to-scratch-then-delete (for locks tied to the original
// path rather than the file handle).
//
// Deletion is only trusted after direct verification: whatever the ladder
// reports, the path is re-stated and continued existence is ErrDeleteFailed.
func (e *Engine) ForceDelete(path string) error {
	if !fileExists(path) {
		e.log.Debug("nothing to clean", slog.String("path", path))
		return nil
	}

	ladderErr := fallback.First(e.log, "force-delete "+path,
		fallback.Strategy{
			Name:     "direct-delete",
			Attempts: 1,
			Run: func() error {
				return e.remove(path)
			},
		},
		fallback.Strategy{
			Name:     "platform-force-delete",
			Attempts: 1,
			Run: func() error {
				return e.forceRemove(path)
			},
		},
		fallback.Strategy{
			Name:     "rename-then-delete",
			Attempts: 1,
			Run: func() error {
				scratch := path + scratchSuffix
				if err := e.rename(path, scratch); err != nil {
					return fmt.Errorf("rename to scratch: %w", err)
				}
				if err := e.remove(scratch); err != nil {
					return fmt.Errorf("delete scratch: %w", err)
				}
				return nil
			},
		},
	)

	// Verify regardless of what the ladder reported.
	if fileExists(path) {
		if ladderErr != nil {
			return fmt.Errorf("%w: %s: %w", ErrDeleteFailed, path, ladderErr)
		}
		return fmt.Errorf("%w: %s still exists after deletion", ErrDeleteFailed, path)
	}

	e.log.Info("file deleted and verified", slog.String("path", path))
	return nil
}

// platformForceDelete invokes the OS's own force-delete facility, bypassing
// read-only and hidden attributes.
func platformForceDelete(path string) error {
	if runtime.GOOS == "windows" {
		out, err := exec.Command("cmd", "/C", "del", "/F", "/Q", path).CombinedOutput()
		if err != nil {
			return fmt.Errorf("del /F /Q: %w: %s", err, out)
		}
		return nil
	}

	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("chmod: %w", err)
	}
	return os.Remove(path)
}
