package backup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"storeguard/pkg/fallback"
	"storeguard/pkg/retry"
)

// Sibling suffixes used by a replace transaction.
const (
	stagedSuffix        = ".restore.tmp"
	transientBackSuffix = ".backup.tmp"
)

const (
	removeAttempts = 3
	removeBackoff  = 500 * time.Millisecond
	renameAttempts = 5
	renameBackoff  = time.Second
)

// replaceState tracks progress of one atomic replace call. The transaction
// lives only for the duration of the call and is never persisted.
type replaceState int

const (
	stateStaged replaceState = iota
	stateTargetBackedUp
	stateSwapped
	stateCommitted
	stateRolledBack
	stateFailed
)

func (s replaceState) String() string {
	switch s {
	case stateStaged:
		return "Staged"
	case stateTargetBackedUp:
		return "TargetBackedUp"
	case stateSwapped:
		return "Swapped"
	case stateCommitted:
		return "Committed"
	case stateRolledBack:
		return "RolledBack"
	default:
		return "Failed"
	}
}

type replaceTxn struct {
	source         string // staged temp file beside target
	target         string
	backupOfTarget string // copy of pre-replace target, empty if target was absent
	state          replaceState
}

// ReplaceBytes atomically swaps the given content into target.
func (e *Engine) ReplaceBytes(ctx context.Context, data []byte, target string) error {
	return e.replace(ctx, target, func(tmp string) error {
		return os.WriteFile(tmp, data, 0644)
	})
}

// ReplaceFile atomically swaps the content of sourcePath into target.
// sourcePath itself is left in place.
func (e *Engine) ReplaceFile(ctx context.Context, sourcePath, target string) error {
	return e.replace(ctx, target, func(tmp string) error {
		return copyFile(sourcePath, tmp)
	})
}

// replace runs the staged/backed-up/swapped/committed state machine.
//
// Ordering invariant: the backup copy of the old target is taken before any
// destructive step, and the old file is only removed on the fallback path
// after that copy exists, so the target path never ends up with zero files.
func (e *Engine) replace(ctx context.Context, target string, stage func(tmp string) error) error {
	txn := &replaceTxn{
		source: target + stagedSuffix,
		target: target,
		state:  stateStaged,
	}

	if err := stage(txn.source); err != nil {
		// A failed stage can leave a partially written temp file behind.
		txn.state = stateFailed
		_ = os.Remove(txn.source)
		return fmt.Errorf("%w: failed to write staged file: %w", ErrReplaceFailed, err)
	}
	e.log.Debug("replace staged", slog.String("target", target), slog.String("tmp", txn.source))

	hadTarget := fileExists(target)
	if hadTarget {
		txn.backupOfTarget = target + transientBackSuffix
		if fileExists(txn.backupOfTarget) {
			_ = os.Remove(txn.backupOfTarget)
		}
		if err := copyFile(target, txn.backupOfTarget); err != nil {
			// Abort before any destructive step; target is untouched.
			txn.state = stateFailed
			_ = os.Remove(txn.source)
			return fmt.Errorf("%w: failed to back up current database: %w", ErrReplaceFailed, err)
		}
		txn.state = stateTargetBackedUp
	}

	swapErr := fallback.First(e.log, "replace "+target,
		fallback.Strategy{
			Name:     "rename-over-existing",
			Attempts: 1,
			Run: func() error {
				return e.rename(txn.source, txn.target)
			},
		},
		fallback.Strategy{
			Name:     "remove-then-rename",
			Attempts: 1,
			Run: func() error {
				return e.removeThenRename(ctx, txn)
			},
		},
	)

	if swapErr != nil {
		// Roll back only if a destructive step actually removed the old
		// target. The rollback is best-effort; its own failure must not
		// mask the original swap error.
		if hadTarget && !fileExists(target) {
			if rbErr := copyFile(txn.backupOfTarget, target); rbErr != nil {
				txn.state = stateFailed
				e.log.Error("rollback failed, target left absent",
					slog.String("target", target),
					slog.Any("err", rbErr))
			} else {
				txn.state = stateRolledBack
				e.log.Warn("restored original database from backup", slog.String("target", target))
			}
		} else {
			txn.state = stateFailed
		}
		return fmt.Errorf("%w: %w", ErrReplaceFailed, swapErr)
	}
	txn.state = stateSwapped

	if txn.backupOfTarget != "" && fileExists(txn.backupOfTarget) {
		if err := os.Remove(txn.backupOfTarget); err != nil {
			// Target is already correct; a leftover backup copy is logged,
			// not surfaced.
			e.log.Warn("could not remove transient backup",
				slog.String("path", txn.backupOfTarget),
				slog.Any("err", err))
		}
	}
	txn.state = stateCommitted

	e.log.Info("database replaced",
		slog.String("target", target),
		slog.String("state", txn.state.String()))
	return nil
}

// removeThenRename is the fallback swap for platforms or lock states where
// rename-over-existing is refused. Between the removal and the rename the
// target path is briefly absent; see the package documentation.
func (e *Engine) removeThenRename(ctx context.Context, txn *replaceTxn) error {
	if fileExists(txn.target) {
		cfg := e.removeRetry
		cfg.OnRetry = e.retryLogger("remove old database")
		if err := retry.Do(ctx, cfg, func(context.Context) error {
			return e.remove(txn.target)
		}); err != nil {
			// Staged temp file deliberately left untouched.
			return fmt.Errorf("could not remove existing database: %w", err)
		}
	}

	cfg := e.renameRetry
	cfg.OnRetry = e.retryLogger("move staged file into place")
	if err := retry.Do(ctx, cfg, func(context.Context) error {
		return e.rename(txn.source, txn.target)
	}); err != nil {
		return fmt.Errorf("could not move staged file into place: %w", err)
	}
	return nil
}

func (e *Engine) retryLogger(op string) func(int, error, time.Duration) {
	return func(attempt int, err error, delay time.Duration) {
		e.log.Warn("retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.Any("err", err))
	}
}
