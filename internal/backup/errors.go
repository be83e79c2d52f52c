package backup

import "errors"

// Sentinel errors for the backup subsystem. Callers classify failures with
// errors.Is; the underlying OS error text is always preserved via wrapping.
var (
	// ErrSourceMissing indicates the database file to snapshot does not exist.
	ErrSourceMissing = errors.New("source database missing")

	// ErrTooSmall indicates a finished snapshot is below the sanity floor
	// and is treated as corrupt, not as success.
	ErrTooSmall = errors.New("backup file too small, likely corrupted")

	// ErrBackupFailed indicates the online copy itself failed.
	ErrBackupFailed = errors.New("backup failed")

	// ErrReplaceFailed indicates an atomic replace failed; rollback to the
	// pre-call content was attempted when a destructive step had occurred.
	ErrReplaceFailed = errors.New("database replace failed")

	// ErrDeleteFailed indicates a file survived every deletion strategy,
	// verified by a re-stat.
	ErrDeleteFailed = errors.New("file delete failed")
)
