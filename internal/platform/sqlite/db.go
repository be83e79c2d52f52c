package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// AccessMode selects how the database file is opened.
type AccessMode string

const (
	// AccessModeReadWrite opens an existing database for reading and writing.
	AccessModeReadWrite AccessMode = "rw"
	// AccessModeReadOnly opens the database read-only.
	AccessModeReadOnly AccessMode = "ro"
	// AccessModeReadWriteCreate creates the database file if it does not exist.
	AccessModeReadWriteCreate AccessMode = "rwc"
)

// DBOptions contains settings for a SQLite database handle.
type DBOptions struct {
	// ConnMaxLifetime is the maximum lifetime of a pooled connection.
	ConnMaxLifetime time.Duration
	// ConnMaxIdleTime is the maximum idle time of a pooled connection.
	ConnMaxIdleTime time.Duration
	// MaxOpenConns limits open connections; SQLite has a single writer.
	MaxOpenConns int
	// MaxIdleConns limits idle connections.
	MaxIdleConns int
	// PingTimeout bounds the connectivity check performed on open.
	PingTimeout time.Duration
	// WALMode enables write-ahead logging.
	WALMode bool
	// ForeignKeys enables foreign key enforcement.
	ForeignKeys bool
	// BusyTimeout is how long a statement waits on SQLITE_BUSY.
	BusyTimeout time.Duration
	// CacheSizeKiB sets the page cache size (0 keeps the engine default).
	CacheSizeKiB int
	// AccessMode selects the file open mode.
	AccessMode AccessMode
}

// DefaultDBOptions returns settings tuned for an embedded store.db owner:
// WAL on, long busy timeout, modest pool.
func DefaultDBOptions() DBOptions {
	return DBOptions{
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		MaxOpenConns:    4,
		MaxIdleConns:    1,
		PingTimeout:     5 * time.Second,
		WALMode:         true,
		ForeignKeys:     true,
		BusyTimeout:     5 * time.Second,
		CacheSizeKiB:    64000,
		AccessMode:      AccessModeReadWrite,
	}
}

// NewDB opens a SQLite database with default options.
func NewDB(ctx context.Context, dbPath string) (*sql.DB, error) {
	return NewDBWithOptions(ctx, dbPath, DefaultDBOptions())
}

// NewReadOnlyDB opens a SQLite database in read-only mode.
func NewReadOnlyDB(ctx context.Context, dbPath string) (*sql.DB, error) {
	opts := DefaultDBOptions()
	opts.AccessMode = AccessModeReadOnly
	return NewDBWithOptions(ctx, dbPath, opts)
}

// NewDBWithOptions opens a SQLite database with the given options, creating
// the parent directory if needed and applying PRAGMA settings after open.
func NewDBWithOptions(ctx context.Context, dbPath string, opts DBOptions) (*sql.DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	dsn := buildDSN(dbPath, opts)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)

	pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if err := applyPragmaSettings(ctx, db, opts); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply PRAGMA settings: %w", err)
	}

	return db, nil
}

// buildDSN builds the DSN with the minimal set of query parameters.
// Parameters require the file: URI form; the driver treats a plain path with
// a query string as a literal file name. Most settings are applied through
// PRAGMA statements after open.
func buildDSN(dbPath string, opts DBOptions) string {
	params := []string{}

	if opts.AccessMode != "" && opts.AccessMode != AccessModeReadWrite {
		params = append(params, fmt.Sprintf("mode=%s", opts.AccessMode))
	}

	if opts.BusyTimeout > 0 {
		timeoutMs := int(opts.BusyTimeout.Milliseconds())
		params = append(params, fmt.Sprintf("_pragma=busy_timeout(%d)", timeoutMs))
	}

	if len(params) == 0 {
		return dbPath
	}

	u := url.URL{Path: filepath.ToSlash(dbPath)}
	return "file:" + u.EscapedPath() + "?" + strings.Join(params, "&")
}

// applyPragmaSettings applies PRAGMA settings to an open handle. Doing this
// after open keeps behavior consistent regardless of driver DSN parsing.
func applyPragmaSettings(ctx context.Context, db *sql.DB, opts DBOptions) error {
	pragmas := make([]string, 0, 5)

	if opts.ForeignKeys {
		pragmas = append(pragmas, "PRAGMA foreign_keys = ON")
	}

	if opts.WALMode {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}

	pragmas = append(pragmas, "PRAGMA synchronous = NORMAL")

	if opts.BusyTimeout > 0 {
		timeoutMs := int(opts.BusyTimeout.Milliseconds())
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA busy_timeout = %d", timeoutMs))
	}

	if opts.CacheSizeKiB > 0 {
		// Negative value means KiB rather than pages.
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA cache_size = -%d", opts.CacheSizeKiB))
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	return nil
}
