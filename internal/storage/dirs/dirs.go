// Package dirs locates a writable application-data directory via an ordered
// fallback chain and defines the on-disk naming conventions for the database
// file and its WAL/SHM side files.
package dirs

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"storeguard/internal/config"
)

// ErrNoWritableLocation is returned when every candidate directory fails the
// write probe.
var ErrNoWritableLocation = errors.New("no writable location")

// Source identifies which fallback produced a candidate directory.
type Source int

const (
	// PrimaryAppData is the platform's primary per-user application data root.
	PrimaryAppData Source = iota
	// SecondaryAppData is the platform's secondary (local/cache) data root.
	SecondaryAppData
	// UserDocuments is a directory under the user's documents folder.
	UserDocuments
	// TempFallback is the system temp directory.
	TempFallback
	// CurrentDirFallback is ./data under the working directory.
	CurrentDirFallback
)

// String returns the source name for logging.
func (s Source) String() string {
	switch s {
	case PrimaryAppData:
		return "primary-app-data"
	case SecondaryAppData:
		return "secondary-app-data"
	case UserDocuments:
		return "user-documents"
	case TempFallback:
		return "temp"
	case CurrentDirFallback:
		return "current-dir"
	default:
		return "unknown"
	}
}

// Candidate is one resolved fallback location. Immutable once built.
type Candidate struct {
	Source Source
	Path   string
}

// Resolver finds a writable application directory. Candidate roots come from
// explicit overrides when set, platform conventions otherwise, so tests can
// point the chain at throwaway directories.
type Resolver struct {
	roots config.RootOverrides
	log   *slog.Logger
}

// NewResolver creates a resolver with the given root overrides.
func NewResolver(roots config.RootOverrides, log *slog.Logger) *Resolver {
	return &Resolver{roots: roots, log: log}
}

// Candidates returns the ordered fallback chain for appName. Candidates whose
// root cannot be determined on this system are omitted.
func (r *Resolver) Candidates(appName string) []Candidate {
	type root struct {
		source Source
		path   string
	}

	roots := []root{
		{PrimaryAppData, firstNonEmpty(r.roots.PrimaryData, primaryDataRoot())},
		{SecondaryAppData, firstNonEmpty(r.roots.SecondaryData, secondaryDataRoot())},
		{UserDocuments, firstNonEmpty(r.roots.Documents, documentsRoot())},
		{TempFallback, firstNonEmpty(r.roots.Temp, os.TempDir())},
		{CurrentDirFallback, currentDirRoot()},
	}

	out := make([]Candidate, 0, len(roots))
	for _, rt := range roots {
		if rt.path == "" {
			continue
		}
		out = append(out, Candidate{Source: rt.source, Path: filepath.Join(rt.path, appName)})
	}
	return out
}

// Resolve returns the first candidate directory that passes the write probe,
// creating it if needed. If every candidate fails, the last underlying OS
// error is preserved in the returned error for diagnostics.
func (r *Resolver) Resolve(appName string) (string, error) {
	var lastErr error
	for _, c := range r.Candidates(appName) {
		if err := ensureWritable(c.Path); err != nil {
			lastErr = err
			r.log.Debug("candidate rejected",
				slog.String("source", c.Source.String()),
				slog.String("path", c.Path),
				slog.Any("err", err))
			continue
		}
		r.log.Info("resolved app data directory",
			slog.String("source", c.Source.String()),
			slog.String("path", c.Path))
		return c.Path, nil
	}
	if lastErr != nil {
		return "", fmt.Errorf("%w: %w", ErrNoWritableLocation, lastErr)
	}
	return "", ErrNoWritableLocation
}

// ensureWritable creates the directory if missing and probes it by writing
// and deleting a marker file. A directory created but found unwritable may
// remain behind; that is acceptable.
func ensureWritable(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("cannot create directory: %w", err)
	}

	marker := filepath.Join(dir, "write_test.tmp")
	if err := os.WriteFile(marker, []byte("test"), 0644); err != nil {
		return fmt.Errorf("directory not writable: %w", err)
	}
	_ = os.Remove(marker)
	return nil
}

// DatabasePath joins the resolved application directory with the database
// file name.
func DatabasePath(appDir, dbFile string) string {
	return filepath.Join(appDir, dbFile)
}

// BackupsDir returns the snapshot directory kept beside a main database file.
func BackupsDir(dbPath string) string {
	return filepath.Join(filepath.Dir(dbPath), "backups")
}

// WALPath returns the write-ahead log side file path for a main database file.
func WALPath(dbPath string) string {
	return dbPath + "-wal"
}

// SHMPath returns the shared-memory side file path for a main database file.
func SHMPath(dbPath string) string {
	return dbPath + "-shm"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func primaryDataRoot() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return v
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".local", "share")
	}
	return ""
}

func secondaryDataRoot() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("LOCALAPPDATA")
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".cache")
	}
	return ""
}

func documentsRoot() string {
	var home string
	if runtime.GOOS == "windows" {
		home = os.Getenv("USERPROFILE")
	} else {
		home = os.Getenv("HOME")
	}
	if home == "" {
		return ""
	}
	return filepath.Join(home, "Documents")
}

func currentDirRoot() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(cwd, "data")
}
