package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"storeguard/internal/adapter/rest"
	"storeguard/internal/adapter/scheduler"
	"storeguard/internal/backup"
	"storeguard/internal/config"
	"storeguard/internal/platform/logger"
	"storeguard/internal/platform/sqlite"
	"storeguard/internal/restart"
	"storeguard/internal/storage/dirs"
)

// migrationsPath locates schema migrations relative to the working directory.
const migrationsPath = "file://migrations/sqlite"

// Options are entry-point overrides applied on top of the environment
// configuration.
type Options struct {
	// Addr overrides HTTP_ADDR when non-empty.
	Addr string
}

// App wires application components.
type App struct {
	cfg      config.Config
	log      *slog.Logger
	resolver *dirs.Resolver
	engine   *backup.Engine
}

// New creates a new App instance and loads configuration.
func New(opts Options) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if opts.Addr != "" {
		cfg.HTTP.Addr = opts.Addr
	}
	log := logger.New(logger.Options{
		Env:          cfg.Env,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		App:          "storeguard",
	})
	return &App{
		cfg:      cfg,
		log:      log,
		resolver: dirs.NewResolver(cfg.Storage.Roots, log),
		engine:   backup.NewEngine(log),
	}, nil
}

// Run starts the HTTP surface and, if configured, the backup scheduler.
func (a *App) Run() error {
	a.log.Info("starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPath, err := a.initDatabase(ctx)
	if err != nil {
		return err
	}

	restarter := restart.NewScheduler(a.log, a.cfg.Backup.RestartDelay)
	handler := rest.New(a.log, a.cfg.Storage, a.resolver, a.engine, restarter)

	if a.cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	handler.Register(r)

	srv := &http.Server{Addr: a.cfg.HTTP.Addr, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("server", slog.Any("err", err))
		}
	}()
	a.log.Info("http listening", slog.String("addr", a.cfg.HTTP.Addr))

	var sched *scheduler.Scheduler
	if a.cfg.Backup.Schedule != "" {
		sched = scheduler.New(a.log)
		if _, err := sched.AddCronJob(a.cfg.Backup.Schedule, "scheduled-backup", a.scheduledBackup(dbPath)); err != nil {
			return fmt.Errorf("invalid backup schedule %q: %w", a.cfg.Backup.Schedule, err)
		}
		sched.Start()
	}

	<-ctx.Done()
	a.log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if sched != nil {
		sched.Stop(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("server shutdown", slog.Any("err", err))
	}
	return logger.Close(a.log)
}

// BackupOnce takes a single timestamped snapshot and returns its result.
// Used by the --backup-once entry-point flag.
func (a *App) BackupOnce(ctx context.Context) (backup.Result, error) {
	dbPath, err := a.initDatabase(ctx)
	if err != nil {
		return backup.Result{}, err
	}
	dest, err := a.backupDestination(dbPath)
	if err != nil {
		return backup.Result{}, err
	}
	desc, err := a.engine.Snapshot(ctx, dbPath, dest)
	if err != nil {
		return backup.Result{}, err
	}
	return desc.Result(), nil
}

// initDatabase resolves the application directory, makes sure the database
// file exists with WAL mode and startup pragmas applied, runs migrations,
// and closes its handle so file-level operations do not race it.
func (a *App) initDatabase(ctx context.Context) (string, error) {
	appDir, err := a.resolver.Resolve(a.cfg.Storage.AppName)
	if err != nil {
		return "", err
	}
	dbPath := dirs.DatabasePath(appDir, a.cfg.Storage.DatabaseFile)
	a.log.Info("database path", slog.String("path", dbPath))

	opts := sqlite.DefaultDBOptions()
	opts.AccessMode = sqlite.AccessModeReadWriteCreate
	opts.BusyTimeout = 60 * time.Second
	db, err := sqlite.NewDBWithOptions(ctx, dbPath, opts)
	if err != nil {
		return "", fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.Close(); err != nil {
		return "", fmt.Errorf("failed to close init connection: %w", err)
	}

	if err := sqlite.ApplyMigrations(dbPath, migrationsPath); err != nil {
		// Migrations are glue around the backup subsystem; a missing
		// migrations directory must not keep backups from running.
		a.log.Warn("migrations not applied", slog.Any("err", err))
	}

	return dbPath, nil
}

func (a *App) scheduledBackup(dbPath string) scheduler.JobFunc {
	return func(ctx context.Context) error {
		dest, err := a.backupDestination(dbPath)
		if err != nil {
			return err
		}
		desc, err := a.engine.Snapshot(ctx, dbPath, dest)
		if err != nil {
			return err
		}
		a.log.Info("scheduled backup written",
			slog.String("path", desc.Path),
			slog.Uint64("size", desc.SizeBytes),
			slog.String("checksum", desc.Checksum))
		return nil
	}
}

func (a *App) backupDestination(dbPath string) (string, error) {
	dir := dirs.BackupsDir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create backups directory: %w", err)
	}
	name := fmt.Sprintf("%s.%s.bak", a.cfg.Storage.DatabaseFile, time.Now().Format("20060102-150405"))
	return filepath.Join(dir, name), nil
}
