// Package scheduler runs periodic maintenance jobs (scheduled snapshots) on
// cron specs.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc is a schedulable job.
type JobFunc func(ctx context.Context) error

// Scheduler manages cron-driven jobs. Overlapping runs of the same job are
// skipped: a snapshot that outlives its interval must not race a second one
// on the same database.
type Scheduler struct {
	cron   *cron.Cron
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	startOnce sync.Once
	stopOnce  sync.Once
}

// cronLogger adapts the cron logger interface to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.LogAttrs(context.Background(), slog.LevelDebug, msg, pairsToAttrs(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	attrs := append([]slog.Attr{slog.Any("error", err)}, pairsToAttrs(keysAndValues)...)
	l.logger.LogAttrs(context.Background(), slog.LevelError, msg, attrs...)
}

func pairsToAttrs(keysAndValues []interface{}) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, slog.Any(key, keysAndValues[i+1]))
	}
	return attrs
}

// New creates a scheduler.
func New(log *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLogger{logger: log}),
			cron.WithChain(cron.Recover(cronLogger{logger: log})),
		),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddCronJob registers a job under the given cron spec.
func (s *Scheduler) AddCronJob(spec, name string, job JobFunc) (cron.EntryID, error) {
	var running sync.Mutex

	return s.cron.AddFunc(spec, func() {
		if !running.TryLock() {
			s.log.Warn("job still running, skipping", slog.String("job", name))
			return
		}
		defer running.Unlock()

		start := time.Now()
		err := job(s.ctx)
		duration := time.Since(start)
		if err != nil {
			s.log.Error("job failed",
				slog.String("job", name),
				slog.Duration("duration", duration),
				slog.Any("err", err))
			return
		}
		s.log.Info("job completed",
			slog.String("job", name),
			slog.Duration("duration", duration))
	})
}

// Start launches the cron loop. Safe to call once.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.cron.Start()
		s.log.Info("scheduler started")
	})
}

// Stop cancels running jobs and waits for the cron loop to drain, bounded by
// the given context.
func (s *Scheduler) Stop(ctx context.Context) {
	s.stopOnce.Do(func() {
		s.cancel()
		stopCtx := s.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
		s.log.Info("scheduler stopped")
	})
}
