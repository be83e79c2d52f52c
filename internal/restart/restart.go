// Package restart schedules a delayed re-spawn of the current process so a
// replaced database file is re-opened by a fresh instance.
package restart

import (
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

// settleBeforeExit gives the spawned instance a moment to start before the
// current process exits.
const settleBeforeExit = 500 * time.Millisecond

// Scheduler runs a cancellable one-shot restart. Once the delay has elapsed
// the restart is no longer cancellable; the only ordering guarantee is
// "after at least the configured delay".
type Scheduler struct {
	log   *slog.Logger
	delay time.Duration

	mu    sync.Mutex
	timer *time.Timer

	// seams for tests
	spawn func() error
	exit  func(code int)
}

// NewScheduler creates a restart scheduler with the given delay.
func NewScheduler(log *slog.Logger, delay time.Duration) *Scheduler {
	return &Scheduler{
		log:   log,
		delay: delay,
		spawn: spawnSelf,
		exit:  os.Exit,
	}
}

// Schedule arms the restart timer. Fire-and-forget from the caller's
// perspective: the method returns immediately and the caller's own return
// value reaches its client before the process goes down. Re-arming while a
// restart is pending resets the delay.
func (s *Scheduler) Schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}
	s.log.Info("restart scheduled", slog.Duration("delay", s.delay))
	s.timer = time.AfterFunc(s.delay, s.fire)
}

// Cancel stops a pending restart. Returns false if no restart was pending
// or the timer already fired.
func (s *Scheduler) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer == nil {
		return false
	}
	stopped := s.timer.Stop()
	s.timer = nil
	if stopped {
		s.log.Info("scheduled restart cancelled")
	}
	return stopped
}

func (s *Scheduler) fire() {
	if err := s.spawn(); err != nil {
		s.log.Error("failed to start new instance", slog.Any("err", err))
		s.exit(1)
		return
	}
	s.log.Info("new instance started, exiting")
	time.Sleep(settleBeforeExit)
	s.exit(0)
}

func spawnSelf() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	cmd := exec.Command(exe)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Start()
}
