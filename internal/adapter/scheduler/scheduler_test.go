package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler() *Scheduler {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func waitForAtLeast(t *testing.T, counter *int64, expected int64, timeout time.Duration) {
	t.Helper()

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(counter) >= expected
	}, timeout, 10*time.Millisecond, "counter never reached the expected value")
}

func TestScheduler_New(t *testing.T) {
	s := newTestScheduler()

	assert.NotNil(t, s)
	assert.NotNil(t, s.cron)
	assert.NotNil(t, s.log)
}

func TestScheduler_AddCronJob(t *testing.T) {
	s := newTestScheduler()
	defer s.Stop(context.Background())

	var counter int64
	_, err := s.AddCronJob("@every 100ms", "test-job", func(ctx context.Context) error {
		atomic.AddInt64(&counter, 1)
		return nil
	})
	require.NoError(t, err)

	s.Start()

	waitForAtLeast(t, &counter, 1, 2*time.Second)
}

func TestScheduler_AddCronJobInvalidSchedule(t *testing.T) {
	s := newTestScheduler()
	defer s.Stop(context.Background())

	_, err := s.AddCronJob("invalid schedule", "bad-job", func(ctx context.Context) error {
		return nil
	})
	assert.Error(t, err)
}

func TestScheduler_JobWithError(t *testing.T) {
	s := newTestScheduler()
	defer s.Stop(context.Background())

	var runCount int64
	_, err := s.AddCronJob("@every 50ms", "failing-job", func(ctx context.Context) error {
		atomic.AddInt64(&runCount, 1)
		return errors.New("test error")
	})
	require.NoError(t, err)

	s.Start()

	// A failing job keeps its schedule.
	waitForAtLeast(t, &runCount, 2, 2*time.Second)
}

func TestScheduler_OverlappingRunsSkipped(t *testing.T) {
	s := newTestScheduler()
	defer s.Stop(context.Background())

	var active int64
	var overlapped int64
	_, err := s.AddCronJob("@every 50ms", "slow-job", func(ctx context.Context) error {
		if atomic.AddInt64(&active, 1) > 1 {
			atomic.AddInt64(&overlapped, 1)
		}
		defer atomic.AddInt64(&active, -1)
		time.Sleep(200 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)

	s.Start()
	time.Sleep(600 * time.Millisecond)

	assert.Zero(t, atomic.LoadInt64(&overlapped), "overlapping runs of the same job must be skipped")
}

func TestScheduler_StopCancelsJobContext(t *testing.T) {
	s := newTestScheduler()

	started := make(chan struct{})
	cancelled := make(chan struct{})
	_, err := s.AddCronJob("@every 50ms", "blocking-job", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	})
	require.NoError(t, err)

	s.Start()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("job never started")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(stopCtx)

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("job context was never cancelled on stop")
	}
}
