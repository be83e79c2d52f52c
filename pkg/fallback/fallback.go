// Package fallback evaluates an ordered list of strategies with a single
// generic first-success-wins driver. Each strategy carries its own bounded
// attempt count and linear backoff, so escalation ladders (try a cheap
// operation, then progressively heavier ones) are declared as data instead
// of nested ad hoc loops.
package fallback

import (
	"fmt"
	"log/slog"
	"time"
)

// Strategy is one rung of an escalation ladder.
type Strategy struct {
	// Name identifies the strategy in logs and errors.
	Name string
	// Attempts is how many times Run is tried before moving on (min 1).
	Attempts int
	// Backoff is the base sleep between attempts; the actual sleep grows
	// linearly (Backoff × attempt number).
	Backoff time.Duration
	// Run performs the attempt.
	Run func() error
}

// First tries strategies in order and returns nil as soon as one succeeds.
// If every strategy fails, the last error is returned, wrapped with the
// operation and strategy names for diagnostics.
//
// Sleeps are blocking; callers wanting cancellation must bound the ladder by
// keeping attempt counts small.
func First(log *slog.Logger, op string, strategies ...Strategy) error {
	var lastErr error
	var lastName string

	for _, s := range strategies {
		attempts := s.Attempts
		if attempts < 1 {
			attempts = 1
		}

		for attempt := 1; attempt <= attempts; attempt++ {
			err := s.Run()
			if err == nil {
				log.Debug("strategy succeeded",
					slog.String("op", op),
					slog.String("strategy", s.Name),
					slog.Int("attempt", attempt))
				return nil
			}

			lastErr = err
			lastName = s.Name
			log.Warn("strategy attempt failed",
				slog.String("op", op),
				slog.String("strategy", s.Name),
				slog.Int("attempt", attempt),
				slog.Any("err", err))

			if attempt < attempts && s.Backoff > 0 {
				time.Sleep(s.Backoff * time.Duration(attempt))
			}
		}
	}

	return fmt.Errorf("%s: all strategies failed, last (%s): %w", op, lastName, lastErr)
}
