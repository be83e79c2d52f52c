package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Config defines retry configuration.
type Config struct {
	// MaxAttempts is the maximum number of attempts (including the first one).
	MaxAttempts int
	// InitialDelay is the delay after the first failed attempt.
	InitialDelay time.Duration
	// MaxDelay caps the delay between attempts.
	MaxDelay time.Duration
	// Multiplier is the backoff multiplier. 1.0 keeps the delay constant;
	// use NextDelay for linearly increasing delays.
	Multiplier float64
	// OnRetry is called before each sleep for observability.
	OnRetry func(attempt int, err error, nextDelay time.Duration)
	// NextDelay overrides backoff calculation when provided. Returning
	// false stops retrying and surfaces the last error.
	NextDelay func(attempt int, err error) (time.Duration, bool)
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Linear returns a configuration that sleeps base×attempt between attempts,
// the pattern used for absorbing transient file locks.
func Linear(maxAttempts int, base time.Duration) Config {
	c := DefaultConfig()
	c.MaxAttempts = maxAttempts
	c.InitialDelay = base
	c.NextDelay = func(attempt int, _ error) (time.Duration, bool) {
		return base * time.Duration(attempt), true
	}
	return c
}

// Normalize validates and normalizes the configuration.
func (c *Config) Normalize() error {
	if c.MaxAttempts <= 0 {
		return errors.New("retry: MaxAttempts must be positive")
	}
	if c.InitialDelay <= 0 {
		return errors.New("retry: InitialDelay must be positive")
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Multiplier == 0 {
		c.Multiplier = 2.0
	}
	if c.Multiplier < 1.0 {
		return errors.New("retry: Multiplier must be >= 1.0")
	}
	return nil
}

// RetryableFunc is a function that can be retried.
type RetryableFunc func(ctx context.Context) error

// IsRetryableFunc determines if an error should trigger a retry.
type IsRetryableFunc func(err error) bool

// RetriesExceededError is returned when retries are exhausted.
type RetriesExceededError struct {
	LastError error
	Attempts  int
}

func (e *RetriesExceededError) Error() string {
	return fmt.Sprintf("retry: max attempts exceeded (%d attempts): %v", e.Attempts, e.LastError)
}

func (e *RetriesExceededError) Unwrap() error {
	return e.LastError
}

// Do executes a function with retry logic, retrying every error.
func Do(ctx context.Context, config Config, fn RetryableFunc) error {
	return DoWithRetryable(ctx, config, fn, func(error) bool { return true })
}

// DoWithRetryable executes a function with retry logic and a custom
// retryable check. Sleeps between attempts are blocking but respect
// context cancellation.
func DoWithRetryable(ctx context.Context, config Config, fn RetryableFunc, isRetryable IsRetryableFunc) error {
	configCopy := config
	if err := configCopy.Normalize(); err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= configCopy.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt == configCopy.MaxAttempts {
			break
		}

		if !isRetryable(lastErr) {
			return lastErr
		}

		var delay time.Duration
		if configCopy.NextDelay != nil {
			var ok bool
			delay, ok = configCopy.NextDelay(attempt, lastErr)
			if !ok {
				return lastErr
			}
		} else {
			delay = configCopy.calculateDelay(attempt)
		}

		if configCopy.OnRetry != nil {
			configCopy.OnRetry(attempt, lastErr, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return &RetriesExceededError{LastError: lastErr, Attempts: configCopy.MaxAttempts}
}

// calculateDelay calculates the delay for the given attempt using
// exponential backoff.
func (c Config) calculateDelay(attempt int) time.Duration {
	delay := c.InitialDelay
	for i := 1; i < attempt; i++ {
		if delay > time.Duration(float64(c.MaxDelay)/c.Multiplier) {
			return c.MaxDelay
		}
		delay = time.Duration(float64(delay) * c.Multiplier)
	}
	if delay > c.MaxDelay {
		return c.MaxDelay
	}
	return delay
}

// RetryWithAttempts is a convenience function with custom max attempts.
func RetryWithAttempts(ctx context.Context, maxAttempts int, fn RetryableFunc) error {
	config := DefaultConfig()
	config.MaxAttempts = maxAttempts
	return Do(ctx, config, fn)
}
