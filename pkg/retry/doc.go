// Package retry provides bounded retry logic with blocking backoff sleeps.
//
// Basic usage:
//
//	err := retry.RetryWithAttempts(ctx, 5, func(ctx context.Context) error {
//	    return someOperation()
//	})
//
// Linearly increasing delays (base × attempt), as used to wait out transient
// file locks held by antivirus scanners or indexers:
//
//	err := retry.Do(ctx, retry.Linear(5, time.Second), fn)
//
// For ordered alternative strategies ("try A, then B, then C"), see
// pkg/fallback.
package retry
