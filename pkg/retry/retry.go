// Package retry runs idempotent operations with exponential backoff.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// ErrMaxAttemptsExceeded is joined with the last error when every attempt failed.
var ErrMaxAttemptsExceeded = errors.New("retry: max attempts exceeded")

// Config configures backoff.
type Config struct {
	// InitialDelay is the delay before the first retry. Default: 200ms
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries. Default: 5s
	MaxDelay time.Duration

	// Multiplier is applied to the delay after each retry. Default: 2.0
	Multiplier float64

	// MaxAttempts counts the first try. Values below 1 mean a single attempt.
	MaxAttempts int

	// Jitter is the random fraction (0-1) added to each delay. Default: 0.1
	Jitter float64

	// Retryable classifies errors. Nil retries every error.
	Retryable func(error) bool
}

// DefaultConfig makes a single attempt; raise MaxAttempts to enable retries.
func DefaultConfig() Config {
	return Config{
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  1,
		Jitter:       0.1,
	}
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// attempts run out. Context cancellation stops the loop between attempts.
func Do(ctx context.Context, cfg Config, fn func(context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}

	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return errors.Join(err, lastErr)
			}
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if cfg.Retryable != nil && !cfg.Retryable(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		wait := delay
		if cfg.Jitter > 0 {
			wait += time.Duration(rand.Float64() * float64(delay) * cfg.Jitter)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(ctx.Err(), lastErr)
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	if cfg.MaxAttempts == 1 {
		return lastErr
	}
	return errors.Join(ErrMaxAttemptsExceeded, lastErr)
}
