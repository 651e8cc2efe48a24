// Package retry provides a retry-with-exponential-backoff wrapper for
// fallible operations against external services.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Default retry parameters, matching the conservative pacing used for
// the external source APIs.
const (
	DefaultMaxAttempts  = 4
	DefaultInitialDelay = time.Second
	DefaultMultiplier   = 2.0
)

// Config controls the retry behavior of Do.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// InitialDelay is the wait before the first retry.
	InitialDelay time.Duration

	// Multiplier scales the delay after each failed attempt.
	Multiplier float64

	// Retryable reports whether an error is worth retrying. A nil
	// predicate retries every error.
	Retryable func(error) bool
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}

	if c.InitialDelay <= 0 {
		c.InitialDelay = DefaultInitialDelay
	}

	if c.Multiplier <= 1 {
		c.Multiplier = DefaultMultiplier
	}

	return c
}

// Do invokes op, retrying with exponential backoff on errors that match
// cfg.Retryable. Non-matching errors propagate immediately. On
// exhaustion the last error is returned, annotated with the attempt
// count. Backoff waits are bounded by ctx; only the calling goroutine
// sleeps.
func Do[T any](
	ctx context.Context,
	log logrus.FieldLogger,
	cfg Config,
	op func(ctx context.Context) (T, error),
) (T, error) {
	cfg = cfg.withDefaults()

	var (
		zero    T
		lastErr error
	)

	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		lastErr = err

		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return zero, err
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		log.WithError(err).
			WithField("attempt", attempt).
			WithField("max_attempts", cfg.MaxAttempts).
			WithField("delay", delay.String()).
			Warn("Operation failed, retrying")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, fmt.Errorf("aborted after %d attempts: %w", attempt, ctx.Err())
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
	}

	return zero, fmt.Errorf("failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}
