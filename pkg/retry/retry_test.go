package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowpulse/flowpulse/pkg/retry"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

func fastConfig() retry.Config {
	return retry.Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		Multiplier:   2,
	}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0

	got, err := retry.Do(context.Background(), testLogger(), fastConfig(),
		func(context.Context) (int, error) {
			calls++

			return 42, nil
		})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesThenSucceeds(t *testing.T) {
	calls := 0

	got, err := retry.Do(context.Background(), testLogger(), fastConfig(),
		func(context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("transient")
			}

			return "ok", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustionAnnotatesAttempts(t *testing.T) {
	sentinel := errors.New("still down")
	calls := 0

	_, err := retry.Do(context.Background(), testLogger(), fastConfig(),
		func(context.Context) (int, error) {
			calls++

			return 0, sentinel
		})

	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), "3 attempts")
	assert.Equal(t, 3, calls)
}

func TestDo_NonRetryableReturnsImmediately(t *testing.T) {
	permanent := errors.New("bad payload")
	calls := 0

	cfg := fastConfig()
	cfg.Retryable = func(err error) bool {
		return !errors.Is(err, permanent)
	}

	_, err := retry.Do(context.Background(), testLogger(), cfg,
		func(context.Context) (int, error) {
			calls++

			return 0, permanent
		})

	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelStopsBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	cfg := retry.Config{
		MaxAttempts:  5,
		InitialDelay: time.Minute, // never actually waited out
		Multiplier:   2,
	}

	calls := 0

	done := make(chan error, 1)

	go func() {
		_, err := retry.Do(ctx, testLogger(), cfg,
			func(context.Context) (int, error) {
				calls++

				return 0, errors.New("transient")
			})
		done <- err
	}()

	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(5 * time.Second):
		t.Fatal("retry did not observe context cancellation")
	}
}
