package collector_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/flowpulse/flowpulse/pkg/collector"
	"github.com/flowpulse/flowpulse/pkg/config"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

func fastRetry() config.RetryConfig {
	return config.RetryConfig{
		MaxAttempts:  2,
		InitialDelay: "1ms",
		Multiplier:   2,
	}
}

func TestVideoEngagement(t *testing.T) {
	// (10*2 + 5*3) / 1000 * 10000 = 350.
	assert.InDelta(t, 350.0, collector.VideoEngagement(1000, 10, 5), 1e-9)

	// Zero views must not fault.
	assert.Zero(t, collector.VideoEngagement(0, 10, 5))

	assert.Zero(t, collector.VideoEngagement(500, 0, 0))
}

func TestForumEngagement(t *testing.T) {
	// (3 + 7) / 200 * 1000 = 50.
	assert.InDelta(t, 50.0, collector.ForumEngagement(200, 3, 7), 1e-9)

	assert.Zero(t, collector.ForumEngagement(0, 3, 7))
}

func TestTrendDelta(t *testing.T) {
	// 61 points: 31 at 10, then 30 at 20 -> previous window mean 10,
	// recent window mean 20 -> +100%.
	values := make([]int, 0, 61)
	for i := 0; i < 31; i++ {
		values = append(values, 10)
	}

	for i := 0; i < 30; i++ {
		values = append(values, 20)
	}

	assert.InDelta(t, 100.0, collector.TrendDelta(values), 1e-9)

	// Too short to form two windows.
	assert.Zero(t, collector.TrendDelta(values[:60]))

	// Zero previous-window mean.
	flat := make([]int, 61)
	assert.Zero(t, collector.TrendDelta(flat))
}

func TestRetryable(t *testing.T) {
	assert.False(t, collector.Retryable(collector.ErrMalformedPayload))
	assert.False(t, collector.Retryable(&collector.StatusError{Status: http.StatusNotFound}))
	assert.False(t, collector.Retryable(&collector.StatusError{Status: http.StatusForbidden}))

	assert.True(t, collector.Retryable(&collector.StatusError{Status: http.StatusTooManyRequests}))
	assert.True(t, collector.Retryable(&collector.StatusError{Status: http.StatusBadGateway}))
	assert.True(t, collector.Retryable(errors.New("dial tcp: connection refused")))
}
