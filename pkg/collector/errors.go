package collector

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrMalformedPayload marks a response whose shape could not be
// decoded. Malformed payloads are never retried.
var ErrMalformedPayload = errors.New("malformed payload")

// StatusError is a non-200 HTTP response from a source.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Status)
}

// Retryable reports whether a source call error is transient: network
// failures and rate-limit or server-side statuses are retried, while
// malformed payloads and client errors are not.
func Retryable(err error) bool {
	if errors.Is(err, ErrMalformedPayload) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status == http.StatusTooManyRequests ||
			statusErr.Status >= http.StatusInternalServerError
	}

	// Anything else (DNS, connect, timeout) is worth retrying.
	return true
}
