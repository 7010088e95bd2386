package tools

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy retries an operation with bounded exponential backoff. It is
// applied only around idempotent network calls (geocode and forecast GETs);
// non-transient failures abort immediately.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// Retryable reports whether an error is worth another attempt.
	// Defaults to Transient.
	Retryable func(error) bool
}

// DefaultRetryPolicy matches the external-service retry contract:
// up to 3 attempts, first wait 2s, waits capped at 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 2 * time.Second,
		MaxInterval:     10 * time.Second,
	}
}

// Do runs op, retrying retryable failures until MaxAttempts is reached or
// ctx is cancelled. Backoff delays are deterministic and non-decreasing.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	retryable := p.Retryable
	if retryable == nil {
		retryable = Transient
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	// Jitter would make delays non-monotonic; keep the schedule deterministic.
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	wrapped := func() error {
		err := op()
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.Retry(wrapped,
		backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1)), ctx))
}

// StatusError marks an HTTP response status that arrived without a transport
// error. Server-side statuses (429, 5xx) are classified as transient.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return e.Status
}

// Transient reports whether err looks like a connection-class failure worth
// retrying: timeouts, refused/reset connections, or server-side HTTP errors.
// Malformed input and client-side HTTP errors are not retried.
func Transient(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == 429 || statusErr.Code >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "connection reset", "timeout", "temporary", "unavailable", "eof"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
