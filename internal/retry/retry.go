// Package retry wraps external calls with transient/permanent failure
// classification and bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"time"
)

// Policy bounds how a failing call is retried.
type Policy struct {
	MaxAttempts int           // total attempts, including the first
	BaseDelay   time.Duration // delay before the first retry
	MaxDelay    time.Duration // cap on any single backoff sleep
	Jitter      float64       // fraction of the delay randomized, 0..1
}

// DefaultPolicy matches the upstream rate limits we see in practice.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 4,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Jitter:      0.2,
	}
}

// permanentError marks a failure that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was classified permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// StatusError is a failed HTTP call with its status code, so classification
// can happen at the retry boundary instead of inside each client.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// RetryableStatus reports whether an HTTP status is worth retrying:
// rate limits and server-side failures are; other client errors are not.
func RetryableStatus(code int) bool {
	if code == http.StatusTooManyRequests || code == http.StatusRequestTimeout {
		return true
	}
	return code >= 500
}

// Classify wraps err as permanent when it is clearly not transient.
// Timeouts, connection resets and 429/5xx statuses stay retryable.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var se *StatusError
	if errors.As(err, &se) {
		if RetryableStatus(se.StatusCode) {
			return err
		}
		return Permanent(err)
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return err // network errors are transient
	}

	return err
}

// Do runs op under the policy. Transient failures are retried with
// exponential, jittered backoff; permanent failures and context
// cancellation return immediately. The last error is returned after
// exhaustion, never a panic or a raise past this boundary.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		err = Classify(err)

		if IsPermanent(err) {
			return err
		}
		// A per-call deadline is transient; a dead parent context is not.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err

		if attempt == attempts-1 {
			break
		}

		select {
		case <-time.After(p.backoff(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("all %d attempts failed: %w", attempts, lastErr)
}

// backoff returns the sleep before retrying after the given attempt
// (0-based): base << attempt, capped, with up to Jitter randomized.
func (p Policy) backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}

	d := base << uint(attempt)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}

	if p.Jitter > 0 {
		spread := float64(d) * p.Jitter
		d = time.Duration(float64(d) - spread/2 + rand.Float64()*spread)
	}

	return d
}
