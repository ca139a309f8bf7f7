// Package retry wraps external invocations (decider calls, tool calls) with
// bounded exponential backoff and a transient/fatal error classification.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"time"

	"llm-day-trader/internal/logger"
)

// transientError marks a failure as retryable.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as retryable (timeouts, rate limits, connection
// resets). Unmarked errors are treated as fatal and propagated immediately.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	// Cancellation means the caller gave up; retrying would fight it.
	if errors.Is(err, context.Canceled) {
		return false
	}
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// ExhaustedError is a transient failure promoted to fatal after the attempt
// budget ran out. The caller treats it as fatal for the current unit of work.
type ExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: retries exhausted after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// IsExhausted reports whether err is a retry-budget exhaustion.
func IsExhausted(err error) bool {
	var ee *ExhaustedError
	return errors.As(err, &ee)
}

// Policy retries a single external call with exponential backoff. MaxRetries
// is the total attempt budget; BaseDelay doubles after every failed attempt.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Jitter     bool
}

// Do runs fn up to MaxRetries times. Fatal errors propagate immediately;
// transient errors are retried and converted to *ExhaustedError once the
// budget runs out.
func (p Policy) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	attempts := p.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	delay := p.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		wait := delay
		if p.Jitter && wait > 0 {
			wait += time.Duration(rand.Int63n(int64(wait)/2 + 1))
		}
		logger.Warn(ctx, "Transient failure, backing off",
			"op", op, "attempt", attempt, "max_attempts", attempts,
			"wait", wait.String(), "error", lastErr)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}

	return &ExhaustedError{Op: op, Attempts: attempts, Err: lastErr}
}
