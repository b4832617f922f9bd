package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"flowboard/internal/log"
)

// RecoverableError is implemented by errors that know whether a retry can help.
type RecoverableError interface {
	error
	IsRecoverable() bool
}

// RetryPolicy bounds how transient failures are retried.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy retries twice with 1s, 2s delays, capped at 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// Delay returns the backoff before retry number n (0-based).
func (p RetryPolicy) Delay(n int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < n; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// ShouldRetry reports whether err is worth another attempt.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var recoverable RecoverableError
	if errors.As(err, &recoverable) {
		return recoverable.IsRecoverable()
	}
	return true
}

// Do runs fn until it succeeds, returns a non-retryable error, or the retry
// budget is spent. The last error is returned.
func Do(ctx context.Context, p RetryPolicy, logger log.Logger, fn func(ctx context.Context) error) error {
	if logger == nil {
		logger = log.Nop{}
	}
	var err error
	for attempt := 0; ; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return fmt.Errorf("context cancelled: %w", cerr)
		}

		err = fn(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Debug("request succeeded after retries", "attempts", attempt+1)
			}
			return nil
		}
		if attempt >= p.MaxRetries || !ShouldRetry(err) {
			return err
		}

		backoff := p.Delay(attempt)
		logger.Warn("request failed, retrying", "attempt", attempt+1, "max", p.MaxRetries+1, "next_backoff", backoff.String(), "error", err)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return fmt.Errorf("context cancelled during backoff: %w", ctx.Err())
		case <-timer.C:
		}
	}
}
