// Package retry runs remote calls with exponential backoff.
//
// Only failures classified as transient (rate limiting, node temporarily
// unavailable) are retried. Everything else is returned after the first
// attempt so malformed requests fail fast.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/0xmhha/wallet-activity/internal/constants"
)

var (
	// ErrTransient marks a failure worth retrying
	ErrTransient = errors.New("transient remote failure")

	// ErrRetryExhausted is matched by every RetryExhaustedError
	ErrRetryExhausted = errors.New("retries exhausted")
)

// transientError tags an underlying error as retryable without hiding it
type transientError struct {
	err error
}

func (e *transientError) Error() string {
	return e.err.Error()
}

func (e *transientError) Unwrap() []error {
	return []error{e.err, ErrTransient}
}

// Transient marks err as retryable. A nil err stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	if IsTransient(err) {
		return err
	}
	return &transientError{err: err}
}

// IsTransient reports whether err has been classified as retryable
func IsTransient(err error) bool {
	return err != nil && errors.Is(err, ErrTransient)
}

// RetryExhaustedError is returned once every attempt failed transiently
type RetryExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

// Unwrap exposes both the last failure and ErrRetryExhausted to errors.Is/As
func (e *RetryExhaustedError) Unwrap() []error {
	return []error{e.Last, ErrRetryExhausted}
}

// OnRetryFunc is called before each backoff wait. attempt is the 1-indexed
// attempt that just failed.
type OnRetryFunc func(attempt int, err error, delay time.Duration)

// Config holds retry behaviour
type Config struct {
	// MaxAttempts is the total number of attempts, including the first (default: 10)
	MaxAttempts int

	// BaseDelay is the delay before the first retry; it doubles per attempt (default: 1s)
	BaseDelay time.Duration

	// MaxDelay caps a single delay, jitter included (default: 30s)
	MaxDelay time.Duration

	// Jitter is the exclusive upper bound of the random delay added per retry (default: 1s)
	Jitter time.Duration

	// OnRetry is an optional hook for logging and metrics
	OnRetry OnRetryFunc

	// sleep and rand are swapped out by tests
	sleep func(ctx context.Context, d time.Duration) error
	rand  func(n int64) int64
}

// DefaultConfig returns the production retry policy
func DefaultConfig() Config {
	return Config{
		MaxAttempts: constants.DefaultRetryMaxAttempts,
		BaseDelay:   constants.DefaultRetryBaseDelay,
		MaxDelay:    constants.DefaultRetryMaxDelay,
		Jitter:      constants.DefaultRetryJitter,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = constants.DefaultRetryMaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = constants.DefaultRetryBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = constants.DefaultRetryMaxDelay
	}
	if c.Jitter < 0 {
		c.Jitter = 0
	}
	if c.sleep == nil {
		c.sleep = sleepContext
	}
	if c.rand == nil {
		c.rand = rand.Int63n
	}
	return c
}

// Backoff returns the delay after the given 0-indexed attempt:
// min(BaseDelay*2^attempt + jitter, MaxDelay)
func (c Config) Backoff(attempt int) time.Duration {
	c = c.withDefaults()
	return c.backoff(attempt)
}

func (c Config) backoff(attempt int) time.Duration {
	delay := c.MaxDelay
	// Stop doubling once the cap is reached to avoid overflow
	if attempt < 32 {
		if d := c.BaseDelay << uint(attempt); d > 0 && d < c.MaxDelay {
			delay = d
		}
	}
	if c.Jitter > 0 {
		delay += time.Duration(c.rand(int64(c.Jitter)))
	}
	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}

// Do executes op until it succeeds, fails permanently, or MaxAttempts
// transient failures have been seen.
func Do[T any](ctx context.Context, cfg Config, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	cfg = cfg.withDefaults()

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := cfg.backoff(attempt - 1)
			if cfg.OnRetry != nil {
				cfg.OnRetry(attempt, lastErr, delay)
			}
			if err := cfg.sleep(ctx, delay); err != nil {
				return zero, fmt.Errorf("context cancelled while retrying: %w", err)
			}
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if !IsTransient(err) {
			return zero, err
		}
		lastErr = err
	}

	return zero, &RetryExhaustedError{Attempts: cfg.MaxAttempts, Last: lastErr}
}

// DoVoid is Do for operations without a result
func DoVoid(ctx context.Context, cfg Config, op func(ctx context.Context) error) error {
	_, err := Do(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
