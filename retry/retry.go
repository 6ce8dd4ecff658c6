// Package retry runs operations with bounded exponential backoff.
//
// Only errors wrapped with NewRecoverableError are retried; anything else
// fails immediately. Callers classify at the call site, close to where the
// failure category is known.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseWait   = 1 * time.Second
	DefaultMaxWait    = 30 * time.Second
)

// RecoverableError marks a failure worth retrying.
type RecoverableError struct {
	Err error
}

// Error implements the error interface
func (e *RecoverableError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error
func (e *RecoverableError) Unwrap() error {
	return e.Err
}

// NewRecoverableError wraps err so Do will retry it. Returns nil for nil.
func NewRecoverableError(err error) error {
	if err == nil {
		return nil
	}
	return &RecoverableError{Err: err}
}

// IsRecoverable reports whether err is marked recoverable.
func IsRecoverable(err error) bool {
	var recoverable *RecoverableError
	return errors.As(err, &recoverable)
}

type config struct {
	maxRetries int
	baseWait   time.Duration
	maxWait    time.Duration
}

// Option configures Do.
type Option func(*config)

// WithMaxRetries sets the total number of attempts.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

// WithBaseWait sets the wait before the second attempt; subsequent waits
// double.
func WithBaseWait(d time.Duration) Option {
	return func(c *config) { c.baseWait = d }
}

// WithMaxWait caps the wait between attempts.
func WithMaxWait(d time.Duration) Option {
	return func(c *config) { c.maxWait = d }
}

// Do runs fn up to the configured number of attempts, sleeping between
// failures with exponential backoff plus jitter. A non-recoverable error or
// a cancelled context stops immediately; otherwise the last error is
// returned.
func Do(ctx context.Context, fn func() error, opts ...Option) error {
	cfg := config{
		maxRetries: DefaultMaxRetries,
		baseWait:   DefaultBaseWait,
		maxWait:    DefaultMaxWait,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxRetries < 1 {
		cfg.maxRetries = 1
	}

	var lastErr error
	for attempt := 0; attempt < cfg.maxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(float64(cfg.baseWait) * math.Pow(2, float64(attempt-1)))
			if wait > cfg.maxWait {
				wait = cfg.maxWait
			}
			// Jitter: up to 10% extra, so synchronized callers fan out.
			wait += time.Duration(rand.Float64() * float64(wait) * 0.1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsRecoverable(err) {
			return err
		}
	}
	return lastErr
}
