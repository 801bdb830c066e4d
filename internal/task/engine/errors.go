package engine

import (
	"errors"
	"time"
)

var (
	ErrStopped   = errors.New("engine: stopped")
	ErrQueueFull = errors.New("engine: delivery queue full")
)

// NoRetry marks a delivery failure as final: the chat is gone, the owner key
// is malformed, or the store could not record the outcome.
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return &finalError{cause: err}
}

// IsNoRetry reports whether err was marked with NoRetry.
func IsNoRetry(err error) bool {
	var f *finalError
	return errors.As(err, &f)
}

type finalError struct{ cause error }

func (f *finalError) Error() string { return "final: " + f.cause.Error() }
func (f *finalError) Unwrap() error { return f.cause }

// RetryAfter attaches the wait Telegram asked for (HTTP 429) to err.
func RetryAfter(err error, after time.Duration) error {
	if err == nil {
		return nil
	}
	return &throttledError{cause: err, wait: max(after, 0)}
}

// RetryAfterError exposes the server-requested wait of a throttled attempt.
type RetryAfterError interface {
	error
	RetryAfter() time.Duration
}

type throttledError struct {
	cause error
	wait  time.Duration
}

func (t *throttledError) Error() string             { return "throttled " + t.wait.String() + ": " + t.cause.Error() }
func (t *throttledError) Unwrap() error             { return t.cause }
func (t *throttledError) RetryAfter() time.Duration { return t.wait }
