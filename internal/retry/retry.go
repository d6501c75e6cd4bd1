// Package retry runs an operation with exponential backoff and jitter.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"
)

// Policy controls attempts and backoff. The zero value is not usable; start from Default.
type Policy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	JitterPct   float64
	// Retryable decides whether err is worth another attempt. Nil means IsTransient.
	Retryable func(error) bool
}

// Default mirrors the pacing used for WhatsApp sends.
var Default = Policy{
	MaxAttempts: 3,
	BaseBackoff: 2 * time.Second,
	MaxBackoff:  20 * time.Second,
	JitterPct:   0.20,
}

// Permanent wraps err so Do stops immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Do calls fn until it succeeds, returns a non-retryable error, or attempts
// run out. It returns the number of attempts made alongside the last error.
func (p Policy) Do(ctx context.Context, fn func() error) (int, error) {
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := p.BaseBackoff
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return attempt, nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return attempt, perm.err
		}
		if attempt >= attempts || !retryable(err) {
			return attempt, err
		}
		wait := backoff
		if p.JitterPct > 0 && backoff > 0 {
			if span := int64(float64(backoff) * p.JitterPct); span > 0 {
				wait += time.Duration(rand.Int63n(span))
			}
		}
		if p.MaxBackoff > 0 && wait > p.MaxBackoff {
			wait = p.MaxBackoff
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return attempt, ctx.Err()
		}
		backoff *= 2
		if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
		}
	}
}

// IsTransient treats timeouts and dropped connections as retryable.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "timeout"),
		strings.Contains(s, "temporary"),
		strings.Contains(s, "eof"),
		strings.Contains(s, "reset"),
		strings.Contains(s, "refused"),
		strings.Contains(s, "deadline"):
		return true
	default:
		return false
	}
}

// Sleep waits a random duration in [min, max) or until ctx is done.
func Sleep(ctx context.Context, min, max time.Duration) error {
	wait := min
	if max > min {
		wait = min + time.Duration(rand.Int63n(int64(max-min)))
	}
	if wait <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
