// Package retry wraps github.com/sethvargo/go-retry behind a small policy value
// so callers describe how often to try, not how to loop.
package retry

import (
	"context"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

// Policy describes a bounded retry schedule. Attempts are spaced by Delay plus
// up to Jitter of random slack.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	Jitter      time.Duration
}

func DefaultFetchPolicy() Policy {
	return Policy{MaxAttempts: 2, Delay: 750 * time.Millisecond}
}

func (p Policy) backoff() goretry.Backoff {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.Delay
	if delay <= 0 {
		delay = time.Millisecond
	}
	b := goretry.NewConstant(delay)
	if p.Jitter > 0 {
		b = goretry.WithJitter(p.Jitter, b)
	}
	return goretry.WithMaxRetries(uint64(attempts-1), b)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it succeeds, returns a Permanent error, the policy runs
// out of attempts or ctx is done. The last error is returned unwrapped.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	err := goretry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if perm, ok := err.(*permanentError); ok {
			return perm
		}
		return goretry.RetryableError(err)
	})
	if perm, ok := err.(*permanentError); ok {
		return perm.err
	}
	return err
}
