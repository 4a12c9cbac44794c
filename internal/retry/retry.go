// Package retry holds the retry policy shared by the sequence manager and the
// browser waits.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy is a bounded, fixed-delay retry policy.
type Policy struct {
	MaxAttempts int           // total attempts including the first
	Delay       time.Duration // pause between attempts
}

// DefaultPolicy matches the sequence manager defaults.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, Delay: 200 * time.Millisecond}
}

func (p Policy) attempts() uint {
	if p.MaxAttempts < 1 {
		return 1
	}
	return uint(p.MaxAttempts)
}

// Notify is called after each failed attempt that will be retried.
type Notify func(attempt int, err error, next time.Duration)

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a permanent error, the policy is
// exhausted or ctx is done. It returns the number of attempts made and the
// last error.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error, notify Notify) (int, error) {
	attempt := 0
	opts := []backoff.RetryOption{
		backoff.WithBackOff(backoff.NewConstantBackOff(p.Delay)),
		backoff.WithMaxTries(p.attempts()),
	}
	if notify != nil {
		opts = append(opts, backoff.WithNotify(func(err error, next time.Duration) {
			notify(attempt, err, next)
		}))
	}
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		return struct{}{}, op(ctx)
	}, opts...)
	return attempt, err
}

// ErrConditionNotMet is returned by Poll when the timeout elapses first.
var ErrConditionNotMet = errors.New("condition not met before timeout")

var errNotYet = errors.New("not yet")

// Poll evaluates cond every interval until it reports true, returns an error,
// or timeout elapses.
func Poll(ctx context.Context, interval, timeout time.Duration, cond func(ctx context.Context) (bool, error)) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		ok, err := cond(ctx)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		if !ok {
			return struct{}{}, errNotYet
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(backoff.NewConstantBackOff(interval)), backoff.WithMaxElapsedTime(timeout+interval))
	if errors.Is(err, errNotYet) || errors.Is(err, context.DeadlineExceeded) {
		return ErrConditionNotMet
	}
	return err
}
