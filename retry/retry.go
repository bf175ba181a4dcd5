// Package retry runs a fallible operation a bounded number of times and
// reports the outcome as a tagged Result instead of a bare error.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
)

// Policy bounds a retry loop
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	// Values below one are treated as one.
	MaxAttempts int

	// Delay is the pause between tries
	Delay time.Duration
}

// Result is either a success carrying Value, or an exhausted failure
// carrying the last error.  Attempts counts every try that ran.
type Result[T any] struct {
	Value    T
	OK       bool
	Attempts int
	Err      error
}

// Discarded is the number of failed tries
func (r Result[T]) Discarded() int {
	if r.OK {
		return r.Attempts - 1
	}
	return r.Attempts
}

func (r Result[T]) String() string {
	if r.OK {
		return fmt.Sprintf("ok after %d attempt(s)", r.Attempts)
	}
	return fmt.Sprintf("exhausted after %d attempt(s): %v", r.Attempts, r.Err)
}

// Func is one try.  attempt counts from 1.
type Func[T any] func(ctx context.Context, attempt int) (T, error)

// Notify is called after each failed try that will be retried
type Notify func(attempt int, err error)

// Do calls fn until it succeeds, the policy is exhausted, or ctx is done.
func Do[T any](ctx context.Context, p Policy, fn Func[T], notify Notify) Result[T] {
	var res Result[T]
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	max := p.MaxAttempts
	if max < 1 {
		max = 1
	}
	// WithMaxRetries treats zero as unlimited
	var b backoff.BackOff = &backoff.StopBackOff{}
	if max > 1 {
		b = backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(max-1))
	}
	bctx := backoff.WithContext(b, ctx)

	op := func() error {
		res.Attempts++
		v, err := fn(ctx, res.Attempts)
		if err != nil {
			return err
		}
		res.Value = v
		return nil
	}
	var n backoff.Notify
	if notify != nil {
		n = func(err error, _ time.Duration) {
			notify(res.Attempts, err)
		}
	}
	err := backoff.RetryNotify(op, bctx, n)
	if err != nil {
		res.Err = err
		return res
	}
	res.OK = true
	return res
}
