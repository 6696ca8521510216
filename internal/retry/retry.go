// Package retry applies the shared upstream retry policy: transient failures
// are retried with exponential backoff up to a bounded attempt count, then
// surfaced as upstream_unavailable; everything else is surfaced immediately.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/seekmail/seekmail/internal/apierr"
)

// Policy bounds the retry behavior for one logical remote call.
type Policy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy matches the bound the upstream quotas tolerate.
var DefaultPolicy = Policy{
	MaxAttempts:     4,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     8 * time.Second,
}

// Do runs fn under p, classifying every failure through apierr. The caller's
// context deadline aborts the wait between attempts; the in-flight remote
// call itself is left to run to completion or time out on its own.
func Do[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialInterval
	bo.MaxInterval = p.MaxInterval

	attempt := func() (T, error) {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		err = apierr.Classify(op, err)
		if !apierr.Retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	v, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(p.MaxAttempts),
	)
	if err != nil {
		return v, apierr.Exhausted(op, apierr.Classify(op, err))
	}
	return v, nil
}

// DoVoid is Do for operations without a result.
func DoVoid(ctx context.Context, p Policy, op string, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, p, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
