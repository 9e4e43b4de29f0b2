package search

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrRetriesExhausted wraps the last transport failure once the retry budget is spent
var ErrRetriesExhausted = errors.New("transport retries exhausted")

// RetryPolicy bounds how transport failures are retried. Polls are retried on any
// transport failure, submissions only when the request never left the client.
// HTTP-status failures are never retried.
type RetryPolicy struct {
	// MaxRetries is the number of re-issued requests per poll; zero means unlimited
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultRetryPolicy returns the bounded policy used unless configured otherwise
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      10,
		InitialInterval: 2 * time.Second,
		MaxInterval:     time.Minute,
		Multiplier:      2,
	}
}

func (r RetryPolicy) newBackOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if r.InitialInterval > 0 {
		eb.InitialInterval = r.InitialInterval
	}
	if r.MaxInterval > 0 {
		eb.MaxInterval = r.MaxInterval
	}
	if r.Multiplier >= 1 {
		eb.Multiplier = r.Multiplier
	}
	eb.MaxElapsedTime = 0
	eb.Reset()

	var b backoff.BackOff = eb
	if r.MaxRetries > 0 {
		b = backoff.WithMaxRetries(b, r.MaxRetries)
	}
	return backoff.WithContext(b, ctx)
}

// retry runs op, re-issuing it after failures retryable accepts until the policy gives up
func retry[T any](ctx context.Context, policy RetryPolicy, retryable func(error) bool, op func() (T, error), notify func(error, time.Duration)) (T, error) {
	wrapped := func() (T, error) {
		v, err := op()
		if err != nil && !retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	v, err := backoff.RetryNotifyWithData[T](wrapped, policy.newBackOff(ctx), notify)
	if err == nil {
		return v, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return v, ctxErr
	}
	if retryable(err) {
		return v, errors.Join(ErrRetriesExhausted, err)
	}
	return v, err
}
