// Package retry wraps upstream calls in a bounded exponential backoff
// policy so that a transient failure of a subgraph endpoint or an Ethereum
// provider does not immediately surface as a reconciliation error.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "retry")

const (
	initialInterval = 500 * time.Millisecond
	maxInterval     = 10 * time.Second
	maxRetries      = 4
)

// Do runs op, retrying transient failures with exponential backoff. It gives
// up after five total attempts or as soon as the context is canceled,
// returning the last error. The name is carried into the per-attempt warn
// logs.
func Do(ctx context.Context, name string, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialInterval
	bo.MaxInterval = maxInterval

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries), ctx)
	return backoff.RetryNotify(op, policy, func(err error, next time.Duration) {
		log.WithError(err).WithFields(logrus.Fields{
			"op":         name,
			"retryingIn": next,
		}).Warn("Transient failure, retrying")
	})
}

// DoWithResult runs op with the same policy as Do, returning its value.
func DoWithResult[T any](ctx context.Context, name string, op func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, name, func() error {
		var err error
		result, err = op()
		return err
	})
	return result, err
}

// Permanent marks an error as non-retryable so Do returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}
