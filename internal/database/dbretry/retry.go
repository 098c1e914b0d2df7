// Package dbretry wraps database operations with exponential backoff for
// transient PostgreSQL failures. Constraint violations and other logic errors
// are never retried.
package dbretry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

const (
	maxElapsedTime  = 30 * time.Second
	initialInterval = 250 * time.Millisecond
	maxInterval     = 5 * time.Second
	maxAttempts     = uint64(5)
)

// retryableCodes holds the PostgreSQL error classes worth retrying:
// connection failures (08), serialization/deadlock (40), resource
// exhaustion (53), operator intervention (57), and lock contention (55).
var retryableCodes = map[string]struct{}{
	"08000": {}, "08001": {}, "08003": {}, "08004": {}, "08006": {}, "08007": {}, "08P01": {},
	"40001": {}, "40P01": {},
	"53000": {}, "53100": {}, "53200": {}, "53300": {},
	"57P01": {}, "57P02": {}, "57P03": {},
	"55006": {}, "55P03": {},
}

// transientNetworkMessages are substrings of driver errors that indicate the
// connection died rather than the query being wrong.
var transientNetworkMessages = []string{
	"connection reset by peer",
	"broken pipe",
	"connection refused",
	"no connection",
	"i/o timeout",
	"unexpected EOF",
}

// IsRetryable reports whether err is a transient failure that a fresh attempt
// could succeed on. Context cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		_, ok := retryableCodes[pgErr.Field('C')]
		return ok
	}

	msg := err.Error()
	for _, fragment := range transientNetworkMessages {
		if strings.Contains(msg, fragment) {
			return true
		}
	}

	return false
}

// newPolicy builds the backoff schedule shared by all wrappers.
func newPolicy(ctx context.Context) backoff.BackOffContext {
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(maxElapsedTime),
		backoff.WithInitialInterval(initialInterval),
		backoff.WithMaxInterval(maxInterval),
	), maxAttempts)

	return backoff.WithContext(policy, ctx)
}

// run executes op under the retry policy, converting non-retryable errors
// into permanent ones so backoff stops immediately.
func run(ctx context.Context, op func(context.Context) error) error {
	var lastErr error

	err := backoff.Retry(func() error {
		if err := op(ctx); err != nil {
			if !IsRetryable(err) {
				return backoff.Permanent(err)
			}

			lastErr = err

			return err
		}

		return nil
	}, newPolicy(ctx))
	if err != nil {
		// Surface the last database error rather than the backoff bookkeeping error.
		if lastErr != nil && !errors.Is(err, lastErr) {
			err = lastErr
		}

		return fmt.Errorf("database operation failed: %w", err)
	}

	return nil
}

// Operation retries a database call that produces a value.
func Operation[T any](ctx context.Context, op func(context.Context) (T, error)) (T, error) {
	var result T

	err := run(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)

		return opErr
	})

	return result, err
}

// NoResult retries a database call with no return value.
func NoResult(ctx context.Context, op func(context.Context) error) error {
	return run(ctx, op)
}

// Transaction retries an entire transaction. The callback must be safe to run
// again from scratch since a serialization failure rolls back all of its work.
func Transaction(ctx context.Context, db *bun.DB, fn func(context.Context, bun.Tx) error) error {
	return run(ctx, func(ctx context.Context) error {
		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			return fn(ctx, tx)
		})
	})
}
