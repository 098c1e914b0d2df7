package utils_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/beaconhq/groupfeed/pkg/utils"
	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errTemporary = errors.New("temporary error")
	errPermanent = errors.New("permanent error")
)

func testRetryOptions() utils.RetryOptions {
	return utils.RetryOptions{
		MaxElapsedTime:  100 * time.Millisecond,
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     20 * time.Millisecond,
		MaxRetries:      3,
	}
}

func TestWithRetry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		operation     func() (string, error)
		expectedCalls int
		expectedValue string
		expectedErr   error
	}{
		{
			name: "succeeds first try",
			operation: func() (string, error) {
				return "ok", nil
			},
			expectedCalls: 1,
			expectedValue: "ok",
			expectedErr:   nil,
		},
		{
			name: "succeeds after retries",
			operation: func() func() (string, error) {
				count := 0
				return func() (string, error) {
					count++
					if count < 3 {
						return "", errTemporary
					}
					return "ok", nil
				}
			}(),
			expectedCalls: 3,
			expectedValue: "ok",
			expectedErr:   nil,
		},
		{
			name: "fails all retries",
			operation: func() (string, error) {
				return "", errTemporary
			},
			expectedCalls: 4, // Initial + 3 retries
			expectedValue: "",
			expectedErr:   errTemporary,
		},
		{
			name: "permanent error stops immediately",
			operation: func() (string, error) {
				return "", backoff.Permanent(errPermanent)
			},
			expectedCalls: 1,
			expectedValue: "",
			expectedErr:   errPermanent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := t.Context()
			calls := 0
			wrappedOp := func() (string, error) {
				calls++
				return tt.operation()
			}

			value, err := utils.WithRetry(ctx, wrappedOp, testRetryOptions())

			if tt.expectedErr != nil {
				require.Error(t, err)
				require.ErrorIs(t, err, tt.expectedErr)
			} else {
				require.NoError(t, err)
			}

			assert.Equal(t, tt.expectedValue, value)
			assert.Equal(t, tt.expectedCalls, calls)
		})
	}
}

func TestWithRetryContext(t *testing.T) {
	t.Parallel()

	t.Run("respects context cancellation", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(t.Context())
		calls := 0

		operation := func() (int, error) {
			calls++
			return 0, errTemporary
		}

		opts := utils.RetryOptions{
			MaxElapsedTime:  1 * time.Second,
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     200 * time.Millisecond,
			MaxRetries:      5,
		}

		// Cancel context after small delay
		go func() {
			time.Sleep(50 * time.Millisecond)
			cancel()
		}()

		_, err := utils.WithRetry(ctx, operation, opts)

		require.Error(t, err)
		require.ErrorIs(t, err, context.Canceled)
		assert.Less(t, calls, 5) // Should not have completed all retries
	})
}
