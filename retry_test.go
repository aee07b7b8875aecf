package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWithRetrySucceedsAfterTransientFailure(t *testing.T) {
	calls := 0
	out, err := withRetry(context.Background(), zap.NewNop(), "ticker", 3, func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("connection reset")
		}
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, out)
	assert.Equal(t, 2, calls)
}

func TestWithRetryExhaustsAndWrapsLastError(t *testing.T) {
	apiErr := &APIError{HTTPStatus: 400, Code: "INVALID_ORDER", Message: "Quantity too small"}
	calls := 0
	_, err := withRetry(context.Background(), zap.NewNop(), "order", 1, func(context.Context) (string, error) {
		calls++
		return "", apiErr
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var exhausted *RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "order", exhausted.Op)
	assert.Equal(t, 1, exhausted.Attempts)

	var unwrapped *APIError
	require.ErrorAs(t, err, &unwrapped)
	assert.Equal(t, "INVALID_ORDER", unwrapped.Code)
}

func TestWithRetryStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	start := time.Now()
	_, err := withRetry(ctx, zap.NewNop(), "balance", 5, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("unavailable")
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "no further attempts after cancellation")
	assert.Less(t, time.Since(start), 500*time.Millisecond, "must not sit out the backoff")
}

func TestWithRetryDefaultsAttempts(t *testing.T) {
	calls := 0
	_, err := withRetry(context.Background(), zap.NewNop(), "ticker", 0, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("down")
	})
	require.Error(t, err)
	assert.Equal(t, defaultMaxAttempts, calls)
}
