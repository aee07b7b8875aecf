// FILE: retry.go
// Package main – Bounded exponential-backoff retry for remote calls.
//
// withRetry is the single retry mechanism in the repo: every remote call that
// is idempotent or safe to repeat goes through it (price/balance queries,
// order placement with a stable client id, cancellation). Attempt k
// (0-indexed) waits 1s·2^k before the next attempt; no wait after the last.
package main

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const defaultMaxAttempts = 3

// withRetry invokes fn up to maxAttempts times, logging every failure with
// its attempt index and, when present, the structured error body from the
// remote call. After the final failure it returns RetryExhaustedError
// wrapping the last error.
func withRetry[T any](ctx context.Context, log *zap.Logger, op string, maxAttempts int, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		out, err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				log.Info("remote call recovered", zap.String("op", op), zap.Int("attempt", attempt))
			}
			return out, nil
		}
		lastErr = err
		mtxRetries.WithLabelValues(op).Inc()

		fields := []zap.Field{zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err)}
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			fields = append(fields, zap.String("api_code", apiErr.Code), zap.String("api_message", apiErr.Message))
		}
		log.Warn("remote call failed", fields...)

		if attempt == maxAttempts-1 {
			break
		}
		backoff := time.Duration(1<<attempt) * time.Second
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return zero, &RetryExhaustedError{Op: op, Attempts: maxAttempts, Err: lastErr}
}
