// FILE: errors.go
// Package main – Error taxonomy for the DCA engine.
//
// Five failure classes cross component boundaries:
//   • RetryExhaustedError          – remote call failed after all attempts
//   • PlanningError                – no viable order ladder
//   • OrderRejectedError           – exchange returned no usable order id
//   • LiquidationIncompleteError   – best-effort sell left a residual position
//   • ErrReconciliationUnavailable – order-history query failed this round
//
// Everything else is wrapped with fmt.Errorf("%w") at the call site.
package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// RetryExhaustedError is returned by withRetry once every attempt has failed.
type RetryExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s: retries exhausted after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// PlanningError means the ladder came out empty: every candidate order fell
// below the minimum amount after quantization, or the inputs were unusable.
type PlanningError struct {
	Reason string
}

func (e *PlanningError) Error() string { return "order planning failed: " + e.Reason }

// OrderRejectedError means the exchange accepted the call but the response
// carried no order id. The message is kept verbatim so callers can detect
// insufficient-funds rejections, which abort the rest of the ladder.
type OrderRejectedError struct {
	Symbol  string
	Message string
}

func (e *OrderRejectedError) Error() string {
	return fmt.Sprintf("order rejected for %s: %s", e.Symbol, e.Message)
}

// InsufficientFunds reports whether the rejection text indicates the account
// ran out of quote balance.
func (e *OrderRejectedError) InsufficientFunds() bool {
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "insufficient") || strings.Contains(msg, "balance")
}

// LiquidationIncompleteError reports a residual position after both IOC sell
// attempts. Callers treat it as a warning, never as a fatal cycle error.
type LiquidationIncompleteError struct {
	Symbol    string
	Remaining decimal.Decimal
}

func (e *LiquidationIncompleteError) Error() string {
	return fmt.Sprintf("liquidation incomplete for %s: %s remaining", e.Symbol, e.Remaining)
}

// ErrReconciliationUnavailable marks a failed order-history query; the monitor
// falls back to the last known ledger state instead of failing the cycle.
var ErrReconciliationUnavailable = errors.New("order history unavailable")
