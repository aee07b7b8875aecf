// FILE: orders.go
// Package main – Order lifecycle operations: place, cancel, liquidate.
//
// Every operation composes the Quantizer (instrument-valid numbers) with
// withRetry (bounded backoff) and normalizes results into the FillLedger.
// Policies per the engine design:
//   • PlaceBuy     – limit GTC with a uuid client id; the id is minted once
//     and reused across retries so a resubmission cannot double-place
//   • CancelAll    – one batch-cancel try, then per-order fallback; never
//     fatal, failures are reported not raised
//   • Liquidate    – best-effort: two IOC sells (0.995x then 0.99x market),
//     residual position is a warning
package main

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// liquidateSettleDelay is how long we let an IOC sell settle before
// re-checking the position. Var so tests can shrink it.
var liquidateSettleDelay = 3 * time.Second

var (
	firstSellDiscount  = decimal.NewFromFloat(0.995)
	secondSellDiscount = decimal.NewFromFloat(0.99)
)

// newClientID mints the per-submission idempotency key.
func newClientID() string { return uuid.New().String() }

// PlaceBuy quantizes price/quantity for the session asset, submits a limit
// GTC buy through the retry executor and feeds the result to the ledger.
// A response without an order id becomes OrderRejectedError.
func (s *Session) PlaceBuy(ctx context.Context, price, quantity decimal.Decimal) (*Order, error) {
	q := NewQuantizer(s.cfg.Snapshot())
	req := OrderRequest{
		Symbol:      s.symbol,
		Side:        SideBuy,
		Price:       q.Price(price, s.asset),
		Quantity:    q.Quantity(quantity, s.asset),
		TimeInForce: TifGTC,
		ClientID:    newClientID(),
	}
	if !req.Quantity.IsPositive() {
		return nil, &OrderRejectedError{Symbol: s.symbol, Message: "quantity is zero after quantization"}
	}

	order, err := withRetry(ctx, s.log, "submitOrder", defaultMaxAttempts, func(ctx context.Context) (*Order, error) {
		return s.ex.SubmitOrder(ctx, req)
	})
	if err != nil {
		mtxOrders.WithLabelValues(string(SideBuy), "rejected").Inc()
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, &OrderRejectedError{Symbol: s.symbol, Message: apiErr.Message}
		}
		return nil, err
	}
	if order == nil || order.ID == "" {
		mtxOrders.WithLabelValues(string(SideBuy), "rejected").Inc()
		return nil, &OrderRejectedError{Symbol: s.symbol, Message: "response carried no order id"}
	}
	mtxOrders.WithLabelValues(string(SideBuy), "placed").Inc()

	// Some responses report a fill status without the numeric fill fields;
	// back-fill from the request so the ledger sees consistent numbers.
	if order.HasFill() && order.FilledQuantity.IsZero() {
		order.FilledQuantity = req.Quantity
		order.FilledAmount = req.Price.Mul(req.Quantity)
	}
	s.ledger.RecordFill(order)

	s.log.Info("buy order placed",
		zap.String("symbol", s.symbol),
		zap.String("order_id", order.ID),
		zap.String("price", req.Price.String()),
		zap.String("quantity", req.Quantity.String()),
		zap.String("status", string(order.Status)))
	return order, nil
}

// CancelAll tears down every open buy order for the session symbol. It tries
// the batch endpoint once; on failure it lists open orders and cancels them
// one by one, logging per-order failures without aborting the loop. It never
// returns an error; the counts tell the story.
func (s *Session) CancelAll(ctx context.Context) (canceled, failed int) {
	if err := s.ex.CancelAllOrders(ctx, s.symbol); err == nil {
		s.log.Info("batch cancel succeeded", zap.String("symbol", s.symbol))
		return 0, 0
	} else {
		s.log.Warn("batch cancel failed, falling back to per-order cancellation",
			zap.String("symbol", s.symbol), zap.Error(err))
	}

	open, err := withRetry(ctx, s.log, "getOpenOrders", defaultMaxAttempts, func(ctx context.Context) ([]Order, error) {
		return s.ex.GetOpenOrders(ctx, s.symbol)
	})
	if err != nil {
		s.log.Warn("open-order listing failed during teardown", zap.Error(err))
		return 0, 0
	}
	for i := range open {
		o := &open[i]
		if o.Side != SideBuy {
			continue
		}
		if err := s.ex.CancelOrder(ctx, s.symbol, o.ID); err != nil {
			failed++
			s.log.Warn("cancel failed", zap.String("order_id", o.ID), zap.Error(err))
			continue
		}
		canceled++
	}
	s.log.Info("per-order teardown finished",
		zap.String("symbol", s.symbol), zap.Int("canceled", canceled), zap.Int("failed", failed))
	return canceled, failed
}

// Liquidate sells the session asset's position: an IOC limit at 0.995x the
// market, a settle pause, then one more IOC at 0.99x for any remainder. A
// residual position after both attempts comes back as
// LiquidationIncompleteError, which callers treat as a warning.
func (s *Session) Liquidate(ctx context.Context) error {
	qty, err := s.positionQuantity(ctx)
	if err != nil {
		return err
	}
	if !qty.IsPositive() {
		mtxLiquidations.WithLabelValues("noop").Inc()
		s.log.Info("no position to liquidate", zap.String("asset", s.asset))
		return nil
	}

	if err := s.sellIOC(ctx, qty, firstSellDiscount); err != nil {
		return err
	}

	if err := sleepCtx(ctx, liquidateSettleDelay); err != nil {
		return err
	}

	remaining, err := s.positionQuantity(ctx)
	if err != nil {
		return err
	}
	if !remaining.IsPositive() {
		mtxLiquidations.WithLabelValues("complete").Inc()
		s.log.Info("position liquidated", zap.String("asset", s.asset), zap.String("quantity", qty.String()))
		return nil
	}

	s.log.Info("residual position after first sell, re-quoting lower",
		zap.String("asset", s.asset), zap.String("remaining", remaining.String()))
	if err := s.sellIOC(ctx, remaining, secondSellDiscount); err != nil {
		return err
	}

	if err := sleepCtx(ctx, liquidateSettleDelay); err != nil {
		return err
	}
	remaining, err = s.positionQuantity(ctx)
	if err == nil && remaining.IsPositive() {
		mtxLiquidations.WithLabelValues("partial").Inc()
		return &LiquidationIncompleteError{Symbol: s.symbol, Remaining: remaining}
	}
	mtxLiquidations.WithLabelValues("complete").Inc()
	return nil
}

// positionQuantity reads the asset's available balance, quantized down. A
// holding below the instrument minimum counts as no position.
func (s *Session) positionQuantity(ctx context.Context) (decimal.Decimal, error) {
	balances, err := withRetry(ctx, s.log, "getBalances", defaultMaxAttempts, func(ctx context.Context) (map[string]Balance, error) {
		return s.ex.GetBalances(ctx)
	})
	if err != nil {
		return decimal.Zero, err
	}
	q := NewQuantizer(s.cfg.Snapshot())
	qty := q.Quantity(balances[s.asset].Available, s.asset)
	if qty.LessThan(q.MinQuantity(s.asset)) {
		return decimal.Zero, nil
	}
	return qty, nil
}

// sellIOC quotes an immediate-or-cancel limit sell at discount·lastPrice.
func (s *Session) sellIOC(ctx context.Context, qty, discount decimal.Decimal) error {
	ticker, err := withRetry(ctx, s.log, "getTicker", defaultMaxAttempts, func(ctx context.Context) (Ticker, error) {
		return s.ex.GetTicker(ctx, s.symbol)
	})
	if err != nil {
		return err
	}
	q := NewQuantizer(s.cfg.Snapshot())
	req := OrderRequest{
		Symbol:      s.symbol,
		Side:        SideSell,
		Price:       q.Price(ticker.LastPrice.Mul(discount), s.asset),
		Quantity:    q.Quantity(qty, s.asset),
		TimeInForce: TifIOC,
		ClientID:    newClientID(),
	}
	order, err := withRetry(ctx, s.log, "submitOrder", defaultMaxAttempts, func(ctx context.Context) (*Order, error) {
		return s.ex.SubmitOrder(ctx, req)
	})
	if err != nil {
		mtxOrders.WithLabelValues(string(SideSell), "rejected").Inc()
		return err
	}
	mtxOrders.WithLabelValues(string(SideSell), "placed").Inc()
	s.log.Info("IOC sell submitted",
		zap.String("order_id", order.ID),
		zap.String("price", req.Price.String()),
		zap.String("quantity", req.Quantity.String()),
		zap.String("status", string(order.Status)))
	return nil
}

// replaceBuy re-quotes a stale resting buy: cancel it, then place the same
// quantity at the new price. The cancel must succeed before the new order
// goes out so the budget is never double-committed.
func (s *Session) replaceBuy(ctx context.Context, stale *Order, newPrice decimal.Decimal) error {
	if err := s.ex.CancelOrder(ctx, s.symbol, stale.ID); err != nil {
		return err
	}
	_, err := s.PlaceBuy(ctx, newPrice, stale.Quantity)
	return err
}

// sleepCtx is a context-aware bounded sleep.
func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
