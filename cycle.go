// FILE: cycle.go
// Package main – One trading cycle: prepare, plan, submit, monitor.
//
// A Session carries the shared collaborators (config store, exchange, cycle
// ledger, logger) through the planner, the lifecycle operations and the
// monitor; there is no process-wide singleton state.
//
// RunCycle:
//   1. startup actions from config (cancel leftovers, sell non-USDC dust)
//   2. plan the ladder off the live price
//   3. submit rung by rung with pacing; insufficient funds aborts the rest
//   4. hand off to the take-profit monitor until a terminal outcome
package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// interOrderPacing spaces ladder submissions so the exchange rate limiter
// never sees a burst. Var so tests can shrink it.
var interOrderPacing = 500 * time.Millisecond

const quoteAsset = "USDC"

// Session is the explicit context threaded through one trading cycle.
type Session struct {
	cfg    *ConfigStore
	ex     Exchange
	ledger *FillLedger
	log    *zap.Logger

	symbol     string
	asset      string
	cycleStart time.Time
}

// NewSession wires a session for the configured trading pair.
func NewSession(cfg *ConfigStore, ex Exchange, log *zap.Logger) *Session {
	c := cfg.Config()
	return &Session{
		cfg:    cfg,
		ex:     ex,
		log:    log,
		symbol: c.Symbol(),
		asset:  c.Trading.TradingCoin,
		ledger: NewFillLedger(0, log),
	}
}

// CycleOutcome is how a cycle ended.
type CycleOutcome string

const (
	CycleProfit   CycleOutcome = "profit"
	CycleRestart  CycleOutcome = "restart"
	CycleCanceled CycleOutcome = "canceled"
)

// RunCycle executes one full plan→submit→monitor cycle.
func (s *Session) RunCycle(ctx context.Context) (CycleOutcome, error) {
	if err := s.cfg.Reload(); err != nil {
		s.log.Warn("config reload failed at cycle start, keeping previous snapshot", zap.Error(err))
	}
	cfg := s.cfg.Config()

	// Startup actions stand in for the interactive prompts.
	if cfg.Actions.CancelAllOrders {
		s.CancelAll(ctx)
	}
	if cfg.Actions.SellNonUsdcAssets {
		s.sellNonUsdcAssets(ctx)
	}

	ticker, err := withRetry(ctx, s.log, "getTicker", defaultMaxAttempts, func(ctx context.Context) (Ticker, error) {
		return s.ex.GetTicker(ctx, s.symbol)
	})
	if err != nil {
		return "", fmt.Errorf("cycle start price: %w", err)
	}
	gaugeLastPrice.Set(floatOf(ticker.LastPrice))

	snap := s.cfg.Snapshot()
	ladder, err := PlanLadder(PlanRequest{
		Symbol:              s.symbol,
		Asset:               s.asset,
		CurrentPrice:        ticker.LastPrice,
		MaxDropPercentage:   cfg.Trading.MaxDropPercentage,
		TotalAmount:         decimal.NewFromFloat(cfg.Trading.TotalAmount),
		OrderCount:          cfg.Trading.OrderCount,
		IncrementPercentage: cfg.Trading.IncrementPercentage,
		MinOrderAmount:      snap.MinOrderAmount,
	}, NewQuantizer(snap))
	if err != nil {
		return "", err
	}
	s.log.Info("ladder planned",
		zap.String("symbol", s.symbol),
		zap.String("current_price", ticker.LastPrice.String()),
		zap.Int("orders", len(ladder)),
		zap.String("spend", LadderSpend(ladder).String()))

	// Fresh ledger and cycle clock before the first submission so every fill
	// this cycle reconciles against the right cutoff.
	s.ledger = NewFillLedger(len(ladder), s.log)
	s.cycleStart = time.Now().Add(-time.Second)

	placed := s.submitLadder(ctx, ladder)
	if ctx.Err() != nil {
		return CycleCanceled, ctx.Err()
	}
	if placed == 0 {
		mtxCycles.WithLabelValues("abort").Inc()
		return "", fmt.Errorf("no ladder order was accepted for %s", s.symbol)
	}
	s.log.Info("ladder submitted", zap.Int("placed", placed), zap.Int("planned", len(ladder)))

	outcome, err := NewMonitor(s).Run(ctx)
	switch outcome {
	case OutcomeProfitTaken:
		mtxCycles.WithLabelValues("profit").Inc()
		return CycleProfit, nil
	case OutcomeRestart:
		mtxCycles.WithLabelValues("restart").Inc()
		return CycleRestart, nil
	default:
		return CycleCanceled, err
	}
}

// submitLadder places the planned rungs in order with pacing between them.
// A single rejected rung is skipped; an insufficient-funds rejection abandons
// everything still unsubmitted. Returns how many orders were accepted.
func (s *Session) submitLadder(ctx context.Context, ladder []PlannedOrder) int {
	placed := 0
	for i, rung := range ladder {
		if i > 0 {
			if err := sleepCtx(ctx, interOrderPacing); err != nil {
				return placed
			}
		}
		_, err := s.PlaceBuy(ctx, rung.Price, rung.Quantity)
		if err == nil {
			placed++
			continue
		}
		var rejected *OrderRejectedError
		if errors.As(err, &rejected) && rejected.InsufficientFunds() {
			s.log.Warn("insufficient funds, abandoning remaining rungs",
				zap.Int("placed", placed), zap.Int("remaining", len(ladder)-i-1))
			return placed
		}
		// A single failed rung does not abort the ladder.
		s.log.Warn("rung submission failed, continuing",
			zap.Int("rung", i), zap.String("price", rung.Price.String()), zap.Error(err))
	}
	return placed
}

// LedgerState exposes the cycle ledger read-only for display.
func (s *Session) LedgerState() LedgerSnapshot { return s.ledger.Snapshot() }

// sellNonUsdcAssets liquidates stray non-USDC holdings worth at least
// advanced.sellNonUsdcMinValue into USDC before a cycle starts. Best-effort:
// a failed asset is logged and skipped.
func (s *Session) sellNonUsdcAssets(ctx context.Context) {
	cfg := s.cfg.Config()
	minValue := decimal.NewFromFloat(cfg.Advanced.SellNonUsdcMinValue)

	balances, err := withRetry(ctx, s.log, "getBalances", defaultMaxAttempts, func(ctx context.Context) (map[string]Balance, error) {
		return s.ex.GetBalances(ctx)
	})
	if err != nil {
		s.log.Warn("balance query failed, skipping dust sweep", zap.Error(err))
		return
	}

	q := NewQuantizer(s.cfg.Snapshot())
	for asset, bal := range balances {
		if asset == quoteAsset || !bal.Available.IsPositive() {
			continue
		}
		symbol := asset + "_" + quoteAsset
		ticker, err := s.ex.GetTicker(ctx, symbol)
		if err != nil {
			s.log.Debug("no ticker for dust asset, skipping",
				zap.String("asset", asset), zap.Error(err))
			continue
		}
		value := bal.Available.Mul(ticker.LastPrice)
		if value.LessThan(minValue) {
			continue
		}
		qty := q.Quantity(bal.Available, asset)
		if !qty.IsPositive() || qty.LessThan(q.MinQuantity(asset)) {
			continue
		}
		req := OrderRequest{
			Symbol:      symbol,
			Side:        SideSell,
			Price:       q.Price(ticker.LastPrice.Mul(firstSellDiscount), asset),
			Quantity:    qty,
			TimeInForce: TifIOC,
			ClientID:    newClientID(),
		}
		if _, err := s.ex.SubmitOrder(ctx, req); err != nil {
			s.log.Warn("dust sell failed",
				zap.String("asset", asset), zap.String("value", value.StringFixed(2)), zap.Error(err))
			continue
		}
		s.log.Info("dust asset sold",
			zap.String("asset", asset),
			zap.String("quantity", qty.String()),
			zap.String("value", value.StringFixed(2)))
	}
}
