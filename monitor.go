// FILE: monitor.go
// Package main – Take-profit monitoring state machine.
//
// One Monitor runs per trading cycle. The loop, every monitorIntervalSeconds:
//   1. reconcile the fill ledger against order history since cycle start
//   2. no-fill auto-restart once the configured idle window elapses
//   3. on a coarser cadence, re-quote resting buys that drifted >1% below
//      market (replace only when the re-quote gains >2%, to avoid churn)
//   4. evaluate take-profit against the VWAP entry and liquidate on trigger
//
// The monitor never crashes the process: a failed liquidation retries next
// pass, a failed history query falls back to the last known ledger state,
// and any unexpected iteration error just backs off for a cooldown.
package main

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MonitorOutcome is the terminal state of one monitoring session.
type MonitorOutcome string

const (
	OutcomeProfitTaken MonitorOutcome = "profitTaken"
	OutcomeRestart     MonitorOutcome = "restart"
	OutcomeCanceled    MonitorOutcome = "canceled"
)

// monitorState is the live phase, for logging and display.
type monitorState string

const (
	stateMonitoring  monitorState = "Monitoring"
	stateLiquidating monitorState = "Liquidating"
)

const monitorErrorCooldown = 60 * time.Second

var (
	staleBelowMarket = decimal.NewFromFloat(0.99) // resting buy >1% under market is stale
	requoteDiscount  = decimal.NewFromFloat(0.99) // candidate price: 0.99x market
	requoteMinGain   = decimal.NewFromFloat(1.02) // replace only for a >2% improvement
)

// Monitor owns the session state for one cycle's take-profit watch.
type Monitor struct {
	s *Session

	state          monitorState
	startTime      time.Time
	attempts       int
	lastOrderCheck time.Time
	hadFills       bool
}

// NewMonitor prepares a monitor for the session's current cycle.
func NewMonitor(s *Session) *Monitor {
	return &Monitor{s: s, state: stateMonitoring, startTime: time.Now()}
}

// SessionStats exposes read-only monitor counters for display.
type SessionStats struct {
	StartTime          time.Time
	MonitoringAttempts int
	LastOrderCheckTime time.Time
	HadFilledOrders    bool
}

// Stats returns the current session counters.
func (m *Monitor) Stats() SessionStats {
	return SessionStats{
		StartTime:          m.startTime,
		MonitoringAttempts: m.attempts,
		LastOrderCheckTime: m.lastOrderCheck,
		HadFilledOrders:    m.hadFills,
	}
}

// Run drives the loop until a terminal state or context cancellation.
func (m *Monitor) Run(ctx context.Context) (MonitorOutcome, error) {
	cfg := m.s.cfg.Config()
	interval := time.Duration(cfg.MonitorInterval()) * time.Second
	m.s.log.Info("monitoring started",
		zap.String("symbol", m.s.symbol),
		zap.Duration("interval", interval),
		zap.Float64("take_profit_pct", cfg.Trading.TakeProfitPercentage))

	for {
		select {
		case <-ctx.Done():
			return OutcomeCanceled, ctx.Err()
		default:
		}

		outcome, done, err := m.iterate(ctx)
		if done {
			return outcome, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return OutcomeCanceled, ctx.Err()
			}
			m.s.log.Error("monitor iteration failed, cooling down",
				zap.Error(err), zap.Duration("cooldown", monitorErrorCooldown))
			if err := sleepCtx(ctx, monitorErrorCooldown); err != nil {
				return OutcomeCanceled, err
			}
			continue
		}

		// Hot-reload config between iterations; calculations only ever see
		// the snapshot they started with.
		if err := m.s.cfg.Reload(); err != nil {
			m.s.log.Warn("config reload failed, keeping previous snapshot", zap.Error(err))
		}
		if err := sleepCtx(ctx, interval); err != nil {
			return OutcomeCanceled, err
		}
	}
}

// iterate runs one monitoring pass. done=true carries a terminal outcome.
func (m *Monitor) iterate(ctx context.Context) (MonitorOutcome, bool, error) {
	m.attempts++
	mtxMonitorIterations.Inc()
	cfg := m.s.cfg.Config()

	// 1. Reconcile fills since cycle start. A failed history query is not
	// fatal: the last known ledger state stands for this pass.
	if err := m.reconcile(ctx); err != nil {
		m.s.log.Warn("reconciliation unavailable, using last known ledger state", zap.Error(err))
	}
	if m.s.ledger.HasFills() {
		m.hadFills = true
	}

	// 2. No-fill auto-restart.
	if cfg.Actions.AutoRestartNoFill && !m.hadFills {
		idle := time.Since(m.startTime)
		threshold := time.Duration(cfg.Advanced.NoFillRestartMinutes) * time.Minute
		if threshold > 0 && idle >= threshold {
			m.s.log.Info("no fills within restart window, canceling ladder",
				zap.Duration("idle", idle), zap.Duration("threshold", threshold))
			m.s.CancelAll(ctx)
			return OutcomeRestart, true, nil
		}
	}

	ticker, err := withRetry(ctx, m.s.log, "getTicker", defaultMaxAttempts, func(ctx context.Context) (Ticker, error) {
		return m.s.ex.GetTicker(ctx, m.s.symbol)
	})
	if err != nil {
		return "", false, err
	}
	current := ticker.LastPrice
	gaugeLastPrice.Set(floatOf(current))

	// 3. Stale-order sweep on the coarser cadence.
	checkEvery := time.Duration(cfg.CheckOrdersInterval()) * time.Minute
	if time.Since(m.lastOrderCheck) >= checkEvery {
		m.lastOrderCheck = time.Now()
		if err := m.requoteStale(ctx, current); err != nil {
			m.s.log.Warn("stale-order sweep failed", zap.Error(err))
		}
	}

	// 4. Take-profit evaluation. The average needs at least one fill; try a
	// reconcile on demand before giving up for this pass.
	avg, ok := m.s.ledger.AveragePrice()
	if !ok {
		if err := m.reconcile(ctx); err == nil {
			avg, ok = m.s.ledger.AveragePrice()
		}
	}
	if !ok || !avg.IsPositive() {
		m.s.log.Debug("no average price yet", zap.Int("attempt", m.attempts))
		return "", false, nil
	}

	increase := current.Sub(avg).Div(avg).Mul(hundred)
	target := decimal.NewFromFloat(cfg.Trading.TakeProfitPercentage)
	m.s.log.Info("take-profit check",
		zap.String("avg_price", avg.StringFixed(4)),
		zap.String("last_price", current.String()),
		zap.String("increase_pct", increase.StringFixed(2)),
		zap.String("target_pct", target.String()))
	if increase.LessThan(target) {
		return "", false, nil
	}

	// 5. Trigger: liquidate. Failure returns to Monitoring after a short
	// delay rather than aborting the cycle.
	m.state = stateLiquidating
	m.s.log.Info("take-profit reached, liquidating",
		zap.String("increase_pct", increase.StringFixed(2)))
	if err := m.s.Liquidate(ctx); err != nil {
		var incomplete *LiquidationIncompleteError
		if errors.As(err, &incomplete) {
			m.s.log.Warn("liquidation left a residual position",
				zap.String("remaining", incomplete.Remaining.String()))
			return OutcomeProfitTaken, true, nil
		}
		m.state = stateMonitoring
		m.s.log.Error("liquidation failed, will retry from monitoring", zap.Error(err))
		if err := sleepCtx(ctx, 5*time.Second); err != nil {
			return "", false, err
		}
		return "", false, nil
	}
	return OutcomeProfitTaken, true, nil
}

// reconcile pulls order history and folds fills since cycle start into the
// ledger. Errors are normalized to ErrReconciliationUnavailable.
func (m *Monitor) reconcile(ctx context.Context) error {
	history, err := withRetry(ctx, m.s.log, "getOrderHistory", defaultMaxAttempts, func(ctx context.Context) ([]Order, error) {
		return m.s.ex.GetOrderHistory(ctx, m.s.symbol)
	})
	if err != nil {
		return ErrReconciliationUnavailable
	}
	m.s.ledger.Reconcile(history, m.s.cycleStart)
	return nil
}

// requoteStale replaces resting buys that drifted too far under the market.
func (m *Monitor) requoteStale(ctx context.Context, current decimal.Decimal) error {
	open, err := withRetry(ctx, m.s.log, "getOpenOrders", defaultMaxAttempts, func(ctx context.Context) ([]Order, error) {
		return m.s.ex.GetOpenOrders(ctx, m.s.symbol)
	})
	if err != nil {
		return err
	}

	staleLine := current.Mul(staleBelowMarket)
	candidate := current.Mul(requoteDiscount)
	for i := range open {
		o := &open[i]
		if o.Side != SideBuy || o.Price.GreaterThanOrEqual(staleLine) {
			continue
		}
		// A replacement has to buy a meaningfully better queue position;
		// anything under 2% is churn.
		if candidate.LessThanOrEqual(o.Price.Mul(requoteMinGain)) {
			continue
		}
		m.s.log.Info("re-quoting stale buy",
			zap.String("order_id", o.ID),
			zap.String("old_price", o.Price.String()),
			zap.String("new_price", candidate.StringFixed(4)))
		if err := m.s.replaceBuy(ctx, o, candidate); err != nil {
			m.s.log.Warn("re-quote failed", zap.String("order_id", o.ID), zap.Error(err))
		}
	}
	return nil
}
