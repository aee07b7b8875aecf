// FILE: ledger.go
// Package main – Idempotent fill accounting for one trading cycle.
//
// The FillLedger is the only mutable state shared across planning, execution
// and monitoring. Every fill observation, whether from a submission response
// or from polled order history, funnels through RecordFill, which counts each
// order id AT MOST ONCE no matter how many times its status is observed. The
// volume-weighted average entry price falls out of the totals.
//
// A ledger lives exactly one cycle: created fresh before the ladder is
// submitted, discarded on restart, so the processed-id set stays bounded by
// the ladder size.
package main

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LedgerSnapshot is a read-only copy of the ledger state for display and
// decision-making.
type LedgerSnapshot struct {
	TotalOrders         int
	FilledOrders        int
	TotalFilledAmount   decimal.Decimal
	TotalFilledQuantity decimal.Decimal
	AveragePrice        decimal.Decimal
	LastUpdateTime      time.Time
}

// FillLedger accumulates fills idempotently by order id.
type FillLedger struct {
	mu          sync.Mutex
	totalOrders int
	filled      int
	totalAmount decimal.Decimal
	totalQty    decimal.Decimal
	avgPrice    decimal.Decimal
	lastUpdate  time.Time
	processed   map[string]struct{}
	log         *zap.Logger
}

// NewFillLedger starts a fresh cycle ledger expecting totalOrders rungs.
func NewFillLedger(totalOrders int, log *zap.Logger) *FillLedger {
	return &FillLedger{
		totalOrders: totalOrders,
		processed:   make(map[string]struct{}),
		log:         log,
	}
}

// RecordFill folds one observed order into the totals. Orders without a fill
// status, without an id, or already counted are ignored. Returns whether the
// order was newly counted.
func (l *FillLedger) RecordFill(o *Order) bool {
	if o == nil || o.ID == "" || !o.HasFill() {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, seen := l.processed[o.ID]; seen {
		return false
	}
	l.processed[o.ID] = struct{}{}

	// Absent numerics arrive as decimal zero values and count as 0.
	l.totalAmount = l.totalAmount.Add(o.FilledAmount)
	l.totalQty = l.totalQty.Add(o.FilledQuantity)
	if o.FilledQuantity.IsPositive() {
		l.filled++
	}
	if l.totalQty.IsPositive() {
		l.avgPrice = l.totalAmount.Div(l.totalQty)
	}
	l.lastUpdate = time.Now()

	mtxFills.Inc()
	gaugeAvgPrice.Set(floatOf(l.avgPrice))
	l.log.Info("fill recorded",
		zap.String("order_id", o.ID),
		zap.String("filled_qty", o.FilledQuantity.String()),
		zap.String("filled_amount", o.FilledAmount.String()),
		zap.String("avg_price", l.avgPrice.String()),
		zap.Int("filled_orders", l.filled))
	return true
}

// Reconcile folds a batch of historical orders into the ledger: buy-side,
// filled or partially filled, created at or after cutoff. Returns whether any
// such order exists at all (new or previously recorded); callers use this to
// decide whether the average price is trustworthy yet.
func (l *FillLedger) Reconcile(history []Order, cutoff time.Time) bool {
	any := false
	for i := range history {
		o := &history[i]
		if o.Side != SideBuy || !o.HasFill() || o.CreateTime.Before(cutoff) {
			continue
		}
		any = true
		l.RecordFill(o)
	}
	return any
}

// AveragePrice returns the volume-weighted entry price and whether it is
// defined (some quantity has filled).
func (l *FillLedger) AveragePrice() (decimal.Decimal, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.totalQty.IsPositive() {
		return decimal.Zero, false
	}
	return l.avgPrice, true
}

// HasFills reports whether anything has filled this cycle.
func (l *FillLedger) HasFills() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalQty.IsPositive()
}

// Snapshot copies the current state.
func (l *FillLedger) Snapshot() LedgerSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LedgerSnapshot{
		TotalOrders:         l.totalOrders,
		FilledOrders:        l.filled,
		TotalFilledAmount:   l.totalAmount,
		TotalFilledQuantity: l.totalQty,
		AveragePrice:        l.avgPrice,
		LastUpdateTime:      l.lastUpdate,
	}
}

func floatOf(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
