package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func filledOrder(id, price, qty string) *Order {
	p, q := dec(price), dec(qty)
	return &Order{
		ID:             id,
		Symbol:         "SOL_USDC",
		Side:           SideBuy,
		Status:         StatusFilled,
		Price:          p,
		Quantity:       q,
		FilledQuantity: q,
		FilledAmount:   p.Mul(q),
		CreateTime:     time.Now(),
	}
}

func TestRecordFillCountsEachOrderOnce(t *testing.T) {
	l := NewFillLedger(5, zap.NewNop())

	o := filledOrder("42", "100", "1")
	assert.True(t, l.RecordFill(o))
	assert.False(t, l.RecordFill(o), "second observation of the same id must be a no-op")

	snap := l.Snapshot()
	assert.Equal(t, 1, snap.FilledOrders)
	assert.True(t, snap.TotalFilledQuantity.Equal(dec("1")))
	assert.True(t, snap.TotalFilledAmount.Equal(dec("100")))
	assert.True(t, snap.AveragePrice.Equal(dec("100")))
}

func TestRecordFillIgnoresUnfillable(t *testing.T) {
	l := NewFillLedger(5, zap.NewNop())

	assert.False(t, l.RecordFill(nil))

	noID := filledOrder("", "100", "1")
	assert.False(t, l.RecordFill(noID))

	open := filledOrder("7", "100", "1")
	open.Status = StatusNew
	open.FilledQuantity = dec("0")
	open.FilledAmount = dec("0")
	assert.False(t, l.RecordFill(open))

	assert.False(t, l.HasFills())
}

func TestAveragePriceIsVolumeWeighted(t *testing.T) {
	l := NewFillLedger(5, zap.NewNop())
	require.True(t, l.RecordFill(filledOrder("a", "100", "1")))
	require.True(t, l.RecordFill(filledOrder("b", "90", "3")))

	avg, ok := l.AveragePrice()
	require.True(t, ok)
	// (100·1 + 90·3) / 4 = 92.5
	assert.True(t, avg.Equal(dec("92.5")), "got %s", avg)

	// avg × total quantity reconstructs the total amount spent.
	snap := l.Snapshot()
	assert.True(t, avg.Mul(snap.TotalFilledQuantity).Equal(snap.TotalFilledAmount))
}

func TestAveragePriceUndefinedWithoutFills(t *testing.T) {
	l := NewFillLedger(5, zap.NewNop())
	_, ok := l.AveragePrice()
	assert.False(t, ok)
}

func TestReconcileFiltersSideAndCutoff(t *testing.T) {
	l := NewFillLedger(3, zap.NewNop())
	cutoff := time.Now().Add(-time.Minute)

	buy := *filledOrder("b1", "100", "2")

	sell := *filledOrder("s1", "110", "2")
	sell.Side = SideSell

	stale := *filledOrder("old", "95", "2")
	stale.CreateTime = cutoff.Add(-time.Hour)

	unfilled := *filledOrder("open", "90", "2")
	unfilled.Status = StatusNew
	unfilled.FilledQuantity = dec("0")
	unfilled.FilledAmount = dec("0")

	any := l.Reconcile([]Order{sell, stale, unfilled, buy}, cutoff)
	assert.True(t, any)

	snap := l.Snapshot()
	assert.Equal(t, 1, snap.FilledOrders)
	assert.True(t, snap.TotalFilledQuantity.Equal(dec("2")))
	assert.True(t, snap.AveragePrice.Equal(dec("100")))
}

func TestReconcileReportsPresenceEvenWhenAlreadyCounted(t *testing.T) {
	l := NewFillLedger(3, zap.NewNop())
	cutoff := time.Now().Add(-time.Minute)
	buy := filledOrder("b1", "100", "2")
	require.True(t, l.RecordFill(buy))

	// Same order arriving again through history: no double count, but its
	// presence is still reported.
	any := l.Reconcile([]Order{*buy}, cutoff)
	assert.True(t, any)
	assert.Equal(t, 1, l.Snapshot().FilledOrders)

	assert.False(t, l.Reconcile(nil, cutoff))
}

func TestPartialFillCountsTowardAverage(t *testing.T) {
	l := NewFillLedger(2, zap.NewNop())
	o := filledOrder("p1", "100", "2")
	o.Status = StatusPartiallyFilled
	o.FilledQuantity = dec("0.5")
	o.FilledAmount = dec("50")
	require.True(t, l.RecordFill(o))

	snap := l.Snapshot()
	assert.Equal(t, 1, snap.FilledOrders)
	assert.True(t, snap.AveragePrice.Equal(dec("100")))
	assert.True(t, l.HasFills())
}
