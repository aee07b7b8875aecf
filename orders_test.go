package main

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestSession wires a session against the paper exchange with the default
// SOL_USDC profile and a funded quote balance.
func newTestSession(t *testing.T) (*Session, *PaperExchange) {
	t.Helper()
	p := NewPaperExchange()
	p.SetPrice("SOL_USDC", dec("100"))
	p.SetBalance("USDC", dec("10000"))
	s := NewSession(newStaticStore(defaultConfig()), p, zap.NewNop())
	s.cycleStart = time.Now().Add(-time.Minute)
	return s, p
}

func shrinkDelays(t *testing.T) {
	t.Helper()
	oldSettle, oldPacing := liquidateSettleDelay, interOrderPacing
	liquidateSettleDelay = 5 * time.Millisecond
	interOrderPacing = time.Millisecond
	t.Cleanup(func() {
		liquidateSettleDelay = oldSettle
		interOrderPacing = oldPacing
	})
}

func TestPlaceBuyQuantizesAndRests(t *testing.T) {
	s, p := newTestSession(t)

	order, err := s.PlaceBuy(context.Background(), dec("99.999"), dec("1.23456"))
	require.NoError(t, err)
	require.NotEmpty(t, order.ID)
	assert.NotEmpty(t, order.ClientID)
	assert.Equal(t, StatusNew, order.Status)

	open, err := p.GetOpenOrders(context.Background(), "SOL_USDC")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.True(t, open[0].Price.Equal(dec("99.99")), "price %s not floored to tick", open[0].Price)
	assert.True(t, open[0].Quantity.Equal(dec("1.23")), "quantity %s not truncated", open[0].Quantity)

	// A resting order has no fill to record.
	assert.False(t, s.ledger.HasFills())
}

func TestPlaceBuyRejectsZeroQuantity(t *testing.T) {
	s, _ := newTestSession(t)
	_, err := s.PlaceBuy(context.Background(), dec("100"), dec("0.001"))
	var rejected *OrderRejectedError
	require.ErrorAs(t, err, &rejected)
}

func TestPlaceBuyInsufficientFundsRejection(t *testing.T) {
	s, p := newTestSession(t)
	p.FailNextSubmits(defaultMaxAttempts, "Insufficient balance for order")

	_, err := s.PlaceBuy(context.Background(), dec("100"), dec("1"))
	var rejected *OrderRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.True(t, rejected.InsufficientFunds())
}

func TestCancelAllBatch(t *testing.T) {
	s, p := newTestSession(t)
	_, err := s.PlaceBuy(context.Background(), dec("99"), dec("1"))
	require.NoError(t, err)

	canceled, failed := s.CancelAll(context.Background())
	assert.Equal(t, 0, canceled)
	assert.Equal(t, 0, failed)

	open, err := p.GetOpenOrders(context.Background(), "SOL_USDC")
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestCancelAllFallsBackPerOrder(t *testing.T) {
	s, p := newTestSession(t)
	_, err := s.PlaceBuy(context.Background(), dec("99"), dec("1"))
	require.NoError(t, err)
	_, err = s.PlaceBuy(context.Background(), dec("98"), dec("1"))
	require.NoError(t, err)

	p.FailBatchCancel(true)
	p.FailNextCancels(1)

	canceled, failed := s.CancelAll(context.Background())
	assert.Equal(t, 1, canceled)
	assert.Equal(t, 1, failed)
}

func TestLiquidateFullPosition(t *testing.T) {
	shrinkDelays(t)
	s, p := newTestSession(t)
	p.SetBalance("SOL", dec("5"))

	require.NoError(t, s.Liquidate(context.Background()))

	balances, err := p.GetBalances(context.Background())
	require.NoError(t, err)
	assert.True(t, balances["SOL"].Available.IsZero(), "SOL left: %s", balances["SOL"].Available)
	// 5 × (100 × 0.995) on top of the 10000 float.
	assert.True(t, balances["USDC"].Available.Equal(dec("10497.5")), "USDC: %s", balances["USDC"].Available)
}

func TestLiquidateNoPositionIsNoop(t *testing.T) {
	shrinkDelays(t)
	s, p := newTestSession(t)
	p.SetBalance("SOL", dec("0.001")) // below the instrument minimum

	require.NoError(t, s.Liquidate(context.Background()))

	history, err := p.GetOrderHistory(context.Background(), "SOL_USDC")
	require.NoError(t, err)
	assert.Empty(t, history, "no sell should have been quoted")
}

func TestLiquidateResidualPosition(t *testing.T) {
	shrinkDelays(t)
	s, p := newTestSession(t)
	p.SetBalance("SOL", dec("4"))
	p.SetIOCFillRatio(decimal.NewFromFloat(0.5))

	err := s.Liquidate(context.Background())
	var incomplete *LiquidationIncompleteError
	require.ErrorAs(t, err, &incomplete)
	// First IOC fills 2 of 4, second fills 1 of the remaining 2.
	assert.True(t, incomplete.Remaining.Equal(dec("1")), "remaining %s", incomplete.Remaining)
}

func TestReplaceBuyCancelBeforePlace(t *testing.T) {
	s, p := newTestSession(t)
	stale, err := s.PlaceBuy(context.Background(), dec("90"), dec("1"))
	require.NoError(t, err)

	require.NoError(t, s.replaceBuy(context.Background(), stale, dec("99")))

	open, err := p.GetOpenOrders(context.Background(), "SOL_USDC")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.True(t, open[0].Price.Equal(dec("99")))
	assert.True(t, open[0].Quantity.Equal(dec("1")))
	assert.NotEqual(t, stale.ID, open[0].ID)
}

func TestReplaceBuyKeepsStaleWhenCancelFails(t *testing.T) {
	s, p := newTestSession(t)
	stale, err := s.PlaceBuy(context.Background(), dec("90"), dec("1"))
	require.NoError(t, err)

	p.FailNextCancels(1)
	require.Error(t, s.replaceBuy(context.Background(), stale, dec("99")))

	open, err := p.GetOpenOrders(context.Background(), "SOL_USDC")
	require.NoError(t, err)
	require.Len(t, open, 1, "stale order must survive a failed cancel")
	assert.Equal(t, stale.ID, open[0].ID)
}
