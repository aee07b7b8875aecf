package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSubmitLadderPlacesEveryRung(t *testing.T) {
	shrinkDelays(t)
	s, p := newTestSession(t)
	ladder := []PlannedOrder{
		{Price: dec("99"), Quantity: dec("0.2"), Amount: dec("19.8")},
		{Price: dec("97"), Quantity: dec("0.25"), Amount: dec("24.25")},
		{Price: dec("95"), Quantity: dec("0.3"), Amount: dec("28.5")},
	}

	placed := s.submitLadder(context.Background(), ladder)
	assert.Equal(t, 3, placed)

	open, err := p.GetOpenOrders(context.Background(), "SOL_USDC")
	require.NoError(t, err)
	assert.Len(t, open, 3)
}

func TestSubmitLadderAbandonsOnInsufficientFunds(t *testing.T) {
	shrinkDelays(t)
	s, p := newTestSession(t)
	p.FailNextSubmits(defaultMaxAttempts, "Insufficient balance")
	ladder := []PlannedOrder{
		{Price: dec("99"), Quantity: dec("0.2")},
		{Price: dec("97"), Quantity: dec("0.25")},
		{Price: dec("95"), Quantity: dec("0.3")},
	}

	placed := s.submitLadder(context.Background(), ladder)
	assert.Equal(t, 0, placed)

	open, err := p.GetOpenOrders(context.Background(), "SOL_USDC")
	require.NoError(t, err)
	assert.Empty(t, open, "remaining rungs must not be submitted")
}

func TestSubmitLadderSkipsSingleRejectedRung(t *testing.T) {
	shrinkDelays(t)
	s, p := newTestSession(t)
	p.FailNextSubmits(defaultMaxAttempts, "Quantity decimal too long")
	ladder := []PlannedOrder{
		{Price: dec("99"), Quantity: dec("0.2")},
		{Price: dec("97"), Quantity: dec("0.25")},
	}

	placed := s.submitLadder(context.Background(), ladder)
	assert.Equal(t, 1, placed)
}

func TestRunCycleProfitEndToEnd(t *testing.T) {
	shrinkDelays(t)
	p := NewPaperExchange()
	p.SetPrice("SOL_USDC", dec("100"))
	p.SetBalance("USDC", dec("10000"))

	cfg := defaultConfig()
	cfg.Trading.TotalAmount = 100
	// Keep every rung within 1% of market so the stale-order sweep leaves
	// the ladder alone while the test fills it.
	cfg.Trading.MaxDropPercentage = 0.5
	cfg.Trading.TakeProfitPercentage = 2
	cfg.Advanced.MonitorIntervalSeconds = 1
	s := NewSession(newStaticStore(cfg), p, zap.NewNop())

	type result struct {
		outcome CycleOutcome
		err     error
	}
	done := make(chan result, 1)
	go func() {
		outcome, err := s.RunCycle(context.Background())
		done <- result{outcome, err}
	}()

	// Wait for the ladder, fill the whole thing, then push the price over
	// the take-profit target.
	require.Eventually(t, func() bool {
		open, err := p.GetOpenOrders(context.Background(), "SOL_USDC")
		return err == nil && len(open) == cfg.Trading.OrderCount
	}, 5*time.Second, 10*time.Millisecond, "ladder never appeared on the book")

	open, err := p.GetOpenOrders(context.Background(), "SOL_USDC")
	require.NoError(t, err)
	for _, o := range open {
		require.NoError(t, p.Fill(o.ID, o.Quantity))
	}
	p.SetPrice("SOL_USDC", dec("120"))

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, CycleProfit, r.outcome)
	case <-time.After(10 * time.Second):
		t.Fatal("cycle did not finish")
	}

	balances, err := p.GetBalances(context.Background())
	require.NoError(t, err)
	assert.True(t, balances["SOL"].Available.IsZero(), "position not flat: %s", balances["SOL"].Available)
}

func TestRunCycleFailsWhenNothingPlaced(t *testing.T) {
	shrinkDelays(t)
	p := NewPaperExchange()
	p.SetPrice("SOL_USDC", dec("100"))

	cfg := defaultConfig()
	cfg.Trading.OrderCount = 2
	cfg.Actions.CancelAllOrders = false
	s := NewSession(newStaticStore(cfg), p, zap.NewNop())
	p.FailNextSubmits(1000, "simulated outage")

	_, err := s.RunCycle(context.Background())
	require.Error(t, err)
}
