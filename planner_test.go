package main

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func planReq() PlanRequest {
	return PlanRequest{
		Symbol:              "SOL_USDC",
		Asset:               "SOL",
		CurrentPrice:        dec("100"),
		MaxDropPercentage:   10,
		TotalAmount:         dec("1000"),
		OrderCount:          5,
		IncrementPercentage: 10,
		MinOrderAmount:      dec("10"),
	}
}

func TestPlanLadderReferenceExample(t *testing.T) {
	q := NewQuantizer(testSnapshot(t))
	ladder, err := PlanLadder(planReq(), q)
	require.NoError(t, err)
	require.Len(t, ladder, 5)

	for i, o := range ladder {
		assert.True(t, o.Price.GreaterThanOrEqual(dec("90")), "order %d price %s below floor", i, o.Price)
		assert.True(t, o.Price.LessThanOrEqual(dec("100")), "order %d price %s above market", i, o.Price)
		assert.True(t, o.Amount.GreaterThanOrEqual(dec("10")), "order %d amount %s below minimum", i, o.Amount)
		if i > 0 {
			assert.True(t, o.Price.LessThan(ladder[i-1].Price),
				"prices not strictly decreasing at %d: %s >= %s", i, o.Price, ladder[i-1].Price)
		}
	}
	assert.True(t, LadderSpend(ladder).LessThanOrEqual(dec("1000")),
		"spend %s exceeds budget", LadderSpend(ladder))
}

func TestPlanLadderAmountsGrowDownTheLadder(t *testing.T) {
	q := NewQuantizer(testSnapshot(t))
	ladder, err := PlanLadder(planReq(), q)
	require.NoError(t, err)

	// 10% increment: each rung spends more than the one above it.
	for i := 1; i < len(ladder); i++ {
		assert.True(t, ladder[i].Amount.GreaterThan(ladder[i-1].Amount),
			"amount did not grow at rung %d: %s <= %s", i, ladder[i].Amount, ladder[i-1].Amount)
	}
}

func TestPlanLadderClampRescalesUnderBudget(t *testing.T) {
	q := NewQuantizer(testSnapshot(t))
	req := planReq()
	// Base amount for 60/5 orders would be ~9.8 < min 10; the clamp kicks in
	// and the rescale must keep spend under budget.
	req.TotalAmount = dec("60")
	req.MinOrderAmount = dec("10")
	ladder, err := PlanLadder(req, q)
	require.NoError(t, err)
	require.NotEmpty(t, ladder)
	assert.True(t, LadderSpend(ladder).LessThanOrEqual(dec("60")),
		"spend %s exceeds budget after clamp rescale", LadderSpend(ladder))
}

func TestPlanLadderZeroIncrementSplitsEvenly(t *testing.T) {
	q := NewQuantizer(testSnapshot(t))
	req := planReq()
	req.IncrementPercentage = 0
	ladder, err := PlanLadder(req, q)
	require.NoError(t, err)
	require.Len(t, ladder, 5)
	for i := 1; i < len(ladder); i++ {
		diff := ladder[i].Amount.Sub(ladder[0].Amount).Abs()
		assert.True(t, diff.LessThan(dec("5")), "rung %d amount far from even split", i)
	}
}

func TestPlanLadderEmptyLadderFails(t *testing.T) {
	q := NewQuantizer(testSnapshot(t))
	req := planReq()
	// Budget so small every rung falls under the minimum.
	req.TotalAmount = dec("5")
	req.MinOrderAmount = dec("10")
	// The clamp forces every raw amount to >= 10, the rescale shrinks them
	// back under 5 total, and then nothing survives the minimum filter.
	_, err := PlanLadder(req, q)
	var perr *PlanningError
	require.ErrorAs(t, err, &perr)
}

func TestPlanLadderRejectsBadInputs(t *testing.T) {
	q := NewQuantizer(testSnapshot(t))
	var perr *PlanningError

	req := planReq()
	req.OrderCount = 1
	_, err := PlanLadder(req, q)
	require.ErrorAs(t, err, &perr)

	req = planReq()
	req.CurrentPrice = decimal.Zero
	_, err = PlanLadder(req, q)
	require.ErrorAs(t, err, &perr)

	req = planReq()
	req.MaxDropPercentage = 100
	_, err = PlanLadder(req, q)
	require.ErrorAs(t, err, &perr)
}

func TestPlanLadderIntegerPricedAsset(t *testing.T) {
	q := NewQuantizer(testSnapshot(t))
	req := PlanRequest{
		Symbol:              "BTC_USDC",
		Asset:               "BTC",
		CurrentPrice:        dec("60000"),
		MaxDropPercentage:   5,
		TotalAmount:         dec("5000"),
		OrderCount:          4,
		IncrementPercentage: 20,
		MinOrderAmount:      dec("10"),
	}
	ladder, err := PlanLadder(req, q)
	require.NoError(t, err)
	for i, o := range ladder {
		assert.True(t, o.Price.Equal(o.Price.Floor()), "order %d BTC price %s not whole", i, o.Price)
		assert.GreaterOrEqual(t, o.Quantity.Exponent(), int32(-5), "order %d qty %s too precise", i, o.Quantity)
	}
	assert.True(t, LadderSpend(ladder).LessThanOrEqual(dec("5000")))
}
