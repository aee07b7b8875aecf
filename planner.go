// FILE: planner.go
// Package main – Incremental buy-ladder planning.
//
// PlanLadder turns {current price, max drawdown %, budget, order count,
// increment %, minimum order amount} into an N-order ladder of limit buys
// below market:
//   • prices on a linear grid from currentPrice down to
//     currentPrice·(1 − maxDrop/100), quantized by precision
//   • amounts on a geometric series base·r^i so later (cheaper) orders buy
//     more, with the base solved so the series sums to the budget
//   • a uniform rescale whenever the minimum-amount clamp pushes the raw
//     series above the budget
//
// Guarantees: realized total spend ≤ the requested budget, prices strictly
// decrease down the ladder, every kept order is worth ≥ minOrderAmount.
package main

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PlannedOrder is one rung of the ladder. Amount is the realized quote spend
// price·quantity rounded to cents, recomputed after quantization.
type PlannedOrder struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Amount   decimal.Decimal
}

// PlanRequest carries everything the planner needs. Asset selects the
// precision profile; MinOrderAmount is the exchange's per-order floor.
type PlanRequest struct {
	Symbol              string
	Asset               string
	CurrentPrice        decimal.Decimal
	MaxDropPercentage   float64
	TotalAmount         decimal.Decimal
	OrderCount          int
	IncrementPercentage float64
	MinOrderAmount      decimal.Decimal
}

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// PlanLadder computes the ladder. It returns PlanningError when no order
// survives quantization and the minimum-amount filter.
func PlanLadder(req PlanRequest, q *Quantizer) ([]PlannedOrder, error) {
	if req.OrderCount < 2 {
		return nil, &PlanningError{Reason: fmt.Sprintf("orderCount must be >= 2, got %d", req.OrderCount)}
	}
	if !req.CurrentPrice.IsPositive() {
		return nil, &PlanningError{Reason: "current price must be positive"}
	}
	if !req.TotalAmount.IsPositive() {
		return nil, &PlanningError{Reason: "total amount must be positive"}
	}
	if req.MaxDropPercentage <= 0 || req.MaxDropPercentage >= 100 {
		return nil, &PlanningError{Reason: fmt.Sprintf("maxDropPercentage must be in (0, 100), got %v", req.MaxDropPercentage)}
	}

	n := req.OrderCount
	drop := decimal.NewFromFloat(req.MaxDropPercentage).Div(hundred)

	// Linear price grid: index 0 sits at the current price, index n-1 at the
	// max-drop floor. Planning prices are precision-truncated only; the tick
	// floor is applied again at execution time.
	lowest := req.CurrentPrice.Mul(one.Sub(drop))
	step := req.CurrentPrice.Sub(lowest).Div(decimal.NewFromInt(int64(n - 1)))
	prices := make([]decimal.Decimal, 0, n)
	for i := 0; i < n; i++ {
		p := q.PlanPrice(req.CurrentPrice.Sub(step.Mul(decimal.NewFromInt(int64(i)))), req.Asset)
		prices = append(prices, p)
	}

	// Geometric amounts: total = base·(r^n − 1)/(r − 1), so
	// base = total·(r − 1)/(r^n − 1). A zero increment degenerates to an
	// equal split.
	r := one.Add(decimal.NewFromFloat(req.IncrementPercentage).Div(hundred))
	var base decimal.Decimal
	if r.Equal(one) {
		base = req.TotalAmount.Div(decimal.NewFromInt(int64(n)))
	} else {
		denom := r.Pow(decimal.NewFromInt(int64(n))).Sub(one)
		base = req.TotalAmount.Mul(r.Sub(one)).Div(denom)
	}
	if base.LessThan(req.MinOrderAmount) {
		base = req.MinOrderAmount
	}

	raw := make([]decimal.Decimal, 0, n)
	sum := decimal.Zero
	for i := 0; i < n; i++ {
		a := base.Mul(r.Pow(decimal.NewFromInt(int64(i))))
		raw = append(raw, a)
		sum = sum.Add(a)
	}
	// The min-amount clamp can push the series past the budget; scale every
	// rung uniformly back under it.
	if sum.GreaterThan(req.TotalAmount) {
		scale := req.TotalAmount.Div(sum)
		for i := range raw {
			raw[i] = raw[i].Mul(scale)
		}
	}

	ladder := make([]PlannedOrder, 0, n)
	prev := decimal.Decimal{}
	for i := 0; i < n; i++ {
		price := prices[i]
		if !price.IsPositive() {
			continue
		}
		// Collapsed grid rungs (quantization made two prices equal) are
		// dropped so the ladder stays strictly decreasing.
		if len(ladder) > 0 && price.GreaterThanOrEqual(prev) {
			continue
		}
		qty := q.Quantity(raw[i].Div(price), req.Asset)
		if !qty.IsPositive() {
			continue
		}
		amount := price.Mul(qty).Round(2)
		if amount.LessThan(req.MinOrderAmount) {
			continue
		}
		ladder = append(ladder, PlannedOrder{Price: price, Quantity: qty, Amount: amount})
		prev = price
	}

	if len(ladder) == 0 {
		return nil, &PlanningError{Reason: fmt.Sprintf(
			"no order above the %s minimum for budget %s across %d orders",
			req.MinOrderAmount, req.TotalAmount, n)}
	}
	return ladder, nil
}

// LadderSpend is the realized quote total over the ladder.
func LadderSpend(ladder []PlannedOrder) decimal.Decimal {
	total := decimal.Zero
	for _, o := range ladder {
		total = total.Add(o.Amount)
	}
	return total
}
