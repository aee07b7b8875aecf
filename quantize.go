// FILE: quantize.go
// Package main – Instrument-valid rounding of prices and quantities.
//
// The exchange rejects orders whose price is not on the tick grid or whose
// quantity has more decimals than the instrument allows. The Quantizer turns
// raw decimals into valid ones, always rounding DOWN so an order can never
// spend more quote or offer more base than the caller intended.
//
// Two price paths exist on purpose: Price() applies the tick-size floor used
// at execution time, PlanPrice() truncates by precision only, matching how
// the ladder is priced at planning time.
package main

import "github.com/shopspring/decimal"

// Quantizer applies one precision snapshot. Pure: same input and snapshot
// always give the same output.
type Quantizer struct {
	snap *PrecisionSnapshot
}

func NewQuantizer(snap *PrecisionSnapshot) *Quantizer {
	return &Quantizer{snap: snap}
}

// Price floors price to the nearest tick-size multiple, then truncates to the
// asset's price precision (DEFAULT fallback). Integer-priced assets are
// additionally floored to a whole unit.
func (q *Quantizer) Price(price decimal.Decimal, asset string) decimal.Decimal {
	p := price
	if tick := q.snap.TickSize; tick.IsPositive() {
		p = p.Div(tick).Floor().Mul(tick)
	}
	p = p.Truncate(q.snap.Profile(asset).PricePrecision)
	if IntegerPriced(asset) {
		p = p.Floor()
	}
	return p
}

// PlanPrice truncates price to the asset's precision without the tick floor.
// Used by the planner; execution re-quantizes with Price().
func (q *Quantizer) PlanPrice(price decimal.Decimal, asset string) decimal.Decimal {
	p := price.Truncate(q.snap.Profile(asset).PricePrecision)
	if IntegerPriced(asset) {
		p = p.Floor()
	}
	return p
}

// Quantity floors qty to the asset's step size (10^-quantityPrecision) and
// truncates to that many decimals. Integer-priced assets cap fractional
// digits at 5 even when the nominal precision is larger.
func (q *Quantizer) Quantity(qty decimal.Decimal, asset string) decimal.Decimal {
	prec := q.snap.Profile(asset).QuantityPrecision
	if IntegerPriced(asset) && prec > 5 {
		prec = 5
	}
	return qty.Truncate(prec)
}

// MinQuantity is the smallest quantity the instrument accepts.
func (q *Quantizer) MinQuantity(asset string) decimal.Decimal {
	return q.snap.Profile(asset).MinQuantity
}
