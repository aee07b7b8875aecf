// FILE: exchange_paper.go
// Package main – In-memory paper exchange (no external calls).
//
// Simulates just enough of a spot exchange for dry runs and the test suite:
// settable prices and balances, resting GTC orders, immediate IOC execution,
// and failure injection so retry/fallback paths can be exercised
// deterministically.
package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// PaperExchange keeps the whole market under one mutex.
type PaperExchange struct {
	mu       sync.Mutex
	prices   map[string]decimal.Decimal
	balances map[string]Balance
	open     map[string]*Order
	history  []Order
	seq      int

	// failure injection (tests)
	failSubmits     int  // fail the next N submissions
	failMsg         string
	failBatchCancel bool // force CancelAllOrders to error
	failCancels     int  // fail the next N per-order cancels
	failHistory     bool // force GetOrderHistory to error
	iocFillRatio    decimal.Decimal
}

func NewPaperExchange() *PaperExchange {
	return &PaperExchange{
		prices:       make(map[string]decimal.Decimal),
		balances:     make(map[string]Balance),
		open:         make(map[string]*Order),
		iocFillRatio: decimal.NewFromInt(1),
	}
}

func (p *PaperExchange) Name() string { return "paper" }

// ---- test & dry-run controls ----

func (p *PaperExchange) SetPrice(symbol string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
}

func (p *PaperExchange) SetBalance(asset string, available decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balances[strings.ToUpper(asset)] = Balance{Available: available}
}

// FailNextSubmits makes the next n submissions return an APIError.
func (p *PaperExchange) FailNextSubmits(n int, msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failSubmits = n
	p.failMsg = msg
}

func (p *PaperExchange) FailBatchCancel(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failBatchCancel = v
}

func (p *PaperExchange) FailNextCancels(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failCancels = n
}

func (p *PaperExchange) FailHistory(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failHistory = v
}

// SetIOCFillRatio controls what fraction of an IOC order executes (1 = full).
func (p *PaperExchange) SetIOCFillRatio(r decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.iocFillRatio = r
}

// Fill executes qty of a resting order, moving balances and history the way
// the real exchange would.
func (p *PaperExchange) Fill(orderID string, qty decimal.Decimal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.open[orderID]
	if !ok {
		return fmt.Errorf("paper: no open order %s", orderID)
	}
	p.execute(o, qty)
	return nil
}

// ---- Exchange interface ----

func (p *PaperExchange) GetTicker(ctx context.Context, symbol string) (Ticker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	price, ok := p.prices[symbol]
	if !ok {
		return Ticker{}, &APIError{HTTPStatus: 404, Code: "INVALID_MARKET", Message: "unknown symbol " + symbol}
	}
	return Ticker{Symbol: symbol, LastPrice: price}, nil
}

func (p *PaperExchange) GetBalances(ctx context.Context) (map[string]Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]Balance, len(p.balances))
	for k, v := range p.balances {
		out[k] = v
	}
	return out, nil
}

func (p *PaperExchange) GetOpenOrders(ctx context.Context, symbol string) ([]Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Order, 0, len(p.open))
	for _, o := range p.open {
		if o.Symbol == symbol {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (p *PaperExchange) GetOrderHistory(ctx context.Context, symbol string) ([]Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failHistory {
		return nil, &APIError{HTTPStatus: 503, Code: "UNAVAILABLE", Message: "history offline"}
	}
	out := make([]Order, 0, len(p.history))
	for _, o := range p.history {
		if o.Symbol == symbol {
			out = append(out, o)
		}
	}
	return out, nil
}

func (p *PaperExchange) SubmitOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failSubmits > 0 {
		p.failSubmits--
		msg := p.failMsg
		if msg == "" {
			msg = "simulated submit failure"
		}
		return nil, &APIError{HTTPStatus: 400, Code: "REJECTED", Message: msg}
	}
	// Duplicate client id returns the original order instead of a new one.
	if req.ClientID != "" {
		for _, o := range p.open {
			if o.ClientID == req.ClientID {
				cp := *o
				return &cp, nil
			}
		}
	}

	p.seq++
	o := &Order{
		ID:         fmt.Sprintf("paper-%d", p.seq),
		ClientID:   req.ClientID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Status:     StatusNew,
		Price:      req.Price,
		Quantity:   req.Quantity,
		CreateTime: time.Now().UTC(),
	}

	if req.TimeInForce == TifIOC {
		fillQty := req.Quantity.Mul(p.iocFillRatio)
		p.execute(o, fillQty)
		if o.FilledQuantity.LessThan(o.Quantity) {
			o.Status = StatusExpired // remainder canceled
		}
		cp := *o
		return &cp, nil
	}

	p.open[o.ID] = o
	p.appendHistory(o)
	cp := *o
	return &cp, nil
}

func (p *PaperExchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failCancels > 0 {
		p.failCancels--
		return &APIError{HTTPStatus: 500, Code: "INTERNAL", Message: "simulated cancel failure"}
	}
	o, ok := p.open[orderID]
	if !ok {
		return &APIError{HTTPStatus: 404, Code: "NOT_FOUND", Message: "order " + orderID}
	}
	o.Status = StatusCanceled
	delete(p.open, orderID)
	p.appendHistory(o)
	return nil
}

func (p *PaperExchange) CancelAllOrders(ctx context.Context, symbol string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failBatchCancel {
		return &APIError{HTTPStatus: 500, Code: "INTERNAL", Message: "simulated batch-cancel failure"}
	}
	for id, o := range p.open {
		if o.Symbol != symbol {
			continue
		}
		o.Status = StatusCanceled
		delete(p.open, id)
		p.appendHistory(o)
	}
	return nil
}

// ---- internals (mu held) ----

// execute fills qty (capped at the remainder) and settles balances.
func (p *PaperExchange) execute(o *Order, qty decimal.Decimal) {
	remaining := o.Quantity.Sub(o.FilledQuantity)
	if qty.GreaterThan(remaining) {
		qty = remaining
	}
	if !qty.IsPositive() {
		return
	}
	o.FilledQuantity = o.FilledQuantity.Add(qty)
	o.FilledAmount = o.FilledAmount.Add(o.Price.Mul(qty))
	if o.FilledQuantity.GreaterThanOrEqual(o.Quantity) {
		o.Status = StatusFilled
		delete(p.open, o.ID)
	} else {
		o.Status = StatusPartiallyFilled
	}

	base, quote := splitSymbol(o.Symbol)
	amount := o.Price.Mul(qty)
	bb := p.balances[base]
	qb := p.balances[quote]
	if o.Side == SideBuy {
		bb.Available = bb.Available.Add(qty)
		qb.Available = qb.Available.Sub(amount)
	} else {
		bb.Available = bb.Available.Sub(qty)
		qb.Available = qb.Available.Add(amount)
	}
	p.balances[base] = bb
	p.balances[quote] = qb
	p.appendHistory(o)
}

// appendHistory records the order's latest state, replacing any earlier
// snapshot of the same id.
func (p *PaperExchange) appendHistory(o *Order) {
	for i := range p.history {
		if p.history[i].ID == o.ID {
			p.history[i] = *o
			return
		}
	}
	p.history = append(p.history, *o)
}

// splitSymbol parses "SOL_USDC" into ("SOL", "USDC").
func splitSymbol(symbol string) (base, quote string) {
	parts := strings.SplitN(symbol, "_", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return symbol, ""
}
