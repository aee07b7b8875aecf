// FILE: exchange.go
// Package main – Exchange abstractions shared by all execution backends.
//
// This file defines the minimal interface the DCA engine needs to talk to a
// spot exchange (paper or real):
//   • Exchange interface: ticker/balance lookup, open orders & history,
//     order submission and cancellation
//   • Common types: OrderSide, OrderStatus, TimeInForce, Ticker, Balance, Order
//
// Two concrete implementations live in separate files:
//   • exchange_paper.go    – in-memory paper exchange (no external calls)
//   • exchange_backpack.go – signed HTTP client for the Backpack REST API
package main

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide is the side of a trade. Values match the Backpack wire format.
type OrderSide string

const (
	SideBuy  OrderSide = "Bid"
	SideSell OrderSide = "Ask"
)

// OrderStatus is the normalized lifecycle state of a submitted order.
type OrderStatus string

const (
	StatusNew             OrderStatus = "New"
	StatusPartiallyFilled OrderStatus = "PartiallyFilled"
	StatusFilled          OrderStatus = "Filled"
	StatusCanceled        OrderStatus = "Canceled"
	StatusExpired         OrderStatus = "Expired"
)

// TimeInForce controls how long a limit order rests on the book.
type TimeInForce string

const (
	TifGTC TimeInForce = "GTC" // rest until canceled
	TifIOC TimeInForce = "IOC" // fill what crosses, cancel the rest
)

// Ticker is the last traded price for a symbol.
type Ticker struct {
	Symbol    string
	LastPrice decimal.Decimal
}

// Balance is one asset's funds split by availability.
type Balance struct {
	Available decimal.Decimal
	Locked    decimal.Decimal
	Staked    decimal.Decimal
}

// Total is the full holding across available/locked/staked.
func (b Balance) Total() decimal.Decimal {
	return b.Available.Add(b.Locked).Add(b.Staked)
}

// Order is a normalized view of an order as the remote exchange reports it.
// FilledAmount is in quote units, FilledQuantity in base units.
type Order struct {
	ID             string
	ClientID       string
	Symbol         string
	Side           OrderSide
	Status         OrderStatus
	Price          decimal.Decimal
	Quantity       decimal.Decimal
	FilledQuantity decimal.Decimal
	FilledAmount   decimal.Decimal
	CreateTime     time.Time
}

// HasFill reports whether the order saw any execution.
func (o *Order) HasFill() bool {
	return o.Status == StatusFilled || o.Status == StatusPartiallyFilled
}

// OrderRequest is the engine's submission payload. ClientID is a caller-supplied
// idempotency key: resubmitting the same ClientID must not create a second order.
type OrderRequest struct {
	Symbol      string
	Side        OrderSide
	Price       decimal.Decimal
	Quantity    decimal.Decimal
	TimeInForce TimeInForce
	ClientID    string
}

// Exchange is the minimal surface the engine needs to operate. All calls are
// synchronous-with-latency and fallible; none assume exactly-once delivery.
type Exchange interface {
	Name() string
	GetTicker(ctx context.Context, symbol string) (Ticker, error)
	GetBalances(ctx context.Context) (map[string]Balance, error)
	GetOpenOrders(ctx context.Context, symbol string) ([]Order, error)
	GetOrderHistory(ctx context.Context, symbol string) ([]Order, error)
	SubmitOrder(ctx context.Context, req OrderRequest) (*Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	CancelAllOrders(ctx context.Context, symbol string) error
}
