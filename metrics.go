// FILE: metrics.go
// Package main – Prometheus metrics for observability.
//
// Primary metrics the bot updates during operation:
//   • dca_orders_total{side,result}    – orders submitted (placed|rejected)
//   • dca_fills_total                  – fills folded into the ledger
//   • dca_retries_total{op}            – failed remote-call attempts
//   • dca_monitor_iterations_total     – take-profit monitor loop passes
//   • dca_cycles_total{outcome}        – cycles ended (profit|restart|abort)
//   • dca_liquidations_total{result}   – liquidation attempts (complete|partial)
//   • dca_average_price               – current VWAP entry price (gauge)
//   • dca_last_price                  – last polled market price (gauge)
//
// Registered in init() and served at /metrics by the HTTP server in main.go.
package main

import "github.com/prometheus/client_golang/prometheus"

var (
	mtxOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dca_orders_total",
			Help: "Orders submitted to the exchange",
		},
		[]string{"side", "result"}, // side: bid|ask; result: placed|rejected
	)

	mtxFills = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dca_fills_total",
			Help: "Fills recorded in the cycle ledger",
		},
	)

	mtxRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dca_retries_total",
			Help: "Failed remote-call attempts, by operation",
		},
		[]string{"op"},
	)

	mtxMonitorIterations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dca_monitor_iterations_total",
			Help: "Take-profit monitor loop passes",
		},
	)

	mtxCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dca_cycles_total",
			Help: "Trading cycles ended, by outcome",
		},
		[]string{"outcome"}, // profit|restart|abort
	)

	mtxLiquidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dca_liquidations_total",
			Help: "Liquidation attempts, by result",
		},
		[]string{"result"}, // complete|partial|noop
	)

	gaugeAvgPrice = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dca_average_price",
			Help: "Volume-weighted average entry price for the current cycle",
		},
	)

	gaugeLastPrice = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dca_last_price",
			Help: "Last polled market price",
		},
	)
)

func init() {
	prometheus.MustRegister(mtxOrders, mtxFills, mtxRetries)
	prometheus.MustRegister(mtxMonitorIterations, mtxCycles, mtxLiquidations)
	prometheus.MustRegister(gaugeAvgPrice, gaugeLastPrice)
}
