// FILE: main.go
// Package main – Program entrypoint, HTTP/metrics server, cycle supervisor.
//
// Boot sequence:
//   1) loadBotEnv()          – read .env credentials (no shell exports needed)
//   2) newLogger()           – zap logger (console, optional file tee)
//   3) NewConfigStore()      – load config.yaml, build precision snapshot
//   4) wire exchange (backpack, or paper with -paper)
//   5) start Prometheus /metrics + /healthz server
//   6) supervise trading cycles until a clean exit or SIGINT/SIGTERM
//
// Flags:
//   -config <path>   Config file (default $CONFIG_FILE or ./config.yaml)
//   -env <path>      Credentials file (default .env)
//   -paper           Run against the in-memory paper exchange
//
// The supervisor restarts the cycle after a no-fill restart, after take-profit
// when actions.restartAfterTakeProfit is set, and after an aborted cycle
// (with a pause). A clean process stop is SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// cycleRestartPause is the supervisor's wait between cycles.
const cycleRestartPause = 10 * time.Second

// cycleAbortPause is the longer wait after an aborted cycle.
const cycleAbortPause = 60 * time.Second

func main() {
	var cfgPath, envPath string
	var paper bool
	flag.StringVar(&cfgPath, "config", "", "Path to config.yaml")
	flag.StringVar(&envPath, "env", ".env", "Path to credentials .env file")
	flag.BoolVar(&paper, "paper", false, "Use the in-memory paper exchange")
	flag.Parse()

	if err := loadBotEnv(envPath); err != nil {
		fmt.Fprintf(os.Stderr, "load env: %v\n", err)
		os.Exit(1)
	}
	if cfgPath == "" {
		cfgPath = getEnv("CONFIG_FILE", "config.yaml")
	}

	log, err := newLogger(getEnv("LOG_LEVEL", "info"), getEnv("LOG_FILE", ""))
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	store, err := NewConfigStore(cfgPath)
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}
	cfg := store.Config()
	log.Info("config loaded",
		zap.String("symbol", cfg.Symbol()),
		zap.Float64("total_amount", cfg.Trading.TotalAmount),
		zap.Int("order_count", cfg.Trading.OrderCount),
		zap.Float64("max_drop_pct", cfg.Trading.MaxDropPercentage),
		zap.Float64("take_profit_pct", cfg.Trading.TakeProfitPercentage))

	// ---- Exchange wiring ----
	var ex Exchange
	if paper {
		pe := NewPaperExchange()
		pe.SetPrice(cfg.Symbol(), decimal.NewFromFloat(getEnvFloatOr("PAPER_PRICE", 100)))
		pe.SetBalance(quoteAsset, decimal.NewFromFloat(getEnvFloatOr("PAPER_QUOTE_BALANCE", 10000)))
		ex = pe
	} else {
		be, err := NewBackpackExchangeFromEnv()
		if err != nil {
			log.Fatal("backpack client init", zap.Error(err))
		}
		ex = be
	}
	log.Info("exchange wired", zap.String("exchange", ex.Name()))

	// ---- HTTP metrics/health ----
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := getEnvInt("PORT", 8080)
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		log.Info("serving metrics", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("metrics server", zap.Error(err))
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	supervise(ctx, store, ex, log)

	shutdownCtx, c := context.WithTimeout(context.Background(), 2*time.Second)
	defer c()
	_ = srv.Shutdown(shutdownCtx)
}

// supervise runs trading cycles back to back, deciding per outcome whether
// another cycle starts. Cycle aborts pause longer and retry rather than
// killing the process.
func supervise(ctx context.Context, store *ConfigStore, ex Exchange, log *zap.Logger) {
	for {
		session := NewSession(store, ex, log)
		outcome, err := session.RunCycle(ctx)
		if ctx.Err() != nil {
			log.Info("shutdown requested, stopping")
			return
		}

		switch {
		case err != nil:
			mtxCycles.WithLabelValues("abort").Inc()
			log.Error("cycle aborted, restarting after pause",
				zap.Error(err), zap.Duration("pause", cycleAbortPause))
			if sleepCtx(ctx, cycleAbortPause) != nil {
				return
			}
		case outcome == CycleProfit:
			state := session.LedgerState()
			log.Info("cycle closed with profit",
				zap.Int("filled_orders", state.FilledOrders),
				zap.String("avg_price", state.AveragePrice.StringFixed(4)),
				zap.String("total_spent", state.TotalFilledAmount.StringFixed(2)))
			if !store.Config().Actions.RestartAfterTakeProfit {
				log.Info("restart after take-profit disabled, exiting")
				return
			}
			if sleepCtx(ctx, cycleRestartPause) != nil {
				return
			}
		case outcome == CycleRestart:
			log.Info("cycle restarting (no fills)")
			if sleepCtx(ctx, cycleRestartPause) != nil {
				return
			}
		default:
			return
		}
	}
}

// getEnvFloatOr reads a float env var with a default.
func getEnvFloatOr(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return def
	}
	f, _ := d.Float64()
	return f
}
