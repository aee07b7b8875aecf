// FILE: config.go
// Package main – Runtime configuration model and loader.
//
// Configuration lives in a YAML file (default ./config.yaml) with four
// sections: trading (ladder shape & take-profit), actions (startup/restart
// toggles), advanced (tick size, minimums, timers) and the per-asset
// precision maps. API credentials are NOT here; they come from the process
// env / .env file (see env.go).
//
// Precision values are exposed through an immutable PrecisionSnapshot that
// the monitor re-reads between polling iterations and swaps atomically,
// never mutated mid-calculation.
package main

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// DefaultAssetKey is the precision-map fallback for assets without an entry.
const DefaultAssetKey = "DEFAULT"

// integerPricedAssets trade at whole-unit prices and get a tighter quantity
// cap (5 fractional digits) regardless of the nominal precision table.
var integerPricedAssets = map[string]bool{"BTC": true}

// TradingConfig is the user-supplied strategy: ladder shape and exit.
type TradingConfig struct {
	TradingCoin          string  `yaml:"tradingCoin"`
	MaxDropPercentage    float64 `yaml:"maxDropPercentage"`
	TotalAmount          float64 `yaml:"totalAmount"`
	OrderCount           int     `yaml:"orderCount"`
	IncrementPercentage  float64 `yaml:"incrementPercentage"`
	TakeProfitPercentage float64 `yaml:"takeProfitPercentage"`
}

// ActionsConfig answers the interactive prompts automatically.
type ActionsConfig struct {
	SellNonUsdcAssets      bool `yaml:"sellNonUsdcAssets"`
	CancelAllOrders        bool `yaml:"cancelAllOrders"`
	AutoRestartNoFill      bool `yaml:"autoRestartNoFill"`
	RestartAfterTakeProfit bool `yaml:"restartAfterTakeProfit"`
}

// AdvancedConfig holds exchange minimums and the monitor timers.
type AdvancedConfig struct {
	PriceTickSize              float64 `yaml:"priceTickSize"`
	MinOrderAmount             float64 `yaml:"minOrderAmount"`
	SellNonUsdcMinValue        float64 `yaml:"sellNonUsdcMinValue"`
	NoFillRestartMinutes       int     `yaml:"noFillRestartMinutes"`
	CheckOrdersIntervalMinutes int     `yaml:"checkOrdersIntervalMinutes"`
	MonitorIntervalSeconds     int     `yaml:"monitorIntervalSeconds"`
}

// Config is the full YAML document.
type Config struct {
	Trading            TradingConfig      `yaml:"trading"`
	Actions            ActionsConfig      `yaml:"actions"`
	Advanced           AdvancedConfig     `yaml:"advanced"`
	PricePrecisions    map[string]int32   `yaml:"pricePrecisions"`
	QuantityPrecisions map[string]int32   `yaml:"quantityPrecisions"`
	MinQuantities      map[string]float64 `yaml:"minQuantities"`
}

// loadConfigFile reads and validates the YAML config at path.
func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultConfig returns a Config with sane defaults for every knob the YAML
// file may omit. Precision defaults follow the Backpack USDC spot markets.
func defaultConfig() *Config {
	return &Config{
		Trading: TradingConfig{
			TradingCoin:          "SOL",
			MaxDropPercentage:    5,
			TotalAmount:          100,
			OrderCount:           5,
			IncrementPercentage:  10,
			TakeProfitPercentage: 2,
		},
		Actions: ActionsConfig{
			CancelAllOrders:   true,
			AutoRestartNoFill: false,
		},
		Advanced: AdvancedConfig{
			PriceTickSize:              0.01,
			MinOrderAmount:             10,
			SellNonUsdcMinValue:        1,
			NoFillRestartMinutes:       60,
			CheckOrdersIntervalMinutes: 10,
			MonitorIntervalSeconds:     30,
		},
		PricePrecisions:    map[string]int32{DefaultAssetKey: 2, "BTC": 0, "SOL": 2, "ETH": 2},
		QuantityPrecisions: map[string]int32{DefaultAssetKey: 2, "BTC": 5, "SOL": 2, "ETH": 4},
		MinQuantities:      map[string]float64{DefaultAssetKey: 0.01, "BTC": 0.00001, "SOL": 0.01},
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Trading.TradingCoin) == "" {
		return fmt.Errorf("config: trading.tradingCoin is required")
	}
	if c.Trading.OrderCount < 2 {
		return fmt.Errorf("config: trading.orderCount must be >= 2, got %d", c.Trading.OrderCount)
	}
	if c.Trading.TotalAmount <= 0 {
		return fmt.Errorf("config: trading.totalAmount must be positive")
	}
	if c.Trading.MaxDropPercentage <= 0 || c.Trading.MaxDropPercentage >= 100 {
		return fmt.Errorf("config: trading.maxDropPercentage must be in (0, 100)")
	}
	if c.Trading.TakeProfitPercentage <= 0 {
		return fmt.Errorf("config: trading.takeProfitPercentage must be positive")
	}
	if c.Advanced.PriceTickSize <= 0 {
		return fmt.Errorf("config: advanced.priceTickSize must be positive")
	}
	return nil
}

// Symbol is the spot pair traded, e.g. SOL_USDC.
func (c *Config) Symbol() string {
	return strings.ToUpper(strings.TrimSpace(c.Trading.TradingCoin)) + "_USDC"
}

// MonitorInterval returns the polling cadence with its 30s default.
func (c *Config) MonitorInterval() int {
	if c.Advanced.MonitorIntervalSeconds <= 0 {
		return 30
	}
	return c.Advanced.MonitorIntervalSeconds
}

// CheckOrdersInterval returns the stale-order sweep cadence (minutes).
func (c *Config) CheckOrdersInterval() int {
	if c.Advanced.CheckOrdersIntervalMinutes <= 0 {
		return 10
	}
	return c.Advanced.CheckOrdersIntervalMinutes
}

// ---- Precision snapshot ----

// AssetPrecision is one asset's instrument profile.
type AssetPrecision struct {
	PricePrecision    int32
	QuantityPrecision int32
	MinQuantity       decimal.Decimal
}

// PrecisionSnapshot is an immutable view of the precision tables plus the
// global tick size and order minimum. Built once per reload, then read-only.
type PrecisionSnapshot struct {
	Version        int64
	TickSize       decimal.Decimal
	MinOrderAmount decimal.Decimal
	assets         map[string]AssetPrecision
}

// buildSnapshot converts the raw config maps into a snapshot.
func buildSnapshot(cfg *Config, version int64) *PrecisionSnapshot {
	keys := map[string]bool{DefaultAssetKey: true}
	for k := range cfg.PricePrecisions {
		keys[strings.ToUpper(k)] = true
	}
	for k := range cfg.QuantityPrecisions {
		keys[strings.ToUpper(k)] = true
	}
	for k := range cfg.MinQuantities {
		keys[strings.ToUpper(k)] = true
	}
	assets := make(map[string]AssetPrecision, len(keys))
	for k := range keys {
		ap := AssetPrecision{PricePrecision: 2, QuantityPrecision: 2, MinQuantity: decimal.NewFromFloat(0.01)}
		if p, ok := lookupInt32(cfg.PricePrecisions, k); ok {
			ap.PricePrecision = p
		}
		if q, ok := lookupInt32(cfg.QuantityPrecisions, k); ok {
			ap.QuantityPrecision = q
		}
		if mq, ok := lookupFloat(cfg.MinQuantities, k); ok {
			ap.MinQuantity = decimal.NewFromFloat(mq)
		}
		assets[k] = ap
	}
	return &PrecisionSnapshot{
		Version:        version,
		TickSize:       decimal.NewFromFloat(cfg.Advanced.PriceTickSize),
		MinOrderAmount: decimal.NewFromFloat(cfg.Advanced.MinOrderAmount),
		assets:         assets,
	}
}

func lookupInt32(m map[string]int32, key string) (int32, bool) {
	if m == nil {
		return 0, false
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	v, ok := m[DefaultAssetKey]
	return v, ok
}

func lookupFloat(m map[string]float64, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	v, ok := m[DefaultAssetKey]
	return v, ok
}

// Profile returns the asset's precision profile, falling back to DEFAULT.
func (s *PrecisionSnapshot) Profile(asset string) AssetPrecision {
	if ap, ok := s.assets[strings.ToUpper(asset)]; ok {
		return ap
	}
	return s.assets[DefaultAssetKey]
}

// IntegerPriced reports whether the asset trades at whole-unit prices.
func IntegerPriced(asset string) bool {
	return integerPricedAssets[strings.ToUpper(asset)]
}

// ---- Config store (hot reload at checkpoints) ----

// ConfigStore owns the config file path and the current snapshot. Reload is
// only called at safe checkpoints (cycle start, between monitor iterations),
// so readers always see a complete, self-consistent snapshot.
type ConfigStore struct {
	path    string
	cfg     atomic.Pointer[Config]
	snap    atomic.Pointer[PrecisionSnapshot]
	version atomic.Int64
}

// NewConfigStore loads path and builds the first snapshot.
func NewConfigStore(path string) (*ConfigStore, error) {
	s := &ConfigStore{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the config file and swaps in a fresh snapshot. On any
// error the previous snapshot stays in place.
func (s *ConfigStore) Reload() error {
	if s.path == "" {
		return nil
	}
	cfg, err := loadConfigFile(s.path)
	if err != nil {
		return err
	}
	v := s.version.Add(1)
	s.cfg.Store(cfg)
	s.snap.Store(buildSnapshot(cfg, v))
	return nil
}

// Config returns the current config document.
func (s *ConfigStore) Config() *Config { return s.cfg.Load() }

// Snapshot returns the current immutable precision snapshot.
func (s *ConfigStore) Snapshot() *PrecisionSnapshot { return s.snap.Load() }

// newStaticStore wraps an in-memory Config; used by tests and dry runs.
func newStaticStore(cfg *Config) *ConfigStore {
	s := &ConfigStore{}
	s.version.Store(1)
	s.cfg.Store(cfg)
	s.snap.Store(buildSnapshot(cfg, 1))
	return s
}
