// FILE: exchange_backpack.go
// Package main – Exchange implementation for the Backpack spot REST API.
//
// Auth: every private call is signed with the account's ED25519 key. The
// signing payload is "instruction=<name>&<sorted params>&timestamp=<ms>&
// window=<ms>", sent alongside X-API-Key / X-Signature / X-Timestamp /
// X-Window headers.
//
// All numeric fields come back as strings; we decode into stringly-typed
// structs and convert to decimals, tolerating absent fields as zero.
package main

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const backpackDefaultBase = "https://api.backpack.exchange"

// signWindow is the request validity window the exchange enforces (ms).
const signWindow = 5000

// APIError is the structured error body the exchange returns on non-2xx
// responses. The retry executor logs Code/Message per attempt.
type APIError struct {
	HTTPStatus int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backpack api %d [%s]: %s", e.HTTPStatus, e.Code, e.Message)
}

// BackpackExchange implements Exchange over the Backpack REST API.
type BackpackExchange struct {
	base      string
	hc        *http.Client
	verifying string // base64 public key, sent as X-API-Key
	signing   ed25519.PrivateKey
}

// NewBackpackExchangeFromEnv builds a client from BACKPACK_API_KEY /
// BACKPACK_API_SECRET (both base64) with an optional BACKPACK_BASE_URL
// override.
func NewBackpackExchangeFromEnv() (*BackpackExchange, error) {
	apiKey := getEnv("BACKPACK_API_KEY", "")
	apiSecret := getEnv("BACKPACK_API_SECRET", "")
	if apiKey == "" || apiSecret == "" {
		return nil, errors.New("BACKPACK_API_KEY and BACKPACK_API_SECRET must be set")
	}
	seed, err := base64.StdEncoding.DecodeString(apiSecret)
	if err != nil {
		return nil, fmt.Errorf("decode BACKPACK_API_SECRET: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("BACKPACK_API_SECRET must be a %d-byte ED25519 seed", ed25519.SeedSize)
	}
	return &BackpackExchange{
		base:      strings.TrimRight(getEnv("BACKPACK_BASE_URL", backpackDefaultBase), "/"),
		hc:        &http.Client{Timeout: 15 * time.Second},
		verifying: apiKey,
		signing:   ed25519.NewKeyFromSeed(seed),
	}, nil
}

func (b *BackpackExchange) Name() string { return "backpack" }

// ---- interface methods ----

func (b *BackpackExchange) GetTicker(ctx context.Context, symbol string) (Ticker, error) {
	data, err := b.do(ctx, http.MethodGet, "/api/v1/ticker?symbol="+url.QueryEscape(symbol), "", nil)
	if err != nil {
		return Ticker{}, err
	}
	var payload struct {
		Symbol    string `json:"symbol"`
		LastPrice string `json:"lastPrice"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return Ticker{}, err
	}
	return Ticker{Symbol: payload.Symbol, LastPrice: parseDec(payload.LastPrice)}, nil
}

func (b *BackpackExchange) GetBalances(ctx context.Context) (map[string]Balance, error) {
	data, err := b.do(ctx, http.MethodGet, "/api/v1/capital", "balanceQuery", nil)
	if err != nil {
		return nil, err
	}
	var payload map[string]struct {
		Available string `json:"available"`
		Locked    string `json:"locked"`
		Staked    string `json:"staked"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	out := make(map[string]Balance, len(payload))
	for asset, v := range payload {
		out[strings.ToUpper(asset)] = Balance{
			Available: parseDec(v.Available),
			Locked:    parseDec(v.Locked),
			Staked:    parseDec(v.Staked),
		}
	}
	return out, nil
}

func (b *BackpackExchange) GetOpenOrders(ctx context.Context, symbol string) ([]Order, error) {
	path := "/api/v1/orders?symbol=" + url.QueryEscape(symbol)
	data, err := b.do(ctx, http.MethodGet, path, "orderQueryAll", map[string]string{"symbol": symbol})
	if err != nil {
		return nil, err
	}
	var rows []backpackOrderJSON
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	return toOrders(rows), nil
}

func (b *BackpackExchange) GetOrderHistory(ctx context.Context, symbol string) ([]Order, error) {
	path := "/wapi/v1/history/orders?symbol=" + url.QueryEscape(symbol)
	data, err := b.do(ctx, http.MethodGet, path, "orderHistoryQueryAll", map[string]string{"symbol": symbol})
	if err != nil {
		return nil, err
	}
	var rows []backpackOrderJSON
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	return toOrders(rows), nil
}

func (b *BackpackExchange) SubmitOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	params := map[string]string{
		"symbol":      req.Symbol,
		"side":        string(req.Side),
		"orderType":   "Limit",
		"price":       req.Price.String(),
		"quantity":    req.Quantity.String(),
		"timeInForce": string(req.TimeInForce),
	}
	if req.ClientID != "" {
		params["clientId"] = req.ClientID
	}
	data, err := b.doJSON(ctx, http.MethodPost, "/api/v1/order", "orderExecute", params)
	if err != nil {
		return nil, err
	}
	var row backpackOrderJSON
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, err
	}
	o := row.toOrder()
	return &o, nil
}

func (b *BackpackExchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := map[string]string{"symbol": symbol, "orderId": orderID}
	_, err := b.doJSON(ctx, http.MethodDelete, "/api/v1/order", "orderCancel", params)
	return err
}

func (b *BackpackExchange) CancelAllOrders(ctx context.Context, symbol string) error {
	params := map[string]string{"symbol": symbol}
	_, err := b.doJSON(ctx, http.MethodDelete, "/api/v1/orders", "orderCancelAll", params)
	return err
}

// ---- transport & signing ----

// do issues a request without a JSON body. instruction == "" means public.
func (b *BackpackExchange) do(ctx context.Context, method, pathAndQuery, instruction string, params map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, b.base+pathAndQuery, nil)
	if err != nil {
		return nil, err
	}
	if instruction != "" {
		b.sign(req, instruction, params)
	}
	return b.roundTrip(req)
}

// doJSON issues a signed request with params as the JSON body.
func (b *BackpackExchange) doJSON(ctx context.Context, method, path, instruction string, params map[string]string) ([]byte, error) {
	body, _ := json.Marshal(params)
	req, err := http.NewRequestWithContext(ctx, method, b.base+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	b.sign(req, instruction, params)
	return b.roundTrip(req)
}

// sign builds the canonical "instruction=...&k=v...&timestamp=...&window=..."
// payload over alphabetically sorted params and attaches the auth headers.
func (b *BackpackExchange) sign(req *http.Request, instruction string, params map[string]string) {
	ts := time.Now().UnixMilli()

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("instruction=" + instruction)
	for _, k := range keys {
		sb.WriteString("&" + k + "=" + params[k])
	}
	fmt.Fprintf(&sb, "&timestamp=%d&window=%d", ts, signWindow)

	sig := ed25519.Sign(b.signing, []byte(sb.String()))
	req.Header.Set("X-API-Key", b.verifying)
	req.Header.Set("X-Signature", base64.StdEncoding.EncodeToString(sig))
	req.Header.Set("X-Timestamp", fmt.Sprintf("%d", ts))
	req.Header.Set("X-Window", fmt.Sprintf("%d", signWindow))
}

func (b *BackpackExchange) roundTrip(req *http.Request) ([]byte, error) {
	resp, err := b.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{HTTPStatus: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return nil, apiErr
	}
	return data, nil
}

// ---- tolerant JSON types ----

type backpackOrderJSON struct {
	ID                string      `json:"id"`
	ClientID          json.Number `json:"clientId"`
	Symbol            string      `json:"symbol"`
	Side              string      `json:"side"`
	Status            string      `json:"status"`
	Price             string      `json:"price"`
	Quantity          string      `json:"quantity"`
	ExecutedQuantity  string      `json:"executedQuantity"`
	ExecutedQuoteQty  string      `json:"executedQuoteQuantity"`
	CreatedAt         int64       `json:"createdAt"`
	TriggerdAtTsMilli int64       `json:"timestamp"`
}

func (j backpackOrderJSON) toOrder() Order {
	created := j.CreatedAt
	if created == 0 {
		created = j.TriggerdAtTsMilli
	}
	return Order{
		ID:             j.ID,
		ClientID:       j.ClientID.String(),
		Symbol:         j.Symbol,
		Side:           OrderSide(j.Side),
		Status:         OrderStatus(j.Status),
		Price:          parseDec(j.Price),
		Quantity:       parseDec(j.Quantity),
		FilledQuantity: parseDec(j.ExecutedQuantity),
		FilledAmount:   parseDec(j.ExecutedQuoteQty),
		CreateTime:     time.UnixMilli(created).UTC(),
	}
}

func toOrders(rows []backpackOrderJSON) []Order {
	out := make([]Order, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toOrder())
	}
	return out
}

// parseDec converts a string-typed number, treating blank or malformed
// fields as zero.
func parseDec(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
