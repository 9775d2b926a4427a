package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrFetchFailed reports that every configured mirror was exhausted for a
// request. Callers treat it as a transient condition and keep serving
// whatever they already have.
var ErrFetchFailed = errors.New("all mirrors exhausted")

const (
	compoundTimeout = 15 * time.Second
	klineTimeout    = 10 * time.Second
	fastTimeout     = 5 * time.Second
)

// transient statuses get a bounded retry with exponential backoff on the
// same mirror; 451 (geo-block) never does.
var transientStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Ticker is one row of the 24h ticker endpoint with numeric fields parsed.
type Ticker struct {
	Symbol             string
	LastPrice          float64
	QuoteVolume        float64
	PriceChangePercent float64
}

// Kline is one candle. Volume fields are quoted in the quote currency for
// QuoteVolume and the base asset for Volume.
type Kline struct {
	OpenTime    time.Time
	CloseTime   time.Time
	Volume      float64
	QuoteVolume float64
}

type Config struct {
	Mirrors     []string
	Interval    string
	MaxRetries  int
	BackoffBase time.Duration
}

// Client talks to a Binance-futures style REST API through an ordered list
// of mirror base URLs.
type Client struct {
	mirrors     []string
	interval    string
	maxRetries  int
	backoffBase time.Duration
	httpClient  *http.Client
}

func NewClient(c Config) *Client {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = 500 * time.Millisecond
	}
	if c.Interval == "" {
		c.Interval = "1h"
	}
	return &Client{
		mirrors:     c.Mirrors,
		interval:    c.Interval,
		maxRetries:  c.MaxRetries,
		backoffBase: c.BackoffBase,
		httpClient:  &http.Client{},
	}
}

// Interval returns the kline interval the client is configured for.
func (c *Client) Interval() string {
	return c.interval
}

// getJSON walks the mirror list in order. A 451 skips straight to the next
// mirror; transient statuses and network errors retry on the same mirror
// with backoff; any other non-200 logs and moves on.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, timeout time.Duration, out interface{}) error {
	for _, mirror := range c.mirrors {
		if c.tryMirror(ctx, mirror, path, query, timeout, out) {
			return nil
		}
		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), path)
		}
	}
	return errors.Wrap(ErrFetchFailed, path)
}

func (c *Client) tryMirror(ctx context.Context, mirror, path string, query url.Values, timeout time.Duration, out interface{}) bool {
	target := mirror + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		ok, retry := c.attempt(reqCtx, target, out)
		cancel()

		if ok {
			return true
		}
		if !retry || attempt == c.maxRetries {
			return false
		}
		if !sleepCtx(ctx, c.backoffBase<<uint(attempt)) {
			return false
		}
	}
	return false
}

// attempt returns (success, retryable on this mirror).
func (c *Client) attempt(ctx context.Context, target string, out interface{}) (bool, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		log.Errorf("failed to build request for %s: %v", target, err)
		return false, false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debugf("request to %s failed: %v", target, err)
		return false, true
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			log.Warnf("failed to decode response from %s: %v", target, err)
			return false, false
		}
		return true, false
	case resp.StatusCode == http.StatusUnavailableForLegalReasons:
		log.Debugf("mirror geo-blocked (451), skipping: %s", target)
		return false, false
	case transientStatus[resp.StatusCode]:
		log.Debugf("transient status %d from %s", resp.StatusCode, target)
		return false, true
	default:
		log.Warnf("unexpected status %d from %s", resp.StatusCode, target)
		return false, false
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// FetchActiveSymbols returns the symbols that are perpetual contracts,
// quoted in USDT and currently trading. An error means every mirror failed;
// the returned set is empty in that case.
func (c *Client) FetchActiveSymbols(ctx context.Context) (map[string]struct{}, error) {
	var info struct {
		Symbols []struct {
			Symbol       string `json:"symbol"`
			ContractType string `json:"contractType"`
			QuoteAsset   string `json:"quoteAsset"`
			Status       string `json:"status"`
		} `json:"symbols"`
	}
	if err := c.getJSON(ctx, "/fapi/v1/exchangeInfo", nil, compoundTimeout, &info); err != nil {
		return map[string]struct{}{}, err
	}

	symbols := make(map[string]struct{})
	for _, s := range info.Symbols {
		if s.ContractType == "PERPETUAL" && s.QuoteAsset == "USDT" && s.Status == "TRADING" {
			symbols[s.Symbol] = struct{}{}
		}
	}
	return symbols, nil
}

type rawTicker struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	QuoteVolume        string `json:"quoteVolume"`
	PriceChangePercent string `json:"priceChangePercent"`
}

func (r rawTicker) parse() Ticker {
	lastPrice, _ := strconv.ParseFloat(r.LastPrice, 64)
	quoteVolume, _ := strconv.ParseFloat(r.QuoteVolume, 64)
	changePct, _ := strconv.ParseFloat(r.PriceChangePercent, 64)
	return Ticker{
		Symbol:             r.Symbol,
		LastPrice:          lastPrice,
		QuoteVolume:        quoteVolume,
		PriceChangePercent: changePct,
	}
}

// FetchTickerSnapshot returns the full 24h ticker list.
func (c *Client) FetchTickerSnapshot(ctx context.Context) ([]Ticker, error) {
	var raw []rawTicker
	if err := c.getJSON(ctx, "/fapi/v1/ticker/24hr", nil, compoundTimeout, &raw); err != nil {
		return nil, err
	}

	tickers := make([]Ticker, 0, len(raw))
	for _, r := range raw {
		tickers = append(tickers, r.parse())
	}
	return tickers, nil
}

// FetchSymbolTicker returns the 24h ticker for a single symbol.
func (c *Client) FetchSymbolTicker(ctx context.Context, symbol string) (Ticker, error) {
	var raw rawTicker
	query := url.Values{"symbol": {symbol}}
	if err := c.getJSON(ctx, "/fapi/v1/ticker/24hr", query, fastTimeout, &raw); err != nil {
		return Ticker{}, err
	}
	return raw.parse(), nil
}

// FetchFundingRates returns the latest funding rate per asset, as a
// percentage, keyed by the symbol with its USDT suffix stripped.
func (c *Client) FetchFundingRates(ctx context.Context) (map[string]float64, error) {
	var raw []struct {
		Symbol          string `json:"symbol"`
		LastFundingRate string `json:"lastFundingRate"`
	}
	if err := c.getJSON(ctx, "/fapi/v1/premiumIndex", nil, compoundTimeout, &raw); err != nil {
		return nil, err
	}

	rates := make(map[string]float64, len(raw))
	for _, r := range raw {
		if !strings.HasSuffix(r.Symbol, "USDT") {
			continue
		}
		rate, err := strconv.ParseFloat(r.LastFundingRate, 64)
		if err != nil {
			continue
		}
		rates[strings.TrimSuffix(r.Symbol, "USDT")] = rate * 100
	}
	return rates, nil
}

// FetchSymbolFunding returns the current funding rate percentage for one
// symbol, or nil when the exchange reports none.
func (c *Client) FetchSymbolFunding(ctx context.Context, symbol string) (*float64, error) {
	var raw struct {
		Symbol          string `json:"symbol"`
		LastFundingRate string `json:"lastFundingRate"`
	}
	query := url.Values{"symbol": {symbol}}
	if err := c.getJSON(ctx, "/fapi/v1/premiumIndex", query, fastTimeout, &raw); err != nil {
		return nil, err
	}
	rate, err := strconv.ParseFloat(raw.LastFundingRate, 64)
	if err != nil {
		return nil, nil
	}
	rate *= 100
	return &rate, nil
}

// FetchRecentKlines returns the most recent candles for a symbol at the
// configured interval, oldest first. The last candle may still be open.
func (c *Client) FetchRecentKlines(ctx context.Context, symbol string, limit int) ([]Kline, error) {
	var raw [][]interface{}
	query := url.Values{
		"symbol":   {symbol},
		"interval": {c.interval},
		"limit":    {strconv.Itoa(limit)},
	}
	if err := c.getJSON(ctx, "/fapi/v1/klines", query, klineTimeout, &raw); err != nil {
		return nil, err
	}

	klines := make([]Kline, 0, len(raw))
	for _, row := range raw {
		// open time, O, H, L, C, volume, close time, quote volume, ...
		if len(row) < 8 {
			continue
		}
		klines = append(klines, Kline{
			OpenTime:    time.UnixMilli(int64(asFloat(row[0]))).UTC(),
			CloseTime:   time.UnixMilli(int64(asFloat(row[6]))).UTC(),
			Volume:      asFloat(row[5]),
			QuoteVolume: asFloat(row[7]),
		})
	}
	return klines, nil
}

// FetchOpenInterest returns the outstanding contract quantity for a symbol.
func (c *Client) FetchOpenInterest(ctx context.Context, symbol string) (float64, error) {
	var raw struct {
		OpenInterest string `json:"openInterest"`
		Symbol       string `json:"symbol"`
	}
	query := url.Values{"symbol": {symbol}}
	if err := c.getJSON(ctx, "/fapi/v1/openInterest", query, fastTimeout, &raw); err != nil {
		return 0, err
	}
	oi, err := strconv.ParseFloat(raw.OpenInterest, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "bad open interest for %s", symbol)
	}
	return oi, nil
}

// asFloat handles the mixed number/string cells of kline rows.
func asFloat(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	default:
		return 0
	}
}
