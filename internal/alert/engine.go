package alert

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"volspike/internal/exchange"
	"volspike/internal/types"
	"volspike/lib/helpers"
)

// Follow-up suppression thresholds. A half-hour recap only goes out when
// the spike fired in the first 20 minutes of its hour; the full-hour recap
// is suppressed when the spike fired at minute 55.
const (
	halfUpdateMaxMinute  = 20
	suppressUpdateMinute = 55
)

// KlineSource is the slice of the exchange client the engine needs: recent
// candles for detection plus fresh per-symbol data for notifications.
type KlineSource interface {
	FetchRecentKlines(ctx context.Context, symbol string, limit int) ([]exchange.Kline, error)
	FetchSymbolTicker(ctx context.Context, symbol string) (exchange.Ticker, error)
	FetchSymbolFunding(ctx context.Context, symbol string) (*float64, error)
}

// SymbolSource provides the active symbol universe to scan.
type SymbolSource interface {
	ActiveSymbols(ctx context.Context) []string
}

// Dispatcher receives every emitted alert together with supplementary data
// for external channels. Implementations must not block for long and must
// swallow their own delivery failures.
type Dispatcher interface {
	Dispatch(event types.AlertEvent, extra types.AlertContext)
}

type Config struct {
	VolumeMultiple float64
	MinQuoteVolume float64
	LogLimit       int
}

// Engine is the per-symbol volume spike state machine. All state lives in
// memory for the process lifetime.
type Engine struct {
	source     KlineSource
	symbols    SymbolSource
	dispatcher Dispatcher
	cfg        Config

	mu              sync.Mutex
	lastAlertedHour map[string]time.Time
	initialMinute   map[string]int
	events          []types.AlertEvent

	timeNow func() time.Time // for testing
}

func NewEngine(source KlineSource, symbols SymbolSource, dispatcher Dispatcher, cfg Config) *Engine {
	if cfg.LogLimit <= 0 {
		cfg.LogLimit = 30
	}
	return &Engine{
		source:          source,
		symbols:         symbols,
		dispatcher:      dispatcher,
		cfg:             cfg,
		lastAlertedHour: make(map[string]time.Time),
		initialMinute:   make(map[string]int),
		timeNow:         time.Now,
	}
}

// Scan runs one detection cycle over every active symbol. Failures on a
// single symbol are logged and skipped; they never abort the cycle.
func (e *Engine) Scan(ctx context.Context) {
	now := e.timeNow().UTC()
	topOfHour := now.Minute() == 0
	midHour := now.Minute() == 30

	for _, symbol := range e.symbols.ActiveSymbols(ctx) {
		if err := e.scanSymbol(ctx, symbol, now, topOfHour, midHour); err != nil {
			log.Debugf("alert scan skipped %s: %v", symbol, err)
		}
	}
}

func (e *Engine) scanSymbol(ctx context.Context, symbol string, now time.Time, topOfHour, midHour bool) error {
	prev, curr, ok, err := e.comparableCandles(ctx, symbol, now, topOfHour)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	ratio := 0.0
	if prev.QuoteVolume > 0 {
		ratio = curr.QuoteVolume / prev.QuoteVolume
	}
	currHour := curr.OpenTime.Truncate(time.Hour)

	e.mu.Lock()
	alreadyAlerted := e.lastAlertedHour[symbol].Equal(currHour)

	spike := ratio >= e.cfg.VolumeMultiple &&
		curr.QuoteVolume >= e.cfg.MinQuoteVolume &&
		!alreadyAlerted

	kind := types.AlertSpike
	prefix := ""
	followUp := false
	if alreadyAlerted {
		initialMin := e.initialMinute[symbol]
		if midHour && initialMin <= halfUpdateMaxMinute {
			prefix = "HALF-UPDATE: "
			kind = types.AlertHalfUpdate
			followUp = true
		} else if topOfHour && initialMin != suppressUpdateMinute {
			prefix = "UPDATE: "
			kind = types.AlertFullUpdate
			followUp = true
		}
	}

	if spike {
		e.lastAlertedHour[symbol] = currHour
		e.initialMinute[symbol] = now.Minute()
	}

	var event types.AlertEvent
	if spike || followUp {
		asset := strings.TrimSuffix(symbol, "USDT")
		event = types.AlertEvent{
			Timestamp: now,
			Symbol:    symbol,
			Asset:     asset,
			Kind:      kind,
			Volume:    curr.QuoteVolume,
			Ratio:     ratio,
			Message: fmt.Sprintf("%s%s hourly volume $%s (%.2f× prev) — VOLUME SPIKE!",
				prefix, asset, helpers.FormatAlertVolume(curr.QuoteVolume), ratio),
		}
		e.appendLocked(event)
	}
	e.mu.Unlock()

	if spike || followUp {
		log.Infof("alert emitted: %s", event.Message)
		e.dispatch(ctx, event)
	}
	return nil
}

// comparableCandles picks the prev/curr pair per checkpoint rules. At the
// top of the hour only candles whose close time is strictly before now
// count, so a boundary candle that has not closed yet is never compared.
func (e *Engine) comparableCandles(ctx context.Context, symbol string, now time.Time, topOfHour bool) (prev, curr exchange.Kline, ok bool, err error) {
	if topOfHour {
		klines, err := e.source.FetchRecentKlines(ctx, symbol, 3)
		if err != nil {
			return prev, curr, false, err
		}
		closed := klines[:0]
		for _, k := range klines {
			if k.CloseTime.Before(now) {
				closed = append(closed, k)
			}
		}
		if len(closed) < 2 {
			return prev, curr, false, nil
		}
		return closed[len(closed)-2], closed[len(closed)-1], true, nil
	}

	klines, err := e.source.FetchRecentKlines(ctx, symbol, 2)
	if err != nil {
		return prev, curr, false, err
	}
	if len(klines) < 2 {
		return prev, curr, false, nil
	}
	return klines[len(klines)-2], klines[len(klines)-1], true, nil
}

func (e *Engine) appendLocked(event types.AlertEvent) {
	e.events = append(e.events, event)
	if len(e.events) > e.cfg.LogLimit {
		e.events = e.events[len(e.events)-e.cfg.LogLimit:]
	}
}

// dispatch hands the event to the dispatcher on a short-lived goroutine so
// the scan never blocks on delivery. Price and funding are fetched fresh
// at alert time for the external channels.
func (e *Engine) dispatch(ctx context.Context, event types.AlertEvent) {
	if e.dispatcher == nil {
		return
	}
	go func() {
		extra := types.AlertContext{}
		if ticker, err := e.source.FetchSymbolTicker(ctx, event.Symbol); err == nil {
			extra.Price = ticker.LastPrice
		} else {
			log.Debugf("supplementary ticker fetch failed for %s: %v", event.Symbol, err)
		}
		if rate, err := e.source.FetchSymbolFunding(ctx, event.Symbol); err == nil {
			extra.FundingRate = rate
		} else {
			log.Debugf("supplementary funding fetch failed for %s: %v", event.Symbol, err)
		}
		e.dispatcher.Dispatch(event, extra)
	}()
}

// Log returns up to limit of the most recent events, oldest first. A
// limit of zero or less returns the whole retained log.
func (e *Engine) Log(limit int) []types.AlertEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	events := e.events
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	out := make([]types.AlertEvent, len(events))
	copy(out, events)
	return out
}
