package alert

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volspike/internal/exchange"
	"volspike/internal/types"
)

type fakeSource struct {
	mu     sync.Mutex
	klines map[string][]exchange.Kline
	errs   map[string]error
}

func (f *fakeSource) FetchRecentKlines(ctx context.Context, symbol string, limit int) ([]exchange.Kline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[symbol]; err != nil {
		return nil, err
	}
	klines := f.klines[symbol]
	if len(klines) > limit {
		klines = klines[len(klines)-limit:]
	}
	out := make([]exchange.Kline, len(klines))
	copy(out, klines)
	return out, nil
}

func (f *fakeSource) FetchSymbolTicker(ctx context.Context, symbol string) (exchange.Ticker, error) {
	return exchange.Ticker{Symbol: symbol, LastPrice: 100}, nil
}

func (f *fakeSource) FetchSymbolFunding(ctx context.Context, symbol string) (*float64, error) {
	rate := 0.01
	return &rate, nil
}

func (f *fakeSource) setKlines(symbol string, klines []exchange.Kline) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.klines == nil {
		f.klines = make(map[string][]exchange.Kline)
	}
	f.klines[symbol] = klines
}

type fakeSymbols struct {
	symbols []string
}

func (f *fakeSymbols) ActiveSymbols(ctx context.Context) []string {
	return f.symbols
}

type recordingDispatcher struct {
	events chan types.AlertEvent
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{events: make(chan types.AlertEvent, 64)}
}

func (d *recordingDispatcher) Dispatch(event types.AlertEvent, extra types.AlertContext) {
	d.events <- event
}

func (d *recordingDispatcher) await(t *testing.T) types.AlertEvent {
	t.Helper()
	select {
	case ev := <-d.events:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no alert dispatched within a second")
		return types.AlertEvent{}
	}
}

// hourCandle builds a closed 1h candle opening at the given instant.
func hourCandle(open time.Time, quoteVolume float64) exchange.Kline {
	return exchange.Kline{
		OpenTime:    open,
		CloseTime:   open.Add(time.Hour - time.Millisecond),
		QuoteVolume: quoteVolume,
	}
}

func newTestEngine(source *fakeSource, symbols []string, dispatcher Dispatcher, at time.Time) *Engine {
	e := NewEngine(source, &fakeSymbols{symbols: symbols}, dispatcher, Config{
		VolumeMultiple: 3,
		MinQuoteVolume: 3_000_000,
	})
	e.timeNow = func() time.Time { return at }
	return e
}

func (e *Engine) setNow(at time.Time) {
	e.timeNow = func() time.Time { return at }
}

var baseHour = time.Date(2024, 5, 14, 10, 0, 0, 0, time.UTC)

func spikeKlines() []exchange.Kline {
	return []exchange.Kline{
		hourCandle(baseHour.Add(-time.Hour), 1_000_000),
		hourCandle(baseHour, 5_000_000),
	}
}

func TestSpikeDetected(t *testing.T) {
	source := &fakeSource{}
	source.setKlines("BTCUSDT", spikeKlines())
	dispatcher := newRecordingDispatcher()
	e := newTestEngine(source, []string{"BTCUSDT"}, dispatcher, baseHour.Add(7*time.Minute))

	e.Scan(context.Background())

	events := e.Log(0)
	require.Len(t, events, 1)
	assert.Equal(t, types.AlertSpike, events[0].Kind)
	assert.Equal(t, "BTC", events[0].Asset)
	assert.Equal(t, "BTC hourly volume $5.00M (5.00× prev) — VOLUME SPIKE!", events[0].Message)

	dispatched := dispatcher.await(t)
	assert.Equal(t, events[0].Message, dispatched.Message)
}

func TestSpikeNotRepeatedWithinHour(t *testing.T) {
	source := &fakeSource{}
	source.setKlines("BTCUSDT", spikeKlines())
	e := newTestEngine(source, []string{"BTCUSDT"}, nil, baseHour.Add(7*time.Minute))

	e.Scan(context.Background())
	e.Scan(context.Background())
	e.setNow(baseHour.Add(12 * time.Minute))
	e.Scan(context.Background())

	assert.Len(t, e.Log(0), 1, "one spike per symbol per hour")
}

func TestBelowMultipleNoAlert(t *testing.T) {
	source := &fakeSource{}
	source.setKlines("BTCUSDT", []exchange.Kline{
		hourCandle(baseHour.Add(-time.Hour), 2_000_000),
		hourCandle(baseHour, 5_000_000),
	})
	e := newTestEngine(source, []string{"BTCUSDT"}, nil, baseHour.Add(7*time.Minute))

	e.Scan(context.Background())

	assert.Empty(t, e.Log(0))
}

func TestBelowVolumeFloorNoAlert(t *testing.T) {
	source := &fakeSource{}
	source.setKlines("BTCUSDT", []exchange.Kline{
		hourCandle(baseHour.Add(-time.Hour), 100_000),
		hourCandle(baseHour, 1_000_000),
	})
	e := newTestEngine(source, []string{"BTCUSDT"}, nil, baseHour.Add(7*time.Minute))

	e.Scan(context.Background())

	assert.Empty(t, e.Log(0), "10x on thin volume stays silent")
}

func TestZeroPreviousVolumeNoAlert(t *testing.T) {
	source := &fakeSource{}
	source.setKlines("NEWUSDT", []exchange.Kline{
		hourCandle(baseHour.Add(-time.Hour), 0),
		hourCandle(baseHour, 50_000_000),
	})
	e := newTestEngine(source, []string{"NEWUSDT"}, nil, baseHour.Add(7*time.Minute))

	e.Scan(context.Background())

	assert.Empty(t, e.Log(0), "a listing with no prior volume never divides by zero into an alert")
}

func TestHalfUpdateAtMinuteThirty(t *testing.T) {
	source := &fakeSource{}
	source.setKlines("BTCUSDT", spikeKlines())
	e := newTestEngine(source, []string{"BTCUSDT"}, nil, baseHour.Add(5*time.Minute))

	e.Scan(context.Background())
	e.setNow(baseHour.Add(30 * time.Minute))
	source.setKlines("BTCUSDT", []exchange.Kline{
		hourCandle(baseHour.Add(-time.Hour), 1_000_000),
		hourCandle(baseHour, 8_000_000),
	})
	e.Scan(context.Background())

	events := e.Log(0)
	require.Len(t, events, 2)
	assert.Equal(t, types.AlertHalfUpdate, events[1].Kind)
	assert.Equal(t, "HALF-UPDATE: BTC hourly volume $8.00M (8.00× prev) — VOLUME SPIKE!", events[1].Message)
}

func TestHalfUpdateSuppressedForLateSpike(t *testing.T) {
	source := &fakeSource{}
	source.setKlines("BTCUSDT", spikeKlines())
	e := newTestEngine(source, []string{"BTCUSDT"}, nil, baseHour.Add(25*time.Minute))

	e.Scan(context.Background())
	e.setNow(baseHour.Add(30 * time.Minute))
	e.Scan(context.Background())

	assert.Len(t, e.Log(0), 1, "spike after minute 20 gets no half-hour recap")
}

func TestUpdateAtNextTopOfHour(t *testing.T) {
	source := &fakeSource{}
	source.setKlines("BTCUSDT", spikeKlines())
	e := newTestEngine(source, []string{"BTCUSDT"}, nil, baseHour.Add(5*time.Minute))

	e.Scan(context.Background())

	nextHour := baseHour.Add(time.Hour)
	e.setNow(nextHour)
	source.setKlines("BTCUSDT", []exchange.Kline{
		hourCandle(baseHour.Add(-time.Hour), 1_000_000),
		hourCandle(baseHour, 9_000_000),
		{OpenTime: nextHour, CloseTime: nextHour.Add(time.Hour - time.Millisecond), QuoteVolume: 100_000},
	})
	e.Scan(context.Background())

	events := e.Log(0)
	require.Len(t, events, 2)
	assert.Equal(t, types.AlertFullUpdate, events[1].Kind)
	assert.Equal(t, "UPDATE: BTC hourly volume $9.00M (9.00× prev) — VOLUME SPIKE!", events[1].Message)
}

func TestUpdateSuppressedForMinute55Spike(t *testing.T) {
	source := &fakeSource{}
	source.setKlines("BTCUSDT", spikeKlines())
	e := newTestEngine(source, []string{"BTCUSDT"}, nil, baseHour.Add(55*time.Minute))

	e.Scan(context.Background())
	require.Len(t, e.Log(0), 1)

	nextHour := baseHour.Add(time.Hour)
	e.setNow(nextHour)
	source.setKlines("BTCUSDT", []exchange.Kline{
		hourCandle(baseHour.Add(-time.Hour), 1_000_000),
		hourCandle(baseHour, 9_000_000),
		{OpenTime: nextHour, CloseTime: nextHour.Add(time.Hour - time.Millisecond), QuoteVolume: 100_000},
	})
	e.Scan(context.Background())

	assert.Len(t, e.Log(0), 1, "a spike at minute 55 already covers the full hour")
}

func TestTopOfHourIgnoresUnclosedCandle(t *testing.T) {
	now := baseHour.Add(time.Hour)
	source := &fakeSource{}
	// only one candle has closed, the boundary one is still open
	source.setKlines("BTCUSDT", []exchange.Kline{
		hourCandle(baseHour, 9_000_000),
		{OpenTime: now, CloseTime: now.Add(time.Hour - time.Millisecond), QuoteVolume: 50_000_000},
	})
	e := newTestEngine(source, []string{"BTCUSDT"}, nil, now)

	e.Scan(context.Background())

	assert.Empty(t, e.Log(0), "an open candle must never be compared")
}

func TestScanContinuesPastFailingSymbol(t *testing.T) {
	source := &fakeSource{errs: map[string]error{"AAAUSDT": errors.New("timeout")}}
	source.setKlines("BTCUSDT", spikeKlines())
	e := newTestEngine(source, []string{"AAAUSDT", "BTCUSDT"}, nil, baseHour.Add(7*time.Minute))

	e.Scan(context.Background())

	events := e.Log(0)
	require.Len(t, events, 1)
	assert.Equal(t, "BTC", events[0].Asset)
}

func TestLogCappedAtLimit(t *testing.T) {
	source := &fakeSource{}
	symbols := make([]string, 35)
	for i := range symbols {
		symbols[i] = fmt.Sprintf("S%02dUSDT", i+1)
		source.setKlines(symbols[i], spikeKlines())
	}
	e := newTestEngine(source, symbols, nil, baseHour.Add(7*time.Minute))

	e.Scan(context.Background())

	events := e.Log(0)
	require.Len(t, events, 30, "log keeps the newest 30 alerts")
	assert.Equal(t, "S06", events[0].Asset)
	assert.Equal(t, "S35", events[29].Asset)
}

func TestLogReturnsMostRecentOldestFirst(t *testing.T) {
	source := &fakeSource{}
	source.setKlines("BTCUSDT", spikeKlines())
	source.setKlines("ETHUSDT", spikeKlines())
	source.setKlines("SOLUSDT", spikeKlines())
	e := newTestEngine(source, []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}, nil, baseHour.Add(7*time.Minute))

	e.Scan(context.Background())

	events := e.Log(2)
	require.Len(t, events, 2)
	assert.Equal(t, "ETH", events[0].Asset)
	assert.Equal(t, "SOL", events[1].Asset)
}
