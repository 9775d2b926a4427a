package market

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"volspike/internal/exchange"
	"volspike/internal/types"
	"volspike/lib/helpers"
)

// Fetcher is the slice of the exchange client the cache needs.
type Fetcher interface {
	FetchActiveSymbols(ctx context.Context) (map[string]struct{}, error)
	FetchTickerSnapshot(ctx context.Context) ([]exchange.Ticker, error)
	FetchFundingRates(ctx context.Context) (map[string]float64, error)
	FetchOpenInterest(ctx context.Context, symbol string) (float64, error)
}

type Config struct {
	// MinQuoteVolume is the floor below which symbols are dropped from
	// snapshots entirely.
	MinQuoteVolume float64
	// OpenInterestWorkers bounds the per-symbol open interest fetches of
	// an extended refresh.
	OpenInterestWorkers int
}

type slot struct {
	entries []types.SnapshotEntry
	updated time.Time
}

// Cache holds the two processed snapshot slots ("basic" and "extended")
// and owns the refresh routine that rebuilds them.
type Cache struct {
	fetcher Fetcher
	cfg     Config

	mu       sync.RWMutex
	basic    slot
	extended slot

	refreshing atomic.Bool

	symMu   sync.Mutex
	symbols map[string]struct{}
}

func NewCache(fetcher Fetcher, cfg Config) *Cache {
	if cfg.OpenInterestWorkers <= 0 {
		cfg.OpenInterestWorkers = 8
	}
	return &Cache{
		fetcher: fetcher,
		cfg:     cfg,
		symbols: make(map[string]struct{}),
	}
}

// ActiveSymbols returns the known active symbol set, sorted, fetching it
// on first use. A fetch failure yields whatever was known before.
func (c *Cache) ActiveSymbols(ctx context.Context) []string {
	c.symMu.Lock()
	defer c.symMu.Unlock()

	if len(c.symbols) == 0 {
		symbols, err := c.fetcher.FetchActiveSymbols(ctx)
		if err != nil {
			log.Errorf("failed to fetch active symbols: %v", err)
		} else {
			c.symbols = symbols
		}
	}

	out := make([]string, 0, len(c.symbols))
	for s := range c.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// RefreshSymbols re-fetches the active symbol set, keeping the previous
// set on failure.
func (c *Cache) RefreshSymbols(ctx context.Context) {
	symbols, err := c.fetcher.FetchActiveSymbols(ctx)
	if err != nil {
		log.Errorf("symbol refresh failed, keeping previous set: %v", err)
		return
	}
	c.symMu.Lock()
	c.symbols = symbols
	c.symMu.Unlock()
}

// GetSnapshot returns the current entries and timestamp for a slot. On
// cold start (slot never populated) it falls back to a synchronous
// refresh so the first reader is not shown an empty page.
func (c *Cache) GetSnapshot(ctx context.Context, extended bool) ([]types.SnapshotEntry, time.Time, error) {
	c.mu.RLock()
	s := c.slotFor(extended)
	entries, updated := s.entries, s.updated
	c.mu.RUnlock()

	if !updated.IsZero() {
		return copyEntries(entries), updated, nil
	}

	refreshed, err := c.Refresh(ctx, extended)
	if err != nil {
		return []types.SnapshotEntry{}, time.Time{}, err
	}

	c.mu.RLock()
	updated = c.slotFor(extended).updated
	c.mu.RUnlock()
	return refreshed, updated, nil
}

// Age reports how long ago the basic slot was refreshed.
func (c *Cache) Age() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.basic.updated.IsZero() {
		return time.Duration(1<<62 - 1)
	}
	return time.Since(c.basic.updated)
}

// Size returns how many entries a slot currently holds.
func (c *Cache) Size(extended bool) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.slotFor(extended).entries)
}

// LastUpdated returns the timestamp of a slot, zero if never populated.
func (c *Cache) LastUpdated(extended bool) time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.slotFor(extended).updated
}

// Refresh rebuilds one slot from scratch: ticker snapshot joined with
// funding rates, filtered by the volume floor and sorted by volume
// descending. The slot is swapped only after everything succeeded, so a
// failed refresh never clears previously cached data.
func (c *Cache) Refresh(ctx context.Context, extended bool) ([]types.SnapshotEntry, error) {
	active := c.ActiveSymbols(ctx)
	if len(active) == 0 {
		return nil, errors.New("no active symbols known")
	}
	activeSet := make(map[string]struct{}, len(active))
	for _, s := range active {
		activeSet[s] = struct{}{}
	}

	tickers, err := c.fetcher.FetchTickerSnapshot(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "ticker snapshot")
	}

	fundingRates, err := c.fetcher.FetchFundingRates(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "funding rates")
	}

	entries := make([]types.SnapshotEntry, 0, len(tickers))
	for _, t := range tickers {
		if !strings.HasSuffix(t.Symbol, "USDT") {
			continue
		}
		if _, ok := activeSet[t.Symbol]; !ok {
			continue
		}
		if t.QuoteVolume <= c.cfg.MinQuoteVolume {
			continue
		}

		asset := strings.TrimSuffix(t.Symbol, "USDT")
		entry := types.SnapshotEntry{
			Asset:           asset,
			Symbol:          t.Symbol,
			Volume:          t.QuoteVolume,
			Price:           t.LastPrice,
			VolumeFormatted: helpers.FormatVolume(t.QuoteVolume),
			PriceFormatted:  helpers.FormatPrice(t.LastPrice),
		}
		if rate, ok := fundingRates[asset]; ok {
			r := rate
			entry.FundingRate = &r
		}
		entry.FundingFormatted = helpers.FormatFundingRate(entry.FundingRate)

		if extended {
			entry.PriceChangePercent = t.PriceChangePercent
			entry.LiquidationRisk = liquidationRisk(entry.FundingRate)
		}

		entries = append(entries, entry)
	}

	if extended {
		c.fillOpenInterest(ctx, entries)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Volume > entries[j].Volume
	})

	c.mu.Lock()
	*c.slotFor(extended) = slot{entries: entries, updated: time.Now().UTC()}
	c.mu.Unlock()

	log.Debugf("refreshed %s snapshot: %d assets", slotName(extended), len(entries))
	return copyEntries(entries), nil
}

// RefreshBothBackground refreshes the basic then the extended slot. A
// second trigger while one is running is a silent no-op.
func (c *Cache) RefreshBothBackground(ctx context.Context) {
	if !c.refreshing.CompareAndSwap(false, true) {
		log.Debug("refresh already in progress, skipping")
		return
	}
	defer c.refreshing.Store(false)

	if _, err := c.Refresh(ctx, false); err != nil {
		log.Errorf("basic snapshot refresh failed: %v", err)
	}
	if _, err := c.Refresh(ctx, true); err != nil {
		log.Errorf("extended snapshot refresh failed: %v", err)
	}
}

func (c *Cache) fillOpenInterest(ctx context.Context, entries []types.SnapshotEntry) {
	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := c.cfg.OpenInterestWorkers
	if workers > len(entries) {
		workers = len(entries)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				oi, err := c.fetcher.FetchOpenInterest(ctx, entries[i].Symbol)
				if err != nil {
					log.Debugf("open interest fetch failed for %s: %v", entries[i].Symbol, err)
					continue
				}
				entries[i].OpenInterest = oi
				entries[i].OpenInterestUSD = oi * entries[i].Price
			}
		}()
	}

	for i := range entries {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}

func (c *Cache) slotFor(extended bool) *slot {
	if extended {
		return &c.extended
	}
	return &c.basic
}

func slotName(extended bool) string {
	if extended {
		return "extended"
	}
	return "basic"
}

func copyEntries(entries []types.SnapshotEntry) []types.SnapshotEntry {
	out := make([]types.SnapshotEntry, len(entries))
	copy(out, entries)
	return out
}

// liquidationRisk maps funding magnitude to a qualitative label. Funding
// is a percentage here, so 0.05 means 0.05%.
func liquidationRisk(rate *float64) string {
	if rate == nil {
		return "Low"
	}
	abs := *rate
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 0.15:
		return "High"
	case abs >= 0.05:
		return "Medium"
	default:
		return "Low"
	}
}
