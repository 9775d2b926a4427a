package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"volspike/internal/chart"
	"volspike/internal/exchange"
	"volspike/internal/tier"
	"volspike/internal/types"
)

const chartCacheTTL = 5 * time.Minute
const chartHistoryHours = 7 * 24

// SnapshotSource is the cache surface the request layer reads.
type SnapshotSource interface {
	GetSnapshot(ctx context.Context, extended bool) ([]types.SnapshotEntry, time.Time, error)
	Age() time.Duration
	RefreshBothBackground(ctx context.Context)
}

// AlertLog exposes the rolling alert log.
type AlertLog interface {
	Log(limit int) []types.AlertEvent
}

// TierResolver maps an API key to a subscription level.
type TierResolver interface {
	TierByAPIKey(apiKey string) (int, bool, error)
}

// KlineSource fetches candle history for chart rendering.
type KlineSource interface {
	FetchRecentKlines(ctx context.Context, symbol string, limit int) ([]exchange.Kline, error)
}

type chartCacheItem struct {
	data       []byte
	expiration time.Time
}

// Server is the JSON API consumed by the dashboard frontend. Requests
// never trigger synchronous fetches except on a cold cache; a stale cache
// only kicks off a background refresh.
type Server struct {
	cache           SnapshotSource
	alerts          AlertLog
	tiers           TierResolver
	klines          KlineSource
	refreshInterval time.Duration

	chartMu    sync.Mutex
	chartCache map[string]*chartCacheItem
}

func New(cache SnapshotSource, alerts AlertLog, tiers TierResolver, klines KlineSource, refreshInterval time.Duration) *Server {
	return &Server{
		cache:           cache,
		alerts:          alerts,
		tiers:           tiers,
		klines:          klines,
		refreshInterval: refreshInterval,
		chartCache:      make(map[string]*chartCacheItem),
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/data", s.handleData)
	mux.HandleFunc("GET /api/alerts", s.handleAlerts)
	mux.HandleFunc("GET /api/watchlist", s.handleWatchlist)
	mux.HandleFunc("GET /api/chart/{asset}", s.handleChart)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// tierOf resolves the requester's tier from the X-API-Key header. Missing
// or unknown keys are treated as Free, matching guest access.
func (s *Server) tierOf(r *http.Request) int {
	apiKey := r.Header.Get("X-API-Key")
	if apiKey == "" {
		return tier.Free
	}
	level, found, err := s.tiers.TierByAPIKey(apiKey)
	if err != nil {
		log.Errorf("api key lookup failed: %v", err)
		return tier.Free
	}
	if !found {
		return tier.Free
	}
	return level
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	level := s.tierOf(r)
	extended := tier.HasFeature(level, "additional_metrics")

	s.maybeRefresh()

	entries, updated, err := s.cache.GetSnapshot(r.Context(), extended)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": false,
			"error":   "data temporarily unavailable",
			"data":    []types.SnapshotEntry{},
		})
		return
	}

	limited := false
	if limit := tier.WatchlistLimit(level); limit != nil && len(entries) > *limit {
		entries = entries[:*limit]
		limited = true
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"data":        entries,
		"timestamp":   updated.UTC().Format(time.RFC3339),
		"age_seconds": int(time.Since(updated).Seconds()),
		"tier":        level,
		"limited":     limited,
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	level := s.tierOf(r)

	limit := 0
	if l := tier.AlertLimit(level); l != nil {
		limit = *l
	}
	events := s.alerts.Log(limit)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"alerts":  events,
		"count":   len(events),
		"tier":    level,
		"limited": limit > 0,
		"limit":   limit,
	})
}

func (s *Server) handleWatchlist(w http.ResponseWriter, r *http.Request) {
	level := s.tierOf(r)

	entries, _, err := s.cache.GetSnapshot(r.Context(), false)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": false,
			"error":   "data temporarily unavailable",
		})
		return
	}

	limited := false
	if limit := tier.WatchlistLimit(level); limit != nil && len(entries) > *limit {
		entries = entries[:*limit]
		limited = true
	}

	symbols := make([]string, 0, len(entries))
	for _, e := range entries {
		symbols = append(symbols, "BINANCE:"+e.Asset+"USDT.P")
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"watchlist": strings.Join(symbols, "\n"),
		"count":     len(symbols),
		"tier":      level,
		"limited":   limited,
	})
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	level := s.tierOf(r)
	if !tier.HasFeature(level, "historical_data") {
		writeJSON(w, http.StatusForbidden, map[string]interface{}{
			"success": false,
			"error":   "historical data requires the Elite tier",
		})
		return
	}

	asset := strings.ToUpper(r.PathValue("asset"))
	if asset == "" {
		http.NotFound(w, r)
		return
	}

	if png, ok := s.chartFromCache(asset); ok {
		writePNG(w, png)
		return
	}

	klines, err := s.klines.FetchRecentKlines(r.Context(), asset+"USDT", chartHistoryHours)
	if err != nil {
		log.Errorf("chart kline fetch failed for %s: %v", asset, err)
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"success": false,
			"error":   "data temporarily unavailable",
		})
		return
	}

	points := make([]types.VolumePoint, 0, len(klines))
	for _, k := range klines {
		points = append(points, types.VolumePoint{Time: k.OpenTime, Volume: k.QuoteVolume})
	}

	png, err := chart.RenderVolumeHistory(asset, points)
	if err != nil {
		log.Errorf("chart render failed for %s: %v", asset, err)
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"success": false,
			"error":   "no history for asset",
		})
		return
	}

	s.chartToCache(asset, png)
	writePNG(w, png)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// maybeRefresh opportunistically kicks a background refresh when the
// cache has outlived the refresh interval. The cache's own guard keeps
// concurrent kicks from stacking.
func (s *Server) maybeRefresh() {
	if s.cache.Age() > s.refreshInterval {
		go s.cache.RefreshBothBackground(context.Background())
	}
}

func (s *Server) chartFromCache(asset string) ([]byte, bool) {
	s.chartMu.Lock()
	defer s.chartMu.Unlock()
	if item, found := s.chartCache[asset]; found && time.Now().Before(item.expiration) {
		return item.data, true
	}
	return nil, false
}

func (s *Server) chartToCache(asset string, data []byte) {
	s.chartMu.Lock()
	defer s.chartMu.Unlock()
	s.chartCache[asset] = &chartCacheItem{
		data:       data,
		expiration: time.Now().Add(chartCacheTTL),
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Errorf("failed to encode response: %v", err)
	}
}

func writePNG(w http.ResponseWriter, png []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}
