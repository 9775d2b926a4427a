package tier

import "time"

// Subscription levels. Stored as plain ints in the user table.
const (
	Free  = 0
	Pro   = 1
	Elite = 2
)

// Config describes what one subscription level is entitled to. A nil
// AlertLimit or WatchlistLimit means unlimited.
type Config struct {
	Name            string
	RefreshInterval time.Duration
	AlertLimit      *int
	WatchlistLimit  *int
	MinQuoteVolume  float64
	VolumeMultiple  float64
	ShowAds         bool
	Features        map[string]bool
}

func intPtr(v int) *int { return &v }

var tiers = map[int]Config{
	Free: {
		Name:            "Free",
		RefreshInterval: 15 * time.Minute,
		AlertLimit:      intPtr(10),
		WatchlistLimit:  intPtr(50),
		MinQuoteVolume:  0,
		VolumeMultiple:  3,
		ShowAds:         true,
		Features: map[string]bool{
			"core_dashboard":   true,
			"auto_refresh":     true,
			"basic_alerts":     true,
			"watchlist_export": true,
		},
	},
	Pro: {
		Name:            "Pro",
		RefreshInterval: 5 * time.Minute,
		AlertLimit:      intPtr(30),
		WatchlistLimit:  nil,
		MinQuoteVolume:  3_000_000,
		VolumeMultiple:  3,
		ShowAds:         false,
		Features: map[string]bool{
			"core_dashboard":     true,
			"auto_refresh":       true,
			"manual_refresh":     true,
			"basic_alerts":       true,
			"email_alerts":       true,
			"custom_thresholds":  true,
			"watchlist_export":   true,
			"enhanced_export":    true,
			"additional_metrics": true,
			"theme_persistence":  true,
			"advanced_filters":   true,
		},
	},
	Elite: {
		Name:            "Elite",
		RefreshInterval: 30 * time.Second,
		AlertLimit:      nil,
		WatchlistLimit:  nil,
		MinQuoteVolume:  3_000_000,
		VolumeMultiple:  3,
		ShowAds:         false,
		Features: map[string]bool{
			"core_dashboard":     true,
			"auto_refresh":       true,
			"manual_refresh":     true,
			"real_time_updates":  true,
			"basic_alerts":       true,
			"email_alerts":       true,
			"sms_alerts":         true,
			"telegram_alerts":    true,
			"discord_alerts":     true,
			"custom_thresholds":  true,
			"watchlist_export":   true,
			"enhanced_export":    true,
			"additional_metrics": true,
			"historical_data":    true,
			"advanced_filters":   true,
			"multi_exchange":     true,
			"api_access":         true,
			"theme_persistence":  true,
		},
	},
}

// Get returns the tier config for a level, falling back to Free for
// anything out of range.
func Get(level int) Config {
	if c, ok := tiers[level]; ok {
		return c
	}
	return tiers[Free]
}

// HasFeature reports whether a feature flag is enabled at the given level.
func HasFeature(level int, feature string) bool {
	return Get(level).Features[feature]
}

// AlertLimit returns the alert-history cap for a level, nil for unlimited.
func AlertLimit(level int) *int {
	return Get(level).AlertLimit
}

// WatchlistLimit returns the export cap for a level, nil for unlimited.
func WatchlistLimit(level int) *int {
	return Get(level).WatchlistLimit
}
