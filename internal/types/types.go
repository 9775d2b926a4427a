package types

import "time"

// AlertKind distinguishes the initial spike from its follow-up recaps.
type AlertKind string

const (
	AlertSpike      AlertKind = "spike"
	AlertHalfUpdate AlertKind = "half-update"
	AlertFullUpdate AlertKind = "full-update"
)

// AlertEvent is one entry of the rolling alert log.
type AlertEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol"`
	Asset     string    `json:"asset"`
	Message   string    `json:"message"`
	Kind      AlertKind `json:"kind"`
	Volume    float64   `json:"volume"`
	Ratio     float64   `json:"ratio"`
}

// AlertContext carries supplementary data fetched at alert time for
// external delivery channels. FundingRate is nil when the exchange has
// no funding data for the asset.
type AlertContext struct {
	Price       float64  `json:"price"`
	FundingRate *float64 `json:"funding_rate"`
}

// SnapshotEntry is one row of a market snapshot. The extended fields are
// only populated for the extended cache slot.
type SnapshotEntry struct {
	Asset            string   `json:"asset"`
	Symbol           string   `json:"symbol"`
	Volume           float64  `json:"volume"`
	Price            float64  `json:"price"`
	FundingRate      *float64 `json:"funding_rate"`
	VolumeFormatted  string   `json:"volume_formatted"`
	PriceFormatted   string   `json:"price_formatted"`
	FundingFormatted string   `json:"funding_formatted"`

	PriceChangePercent float64 `json:"price_change_percent,omitempty"`
	OpenInterest       float64 `json:"open_interest,omitempty"`
	OpenInterestUSD    float64 `json:"open_interest_usd,omitempty"`
	LiquidationRisk    string  `json:"liquidation_risk,omitempty"`
}

// Recipient is the delivery capability set of one user, resolved once at
// the database boundary. An empty field means the channel is not
// configured for that user. Email delivery additionally requires the
// explicit opt-in flag; the other channels are implied by their endpoint
// being set.
type Recipient struct {
	UserID             int64
	Email              string
	EmailAlertsEnabled bool
	Tier               int
	PhoneNumber        string
	TelegramChatID     int64
	DiscordWebhook     string
}

// VolumePoint is one hourly volume observation, used for chart rendering.
type VolumePoint struct {
	Time   time.Time
	Volume float64
}
