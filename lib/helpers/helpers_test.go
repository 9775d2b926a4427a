package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatVolume(t *testing.T) {
	tests := []struct {
		volume float64
		want   string
	}{
		{2_400_000_000, "$2.40B"},
		{1_000_000_000, "$1.00B"},
		{15_750_000, "$15.75M"},
		{3_000_000, "$3.00M"},
		{64_500, "$64.50K"},
		{1_000, "$1.00K"},
		{512, "$512"},
		{0, "$0"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatVolume(tt.volume))
	}
}

func TestFormatAlertVolumeHasNoDollarPrefix(t *testing.T) {
	assert.Equal(t, "5.00M", FormatAlertVolume(5_000_000))
}

func TestFormatPricePrecisionByMagnitude(t *testing.T) {
	tests := []struct {
		price float64
		want  string
	}{
		{0.001234, "$0.001234"},
		{0.5, "$0.5000"},
		{45.678, "$45.678"},
		{99.9994, "$99.999"},
		{1234.5, "$1234.50"},
		{65000.5, "$65000.50"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatPrice(tt.price))
	}
}

func TestFormatAlertPriceGroupsThousands(t *testing.T) {
	assert.Equal(t, "$65,000.50", FormatAlertPrice(65000.5))
	assert.Equal(t, "$1,234.50", FormatAlertPrice(1234.5))
	assert.Equal(t, "$0.001234", FormatAlertPrice(0.001234))
	assert.Equal(t, "$45.678", FormatAlertPrice(45.678))
}

func TestFormatFundingRate(t *testing.T) {
	assert.Equal(t, "N/A", FormatFundingRate(nil))

	rate := 0.0123
	assert.Equal(t, "0.0123%", FormatFundingRate(&rate))

	negative := -0.25
	assert.Equal(t, "-0.2500%", FormatFundingRate(&negative))
}

func TestEscapeMarkdownV2(t *testing.T) {
	assert.Equal(t, `BTC\-USDT\!`, EscapeMarkdownV2("BTC-USDT!"))
	assert.Equal(t, `\*bold\* \(x\)`, EscapeMarkdownV2("*bold* (x)"))
}
