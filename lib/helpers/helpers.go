package helpers

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func EscapeMarkdownV2(text string) string {
	charactersToEscape := []string{".", "-", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "=", "|", "{", "}", "!"}

	for _, char := range charactersToEscape {
		text = strings.ReplaceAll(text, char, "\\"+char)
	}
	return text
}

// FormatVolume renders a quote volume as $X.XXB / $X.XXM / $X.XXK, falling
// back to a comma separated dollar amount below one thousand.
func FormatVolume(volume float64) string {
	return "$" + FormatAlertVolume(volume)
}

// FormatAlertVolume is FormatVolume without the dollar prefix, matching the
// volume string embedded in alert messages.
func FormatAlertVolume(volume float64) string {
	switch {
	case volume >= 1e9:
		return fmt.Sprintf("%.2fB", volume/1e9)
	case volume >= 1e6:
		return fmt.Sprintf("%.2fM", volume/1e6)
	case volume >= 1e3:
		return fmt.Sprintf("%.2fK", volume/1e3)
	default:
		return humanize.CommafWithDigits(volume, 0)
	}
}

// FormatPrice renders a price with precision depending on its magnitude.
// No digit grouping; this is the compact form shown in snapshot rows.
func FormatPrice(price float64) string {
	return fmt.Sprintf("$%.*f", priceDecimals(price), price)
}

// FormatAlertPrice is the price form used in outbound alert messages,
// with thousands separators for readability.
func FormatAlertPrice(price float64) string {
	p := message.NewPrinter(language.English)
	return p.Sprintf("$%.*f", priceDecimals(price), price)
}

func priceDecimals(price float64) int {
	switch {
	case price < 0.01:
		return 6
	case price < 1:
		return 4
	case price < 100:
		return 3
	default:
		return 2
	}
}

// FormatFundingRate renders a funding rate percentage, with a placeholder
// when the exchange has no funding data for the asset.
func FormatFundingRate(rate *float64) string {
	if rate == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.4f%%", *rate)
}
