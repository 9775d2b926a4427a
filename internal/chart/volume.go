package chart

import (
	"bytes"

	"github.com/golang/freetype/truetype"
	"github.com/pkg/errors"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"volspike/internal/types"
	"volspike/lib/helpers"
)

var (
	seriesColor     = drawing.Color{R: 0, G: 122, B: 255, A: 255}
	seriesFillColor = drawing.Color{R: 0, G: 122, B: 255, A: 25}
	backgroundColor = drawing.Color{R: 55, G: 55, B: 55, A: 255}
	textColor       = drawing.Color{R: 200, G: 200, B: 200, A: 255}
)

// RenderVolumeHistory draws an hourly quote-volume time series as a dark
// themed PNG, used for the historical view of top assets.
func RenderVolumeHistory(asset string, points []types.VolumePoint) ([]byte, error) {
	if len(points) < 2 {
		return nil, errors.Errorf("not enough volume history for %s: %d points", asset, len(points))
	}

	font, err := chart.GetDefaultFont()
	if err != nil {
		return nil, errors.Wrap(err, "load chart font")
	}

	xValues := make([]float64, 0, len(points))
	yValues := make([]float64, 0, len(points))
	for _, p := range points {
		// go-chart time formatters expect nanosecond x values
		xValues = append(xValues, float64(p.Time.UnixNano()))
		yValues = append(yValues, p.Volume)
	}

	graph := chart.Chart{
		Title:      asset + " hourly volume",
		TitleStyle: labelStyle(font),
		Width:      800,
		Height:     360,
		Background: chart.Style{FillColor: backgroundColor},
		Canvas:     chart.Style{FillColor: backgroundColor},
		Font:       font,
		XAxis: chart.XAxis{
			Style: labelStyle(font),
			ValueFormatter: func(v interface{}) string {
				return chart.TimeValueFormatterWithFormat("01-02 15:04")(v)
			},
		},
		YAxis: chart.YAxis{
			Style: labelStyle(font),
			ValueFormatter: func(v interface{}) string {
				f, ok := v.(float64)
				if !ok {
					return ""
				}
				return helpers.FormatVolume(f)
			},
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Style: chart.Style{
					StrokeColor: seriesColor,
					StrokeWidth: 2,
					FillColor:   seriesFillColor,
				},
				XValues: xValues,
				YValues: yValues,
			},
		},
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, errors.Wrapf(err, "render volume chart for %s", asset)
	}
	return buf.Bytes(), nil
}

func labelStyle(font *truetype.Font) chart.Style {
	return chart.Style{
		Font:      font,
		FontColor: textColor,
	}
}
