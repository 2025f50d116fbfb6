package screen

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/bobmcallan/vire-screener/internal/models"
	"github.com/bobmcallan/vire-screener/internal/signals"
)

// RenderChart renders a PNG line chart of closes with an optional moving average overlay.
// maType may be empty for closes only. Returns raw PNG bytes.
func RenderChart(series []models.Bar, maType string, window int) ([]byte, error) {
	if len(series) < 2 {
		return nil, fmt.Errorf("need at least 2 bars, got %d", len(series))
	}

	xValues := make([]time.Time, len(series))
	closes := signals.Closes(series)
	for i, b := range series {
		xValues[i] = b.Date
	}

	chartSeries := []chart.Series{
		chart.TimeSeries{
			Name: "Close",
			Style: chart.Style{
				StrokeColor: drawing.ColorFromHex("2563eb"), // blue-600
				StrokeWidth: 2,
			},
			XValues: xValues,
			YValues: closes,
		},
	}

	if maType != "" && window > 0 {
		ma, ok := signals.MASeries(maType, closes, window)
		if !ok {
			return nil, fmt.Errorf("cannot compute %s(%d) over %d bars", maType, window, len(series))
		}
		// moving averages are end-aligned with the closes
		chartSeries = append(chartSeries, chart.TimeSeries{
			Name: fmt.Sprintf("%s %d", strings.ToUpper(maType), window),
			Style: chart.Style{
				StrokeColor:     drawing.ColorFromHex("f59e0b"), // amber-500
				StrokeWidth:     1.5,
				StrokeDashArray: []float64{5.0, 3.0},
			},
			XValues: xValues[len(xValues)-len(ma):],
			YValues: ma,
		})
	}

	graph := chart.Chart{
		Title:  series[0].Symbol,
		Width:  900,
		Height: 400,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			TickPosition: chart.TickPositionBetweenTicks,
			ValueFormatter: func(v interface{}) string {
				if t, ok := v.(float64); ok {
					return chart.TimeFromFloat64(t).Format("Jan 06")
				}
				return ""
			},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.2f", f)
				}
				return ""
			},
		},
		Series: chartSeries,
	}

	graph.Elements = []chart.Renderable{
		chart.LegendLeft(&graph),
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}

	return buf.Bytes(), nil
}
