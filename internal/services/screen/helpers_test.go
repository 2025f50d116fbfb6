package screen

import (
	"time"

	"github.com/bobmcallan/vire-screener/internal/models"
)

// makeSeries builds a chronological series for symbol from closes with a 1.0 high-low range.
func makeSeries(symbol string, closes []float64) []models.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, len(closes))
	for i, c := range closes {
		bars[i] = models.Bar{
			Symbol: symbol,
			Date:   start.AddDate(0, 0, i),
			Open:   c,
			High:   c + 0.5,
			Low:    c - 0.5,
			Close:  c,
			Volume: 1000000,
		}
	}
	return bars
}

func rising(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func flatThen(v float64, n int, tail ...float64) []float64 {
	out := rising(v, 0, n)
	return append(out, tail...)
}
