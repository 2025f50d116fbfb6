// Package signals provides technical indicator calculations.
//
// Every function takes bars or values in chronological order (oldest first)
// and uses only the trailing window ending at the latest element. A false ok
// means the indicator cannot be evaluated (insufficient history or a zero
// denominator); callers treat that as a failed condition, never a crash.
package signals

import (
	"math"

	"github.com/bobmcallan/vire-screener/internal/models"
)

// Closes extracts closing prices
func Closes(bars []models.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Highs extracts high prices
func Highs(bars []models.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.High
	}
	return out
}

// Lows extracts low prices
func Lows(bars []models.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Low
	}
	return out
}

// Volumes extracts volumes as floats
func Volumes(bars []models.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = float64(b.Volume)
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func last(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	v := values[len(values)-1]
	return v, finite(v)
}

// SMA calculates the Simple Moving Average of the trailing period values
func SMA(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period), true
}

// SMASeries returns the rolling mean; element i covers values[i : i+period].
func SMASeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	out := make([]float64, 0, len(values)-period+1)
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out = append(out, sum/float64(period))
		}
	}
	return out
}

// EMASeries calculates the Exponential Moving Average seeded with the SMA of
// the first period values. The result is aligned to values[period-1:].
func EMASeries(values []float64, period int) []float64 {
	return smoothedSeries(values, period, 2.0/float64(period+1))
}

// RMASeries is Wilder's smoothing (alpha = 1/period), seeded like EMASeries.
func RMASeries(values []float64, period int) []float64 {
	return smoothedSeries(values, period, 1.0/float64(period))
}

func smoothedSeries(values []float64, period int, alpha float64) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	seed, _ := SMA(values[:period], period)
	out := make([]float64, 0, len(values)-period+1)
	out = append(out, seed)
	prev := seed
	for _, v := range values[period:] {
		prev = (v-prev)*alpha + prev
		out = append(out, prev)
	}
	return out
}

// EMA returns the latest exponential moving average
func EMA(values []float64, period int) (float64, bool) {
	return last(EMASeries(values, period))
}

// WMASeries calculates the linearly weighted moving average (latest weight = period).
func WMASeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	denom := float64(period*(period+1)) / 2
	out := make([]float64, 0, len(values)-period+1)
	for end := period; end <= len(values); end++ {
		sum := 0.0
		for j, v := range values[end-period : end] {
			sum += v * float64(j+1)
		}
		out = append(out, sum/denom)
	}
	return out
}

// WMA returns the latest weighted moving average
func WMA(values []float64, period int) (float64, bool) {
	return last(WMASeries(values, period))
}

// tail returns the last n elements of values
func tail(values []float64, n int) []float64 {
	if n > len(values) {
		n = len(values)
	}
	return values[len(values)-n:]
}

// DEMASeries is 2*EMA1 - EMA2 where EMA2 is the EMA of EMA1,
// aligned to the shorter EMA2 series.
func DEMASeries(values []float64, period int) []float64 {
	e1 := EMASeries(values, period)
	e2 := EMASeries(e1, period)
	if len(e2) == 0 {
		return nil
	}
	e1 = tail(e1, len(e2))
	out := make([]float64, len(e2))
	for i := range e2 {
		out[i] = 2*e1[i] - e2[i]
	}
	return out
}

// TEMASeries is 3*EMA1 - 3*EMA2 + EMA3, aligned to the shortest series.
func TEMASeries(values []float64, period int) []float64 {
	e1 := EMASeries(values, period)
	e2 := EMASeries(e1, period)
	e3 := EMASeries(e2, period)
	if len(e3) == 0 {
		return nil
	}
	e1 = tail(e1, len(e3))
	e2 = tail(e2, len(e3))
	out := make([]float64, len(e3))
	for i := range e3 {
		out[i] = 3*e1[i] - 3*e2[i] + e3[i]
	}
	return out
}

// HMASeries is the Hull moving average: WMA(2*WMA(n/2) - WMA(n), sqrt(n)).
func HMASeries(values []float64, period int) []float64 {
	if period < 2 {
		return nil
	}
	half := WMASeries(values, period/2)
	full := WMASeries(values, period)
	if len(full) == 0 {
		return nil
	}
	half = tail(half, len(full))
	diff := make([]float64, len(full))
	for i := range full {
		diff[i] = 2*half[i] - full[i]
	}
	return WMASeries(diff, int(math.Sqrt(float64(period))))
}

// ZLMASeries is the zero-lag EMA: an EMA of values de-lagged by (period-1)/2 bars.
func ZLMASeries(values []float64, period int) []float64 {
	lag := (period - 1) / 2
	if period <= 0 || len(values) <= lag {
		return nil
	}
	delagged := make([]float64, 0, len(values)-lag)
	for i := lag; i < len(values); i++ {
		delagged = append(delagged, 2*values[i]-values[i-lag])
	}
	return EMASeries(delagged, period)
}

// RSI calculates the Relative Strength Index over the last period deltas,
// using simple averages of gains and losses. Zero average loss returns 100.
func RSI(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}

	var gains, losses float64
	window := closes[len(closes)-period-1:]
	for i := 1; i < len(window); i++ {
		change := window[i] - window[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	if avgLoss == 0 {
		return 100, true
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs)), true
}

// CCI calculates the Commodity Channel Index over the trailing period bars.
func CCI(bars []models.Bar, period int) (float64, bool) {
	if period <= 0 || len(bars) < period {
		return 0, false
	}
	window := bars[len(bars)-period:]
	tp := make([]float64, len(window))
	for i, b := range window {
		tp[i] = (b.High + b.Low + b.Close) / 3
	}
	mean, _ := SMA(tp, period)
	mad := 0.0
	for _, v := range tp {
		mad += math.Abs(v - mean)
	}
	mad /= float64(period)
	if mad == 0 {
		return 0, false
	}
	return (tp[len(tp)-1] - mean) / (0.015 * mad), true
}

// TrueRange returns the true range of each bar after the first
func TrueRange(bars []models.Bar) []float64 {
	if len(bars) < 2 {
		return nil
	}
	out := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		high, low, prevClose := bars[i].High, bars[i].Low, bars[i-1].Close
		tr := math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
		out = append(out, tr)
	}
	return out
}

// ATR calculates Average True Range as the simple mean of the last period true ranges.
func ATR(bars []models.Bar, period int) (float64, bool) {
	if period <= 0 || len(bars) < period+1 {
		return 0, false
	}
	return SMA(TrueRange(bars), period)
}

// ATRPercent returns ATR normalised by the latest close
func ATRPercent(bars []models.Bar, period int) (float64, bool) {
	atr, ok := ATR(bars, period)
	if !ok {
		return 0, false
	}
	c := bars[len(bars)-1].Close
	if c == 0 {
		return 0, false
	}
	return atr / c, true
}

// Band is an upper/middle/lower envelope
type Band struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Width returns (upper-lower)/middle
func (b Band) Width() (float64, bool) {
	if b.Middle == 0 {
		return 0, false
	}
	return (b.Upper - b.Lower) / b.Middle, true
}

// Bollinger calculates Bollinger Bands: SMA ± mult * population stddev of closes.
func Bollinger(closes []float64, period int, mult float64) (Band, bool) {
	mid, ok := SMA(closes, period)
	if !ok {
		return Band{}, false
	}
	variance := 0.0
	for _, c := range closes[len(closes)-period:] {
		d := c - mid
		variance += d * d
	}
	sd := math.Sqrt(variance / float64(period))
	return Band{Upper: mid + mult*sd, Middle: mid, Lower: mid - mult*sd}, true
}

// Keltner calculates Keltner Channels: EMA(close) ± mult * ATR.
func Keltner(bars []models.Bar, period int, mult float64) (Band, bool) {
	mid, ok := EMA(Closes(bars), period)
	if !ok {
		return Band{}, false
	}
	atr, ok := ATR(bars, period)
	if !ok {
		return Band{}, false
	}
	return Band{Upper: mid + mult*atr, Middle: mid, Lower: mid - mult*atr}, true
}

// Donchian returns the highest and lowest close of the trailing period bars (inclusive of the latest).
func Donchian(closes []float64, period int) (Band, bool) {
	if period <= 0 || len(closes) < period {
		return Band{}, false
	}
	hi, lo := math.Inf(-1), math.Inf(1)
	for _, c := range closes[len(closes)-period:] {
		hi = math.Max(hi, c)
		lo = math.Min(lo, c)
	}
	return Band{Upper: hi, Middle: (hi + lo) / 2, Lower: lo}, true
}

// VolumeRatio returns current volume / SMA(volume, period); the SMA includes the current bar.
func VolumeRatio(volumes []float64, period int) (float64, bool) {
	avg, ok := SMA(volumes, period)
	if !ok || avg == 0 {
		return 0, false
	}
	return volumes[len(volumes)-1] / avg, true
}

// UlcerIndex is the root-mean-square percentage drawdown from the rolling
// period-bar high, over the trailing period bars.
func UlcerIndex(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < 2*period-1 {
		return 0, false
	}
	sumSq := 0.0
	for end := len(closes) - period + 1; end <= len(closes); end++ {
		peak := math.Inf(-1)
		for _, c := range closes[end-period : end] {
			peak = math.Max(peak, c)
		}
		if peak == 0 {
			return 0, false
		}
		dd := 100 * (closes[end-1] - peak) / peak
		sumSq += dd * dd
	}
	return math.Sqrt(sumSq / float64(period)), true
}

// PivotLevels returns the classic floor pivot and first resistance/support of a bar
func PivotLevels(b models.Bar) (pivot, r1, s1 float64) {
	pivot = (b.High + b.Low + b.Close) / 3
	return pivot, 2*pivot - b.Low, 2*pivot - b.High
}
