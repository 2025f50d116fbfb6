package signals

import (
	"github.com/markcheno/go-talib"

	"github.com/bobmcallan/vire-screener/internal/models"
)

// ohlcv holds the column views talib works on
type ohlcv struct {
	high, low, close, volume []float64
}

func columns(bars []models.Bar) ohlcv {
	return ohlcv{high: Highs(bars), low: Lows(bars), close: Closes(bars), volume: Volumes(bars)}
}

// covers reports whether n bars cover a talib lookback. talib pads the
// lookback prefix of its output with zeros, so only later elements are real.
func covers(n, lookback int) bool {
	return lookback >= 0 && n > lookback
}

// Stochastic returns slow %K: fast %K over period, smoothed by SMA(3), %D SMA(3).
func Stochastic(bars []models.Bar, period int) (float64, bool) {
	if period <= 0 || !covers(len(bars), period+3) {
		return 0, false
	}
	c := columns(bars)
	k, _ := talib.Stoch(c.high, c.low, c.close, period, 3, talib.SMA, 3, talib.SMA)
	return last(k)
}

// StochRSI returns the SMA(3)-smoothed stochastic of RSI(14) over period.
func StochRSI(bars []models.Bar, period int) (float64, bool) {
	if period <= 0 || !covers(len(bars), 14+period+1) {
		return 0, false
	}
	_, d := talib.StochRsi(Closes(bars), 14, period, 3, talib.SMA)
	return last(d)
}

// WilliamsR returns Williams %R over period (range -100..0)
func WilliamsR(bars []models.Bar, period int) (float64, bool) {
	if period <= 1 || !covers(len(bars), period-1) {
		return 0, false
	}
	c := columns(bars)
	return last(talib.WillR(c.high, c.low, c.close, period))
}

// ChandeMomentum returns the Chande Momentum Oscillator
func ChandeMomentum(bars []models.Bar, period int) (float64, bool) {
	if period <= 1 || !covers(len(bars), period) {
		return 0, false
	}
	return last(talib.Cmo(Closes(bars), period))
}

// RateOfChange returns the period rate of change as a decimal (talib's percent / 100)
func RateOfChange(bars []models.Bar, period int) (float64, bool) {
	if period <= 0 || !covers(len(bars), period) {
		return 0, false
	}
	v, ok := last(talib.Roc(Closes(bars), period))
	return v / 100, ok
}

// MoneyFlowIndex returns the volume-weighted RSI of typical price
func MoneyFlowIndex(bars []models.Bar, period int) (float64, bool) {
	if period <= 0 || !covers(len(bars), period) {
		return 0, false
	}
	c := columns(bars)
	return last(talib.Mfi(c.high, c.low, c.close, c.volume, period))
}

// PercentagePriceOsc returns PPO(12, 26) as a decimal
func PercentagePriceOsc(bars []models.Bar) (float64, bool) {
	if !covers(len(bars), 25) {
		return 0, false
	}
	v, ok := last(talib.Ppo(Closes(bars), 12, 26, talib.SMA))
	return v / 100, ok
}

// UltimateOsc returns the Ultimate Oscillator (7, 14, 28)
func UltimateOsc(bars []models.Bar) (float64, bool) {
	if !covers(len(bars), 28) {
		return 0, false
	}
	c := columns(bars)
	return last(talib.UltOsc(c.high, c.low, c.close, 7, 14, 28))
}

// ADX returns the Average Directional Index over period
func ADX(bars []models.Bar, period int) (float64, bool) {
	if period <= 1 || !covers(len(bars), 2*period-1) {
		return 0, false
	}
	c := columns(bars)
	return last(talib.Adx(c.high, c.low, c.close, period))
}

// AwesomeOsc returns SMA(5) - SMA(34) of the median price (high+low)/2
func AwesomeOsc(bars []models.Bar) (float64, bool) {
	median := make([]float64, len(bars))
	for i, b := range bars {
		median[i] = (b.High + b.Low) / 2
	}
	fast, ok := SMA(median, 5)
	if !ok {
		return 0, false
	}
	slow, ok := SMA(median, 34)
	if !ok {
		return 0, false
	}
	return fast - slow, true
}
