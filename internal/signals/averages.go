package signals

import (
	"strings"

	"github.com/markcheno/go-talib"
)

// MASeries computes the named moving average of values. The result is aligned
// to the end of values (its last element is the average at the latest bar).
// ok is false for an unknown type or when no value can be produced.
func MASeries(maType string, values []float64, period int) ([]float64, bool) {
	if period <= 0 {
		return nil, false
	}
	var out []float64
	switch strings.ToLower(maType) {
	case "sma":
		out = SMASeries(values, period)
	case "ema":
		out = EMASeries(values, period)
	case "wma":
		out = WMASeries(values, period)
	case "rma", "smma":
		out = RMASeries(values, period)
	case "dema":
		out = DEMASeries(values, period)
	case "tema":
		out = TEMASeries(values, period)
	case "hma":
		out = HMASeries(values, period)
	case "zlma":
		out = ZLMASeries(values, period)
	case "kama":
		if covers(len(values), period) {
			out = talib.Kama(values, period)[period:]
		}
	case "trima":
		if covers(len(values), period-1) {
			out = talib.Trima(values, period)[period-1:]
		}
	default:
		return nil, false
	}
	return out, len(out) > 0
}

// MA returns the latest value of the named moving average
func MA(maType string, values []float64, period int) (float64, bool) {
	s, ok := MASeries(maType, values, period)
	if !ok {
		return 0, false
	}
	return last(s)
}
