// Package screen evaluates structured conditions against OHLCV series
package screen

import (
	"fmt"
	"math"
	"strings"

	"github.com/bobmcallan/vire-screener/internal/models"
	"github.com/bobmcallan/vire-screener/internal/signals"
)

// Strength thresholds and multipliers used by the breakout and special screeners.
const (
	bandMultiplier    = 2.0
	adxTrendThreshold = 25.0
	baseTightness     = 0.03
)

// defaultWindows applies when a condition omits its window.
var defaultWindows = map[string]int{
	"rsi":        14,
	"cci":        20,
	"atr":        14,
	"bb_width":   20,
	"kc_width":   20,
	"volume_sma": 20,
	"kdj":        9,
	"roc":        10,
	"ui":         14,
}

func windowFor(name string, window int) int {
	if window > 0 {
		return window
	}
	if w, ok := defaultWindows[name]; ok {
		return w
	}
	return 14
}

// metric computes one scalar from a chronological series
type metric func(bars []models.Bar) (float64, bool)

// thresholdMetric resolves a category 1 indicator name; unknown names return false.
func thresholdMetric(name string, window int) (metric, bool) {
	switch name {
	case "rsi":
		return func(b []models.Bar) (float64, bool) { return signals.RSI(signals.Closes(b), window) }, true
	case "cci":
		return func(b []models.Bar) (float64, bool) { return signals.CCI(b, window) }, true
	case "stoch", "kdj":
		return func(b []models.Bar) (float64, bool) { return signals.Stochastic(b, window) }, true
	case "stochrsi":
		return func(b []models.Bar) (float64, bool) { return signals.StochRSI(b, window) }, true
	case "williams_r", "wr", "willr":
		return func(b []models.Bar) (float64, bool) { return signals.WilliamsR(b, window) }, true
	case "awesome_osc", "ao":
		return signals.AwesomeOsc, true
	case "ultimate_osc", "uo":
		return signals.UltimateOsc, true
	case "chande_momentum", "cmo":
		return func(b []models.Bar) (float64, bool) { return signals.ChandeMomentum(b, window) }, true
	case "roc":
		return func(b []models.Bar) (float64, bool) { return signals.RateOfChange(b, window) }, true
	case "money_flow_idx", "mfi":
		return func(b []models.Bar) (float64, bool) { return signals.MoneyFlowIndex(b, window) }, true
	case "percentage_price_osc", "ppo":
		return signals.PercentagePriceOsc, true
	case "adx":
		return func(b []models.Bar) (float64, bool) { return signals.ADX(b, window) }, true
	}
	return nil, false
}

// volatilityMetric resolves a category 5 indicator name
func volatilityMetric(name string, window int) (metric, bool) {
	switch name {
	case "volume":
		return func(b []models.Bar) (float64, bool) {
			if len(b) == 0 {
				return 0, false
			}
			return float64(b[len(b)-1].Volume), true
		}, true
	case "volume_sma":
		return func(b []models.Bar) (float64, bool) { return signals.VolumeRatio(signals.Volumes(b), window) }, true
	case "atr":
		return func(b []models.Bar) (float64, bool) { return signals.ATRPercent(b, window) }, true
	case "bb_width":
		return func(b []models.Bar) (float64, bool) {
			band, ok := signals.Bollinger(signals.Closes(b), window, bandMultiplier)
			if !ok {
				return 0, false
			}
			return band.Width()
		}, true
	case "kc_width":
		return func(b []models.Bar) (float64, bool) {
			band, ok := signals.Keltner(b, window, bandMultiplier)
			if !ok {
				return 0, false
			}
			return band.Width()
		}, true
	case "ui":
		return func(b []models.Bar) (float64, bool) { return signals.UlcerIndex(signals.Closes(b), window) }, true
	}
	return nil, false
}

// Evaluate computes one condition against one symbol's chronological series.
// It never panics on short or degenerate data; those evaluate to Passed=false.
func Evaluate(series []models.Bar, cond models.Condition) models.EvaluationResult {
	if len(series) == 0 || cond == nil {
		return failed("unknown", nil)
	}

	switch c := cond.(type) {
	case models.ThresholdCondition:
		w := windowFor(c.Indicator, c.Window)
		m, ok := thresholdMetric(c.Indicator, w)
		if !ok {
			return failed(c.Indicator, &w)
		}
		return compareMetric(series, m, c.Op, c.Value, c.Indicator, &w)

	case models.MovingAverageCondition:
		return evaluateMovingAverage(series, c)

	case models.RelativeStrengthCondition:
		// no benchmark series is available to the evaluator
		label := "rs_vs_" + strings.ToLower(c.Benchmark)
		return failed(label, intPtr(c.Window))

	case models.ReferenceCondition:
		m := func(b []models.Bar) (float64, bool) {
			return signals.PercentFromReference(signals.Closes(b), c.Reference)
		}
		return compareMetric(series, m, c.Op, c.Value, c.Reference, nil)

	case models.VolatilityCondition:
		w := windowFor(c.Indicator, c.Window)
		m, ok := volatilityMetric(c.Indicator, w)
		if !ok {
			return failed(c.Indicator, &w)
		}
		if c.Indicator == "volume" {
			return compareMetric(series, m, c.Op, c.Value, c.Indicator, nil)
		}
		return compareMetric(series, m, c.Op, c.Value, c.Indicator, &w)

	case models.PatternCondition:
		return evaluatePattern(series, c)

	case models.BreakoutCondition:
		return evaluateBreakout(series, c)

	case models.CompositeCondition:
		return failed("composite", nil)

	case models.SpecialCondition:
		return evaluateSpecial(series, c)

	case models.TimeframeCondition:
		label := "return_" + c.Timeframe
		n, ok := signals.TimeframeBars(c.Timeframe, len(series))
		if !ok {
			return failed(label, nil)
		}
		m := func(b []models.Bar) (float64, bool) {
			return signals.TimeframeReturn(signals.Closes(b), c.Timeframe)
		}
		return compareMetric(series, m, c.Op, c.Value, label, &n)

	case models.UnparsedCondition:
		return failed("fallback", nil)
	}
	return failed(cond.Kind().String(), nil)
}

// compareMetric applies op to the metric at the latest bar. Crossing operators
// compare the metric on the series ending one bar earlier with the latest.
func compareMetric(series []models.Bar, m metric, op models.Op, target models.Value, label string, window *int) models.EvaluationResult {
	cur, ok := m(series)
	if !ok {
		return failed(label, window)
	}

	switch op {
	case models.OpCrossedAbove, models.OpCrossedBelow:
		level, ok := target.Number()
		if !ok || len(series) < 2 {
			return result(false, cur, label, window)
		}
		prev, ok := m(series[:len(series)-1])
		if !ok {
			return result(false, cur, label, window)
		}
		if op == models.OpCrossedAbove {
			return result(prev < level && cur > level, cur, label, window)
		}
		return result(prev > level && cur < level, cur, label, window)
	}
	return result(op.Compare(cur, target), cur, label, window)
}

func evaluateMovingAverage(series []models.Bar, c models.MovingAverageCondition) models.EvaluationResult {
	label := fmt.Sprintf("%s_%d", c.MAType, c.Window)
	if c.Window <= 0 {
		return failed(label, nil)
	}
	w := c.Window
	closes := signals.Closes(series)
	ma, ok := signals.MASeries(c.MAType, closes, c.Window)
	if !ok {
		return failed(label, &w)
	}
	curMA := ma[len(ma)-1]
	cur := closes[len(closes)-1]

	// dual-average form: the first average is the subject, the second the reference line
	if c.CompareMAType != "" && c.CompareWindow > 0 {
		label = fmt.Sprintf("%s_%d_vs_%s_%d", c.MAType, c.Window, c.CompareMAType, c.CompareWindow)
		slow, ok := signals.MASeries(c.CompareMAType, closes, c.CompareWindow)
		if !ok {
			return failed(label, &w)
		}
		return crossOrCompare(ma, slow, c.Op, curMA, label, &w)
	}

	switch c.Op {
	case models.OpCrossedAbove, models.OpCrossedBelow:
		return crossOrCompare(closes, ma, c.Op, curMA, label, &w)
	case models.OpProximityWithin:
		if c.Value == nil || curMA == 0 {
			return failed(label, &w)
		}
		limit, ok := c.Value.Number()
		if !ok {
			return failed(label, &w)
		}
		return result(math.Abs(cur-curMA)/curMA <= limit, curMA, label, &w)
	case models.OpBetween:
		return failed(label, &w)
	}
	return result(c.Op.Compare(cur, models.Scalar(curMA)), curMA, label, &w)
}

// crossOrCompare relates subject to reference at the latest bar. Both series
// are end-aligned; a crossing needs the previous bar on the opposite side.
func crossOrCompare(subject, reference []float64, op models.Op, value float64, label string, window *int) models.EvaluationResult {
	s, r := subject[len(subject)-1], reference[len(reference)-1]

	switch op {
	case models.OpCrossedAbove, models.OpCrossedBelow:
		if len(subject) < 2 || len(reference) < 2 {
			return result(false, value, label, window)
		}
		ps, pr := subject[len(subject)-2], reference[len(reference)-2]
		if op == models.OpCrossedAbove {
			return result(ps < pr && s > r, value, label, window)
		}
		return result(ps > pr && s < r, value, label, window)
	case models.OpProximityWithin, models.OpBetween:
		return result(false, value, label, window)
	}
	return result(op.Compare(s, models.Scalar(r)), value, label, window)
}

// patternBias resolves the requested direction from the condition or the pattern name
func patternBias(c models.PatternCondition) string {
	switch {
	case strings.HasPrefix(c.PatternType, "bullish"):
		return "bullish"
	case strings.HasPrefix(c.PatternType, "bearish"):
		return "bearish"
	}
	return c.Direction
}

func evaluatePattern(series []models.Bar, c models.PatternCondition) models.EvaluationResult {
	dir, known := signals.DetectPattern(series, c.PatternType)
	if !known {
		return failed(c.PatternType, nil)
	}

	var passed bool
	switch patternBias(c) {
	case "bullish":
		passed = dir == signals.PatternBullish || dir == signals.PatternNeutral
	case "bearish":
		passed = dir == signals.PatternBearish || dir == signals.PatternNeutral
	default:
		passed = dir != signals.PatternNone
	}

	value := 0.0
	if passed {
		value = 1.0
	}
	return result(passed, value, c.PatternType, nil)
}

// upward normalises a breakout/screener direction; empty means up/long.
func upward(direction string) bool {
	switch strings.ToLower(direction) {
	case "down", "short", "bearish":
		return false
	}
	return true
}

func evaluateBreakout(series []models.Bar, c models.BreakoutCondition) models.EvaluationResult {
	w := c.Window
	if w <= 0 {
		w = 20
	}
	up := upward(c.Direction)
	closes := signals.Closes(series)
	cur := closes[len(closes)-1]

	var band signals.Band
	var ok bool
	switch c.Indicator {
	case "bb_breakout":
		band, ok = signals.Bollinger(closes, w, bandMultiplier)
	case "kc_breakout":
		band, ok = signals.Keltner(series, w, bandMultiplier)
	case "donchian_breakout":
		band, ok = signals.Donchian(closes, w)
	case "pivot_break":
		if len(series) < 2 {
			return failed(c.Indicator, &w)
		}
		_, r1, s1 := signals.PivotLevels(series[len(series)-2])
		band, ok = signals.Band{Upper: r1, Lower: s1}, true
	default:
		return failed(c.Indicator, &w)
	}
	if !ok {
		return failed(c.Indicator, &w)
	}

	if up {
		return result(cur >= band.Upper, band.Upper, c.Indicator, &w)
	}
	return result(cur <= band.Lower, band.Lower, c.Indicator, &w)
}

func evaluateSpecial(series []models.Bar, c models.SpecialCondition) models.EvaluationResult {
	up := upward(c.Direction)
	closes := signals.Closes(series)
	cur := closes[len(closes)-1]

	switch c.Screener {
	case "base_breakout":
		w := c.Window
		if w <= 0 {
			w = 20
		}
		channel, ok := signals.Donchian(closes, w)
		if !ok || len(closes) < w+1 {
			return failed(c.Screener, &w)
		}
		base := closes[len(closes)-1-w]
		if base == 0 {
			return failed(c.Screener, &w)
		}
		move := (cur - base) / base
		if up {
			return result(cur >= channel.Upper && move <= baseTightness, move, c.Screener, &w)
		}
		return result(cur <= channel.Lower && move >= -baseTightness, move, c.Screener, &w)

	case "turtle_signal":
		w := c.Window
		if w <= 0 {
			w = 20
		}
		channel, ok := signals.Donchian(closes, w)
		if !ok {
			return failed(c.Screener, &w)
		}
		if up {
			return result(cur >= channel.Upper, cur, c.Screener, &w)
		}
		return result(cur <= channel.Lower, cur, c.Screener, &w)

	case "adx_trend":
		w := c.Window
		if w <= 0 {
			w = 14
		}
		adx, ok := signals.ADX(series, w)
		if !ok {
			return failed(c.Screener, &w)
		}
		return result(adx > adxTrendThreshold, adx, c.Screener, &w)
	}
	return failed(c.Screener, intPtr(c.Window))
}

func result(passed bool, value float64, label string, window *int) models.EvaluationResult {
	return models.EvaluationResult{Passed: passed, Value: &value, Label: label, Window: window}
}

func failed(label string, window *int) models.EvaluationResult {
	return models.EvaluationResult{Passed: false, Label: label, Window: window}
}

func intPtr(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}
