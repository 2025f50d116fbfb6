package query

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/vire-screener/internal/models"
)

func valuePtr(v float64) *models.Value {
	val := models.Scalar(v)
	return &val
}

func TestTryParse_RSIEndToEnd(t *testing.T) {
	p := NewRuleParser()

	filter, ok := p.TryParse("RSI above 70")
	require.True(t, ok)

	data, err := json.Marshal(filter)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"category":1,"conditions":[{"category":1,"indicator":"rsi","window":14,"op":">","value":70}],"confidence":"high","parser":"pattern"}`,
		string(data))
}

func TestTryParse_DualMovingAverage(t *testing.T) {
	filter, ok := NewRuleParser().TryParse("EMA 20 crossed above SMA 50")
	require.True(t, ok)
	assert.Equal(t, models.CategoryMovingAverage, filter.Category)

	cond, ok := filter.Primary()
	require.True(t, ok)
	ma, ok := cond.(models.MovingAverageCondition)
	require.True(t, ok)
	assert.Equal(t, "ema", ma.MAType)
	assert.Equal(t, 20, ma.Window)
	assert.Equal(t, models.OpCrossedAbove, ma.Op)
	require.NotNil(t, ma.Value)
	n, _ := ma.Value.Number()
	assert.Equal(t, 50.0, n)
	assert.Equal(t, "sma", ma.CompareMAType)
	assert.Equal(t, 50, ma.CompareWindow)
}

func TestTryParse_RuleTable(t *testing.T) {
	tests := []struct {
		query string
		want  models.Condition
	}{
		// indicator thresholds
		{"RSI above 70", models.ThresholdCondition{Indicator: "rsi", Window: 14, Op: models.OpGT, Value: models.Scalar(70)}},
		{"rsi 21 <= 30", models.ThresholdCondition{Indicator: "rsi", Window: 21, Op: models.OpLTE, Value: models.Scalar(30)}},
		{"RSI at least 55", models.ThresholdCondition{Indicator: "rsi", Window: 14, Op: models.OpGTE, Value: models.Scalar(55)}},
		{"RSI above 70%", models.ThresholdCondition{Indicator: "rsi", Window: 14, Op: models.OpGT, Value: models.Scalar(70)}},
		{"Stochastic below 20", models.ThresholdCondition{Indicator: "stoch", Op: models.OpLT, Value: models.Scalar(20)}},
		{"Stochastic RSI between 30 and 70", models.ThresholdCondition{Indicator: "stochrsi", Op: models.OpBetween, Value: models.Range(30, 70)}},
		{"stoch rsi 20-80", models.ThresholdCondition{Indicator: "stochrsi", Op: models.OpBetween, Value: models.Range(20, 80)}},
		{"CCI below -100", models.ThresholdCondition{Indicator: "cci", Window: 20, Op: models.OpLT, Value: models.Scalar(-100)}},
		{"Williams %R above -20", models.ThresholdCondition{Indicator: "williams_r", Op: models.OpGT, Value: models.Scalar(-20)}},
		{"Awesome Oscillator positive", models.ThresholdCondition{Indicator: "awesome_osc", Op: models.OpGT, Value: models.Scalar(0)}},
		{"AO negative", models.ThresholdCondition{Indicator: "awesome_osc", Op: models.OpLT, Value: models.Scalar(0)}},
		{"KDJ K-line above 80", models.ThresholdCondition{Indicator: "kdj", Op: models.OpGT, Value: models.Scalar(80)}},
		{"Ultimate Oscillator below 30", models.ThresholdCondition{Indicator: "ultimate_osc", Op: models.OpLT, Value: models.Scalar(30)}},
		{"Chande Momentum below -50", models.ThresholdCondition{Indicator: "chande_momentum", Op: models.OpLT, Value: models.Scalar(-50)}},
		{"ROC below -5 %", models.ThresholdCondition{Indicator: "roc", Op: models.OpLT, Value: models.Scalar(-0.05)}},
		{"Money Flow Index above 80", models.ThresholdCondition{Indicator: "money_flow_idx", Op: models.OpGT, Value: models.Scalar(80)}},
		{"Percentage Price Oscillator above 2 %", models.ThresholdCondition{Indicator: "percentage_price_osc", Op: models.OpGT, Value: models.Scalar(0.02)}},
		{"Fisher Transform crossed above zero", models.ThresholdCondition{Indicator: "fisher_transform", Op: models.OpCrossedAbove, Value: models.Scalar(0)}},
		{"TSI above 25", models.ThresholdCondition{Indicator: "tsi", Op: models.OpGT, Value: models.Scalar(25)}},
		{"Schaff Trend Cycle below 25", models.ThresholdCondition{Indicator: "schaff_trend_cycle", Op: models.OpLT, Value: models.Scalar(25)}},
		{"ADX 14 above 30", models.ThresholdCondition{Indicator: "adx", Window: 14, Op: models.OpGT, Value: models.Scalar(30)}},
		{"RSI > 70 AND MACD crossed above signal", models.ThresholdCondition{Indicator: "rsi", Window: 14, Op: models.OpGT, Value: models.Scalar(70)}},

		// moving averages
		{"Price crossed above EMA 20", models.MovingAverageCondition{MAType: "ema", Window: 20, Op: models.OpCrossedAbove}},
		{"close below sma 200", models.MovingAverageCondition{MAType: "sma", Window: 200, Op: models.OpLT}},
		{"Price within 1 % of SMA 50", models.MovingAverageCondition{MAType: "sma", Window: 50, Op: models.OpProximityWithin, Value: valuePtr(0.01)}},
		{"Hull MA 21 bullish crossover SMA 21", models.MovingAverageCondition{MAType: "hma", Window: 21, Op: models.OpCrossedAbove, Value: valuePtr(21), CompareMAType: "sma", CompareWindow: 21}},
		{"KAMA 100 bearish cross", models.MovingAverageCondition{MAType: "kama", Window: 100, Op: models.OpCrossedBelow}},
		{"DEMA 50 above price", models.MovingAverageCondition{MAType: "dema", Window: 50, Op: models.OpLT}},
		{"TEMA 20 crossed below SMA 50", models.MovingAverageCondition{MAType: "tema", Window: 20, Op: models.OpCrossedBelow, Value: valuePtr(50), CompareMAType: "sma", CompareWindow: 50}},
		{"Zero-Lag MA 200 proximity within 0.5 %", models.MovingAverageCondition{MAType: "zlma", Window: 200, Op: models.OpProximityWithin, Value: valuePtr(0.005)}},

		// relative strength
		{"Relative strength vs Nifty above 1.05", models.RelativeStrengthCondition{Benchmark: "NIFTY", Op: models.OpGT, Value: models.Scalar(1.05)}},
		{"RS line below 0.95 vs SPY", models.RelativeStrengthCondition{Benchmark: "SPY", Op: models.OpLT, Value: models.Scalar(0.95)}},

		// reference
		{"Up 15 % from 1-month low", models.ReferenceCondition{Reference: "1m_low", Op: models.OpGT, Value: models.Scalar(0.15)}},
		{"up 20% from 52w_low", models.ReferenceCondition{Reference: "52w_low", Op: models.OpGT, Value: models.Scalar(0.2)}},
		{"down 10% from 52-week high", models.ReferenceCondition{Reference: "52w_high", Op: models.OpLTE, Value: models.Scalar(-0.1)}},
		{"Within 5 % of 52-week high", models.ReferenceCondition{Reference: "52w_high", Op: models.OpBetween, Value: models.Range(-0.05, 0)}},

		// volume / volatility
		{"Average True Range above 3 %", models.VolatilityCondition{Indicator: "atr", Window: 14, Op: models.OpGT, Value: models.Scalar(0.03)}},
		{"Volume spike 2× its 20-day SMA", models.VolatilityCondition{Indicator: "volume_sma", Window: 20, Op: models.OpGTE, Value: models.Scalar(2)}},
		{"volume spike 3x sma 50", models.VolatilityCondition{Indicator: "volume_sma", Window: 50, Op: models.OpGTE, Value: models.Scalar(3)}},
		{"Bollinger Band width below 5 %", models.VolatilityCondition{Indicator: "bb_width", Op: models.OpLT, Value: models.Scalar(0.05)}},
		{"Keltner Channel width above 4 %", models.VolatilityCondition{Indicator: "kc_width", Op: models.OpGT, Value: models.Scalar(0.04)}},
		{"Ulcer Index below 5", models.VolatilityCondition{Indicator: "ui", Op: models.OpLT, Value: models.Scalar(5)}},
		{"volume above 2 million", models.VolatilityCondition{Indicator: "volume", Op: models.OpGT, Value: models.Scalar(2e6)}},

		// candles
		{"Bullish engulfing candle", models.PatternCondition{PatternType: "bullish_engulfing", Direction: "bullish"}},
		{"Bearish engulfing", models.PatternCondition{PatternType: "bearish_engulfing", Direction: "bearish"}},
		{"engulfing", models.PatternCondition{PatternType: "engulfing"}},
		{"Doji on daily", models.PatternCondition{PatternType: "doji"}},
		{"Hammer candle", models.PatternCondition{PatternType: "hammer"}},
		{"NR7 day", models.PatternCondition{PatternType: "nr7"}},
		{"Inside bar", models.PatternCondition{PatternType: "inside_bar"}},
		{"Outside bar", models.PatternCondition{PatternType: "outside_bar"}},

		// breakouts
		{"Bollinger Band upside breakout", models.BreakoutCondition{Indicator: "bb_breakout", Direction: "up"}},
		{"BB breakout down", models.BreakoutCondition{Indicator: "bb_breakout", Direction: "down"}},
		{"Donchian 20-day breakout up", models.BreakoutCondition{Indicator: "donchian_breakout", Direction: "up", Window: 20}},
		{"Pivot point breakout", models.BreakoutCondition{Indicator: "pivot_break", Direction: "up"}},

		// special screeners
		{"Base breakout", models.SpecialCondition{Screener: "base_breakout", Direction: "long"}},
		{"Turtle Soup pattern", models.SpecialCondition{Screener: "turtle_signal", Direction: "long"}},
		{"ADX trend strong", models.SpecialCondition{Screener: "adx_trend", Direction: "long"}},
		{"ADX trend short", models.SpecialCondition{Screener: "adx_trend", Direction: "short"}},

		// time-based returns
		{"Weekly return above 5 %", models.TimeframeCondition{Timeframe: "1w", Op: models.OpGT, Value: models.Scalar(0.05)}},
		{"YTD return below -10 %", models.TimeframeCondition{Timeframe: "ytd", Op: models.OpLT, Value: models.Scalar(-0.1)}},
		{"3-month return at least 12%", models.TimeframeCondition{Timeframe: "3m", Op: models.OpGTE, Value: models.Scalar(0.12)}},
	}

	p := NewRuleParser()
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			filter, ok := p.TryParse(tt.query)
			require.True(t, ok, "expected a rule to match")
			assert.Equal(t, models.ConfidenceHigh, filter.Confidence)
			assert.Equal(t, models.ParserPattern, filter.Parser)
			assert.Equal(t, tt.want.Kind(), filter.Category)
			require.Len(t, filter.Conditions, 1)
			assert.Equal(t, tt.want, filter.Conditions[0])
		})
	}
}

func TestTryParse_AlternativePhrasings(t *testing.T) {
	tests := []struct {
		query string
		want  models.Condition
	}{
		{"rsi(14) > 70", models.ThresholdCondition{Indicator: "rsi", Window: 14, Op: models.OpGT, Value: models.Scalar(70)}},
		{"RSI (7) below 25", models.ThresholdCondition{Indicator: "rsi", Window: 7, Op: models.OpLT, Value: models.Scalar(25)}},
		{"cci(20) > 100", models.ThresholdCondition{Indicator: "cci", Window: 20, Op: models.OpGT, Value: models.Scalar(100)}},
		{"close below the 50 day sma", models.MovingAverageCondition{MAType: "sma", Window: 50, Op: models.OpLT}},
		{"price above 50-day ema", models.MovingAverageCondition{MAType: "ema", Window: 50, Op: models.OpGT}},
		{"above 20 sma", models.MovingAverageCondition{MAType: "sma", Window: 20, Op: models.OpGT}},
		{"price crossed above the 200-day moving average", models.MovingAverageCondition{MAType: "sma", Window: 200, Op: models.OpCrossedAbove}},
		{"close below 21 period exponential moving average", models.MovingAverageCondition{MAType: "ema", Window: 21, Op: models.OpLT}},
		{"ema(20) crossed above sma(50)", models.MovingAverageCondition{MAType: "ema", Window: 20, Op: models.OpCrossedAbove, Value: valuePtr(50), CompareMAType: "sma", CompareWindow: 50}},
	}

	p := NewRuleParser()
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			filter, ok := p.TryParse(tt.query)
			require.True(t, ok, "expected a rule to match")
			assert.Equal(t, models.ParserPattern, filter.Parser)
			require.Len(t, filter.Conditions, 1)
			assert.Equal(t, tt.want, filter.Conditions[0])
		})
	}
}

func TestCanonicalPhrasing(t *testing.T) {
	tests := map[string]string{
		"rsi(14) > 70":               "rsi 14 > 70",
		"close below the 50 day sma": "close below the sma 50",
		"price above 50-day ema":     "price above ema 50",
		"above 20 sma":               "above sma 20",
		"50 day moving average":      "sma 50",
		"up 1.5 sma":                 "up 1.5 sma",
		"volume spike 2x 20-day avg": "volume spike 2x 20-day avg",
		"macd crossed above signal":  "macd crossed above signal",
	}
	for in, want := range tests {
		assert.Equal(t, want, canonicalPhrasing(in), in)
	}
}

func TestTryParse_NoMatch(t *testing.T) {
	p := NewRuleParser()
	for _, q := range []string{"", "   ", "Oversold sentiment", "stocks the market loves", "MACD crossed above signal"} {
		filter, ok := p.TryParse(q)
		assert.False(t, ok, q)
		assert.Nil(t, filter, q)
	}
}

func TestTryParse_Idempotent(t *testing.T) {
	p := NewRuleParser()
	for _, q := range []string{"RSI above 70", "Within 5 % of 52-week high", "EMA 20 crossed above SMA 50"} {
		first, ok := p.TryParse(q)
		require.True(t, ok)
		second, ok := p.TryParse(q)
		require.True(t, ok)
		assert.Equal(t, first, second)
	}
}

func TestRules(t *testing.T) {
	p := NewRuleParser()
	infos := p.Rules()
	require.Len(t, infos, len(DefaultRules()))
	assert.Equal(t, "stochrsi_range", infos[0].Name)
	for _, info := range infos {
		assert.NotEmpty(t, info.Pattern, info.Name)
		assert.True(t, info.Category.Valid(), info.Name)
	}
}

func TestNormalizeOp(t *testing.T) {
	tests := map[string]models.Op{
		"above":                     models.OpGT,
		"greater  than":             models.OpGT,
		"at least":                  models.OpGTE,
		"no more than":              models.OpLTE,
		"less than or equal to":     models.OpLTE,
		"equals":                    models.OpEQ,
		"=":                         models.OpEQ,
		">=":                        models.OpGTE,
		"<":                         models.OpLT,
		"==":                        models.OpEQ,
		"Greater Than Or Equal To":  models.OpGTE,
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeOp(in), in)
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"70", 70, true},
		{"-5 %", -0.05, true},
		{"2%", 0.02, true},
		{"0.5 %", 0.005, true},
		{"zero", 0, true},
		{"abc", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseValue(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestCanonicalPeriod(t *testing.T) {
	tests := map[string]string{
		"52w":      "52w",
		"52-week":  "52w",
		"52 weeks": "52w",
		"12-month": "52w",
		"1-month":  "1m",
		"3 month":  "3m",
		"1-day":    "1d",
		"ytd":      "ytd",
		"1 year":   "1y",
	}
	for in, want := range tests {
		got, ok := canonicalPeriod(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := canonicalPeriod("7-week")
	assert.False(t, ok)
}
