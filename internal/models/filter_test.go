package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpCompare_Equality(t *testing.T) {
	tests := []struct {
		actual float64
		target float64
		want   bool
	}{
		{70, 70, true},
		{70, 70.00005, true},
		{70, 70.01, false},
		{70.0001, 70, true},
		{69.9, 70, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OpEQ.Compare(tt.actual, Scalar(tt.target)), "%v == %v", tt.actual, tt.target)
	}
}

func TestOpCompare_Operators(t *testing.T) {
	assert.True(t, OpGT.Compare(71, Scalar(70)))
	assert.False(t, OpGT.Compare(70, Scalar(70)))
	assert.True(t, OpGTE.Compare(70, Scalar(70)))
	assert.True(t, OpLT.Compare(-101, Scalar(-100)))
	assert.True(t, OpLTE.Compare(-100, Scalar(-100)))
	assert.True(t, OpBetween.Compare(50, Range(30, 70)))
	assert.True(t, OpBetween.Compare(30, Range(30, 70)))
	assert.True(t, OpBetween.Compare(50, Range(70, 30)), "reversed bounds are reordered")
	assert.False(t, OpBetween.Compare(71, Range(30, 70)))
	assert.False(t, OpBetween.Compare(50, Scalar(50)), "between needs a range")
	assert.False(t, OpGT.Compare(50, Range(30, 70)), "scalar op needs a scalar")
	assert.False(t, OpCrossedAbove.Compare(50, Scalar(10)))
	assert.False(t, Op("~").Compare(1, Scalar(0)))
	assert.False(t, OpGT.Compare(1, Value{}), "unset value never passes")
}

func TestValue_JSON(t *testing.T) {
	tests := []struct {
		in      string
		isRange bool
		scalar  float64
		lo, hi  float64
	}{
		{`70`, false, 70, 0, 0},
		{`"70"`, false, 70, 0, 0},
		{`"5%"`, false, 0.05, 0, 0},
		{`-0.1`, false, -0.1, 0, 0},
		{`[30, 70]`, true, 0, 30, 70},
		{`["30","70"]`, true, 0, 30, 70},
	}
	for _, tt := range tests {
		var v Value
		require.NoError(t, json.Unmarshal([]byte(tt.in), &v), tt.in)
		assert.True(t, v.IsSet())
		assert.Equal(t, tt.isRange, v.IsRange(), tt.in)
		if tt.isRange {
			lo, hi, ok := v.Bounds()
			assert.True(t, ok)
			assert.InDelta(t, tt.lo, lo, 1e-12)
			assert.InDelta(t, tt.hi, hi, 1e-12)
		} else {
			n, ok := v.Number()
			assert.True(t, ok)
			assert.InDelta(t, tt.scalar, n, 1e-12)
		}
	}

	var bad Value
	assert.Error(t, json.Unmarshal([]byte(`[1,2,3]`), &bad))
	assert.Error(t, json.Unmarshal([]byte(`"abc"`), &bad))

	out, err := json.Marshal(Range(30, 70))
	require.NoError(t, err)
	assert.JSONEq(t, `[30,70]`, string(out))
}

func TestCategory_UnmarshalString(t *testing.T) {
	var c Category
	require.NoError(t, json.Unmarshal([]byte(`"11"`), &c))
	assert.Equal(t, CategoryUnparsed, c)
	require.NoError(t, json.Unmarshal([]byte(`4`), &c))
	assert.Equal(t, CategoryReference, c)
	assert.True(t, c.Valid())
	assert.False(t, Category(12).Valid())
	assert.Equal(t, "category_12", Category(12).String())
}

func TestThresholdCondition_WireFormat(t *testing.T) {
	c := ThresholdCondition{Indicator: "rsi", Window: 14, Op: OpGT, Value: Scalar(70)}
	out, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Equal(t, `{"category":1,"indicator":"rsi","window":14,"op":">","value":70}`, string(out))
}

func TestDecodeCondition_Variants(t *testing.T) {
	tests := []struct {
		in   string
		want Condition
	}{
		{
			`{"category":1,"indicator":"RSI","window":14,"op":">","value":70}`,
			ThresholdCondition{Indicator: "rsi", Window: 14, Op: OpGT, Value: Scalar(70)},
		},
		{
			`{"category":1,"indicator":"stochrsi","window":14.0,"op":"between","value":[30,70]}`,
			ThresholdCondition{Indicator: "stochrsi", Window: 14, Op: OpBetween, Value: Range(30, 70)},
		},
		{
			`{"category":4,"reference":"52w_low","op":">","value":0.15}`,
			ReferenceCondition{Reference: "52w_low", Op: OpGT, Value: Scalar(0.15)},
		},
		{
			`{"category":6,"pattern_type":"doji","direction":null,"window":null}`,
			PatternCondition{PatternType: "doji"},
		},
		{
			`{"category":"7","indicator":"donchian_breakout","direction":"up","window":"20"}`,
			BreakoutCondition{Indicator: "donchian_breakout", Direction: "up", Window: 20},
		},
		{
			`{"category":9,"screener":"adx_trend","direction":"long"}`,
			SpecialCondition{Screener: "adx_trend", Direction: "long"},
		},
		{
			`{"category":10,"timeframe":"1W","op":">","value":0.05}`,
			TimeframeCondition{Timeframe: "1w", Op: OpGT, Value: Scalar(0.05)},
		},
		{
			`{"category":11}`,
			UnparsedCondition{},
		},
	}
	for _, tt := range tests {
		got, err := DecodeCondition([]byte(tt.in))
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestDecodeCondition_MissingCategory(t *testing.T) {
	_, err := DecodeCondition([]byte(`{"indicator":"rsi","op":">","value":70}`))
	assert.True(t, errors.Is(err, ErrMissingCategory))

	_, err = DecodeCondition([]byte(`{"category":null,"indicator":"rsi"}`))
	assert.True(t, errors.Is(err, ErrMissingCategory))

	c, err := DecodeConditionDefault([]byte(`{"indicator":"rsi","op":">","value":70}`), CategoryThreshold)
	require.NoError(t, err)
	assert.Equal(t, CategoryThreshold, c.Kind())
}

func TestDecodeCondition_UnknownCategoryRoundTrip(t *testing.T) {
	in := `{"category":42,"indicator":"magic"}`
	c, err := DecodeCondition([]byte(in))
	require.NoError(t, err)
	unk, ok := c.(UnknownCondition)
	require.True(t, ok)
	assert.Equal(t, Category(42), unk.Kind())

	out, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
}

func TestMovingAverageCondition_ValueOptional(t *testing.T) {
	c, err := DecodeCondition([]byte(`{"category":2,"ma_type":"EMA","window":20,"op":"crossed_above"}`))
	require.NoError(t, err)
	ma := c.(MovingAverageCondition)
	assert.Nil(t, ma.Value)
	assert.Equal(t, "ema", ma.MAType)

	out, err := json.Marshal(ma)
	require.NoError(t, err)
	assert.JSONEq(t, `{"category":2,"ma_type":"ema","window":20,"op":"crossed_above"}`, string(out))
}

func TestParsedFilter_RoundTrip(t *testing.T) {
	in := `{
		"category": 8,
		"conditions": [{
			"category": 8,
			"operator": "and",
			"subConditions": [
				{"category": 4, "conditions": [{"category": 4, "reference": "52w_low", "op": ">", "value": 0.15}]},
				{"category": 5, "conditions": [{"category": 5, "indicator": "atr", "window": 14, "op": ">", "value": 0.02}]}
			]
		}],
		"confidence": "high",
		"parser": "model",
		"model": "kimi"
	}`
	var f ParsedFilter
	require.NoError(t, json.Unmarshal([]byte(in), &f))
	require.Len(t, f.Conditions, 1)
	comp, ok := f.Conditions[0].(CompositeCondition)
	require.True(t, ok)
	assert.Equal(t, "and", comp.Operator)
	require.Len(t, comp.SubConditions, 2)
	assert.Equal(t, CategoryVolatility, comp.SubConditions[1].Category)
	assert.Equal(t, VolatilityCondition{Indicator: "atr", Window: 14, Op: OpGT, Value: Scalar(0.02)}, comp.SubConditions[1].Conditions[0])

	out, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
}

func TestParsedFilter_ConditionMissingCategoryFails(t *testing.T) {
	var f ParsedFilter
	err := json.Unmarshal([]byte(`{"category":1,"conditions":[{"indicator":"rsi"}],"confidence":"high"}`), &f)
	assert.True(t, errors.Is(err, ErrMissingCategory))
}

func TestUnparsed(t *testing.T) {
	f := Unparsed("no provider produced a result")
	assert.Equal(t, CategoryUnparsed, f.Category)
	assert.Equal(t, ConfidenceLow, f.Confidence)
	assert.NotEmpty(t, f.Fallback)
	_, ok := f.Primary()
	assert.False(t, ok)

	out, err := json.Marshal(f)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"conditions":[]`)
	assert.Contains(t, string(out), `"llmFallback":"no provider produced a result"`)
}

func TestBar_JSON(t *testing.T) {
	var b Bar
	require.NoError(t, json.Unmarshal([]byte(`{"symbol":"BHP","date":"2025-03-14T10:30:00Z","open":1,"high":2,"low":0.5,"close":1.5,"volume":1200}`), &b))
	assert.Equal(t, "2025-03-14", b.Date.Format(DateLayout))
	assert.Equal(t, int64(1200), b.Volume)
	assert.InDelta(t, 1.5, b.Range(), 1e-12)
	assert.InDelta(t, 0.5, b.Body(), 1e-12)

	out, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"date":"2025-03-14"`)

	assert.Error(t, json.Unmarshal([]byte(`{"symbol":"X","date":"14/03/2025"}`), &b))
}
