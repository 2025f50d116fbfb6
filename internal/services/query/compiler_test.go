package query

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/vire-screener/internal/models"
)

// --- mocks ---

type mockReply struct {
	text  string
	err   error
	block bool
}

// mockGenerator answers per model and records every call in order
type mockGenerator struct {
	mu      sync.Mutex
	replies map[string]mockReply
	calls   []string
	prompts []string
	release chan struct{}
}

func newMockGenerator(replies map[string]mockReply) *mockGenerator {
	return &mockGenerator{replies: replies, release: make(chan struct{})}
}

func (m *mockGenerator) Generate(ctx context.Context, systemPrompt, userText, model string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, model)
	m.prompts = append(m.prompts, systemPrompt)
	r := m.replies[model]
	m.mu.Unlock()

	if r.block {
		// ignores ctx on purpose; the compiler must still move on
		<-m.release
	}
	return r.text, r.err
}

func (m *mockGenerator) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func providers(gen *mockGenerator, names ...string) []Provider {
	out := make([]Provider, len(names))
	for i, m := range names {
		out[i] = Provider{Name: "mock", Model: m, Generator: gen}
	}
	return out
}

const (
	highRSI   = `{"category":1,"conditions":[{"category":1,"indicator":"rsi","window":14,"op":"<","value":30}],"confidence":"high"}`
	mediumCCI = `{"category":1,"conditions":[{"category":1,"indicator":"cci","window":20,"op":"<","value":-100}],"confidence":"medium"}`
	lowMA     = `{"category":2,"conditions":[{"category":2,"ma_type":"sma","window":50,"op":">"}],"confidence":"low"}`
)

// --- tests ---

func TestCompiler_FallbackOrdering(t *testing.T) {
	gen := newMockGenerator(map[string]mockReply{
		"m1": {text: `{"category": 1, "conditions": [`},
		"m2": {text: mediumCCI},
		"m3": {text: highRSI},
	})
	c := NewCompiler(providers(gen, "m1", "m2", "m3"))

	filter := c.Parse(context.Background(), "oversold")

	assert.Equal(t, []string{"m1", "m2", "m3"}, gen.Calls())
	assert.Equal(t, models.ConfidenceHigh, filter.Confidence)
	assert.Equal(t, models.ParserModel, filter.Parser)
	assert.Equal(t, "m3", filter.Model)
	assert.Equal(t, []string{"m1", "m2", "m3"}, filter.AttemptedModels)

	cond, ok := filter.Primary()
	require.True(t, ok)
	assert.Equal(t, models.ThresholdCondition{Indicator: "rsi", Window: 14, Op: models.OpLT, Value: models.Scalar(30)}, cond)
}

func TestCompiler_StopsAtFirstHigh(t *testing.T) {
	gen := newMockGenerator(map[string]mockReply{
		"m1": {text: highRSI},
		"m2": {text: mediumCCI},
	})
	filter := NewCompiler(providers(gen, "m1", "m2")).Parse(context.Background(), "oversold")

	assert.Equal(t, []string{"m1"}, gen.Calls())
	assert.Equal(t, "m1", filter.Model)
	assert.Equal(t, []string{"m1"}, filter.AttemptedModels)
}

func TestCompiler_ReturnsLastNonHigh(t *testing.T) {
	gen := newMockGenerator(map[string]mockReply{
		"m1": {text: mediumCCI},
		"m2": {text: lowMA},
		"m3": {err: errors.New("rate limited")},
	})
	filter := NewCompiler(providers(gen, "m1", "m2", "m3")).Parse(context.Background(), "price above its average")

	assert.Equal(t, []string{"m1", "m2", "m3"}, gen.Calls())
	assert.Equal(t, models.ConfidenceLow, filter.Confidence)
	assert.Equal(t, models.CategoryMovingAverage, filter.Category)
	assert.Equal(t, "m2", filter.Model)
	assert.Equal(t, []string{"m1", "m2", "m3"}, filter.AttemptedModels)
}

func TestCompiler_TotalFailure(t *testing.T) {
	gen := newMockGenerator(map[string]mockReply{
		"m1": {err: errors.New("connection refused")},
		"m2": {err: errors.New("503 service unavailable")},
	})
	filter := NewCompiler(providers(gen, "m1", "m2")).Parse(context.Background(), "oversold sentiment")

	assert.Equal(t, models.CategoryUnparsed, filter.Category)
	assert.Equal(t, models.ConfidenceLow, filter.Confidence)
	assert.NotEmpty(t, filter.Fallback)
	assert.Contains(t, filter.Fallback, "connection refused")
	assert.Empty(t, filter.Conditions)
	assert.Equal(t, []string{"m1", "m2"}, filter.AttemptedModels)
}

func TestCompiler_NoProviders(t *testing.T) {
	filter := NewCompiler(nil).Parse(context.Background(), "oversold")
	assert.Equal(t, models.CategoryUnparsed, filter.Category)
	assert.Equal(t, models.ConfidenceLow, filter.Confidence)
	assert.NotEmpty(t, filter.Fallback)
}

func TestCompiler_AttemptTimeout(t *testing.T) {
	gen := newMockGenerator(map[string]mockReply{
		"slow": {text: highRSI, block: true},
		"fast": {text: highRSI},
	})
	defer close(gen.release)

	c := NewCompiler(providers(gen, "slow", "fast"), WithAttemptTimeout(20*time.Millisecond))

	start := time.Now()
	filter := c.Parse(context.Background(), "oversold")

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, "fast", filter.Model)
	assert.Equal(t, []string{"slow", "fast"}, filter.AttemptedModels)
}

func TestCompiler_CancelledContext(t *testing.T) {
	gen := newMockGenerator(map[string]mockReply{"m1": {text: highRSI}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	filter := NewCompiler(providers(gen, "m1")).Parse(ctx, "oversold")
	assert.Empty(t, gen.Calls())
	assert.Equal(t, models.CategoryUnparsed, filter.Category)
	assert.Contains(t, filter.Fallback, "cancelled")
}

func TestCompiler_SendsSystemPrompt(t *testing.T) {
	gen := newMockGenerator(map[string]mockReply{"m1": {text: highRSI}})

	NewCompiler(providers(gen, "m1")).Parse(context.Background(), "oversold")
	require.Len(t, gen.prompts, 1)
	assert.Equal(t, DefaultSystemPrompt, gen.prompts[0])

	gen = newMockGenerator(map[string]mockReply{"m1": {text: highRSI}})
	NewCompiler(providers(gen, "m1"), WithSystemPrompt("custom")).Parse(context.Background(), "oversold")
	assert.Equal(t, "custom", gen.prompts[0])
}

func TestCompiler_ClockTimesAttempts(t *testing.T) {
	gen := newMockGenerator(map[string]mockReply{"m1": {text: highRSI}})
	var ticks int
	clock := func() time.Time {
		ticks++
		return time.Unix(int64(ticks), 0)
	}
	NewCompiler(providers(gen, "m1"), WithClock(clock)).Parse(context.Background(), "oversold")
	assert.Equal(t, 2, ticks)
}

func TestCompiler_MissingGenerator(t *testing.T) {
	gen := newMockGenerator(map[string]mockReply{"m2": {text: highRSI}})
	ps := []Provider{{Name: "broken", Model: "m1"}, {Name: "mock", Model: "m2", Generator: gen}}

	filter := NewCompiler(ps).Parse(context.Background(), "oversold")
	assert.Equal(t, "m2", filter.Model)
}

func TestDecodeReply_Fences(t *testing.T) {
	for _, raw := range []string{
		"```json\n" + highRSI + "\n```",
		"```\n" + highRSI + "\n```",
		"Here is the filter:\n" + highRSI,
		"  " + highRSI + "  ",
	} {
		filter, err := DecodeReply(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, models.CategoryThreshold, filter.Category)
		assert.Len(t, filter.Conditions, 1)
	}
}

func TestDecodeReply_MandatoryFields(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"not json", "I cannot help with that"},
		{"missing category", `{"conditions":[],"confidence":"high"}`},
		{"missing conditions", `{"category":1,"confidence":"high"}`},
		{"missing confidence", `{"category":1,"conditions":[]}`},
		{"bad confidence", `{"category":1,"conditions":[],"confidence":"certain"}`},
		{"category out of range", `{"category":42,"conditions":[],"confidence":"high"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeReply(tt.raw)
			assert.Error(t, err)
		})
	}
}

func TestDecodeReply_Reasons(t *testing.T) {
	_, err := DecodeReply("")
	assert.Equal(t, ReasonEmpty, reasonFor(err))

	_, err = DecodeReply(`{"category":1,`)
	assert.Equal(t, ReasonJSON, reasonFor(err))

	_, err = DecodeReply(`{"category":1,"confidence":"high"}`)
	assert.Equal(t, ReasonSchema, reasonFor(err))
}

func TestDecodeReply_InheritsCategory(t *testing.T) {
	filter, err := DecodeReply(`{"category":"5","conditions":[{"indicator":"ATR","window":14,"op":">","value":"2%"}],"confidence":"HIGH"}`)
	require.NoError(t, err)
	assert.Equal(t, models.CategoryVolatility, filter.Category)
	assert.Equal(t, models.ConfidenceHigh, filter.Confidence)
	assert.Equal(t, models.VolatilityCondition{Indicator: "atr", Window: 14, Op: models.OpGT, Value: models.Scalar(0.02)}, filter.Conditions[0])
}

func TestDecodeReply_Fallback(t *testing.T) {
	filter, err := DecodeReply(`{"category":11,"conditions":[],"confidence":"low","llmFallback":"user wants sentiment data"}`)
	require.NoError(t, err)
	assert.Equal(t, models.CategoryUnparsed, filter.Category)
	assert.Equal(t, "user wants sentiment data", filter.Fallback)
	assert.Empty(t, filter.Conditions)
}

func TestDecodeReply_TopLevelComposite(t *testing.T) {
	raw := `{ "category": 8, "operator": "and", "subConditions": [
		{ "category": 4, "conditions": [{"category": 4, "reference": "52w_low", "op": ">", "value": 0.15 }] },
		{ "category": 5, "conditions": [{"category": 5, "indicator": "atr", "window": 14, "op": ">", "value": 0.02 }] }
	], "confidence": "high" }`

	filter, err := DecodeReply(raw)
	require.NoError(t, err)
	assert.Equal(t, models.CategoryComposite, filter.Category)
	require.Len(t, filter.Conditions, 1)

	comp, ok := filter.Conditions[0].(models.CompositeCondition)
	require.True(t, ok)
	assert.Equal(t, "and", comp.Operator)
	require.Len(t, comp.SubConditions, 2)
	assert.Equal(t, models.CategoryReference, comp.SubConditions[0].Category)
	assert.Equal(t, models.ReferenceCondition{Reference: "52w_low", Op: models.OpGT, Value: models.Scalar(0.15)}, comp.SubConditions[0].Conditions[0])
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripFences("```json{\"a\":1}```"))
	assert.Equal(t, `{"a":1}`, StripFences(`{"a":1} hope this helps`))
	assert.True(t, strings.HasPrefix(StripFences("no json here"), "no json"))
}
