package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrMissingCategory is returned when a condition has no category discriminator.
var ErrMissingCategory = errors.New("condition missing category")

// Category is the discriminant of a Condition
type Category int

const (
	CategoryThreshold        Category = 1  // indicator threshold
	CategoryMovingAverage    Category = 2  // price vs moving average
	CategoryRelativeStrength Category = 3  // relative strength vs benchmark
	CategoryReference        Category = 4  // percent change from reference
	CategoryVolatility       Category = 5  // volume / volatility
	CategoryPattern          Category = 6  // chart pattern / candle
	CategoryBreakout         Category = 7  // breakout / swing
	CategoryComposite        Category = 8  // AND/OR, schema only
	CategorySpecial          Category = 9  // special screener
	CategoryTimeframe        Category = 10 // time-based return
	CategoryUnparsed         Category = 11 // fallback
)

var categoryNames = map[Category]string{
	CategoryThreshold:        "threshold",
	CategoryMovingAverage:    "moving_average",
	CategoryRelativeStrength: "relative_strength",
	CategoryReference:        "reference",
	CategoryVolatility:       "volatility",
	CategoryPattern:          "pattern",
	CategoryBreakout:         "breakout",
	CategoryComposite:        "composite",
	CategorySpecial:          "special",
	CategoryTimeframe:        "timeframe",
	CategoryUnparsed:         "unparsed",
}

// String returns the category's short name
func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("category_%d", int(c))
}

// Valid reports whether c is one of the eleven known categories
func (c Category) Valid() bool {
	return c >= CategoryThreshold && c <= CategoryUnparsed
}

// UnmarshalJSON accepts a number or a numeric string ("11").
func (c *Category) UnmarshalJSON(data []byte) error {
	var n flexInt
	if err := n.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("category: %w", err)
	}
	*c = Category(n)
	return nil
}

// Op is a comparison operator
type Op string

const (
	OpGT              Op = ">"
	OpGTE             Op = ">="
	OpLT              Op = "<"
	OpLTE             Op = "<="
	OpEQ              Op = "=="
	OpBetween         Op = "between"
	OpCrossedAbove    Op = "crossed_above"
	OpCrossedBelow    Op = "crossed_below"
	OpProximityWithin Op = "proximity_within"
)

// EqualityEpsilon is the tolerance applied by the == operator
const EqualityEpsilon = 1e-4

// Compare applies a scalar comparison operator. Crossing and proximity
// operators need two bars and are handled by the evaluator; they return false here.
func (op Op) Compare(actual float64, target Value) bool {
	if math.IsNaN(actual) || math.IsInf(actual, 0) {
		return false
	}
	switch op {
	case OpBetween:
		lo, hi, ok := target.Bounds()
		if !ok {
			return false
		}
		return lo <= actual && actual <= hi
	}
	v, ok := target.Number()
	if !ok {
		return false
	}
	switch op {
	case OpGT:
		return actual > v
	case OpGTE:
		return actual >= v
	case OpLT:
		return actual < v
	case OpLTE:
		return actual <= v
	case OpEQ:
		return math.Abs(actual-v) <= EqualityEpsilon
	}
	return false
}

// Confidence is a parser-reported quality tier
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Valid reports whether c is high, medium or low
func (c Confidence) Valid() bool {
	return c == ConfidenceHigh || c == ConfidenceMedium || c == ConfidenceLow
}

// ParserOrigin records which tier produced a ParsedFilter
type ParserOrigin string

const (
	ParserPattern ParserOrigin = "pattern"
	ParserModel   ParserOrigin = "model"
)

// Value is a condition target: a scalar or an inclusive [low, high] pair.
type Value struct {
	scalar  float64
	low     float64
	high    float64
	isRange bool
	set     bool
}

// Scalar builds a single-number target
func Scalar(v float64) Value {
	return Value{scalar: v, set: true}
}

// Range builds a [low, high] target
func Range(low, high float64) Value {
	return Value{low: low, high: high, isRange: true, set: true}
}

// IsSet reports whether the value was provided
func (v Value) IsSet() bool { return v.set }

// IsRange reports whether the value is a [low, high] pair
func (v Value) IsRange() bool { return v.isRange }

// Number returns the scalar target
func (v Value) Number() (float64, bool) {
	if !v.set || v.isRange {
		return 0, false
	}
	return v.scalar, true
}

// Bounds returns the [low, high] pair, ordered
func (v Value) Bounds() (float64, float64, bool) {
	if !v.set || !v.isRange {
		return 0, 0, false
	}
	if v.low > v.high {
		return v.high, v.low, true
	}
	return v.low, v.high, true
}

// MarshalJSON writes a number, a two-element array, or null
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.set {
		return []byte("null"), nil
	}
	if v.isRange {
		return json.Marshal([2]float64{v.low, v.high})
	}
	return json.Marshal(v.scalar)
}

// UnmarshalJSON accepts a number, a numeric string, a [low, high] array, or null.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = Value{}
		return nil
	}
	if len(data) > 0 && data[0] == '[' {
		var pair []flexFloat
		if err := json.Unmarshal(data, &pair); err != nil {
			return fmt.Errorf("value: %w", err)
		}
		if len(pair) != 2 {
			return fmt.Errorf("value: range must have 2 elements, got %d", len(pair))
		}
		*v = Range(float64(pair[0]), float64(pair[1]))
		return nil
	}
	var f flexFloat
	if err := f.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("value: %w", err)
	}
	*v = Scalar(float64(f))
	return nil
}

// String formats the value for labels and logs
func (v Value) String() string {
	if !v.set {
		return ""
	}
	if v.isRange {
		return fmt.Sprintf("[%g, %g]", v.low, v.high)
	}
	return strconv.FormatFloat(v.scalar, 'g', -1, 64)
}

// Condition is one structured filter. Each category has its own variant.
type Condition interface {
	Kind() Category
	condition()
}

// ThresholdCondition compares an oscillator's latest value (category 1).
type ThresholdCondition struct {
	Indicator string `json:"indicator"`
	Window    int    `json:"window,omitempty"`
	Op        Op     `json:"op"`
	Value     Value  `json:"value"`
}

// MovingAverageCondition relates close to a moving average (category 2).
// CompareMAType/CompareWindow carry the second average of a dual-average crossover.
type MovingAverageCondition struct {
	MAType        string `json:"ma_type"`
	Window        int    `json:"window"`
	Op            Op     `json:"op"`
	Value         *Value `json:"value,omitempty"`
	CompareMAType string `json:"compare_ma_type,omitempty"`
	CompareWindow int    `json:"compare_window,omitempty"`
}

// RelativeStrengthCondition compares against a benchmark (category 3).
type RelativeStrengthCondition struct {
	Benchmark string `json:"benchmark"`
	Window    int    `json:"window,omitempty"`
	Op        Op     `json:"op"`
	Value     Value  `json:"value"`
}

// ReferenceCondition compares percent change from a trailing low/high (category 4).
type ReferenceCondition struct {
	Reference string `json:"reference"`
	Op        Op     `json:"op"`
	Value     Value  `json:"value"`
}

// VolatilityCondition compares a volume or volatility metric (category 5).
type VolatilityCondition struct {
	Indicator string `json:"indicator"`
	Window    int    `json:"window,omitempty"`
	Op        Op     `json:"op"`
	Value     Value  `json:"value"`
}

// PatternCondition detects a candle pattern on the latest bar (category 6).
type PatternCondition struct {
	PatternType string `json:"pattern_type"`
	Direction   string `json:"direction,omitempty"`
	Window      int    `json:"window,omitempty"`
}

// BreakoutCondition tests close against a band or channel (category 7).
type BreakoutCondition struct {
	Indicator string `json:"indicator"`
	Direction string `json:"direction,omitempty"`
	Window    int    `json:"window,omitempty"`
}

// SubFilter is one operand of a composite condition
type SubFilter struct {
	Category   Category   `json:"category"`
	Conditions Conditions `json:"conditions"`
}

// CompositeCondition combines sub-filters with and/or (category 8).
type CompositeCondition struct {
	Operator      string      `json:"operator"`
	SubConditions []SubFilter `json:"subConditions"`
}

// SpecialCondition names a composite heuristic screener (category 9).
type SpecialCondition struct {
	Screener  string `json:"screener"`
	Direction string `json:"direction,omitempty"`
	Window    int    `json:"window,omitempty"`
}

// TimeframeCondition compares a timeframe return (category 10).
type TimeframeCondition struct {
	Timeframe string `json:"timeframe"`
	Op        Op     `json:"op"`
	Value     Value  `json:"value"`
}

// UnparsedCondition is the category 11 placeholder
type UnparsedCondition struct{}

// UnknownCondition preserves a condition whose category is outside 1-11.
type UnknownCondition struct {
	Category Category
	Raw      json.RawMessage
}

func (ThresholdCondition) Kind() Category        { return CategoryThreshold }
func (MovingAverageCondition) Kind() Category    { return CategoryMovingAverage }
func (RelativeStrengthCondition) Kind() Category { return CategoryRelativeStrength }
func (ReferenceCondition) Kind() Category        { return CategoryReference }
func (VolatilityCondition) Kind() Category       { return CategoryVolatility }
func (PatternCondition) Kind() Category          { return CategoryPattern }
func (BreakoutCondition) Kind() Category         { return CategoryBreakout }
func (CompositeCondition) Kind() Category        { return CategoryComposite }
func (SpecialCondition) Kind() Category          { return CategorySpecial }
func (TimeframeCondition) Kind() Category        { return CategoryTimeframe }
func (UnparsedCondition) Kind() Category         { return CategoryUnparsed }
func (c UnknownCondition) Kind() Category        { return c.Category }

func (ThresholdCondition) condition()        {}
func (MovingAverageCondition) condition()    {}
func (RelativeStrengthCondition) condition() {}
func (ReferenceCondition) condition()        {}
func (VolatilityCondition) condition()       {}
func (PatternCondition) condition()          {}
func (BreakoutCondition) condition()         {}
func (CompositeCondition) condition()        {}
func (SpecialCondition) condition()          {}
func (TimeframeCondition) condition()        {}
func (UnparsedCondition) condition()         {}
func (UnknownCondition) condition()          {}

// withCategory marshals v and prepends the category discriminant as the first field.
func withCategory(cat Category, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	prefix := fmt.Sprintf(`{"category":%d`, int(cat))
	if len(body) <= 2 {
		return []byte(prefix + "}"), nil
	}
	return append([]byte(prefix+","), body[1:]...), nil
}

func (c ThresholdCondition) MarshalJSON() ([]byte, error) {
	type alias ThresholdCondition
	return withCategory(c.Kind(), alias(c))
}

func (c MovingAverageCondition) MarshalJSON() ([]byte, error) {
	type alias MovingAverageCondition
	return withCategory(c.Kind(), alias(c))
}

func (c RelativeStrengthCondition) MarshalJSON() ([]byte, error) {
	type alias RelativeStrengthCondition
	return withCategory(c.Kind(), alias(c))
}

func (c ReferenceCondition) MarshalJSON() ([]byte, error) {
	type alias ReferenceCondition
	return withCategory(c.Kind(), alias(c))
}

func (c VolatilityCondition) MarshalJSON() ([]byte, error) {
	type alias VolatilityCondition
	return withCategory(c.Kind(), alias(c))
}

func (c PatternCondition) MarshalJSON() ([]byte, error) {
	type alias PatternCondition
	return withCategory(c.Kind(), alias(c))
}

func (c BreakoutCondition) MarshalJSON() ([]byte, error) {
	type alias BreakoutCondition
	return withCategory(c.Kind(), alias(c))
}

func (c CompositeCondition) MarshalJSON() ([]byte, error) {
	type alias CompositeCondition
	if c.SubConditions == nil {
		c.SubConditions = []SubFilter{}
	}
	return withCategory(c.Kind(), alias(c))
}

func (c SpecialCondition) MarshalJSON() ([]byte, error) {
	type alias SpecialCondition
	return withCategory(c.Kind(), alias(c))
}

func (c TimeframeCondition) MarshalJSON() ([]byte, error) {
	type alias TimeframeCondition
	return withCategory(c.Kind(), alias(c))
}

func (c UnparsedCondition) MarshalJSON() ([]byte, error) {
	return withCategory(c.Kind(), struct{}{})
}

func (c UnknownCondition) MarshalJSON() ([]byte, error) {
	if len(c.Raw) > 0 {
		return c.Raw, nil
	}
	return withCategory(c.Category, struct{}{})
}

// rawCondition is the lenient decode target shared by every variant.
type rawCondition struct {
	Category      *Category   `json:"category"`
	Indicator     string      `json:"indicator"`
	Window        flexInt     `json:"window"`
	Op            Op          `json:"op"`
	Value         *Value      `json:"value"`
	MAType        string      `json:"ma_type"`
	CompareMAType string      `json:"compare_ma_type"`
	CompareWindow flexInt     `json:"compare_window"`
	Benchmark     string      `json:"benchmark"`
	Reference     string      `json:"reference"`
	PatternType   string      `json:"pattern_type"`
	Direction     string      `json:"direction"`
	Screener      string      `json:"screener"`
	Timeframe     string      `json:"timeframe"`
	Operator      string      `json:"operator"`
	SubConditions []SubFilter `json:"subConditions"`
}

// DecodeCondition decodes one condition, dispatching on its category field.
// A missing category returns ErrMissingCategory.
func DecodeCondition(data []byte) (Condition, error) {
	return DecodeConditionDefault(data, 0)
}

// DecodeConditionDefault decodes one condition, using fallback when the
// category field is absent. A zero fallback makes the category mandatory.
func DecodeConditionDefault(data []byte, fallback Category) (Condition, error) {
	var raw rawCondition
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode condition: %w", err)
	}

	cat := fallback
	if raw.Category != nil {
		cat = *raw.Category
	}
	if cat == 0 {
		return nil, ErrMissingCategory
	}

	value := Value{}
	if raw.Value != nil {
		value = *raw.Value
	}
	op := Op(strings.ToLower(strings.TrimSpace(string(raw.Op))))

	switch cat {
	case CategoryThreshold:
		return ThresholdCondition{
			Indicator: strings.ToLower(raw.Indicator),
			Window:    int(raw.Window),
			Op:        op,
			Value:     value,
		}, nil
	case CategoryMovingAverage:
		return MovingAverageCondition{
			MAType:        strings.ToLower(raw.MAType),
			Window:        int(raw.Window),
			Op:            op,
			Value:         raw.Value,
			CompareMAType: strings.ToLower(raw.CompareMAType),
			CompareWindow: int(raw.CompareWindow),
		}, nil
	case CategoryRelativeStrength:
		return RelativeStrengthCondition{
			Benchmark: raw.Benchmark,
			Window:    int(raw.Window),
			Op:        op,
			Value:     value,
		}, nil
	case CategoryReference:
		return ReferenceCondition{
			Reference: strings.ToLower(raw.Reference),
			Op:        op,
			Value:     value,
		}, nil
	case CategoryVolatility:
		return VolatilityCondition{
			Indicator: strings.ToLower(raw.Indicator),
			Window:    int(raw.Window),
			Op:        op,
			Value:     value,
		}, nil
	case CategoryPattern:
		return PatternCondition{
			PatternType: strings.ToLower(raw.PatternType),
			Direction:   strings.ToLower(raw.Direction),
			Window:      int(raw.Window),
		}, nil
	case CategoryBreakout:
		return BreakoutCondition{
			Indicator: strings.ToLower(raw.Indicator),
			Direction: strings.ToLower(raw.Direction),
			Window:    int(raw.Window),
		}, nil
	case CategoryComposite:
		return CompositeCondition{
			Operator:      strings.ToLower(raw.Operator),
			SubConditions: raw.SubConditions,
		}, nil
	case CategorySpecial:
		return SpecialCondition{
			Screener:  strings.ToLower(raw.Screener),
			Direction: strings.ToLower(raw.Direction),
			Window:    int(raw.Window),
		}, nil
	case CategoryTimeframe:
		return TimeframeCondition{
			Timeframe: strings.ToLower(raw.Timeframe),
			Op:        op,
			Value:     value,
		}, nil
	case CategoryUnparsed:
		return UnparsedCondition{}, nil
	}
	return UnknownCondition{Category: cat, Raw: append(json.RawMessage(nil), data...)}, nil
}

// Conditions is an ordered list of conditions with category-dispatched decoding.
type Conditions []Condition

// MarshalJSON writes an empty array for nil
func (cs Conditions) MarshalJSON() ([]byte, error) {
	if cs == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Condition(cs))
}

// UnmarshalJSON decodes each element by its category field
func (cs *Conditions) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("conditions: %w", err)
	}
	out := make(Conditions, 0, len(raws))
	for i, r := range raws {
		c, err := DecodeCondition(r)
		if err != nil {
			return fmt.Errorf("conditions[%d]: %w", i, err)
		}
		out = append(out, c)
	}
	*cs = out
	return nil
}

// ParsedFilter is the structured result of parsing one query
type ParsedFilter struct {
	Category        Category     `json:"category"`
	Conditions      Conditions   `json:"conditions"`
	Confidence      Confidence   `json:"confidence"`
	Parser          ParserOrigin `json:"parser"`
	Fallback        string       `json:"llmFallback,omitempty"`
	Model           string       `json:"model,omitempty"`
	AttemptedModels []string     `json:"attempted_models,omitempty"`
}

// Primary returns the condition the screener evaluates (the first one).
func (f *ParsedFilter) Primary() (Condition, bool) {
	if f == nil || len(f.Conditions) == 0 {
		return nil, false
	}
	return f.Conditions[0], true
}

// Unparsed builds the category 11 sentinel with an explanation
func Unparsed(explanation string) *ParsedFilter {
	return &ParsedFilter{
		Category:   CategoryUnparsed,
		Conditions: Conditions{},
		Confidence: ConfidenceLow,
		Parser:     ParserModel,
		Fallback:   explanation,
	}
}

// RuleInfo describes one pattern rule for diagnostics
type RuleInfo struct {
	Name     string   `json:"name"`
	Category Category `json:"category"`
	Pattern  string   `json:"pattern"`
}

// flexInt decodes a JSON number (integral or not), numeric string, or null.
type flexInt int

func (n *flexInt) UnmarshalJSON(data []byte) error {
	var f flexFloat
	if err := f.UnmarshalJSON(data); err != nil {
		return err
	}
	*n = flexInt(math.Round(float64(f)))
	return nil
}

// flexFloat decodes a JSON number, numeric string (optionally with %), or null.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		pct := strings.HasSuffix(s, "%")
		s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("not a number: %q", s)
		}
		if pct {
			v /= 100
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}
