// Package query turns natural-language screening queries into structured filters.
//
// Parsing is tiered: an ordered table of pattern rules is tried first, and
// only queries no rule recognises are sent to the model-backed Compiler.
package query

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/bobmcallan/vire-screener/internal/models"
)

// Building blocks shared by the rule patterns. Alternations are ordered
// longest-first because RE2 alternation is leftmost-first.
const (
	cmpPattern = `(?P<op>>=|<=|==|=|>|<|greater\s+than\s+or\s+equal\s+to|at\s+least|no\s+less\s+than|less\s+than\s+or\s+equal\s+to|at\s+most|no\s+more\s+than|greater\s+than|more\s+than|above|over|less\s+than|below|under|equal\s+to|equals)`

	// numPattern captures a bare number; a trailing % is left uncaptured
	numPattern = `(?P<value>-?\d+(?:\.\d+)?|zero)`

	// pctPattern captures a number with an optional trailing %, which divides by 100
	pctPattern = `(?P<value>-?\d+(?:\.\d+)?(?:\s*%)?|zero)`

	maPattern = `(?P<ma_type>sma|ema|wma|hma|rma|smma|kama|dema|tema|zlma|trima|hull\s+ma|zero[-\s]?lag\s+ma)`

	refPeriodPattern = `(?P<period>1d|1w|1m|3m|6m|52w|1y|ytd|\d+[-\s]?(?:day|week|month|year)s?)`
)

// opPhrases normalises operator words to symbols
var opPhrases = map[string]models.Op{
	"greater than":             models.OpGT,
	"more than":                models.OpGT,
	"above":                    models.OpGT,
	"over":                     models.OpGT,
	"less than":                models.OpLT,
	"below":                    models.OpLT,
	"under":                    models.OpLT,
	"greater than or equal to": models.OpGTE,
	"at least":                 models.OpGTE,
	"no less than":             models.OpGTE,
	"less than or equal to":    models.OpLTE,
	"at most":                  models.OpLTE,
	"no more than":             models.OpLTE,
	"equal to":                 models.OpEQ,
	"equals":                   models.OpEQ,
	"=":                        models.OpEQ,
}

var spaces = regexp.MustCompile(`\s+`)

// normalizeOp converts an operator phrase to its symbol; symbols pass through.
func normalizeOp(raw string) models.Op {
	raw = spaces.ReplaceAllString(strings.ToLower(strings.TrimSpace(raw)), " ")
	if op, ok := opPhrases[raw]; ok {
		return op
	}
	return models.Op(raw)
}

// parseValue reads a captured literal. A trailing % divides by 100.
func parseValue(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "zero" {
		return 0, true
	}
	pct := strings.HasSuffix(raw, "%")
	raw = strings.TrimSpace(strings.TrimSuffix(raw, "%"))
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	if pct {
		v /= 100
	}
	return v, true
}

// groups holds the named captures of one match
type groups map[string]string

func (g groups) int(name string) int {
	n, err := strconv.Atoi(g[name])
	if err != nil {
		return 0
	}
	return n
}

// Rule is one (pattern, condition template) entry of the rule table.
type Rule struct {
	Name     string
	Category models.Category
	re       *regexp.Regexp
	build    func(g groups) (models.Condition, bool)
}

func newRule(name string, cat models.Category, pattern string, build func(g groups) (models.Condition, bool)) Rule {
	return Rule{
		Name:     name,
		Category: cat,
		re:       regexp.MustCompile(`(?i)` + pattern),
		build:    build,
	}
}

// match returns the rule's condition for text, if the pattern matches and the
// captures form a valid condition.
func (r Rule) match(text string) (models.Condition, bool) {
	m := r.re.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	g := make(groups, len(m))
	for i, name := range r.re.SubexpNames() {
		if name != "" && m[i] != "" {
			g[name] = m[i]
		}
	}
	return r.build(g)
}

// Info describes the rule for diagnostics
func (r Rule) Info() models.RuleInfo {
	return models.RuleInfo{Name: r.Name, Category: r.Category, Pattern: r.re.String()}
}

// thresholdWindows are the parser's per-indicator window defaults
var thresholdWindows = map[string]int{
	"rsi": 14,
	"atr": 14,
	"cci": 20,
}

func defaultWindow(indicator string, captured int) int {
	if captured > 0 {
		return captured
	}
	return thresholdWindows[indicator]
}

// threshold builds a category 1 condition from op/value/window captures
func threshold(indicator string) func(g groups) (models.Condition, bool) {
	return func(g groups) (models.Condition, bool) {
		v, ok := parseValue(g["value"])
		if !ok {
			return nil, false
		}
		return models.ThresholdCondition{
			Indicator: indicator,
			Window:    defaultWindow(indicator, g.int("window")),
			Op:        normalizeOp(g["op"]),
			Value:     models.Scalar(v),
		}, true
	}
}

// volatility builds a category 5 condition from op/value/window captures
func volatility(indicator string) func(g groups) (models.Condition, bool) {
	return func(g groups) (models.Condition, bool) {
		v, ok := parseValue(g["value"])
		if !ok {
			return nil, false
		}
		return models.VolatilityCondition{
			Indicator: indicator,
			Window:    defaultWindow(indicator, g.int("window")),
			Op:        normalizeOp(g["op"]),
			Value:     models.Scalar(v),
		}, true
	}
}

// canonicalMA maps spelled-out average names to their short form
func canonicalMA(raw string) string {
	raw = spaces.ReplaceAllString(strings.ToLower(raw), " ")
	switch {
	case raw == "hull ma":
		return "hma"
	case strings.HasPrefix(raw, "zero"):
		return "zlma"
	case raw == "smma":
		return "rma"
	}
	return raw
}

// crossOp maps crossing phrases to operators
func crossOp(raw string) (models.Op, bool) {
	raw = spaces.ReplaceAllString(strings.ToLower(strings.TrimSpace(raw)), " ")
	switch {
	case raw == "crossed above", strings.HasPrefix(raw, "bullish"):
		return models.OpCrossedAbove, true
	case raw == "crossed below", strings.HasPrefix(raw, "bearish"):
		return models.OpCrossedBelow, true
	case raw == "above":
		return models.OpGT, true
	case raw == "below":
		return models.OpLT, true
	}
	return "", false
}

// canonicalPeriod normalises "52-week", "1 month", "12-month" etc. to a reference period.
func canonicalPeriod(raw string) (string, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	switch raw {
	case "1d", "1w", "1m", "3m", "6m", "52w", "1y", "ytd":
		return raw, true
	}
	raw = strings.TrimSuffix(raw, "s")
	i := strings.IndexFunc(raw, func(r rune) bool { return r < '0' || r > '9' })
	if i <= 0 {
		return "", false
	}
	n, unit := raw[:i], strings.TrimLeft(raw[i:], "- ")
	var p string
	switch unit {
	case "day":
		p = n + "d"
	case "week":
		p = n + "w"
	case "month":
		p = n + "m"
		if n == "12" {
			p = "52w"
		}
	case "year":
		p = n + "y"
	}
	switch p {
	case "1d", "1w", "1m", "3m", "6m", "52w", "1y":
		return p, true
	}
	return "", false
}

// canonicalTimeframe maps return horizons to timeframe enum values
func canonicalTimeframe(raw string) (string, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	switch raw {
	case "daily":
		return "1d", true
	case "weekly":
		return "1w", true
	case "monthly":
		return "1m", true
	case "quarterly":
		return "3m", true
	case "yearly", "annual":
		return "1y", true
	}
	p, ok := canonicalPeriod(raw)
	if ok && p == "52w" {
		p = "1y"
	}
	return p, ok
}

// breakoutDirection reads up/down from one or two optional captures; up by default
func breakoutDirection(g groups) string {
	for _, k := range []string{"dir", "dir2"} {
		switch g[k] {
		case "down", "downside", "bearish", "short":
			return "down"
		case "up", "upside", "bullish", "long":
			return "up"
		}
	}
	return "up"
}

func screenerDirection(g groups) string {
	switch g["dir"] {
	case "short", "down", "bearish":
		return "short"
	}
	return "long"
}

func pattern(name string) func(g groups) (models.Condition, bool) {
	return func(g groups) (models.Condition, bool) {
		return models.PatternCondition{PatternType: name}, true
	}
}

// DefaultRules is the rule table in match order, most specific first.
func DefaultRules() []Rule {
	return []Rule{
		// 1: indicator thresholds
		newRule("stochrsi_range", models.CategoryThreshold,
			`\bstoch(?:astic)?\s*rsi\s*(?:(?P<window>\d+)\s+)?(?:between\s+)?(?P<low>-?\d+(?:\.\d+)?)\s*(?:-|and|to)\s*(?P<high>-?\d+(?:\.\d+)?)`,
			func(g groups) (models.Condition, bool) {
				lo, ok1 := parseValue(g["low"])
				hi, ok2 := parseValue(g["high"])
				if !ok1 || !ok2 {
					return nil, false
				}
				return models.ThresholdCondition{
					Indicator: "stochrsi",
					Window:    g.int("window"),
					Op:        models.OpBetween,
					Value:     models.Range(lo, hi),
				}, true
			}),
		newRule("stochrsi", models.CategoryThreshold,
			`\bstoch(?:astic)?\s*rsi\s*(?P<window>\d+)?\s*`+cmpPattern+`\s*`+numPattern,
			threshold("stochrsi")),
		newRule("rsi", models.CategoryThreshold,
			`\b(?:rsi|relative\s+strength\s+index)\s*(?P<window>\d+)?\s*`+cmpPattern+`\s*`+numPattern,
			threshold("rsi")),
		newRule("stoch", models.CategoryThreshold,
			`\bstoch(?:astic)?\b.*?`+cmpPattern+`\s*`+numPattern,
			threshold("stoch")),
		newRule("cci", models.CategoryThreshold,
			`\b(?:cci|commodity\s+channel\s+index)\s*(?P<window>\d+)?\s*`+cmpPattern+`\s*`+numPattern,
			threshold("cci")),
		newRule("williams_r", models.CategoryThreshold,
			`\bwilliams\s*%?\s*r\b.*?`+cmpPattern+`\s*`+numPattern,
			threshold("williams_r")),
		newRule("awesome_osc_sign", models.CategoryThreshold,
			`\b(?:ao|awesome\s+osc(?:illator)?)\s+(?:is\s+)?(?P<sign>positive|negative)\b`,
			func(g groups) (models.Condition, bool) {
				op := models.OpGT
				if g["sign"] == "negative" {
					op = models.OpLT
				}
				return models.ThresholdCondition{Indicator: "awesome_osc", Op: op, Value: models.Scalar(0)}, true
			}),
		newRule("awesome_osc", models.CategoryThreshold,
			`\b(?:ao|awesome\s+osc(?:illator)?)\b.*?`+cmpPattern+`\s*`+numPattern,
			threshold("awesome_osc")),
		newRule("kdj", models.CategoryThreshold,
			`\bkdj\b.*?`+cmpPattern+`\s*`+numPattern,
			threshold("kdj")),
		newRule("ultimate_osc", models.CategoryThreshold,
			`\b(?:uo|ultimate\s+osc(?:illator)?)\b.*?`+cmpPattern+`\s*`+numPattern,
			threshold("ultimate_osc")),
		newRule("chande_momentum", models.CategoryThreshold,
			`\b(?:cmo|chande\s+momentum)\b\s*(?P<window>\d+)?.*?`+cmpPattern+`\s*`+numPattern,
			threshold("chande_momentum")),
		newRule("roc", models.CategoryThreshold,
			`\b(?:roc|rate\s+of\s+change)\b\s*(?P<window>\d+)?.*?`+cmpPattern+`\s*`+pctPattern,
			threshold("roc")),
		newRule("money_flow_idx", models.CategoryThreshold,
			`\b(?:mfi|money\s+flow\s+index)\b\s*(?P<window>\d+)?.*?`+cmpPattern+`\s*`+numPattern,
			threshold("money_flow_idx")),
		newRule("percentage_price_osc", models.CategoryThreshold,
			`\b(?:ppo|percentage\s+price\s+osc(?:illator)?)\b.*?`+cmpPattern+`\s*`+pctPattern,
			threshold("percentage_price_osc")),
		newRule("fisher_transform", models.CategoryThreshold,
			`\bfisher(?:\s+transform)?\b.*?\bcrossed\s+(?P<cross>above|below)\s+`+numPattern,
			func(g groups) (models.Condition, bool) {
				v, ok := parseValue(g["value"])
				if !ok {
					return nil, false
				}
				op := models.OpCrossedAbove
				if g["cross"] == "below" {
					op = models.OpCrossedBelow
				}
				return models.ThresholdCondition{Indicator: "fisher_transform", Op: op, Value: models.Scalar(v)}, true
			}),
		newRule("tsi", models.CategoryThreshold,
			`\b(?:tsi|true\s+strength\s+index)\b.*?`+cmpPattern+`\s*`+numPattern,
			threshold("tsi")),
		newRule("schaff_trend_cycle", models.CategoryThreshold,
			`\b(?:stc|schaff\s+trend\s+cycle)\b.*?`+cmpPattern+`\s*`+numPattern,
			threshold("schaff_trend_cycle")),
		newRule("adx", models.CategoryThreshold,
			`\badx\s*(?P<window>\d+)?\s*`+cmpPattern+`\s*`+numPattern,
			threshold("adx")),

		// 2: price vs moving averages
		newRule("ma_vs_ma", models.CategoryMovingAverage,
			`\b`+maPattern+`\s*(?P<window>\d+)\s+(?P<cross>crossed\s+above|crossed\s+below|bullish\s+cross(?:over)?|bearish\s+cross(?:over)?|above|below)\s+(?P<cmp_type>sma|ema|wma|hma|rma|kama|dema|tema|zlma|trima)\s*(?P<cmp_window>\d+)`,
			func(g groups) (models.Condition, bool) {
				op, ok := crossOp(g["cross"])
				if !ok {
					return nil, false
				}
				// the second window also rides along as the condition value
				v := models.Scalar(float64(g.int("cmp_window")))
				return models.MovingAverageCondition{
					MAType:        canonicalMA(g["ma_type"]),
					Window:        g.int("window"),
					Op:            op,
					Value:         &v,
					CompareMAType: g["cmp_type"],
					CompareWindow: g.int("cmp_window"),
				}, true
			}),
		newRule("price_vs_ma", models.CategoryMovingAverage,
			`\b(?:(?:price|close)\s+)?(?P<cross>crossed\s+above|crossed\s+below|above|below)\s+(?:the\s+)?`+maPattern+`\s*(?P<window>\d+)`,
			func(g groups) (models.Condition, bool) {
				op, ok := crossOp(g["cross"])
				if !ok {
					return nil, false
				}
				return models.MovingAverageCondition{MAType: canonicalMA(g["ma_type"]), Window: g.int("window"), Op: op}, true
			}),
		newRule("ma_vs_price", models.CategoryMovingAverage,
			`\b`+maPattern+`\s*(?P<window>\d+)\s+(?P<side>above|below)\s+(?:the\s+)?(?:price|close)\b`,
			func(g groups) (models.Condition, bool) {
				// an average above price means price below the average
				op := models.OpLT
				if g["side"] == "below" {
					op = models.OpGT
				}
				return models.MovingAverageCondition{MAType: canonicalMA(g["ma_type"]), Window: g.int("window"), Op: op}, true
			}),
		newRule("ma_cross", models.CategoryMovingAverage,
			`\b`+maPattern+`\s*(?P<window>\d+)\s+(?P<cross>bullish|bearish)\s+cross(?:over)?\b`,
			func(g groups) (models.Condition, bool) {
				op, _ := crossOp(g["cross"])
				return models.MovingAverageCondition{MAType: canonicalMA(g["ma_type"]), Window: g.int("window"), Op: op}, true
			}),
		newRule("ma_proximity", models.CategoryMovingAverage,
			`\bwithin\s+`+pctPattern+`\s+of\s+(?:the\s+)?`+maPattern+`\s*(?P<window>\d+)`,
			maProximity),
		newRule("ma_proximity_suffix", models.CategoryMovingAverage,
			`\b`+maPattern+`\s*(?P<window>\d+)\s+proximity\s+within\s+`+pctPattern,
			maProximity),

		// 3: relative strength
		newRule("rs_vs_benchmark", models.CategoryRelativeStrength,
			`\b(?:rs|relative\s+strength)(?:\s+(?:line|ratio))?\s+(?:vs\.?|versus|against)\s+(?P<benchmark>[a-z0-9^.]+)\s*`+cmpPattern+`\s*`+numPattern,
			relativeStrength),
		newRule("rs_value_vs_benchmark", models.CategoryRelativeStrength,
			`\b(?:rs|relative\s+strength)(?:\s+(?:line|ratio))?\s*`+cmpPattern+`\s*`+numPattern+`\s+(?:vs\.?|versus|against)\s+(?P<benchmark>[a-z0-9^.]+)`,
			relativeStrength),

		// 4: percent change from reference
		newRule("up_from_low", models.CategoryReference,
			`\b(?:up|above|rallied)\s+`+pctPattern+`\s+(?:from|off)\s+(?:the\s+|its\s+)?`+refPeriodPattern+`[\s_-]*low\b`,
			func(g groups) (models.Condition, bool) {
				return reference(g, "low", models.OpGT, false)
			}),
		newRule("down_from_high", models.CategoryReference,
			`\b(?:down|below|off)\s+`+pctPattern+`\s+(?:from|off)\s+(?:the\s+|its\s+)?`+refPeriodPattern+`[\s_-]*high\b`,
			func(g groups) (models.Condition, bool) {
				return reference(g, "high", models.OpLTE, true)
			}),
		newRule("within_of_reference", models.CategoryReference,
			`\bwithin\s+`+pctPattern+`\s+of\s+(?:the\s+|its\s+)?`+refPeriodPattern+`[\s_-]*(?P<kind>high|low)\b`,
			func(g groups) (models.Condition, bool) {
				period, ok := canonicalPeriod(g["period"])
				if !ok {
					return nil, false
				}
				v, ok := parseValue(g["value"])
				if !ok {
					return nil, false
				}
				band := models.Range(-v, 0)
				if g["kind"] == "low" {
					band = models.Range(0, v)
				}
				return models.ReferenceCondition{Reference: period + "_" + g["kind"], Op: models.OpBetween, Value: band}, true
			}),

		// 5: volume / volatility
		newRule("atr", models.CategoryVolatility,
			`\b(?:atr|average\s+true\s+range)\s*(?P<window>\d+)?\s*`+cmpPattern+`\s*`+pctPattern,
			volatility("atr")),
		newRule("volume_spike", models.CategoryVolatility,
			`\bvolume\s+spike\s+(?P<value>\d+(?:\.\d+)?)\s*(?:x|×)?\s*(?:its\s+|the\s+)?(?:(?P<window>\d+)[-\s]?day\s+)?(?:sma|average|avg)(?:\s+(?P<window2>\d+))?`,
			func(g groups) (models.Condition, bool) {
				v, ok := parseValue(g["value"])
				if !ok {
					return nil, false
				}
				w := g.int("window")
				if w == 0 {
					w = g.int("window2")
				}
				return models.VolatilityCondition{Indicator: "volume_sma", Window: w, Op: models.OpGTE, Value: models.Scalar(v)}, true
			}),
		newRule("bb_width", models.CategoryVolatility,
			`\b(?:bb|bollinger(?:\s+bands?)?)\s+width\s*(?P<window>\d+)?\s*`+cmpPattern+`\s*`+pctPattern,
			volatility("bb_width")),
		newRule("kc_width", models.CategoryVolatility,
			`\b(?:kc|keltner(?:\s+channels?)?)\s+width\s*(?P<window>\d+)?\s*`+cmpPattern+`\s*`+pctPattern,
			volatility("kc_width")),
		newRule("ulcer_index", models.CategoryVolatility,
			`\b(?:ui|ulcer\s+index)\s*(?P<window>\d+)?\s*`+cmpPattern+`\s*`+numPattern,
			volatility("ui")),
		newRule("volume", models.CategoryVolatility,
			`\bvolume\s*`+cmpPattern+`\s*(?P<value>\d+(?:\.\d+)?)\s*(?P<unit>k|m|thousand|million)?\b`,
			func(g groups) (models.Condition, bool) {
				v, ok := parseValue(g["value"])
				if !ok {
					return nil, false
				}
				switch g["unit"] {
				case "k", "thousand":
					v *= 1e3
				case "m", "million":
					v *= 1e6
				}
				return models.VolatilityCondition{Indicator: "volume", Op: normalizeOp(g["op"]), Value: models.Scalar(v)}, true
			}),

		// 6: candles
		newRule("engulfing", models.CategoryPattern,
			`\b(?:(?P<bias>bullish|bearish)\s+)?engulfing\b`,
			func(g groups) (models.Condition, bool) {
				if g["bias"] == "" {
					return models.PatternCondition{PatternType: "engulfing"}, true
				}
				return models.PatternCondition{PatternType: g["bias"] + "_engulfing", Direction: g["bias"]}, true
			}),
		newRule("doji", models.CategoryPattern, `\bdoji\b`, pattern("doji")),
		newRule("hammer", models.CategoryPattern, `\bhammer\b`, pattern("hammer")),
		newRule("nr7", models.CategoryPattern, `\bnr7\b`, pattern("nr7")),
		newRule("inside_bar", models.CategoryPattern, `\binside\s+(?:bar|day)\b`, pattern("inside_bar")),
		newRule("outside_bar", models.CategoryPattern, `\boutside\s+(?:bar|day)\b`, pattern("outside_bar")),

		// 7: breakouts
		newRule("bb_breakout", models.CategoryBreakout,
			`\b(?:bb|bollinger(?:\s+bands?)?)\s+(?:(?P<dir>upside|downside|up|down)\s+)?breakout(?:\s+(?P<dir2>up|down|upside|downside))?\b`,
			breakout("bb_breakout")),
		newRule("kc_breakout", models.CategoryBreakout,
			`\b(?:kc|keltner(?:\s+channels?)?)\s+(?:(?P<dir>upside|downside|up|down)\s+)?breakout(?:\s+(?P<dir2>up|down|upside|downside))?\b`,
			breakout("kc_breakout")),
		newRule("donchian_breakout", models.CategoryBreakout,
			`\bdonchian\s*(?:(?P<window>\d+)(?:[-\s]?day)?\s+)?(?:channel\s+)?(?:(?P<dir>upside|downside|up|down)\s+)?breakout(?:\s+(?P<dir2>up|down|upside|downside))?\b`,
			breakout("donchian_breakout")),
		newRule("pivot_break", models.CategoryBreakout,
			`\bpivot(?:\s+point)?\s+(?:(?P<dir>upside|downside|up|down)\s+)?break(?:out)?(?:\s+(?P<dir2>up|down|upside|downside))?\b`,
			breakout("pivot_break")),

		// 9: special screeners
		newRule("base_breakout", models.CategorySpecial,
			`\bbase\s+breakout(?:\s+(?P<dir>long|short))?\b`,
			special("base_breakout")),
		newRule("turtle_signal", models.CategorySpecial,
			`\bturtle\s+(?:soup|signal)s?(?:\s+(?P<dir>long|short))?\b`,
			special("turtle_signal")),
		newRule("adx_trend", models.CategorySpecial,
			`\badx\s+trend(?:\s+(?P<dir>long|short|strong|up|down))?\b`,
			special("adx_trend")),
		newRule("squeeze_pro", models.CategorySpecial,
			`\b(?:ttm\s+)?squeeze(?:\s+pro)?(?:\s+(?P<dir>long|short))?\b`,
			special("squeeze_pro")),

		// 10: time-based returns
		newRule("timeframe_return", models.CategoryTimeframe,
			`\b(?P<tf>weekly|monthly|daily|quarterly|yearly|annual|ytd|1d|1w|1m|3m|6m|1y|\d+[-\s]?(?:day|week|month|year))\s+(?:return|performance|gain|change)\s*`+cmpPattern+`\s*`+pctPattern,
			func(g groups) (models.Condition, bool) {
				tf, ok := canonicalTimeframe(g["tf"])
				if !ok {
					return nil, false
				}
				v, ok := parseValue(g["value"])
				if !ok {
					return nil, false
				}
				return models.TimeframeCondition{Timeframe: tf, Op: normalizeOp(g["op"]), Value: models.Scalar(v)}, true
			}),
	}
}

func maProximity(g groups) (models.Condition, bool) {
	v, ok := parseValue(g["value"])
	if !ok {
		return nil, false
	}
	val := models.Scalar(v)
	return models.MovingAverageCondition{
		MAType: canonicalMA(g["ma_type"]),
		Window: g.int("window"),
		Op:     models.OpProximityWithin,
		Value:  &val,
	}, true
}

func relativeStrength(g groups) (models.Condition, bool) {
	v, ok := parseValue(g["value"])
	if !ok {
		return nil, false
	}
	return models.RelativeStrengthCondition{
		Benchmark: strings.ToUpper(g["benchmark"]),
		Op:        normalizeOp(g["op"]),
		Value:     models.Scalar(v),
	}, true
}

// reference builds a category 4 condition; negate flips the captured
// magnitude for "down X% from high" phrasing.
func reference(g groups, kind string, op models.Op, negate bool) (models.Condition, bool) {
	period, ok := canonicalPeriod(g["period"])
	if !ok {
		return nil, false
	}
	v, ok := parseValue(g["value"])
	if !ok {
		return nil, false
	}
	if negate {
		v = -v
	}
	return models.ReferenceCondition{Reference: period + "_" + kind, Op: op, Value: models.Scalar(v)}, true
}

func breakout(indicator string) func(g groups) (models.Condition, bool) {
	return func(g groups) (models.Condition, bool) {
		return models.BreakoutCondition{Indicator: indicator, Direction: breakoutDirection(g), Window: g.int("window")}, true
	}
}

func special(screener string) func(g groups) (models.Condition, bool) {
	return func(g groups) (models.Condition, bool) {
		return models.SpecialCondition{Screener: screener, Direction: screenerDirection(g)}, true
	}
}

// RuleParser is the first parsing tier: no I/O, first matching rule wins.
type RuleParser struct {
	rules []Rule
}

// NewRuleParser creates a parser over rules, or DefaultRules when none are given.
func NewRuleParser(rules ...Rule) *RuleParser {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &RuleParser{rules: rules}
}

// TryParse returns the filter of the first rule matching the lowercased text.
// A false return means no rule matched and the fallback tier is needed.
func (p *RuleParser) TryParse(text string) (*models.ParsedFilter, bool) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return nil, false
	}
	if f, ok := p.firstMatch(text); ok {
		return f, true
	}
	if alt := canonicalPhrasing(text); alt != text {
		return p.firstMatch(alt)
	}
	return nil, false
}

func (p *RuleParser) firstMatch(text string) (*models.ParsedFilter, bool) {
	for _, r := range p.rules {
		cond, ok := r.match(text)
		if !ok {
			continue
		}
		return &models.ParsedFilter{
			Category:   cond.Kind(),
			Conditions: models.Conditions{cond},
			Confidence: models.ConfidenceHigh,
			Parser:     models.ParserPattern,
		}, true
	}
	return nil, false
}

// phraseRewrites move common alternative phrasings into the word order the
// rule table expects: rsi(14) becomes rsi 14, and 50-day sma becomes sma 50.
var phraseRewrites = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`\b([a-z%]+)\s*\(\s*(\d+)\s*\)`), "$1 $2"},
	{regexp.MustCompile(`\bexponential\s+moving\s+average\b`), "ema"},
	{regexp.MustCompile(`\b(?:simple\s+)?moving\s+average\b`), "sma"},
	{regexp.MustCompile(`(^|[^\d.])(\d+)(?:[-\s]?(?:day|period|bar)s?)?[-\s]+(sma|ema|wma|hma|rma|smma|kama|dema|tema|zlma|trima)\b`), "${1}${3} ${2}"},
}

// canonicalPhrasing applies phraseRewrites; it is only consulted when the
// text as written matches no rule.
func canonicalPhrasing(text string) string {
	for _, rw := range phraseRewrites {
		text = rw.re.ReplaceAllString(text, rw.repl)
	}
	return spaces.ReplaceAllString(text, " ")
}

// Rules describes the rule table in match order
func (p *RuleParser) Rules() []models.RuleInfo {
	out := make([]models.RuleInfo, len(p.rules))
	for i, r := range p.rules {
		out[i] = r.Info()
	}
	return out
}
