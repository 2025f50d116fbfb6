package signals

import (
	"math"
	"strings"
)

// referenceLookback maps a reference period to a bar count; 0 means the whole series.
var referenceLookback = map[string]int{
	"1d":  1,
	"1w":  5,
	"1m":  21,
	"3m":  63,
	"6m":  126,
	"52w": 252,
	"1y":  252,
	"ytd": 0,
}

// timeframeLookback maps a named timeframe to the return horizon in bars; -1 means len-1.
var timeframeLookback = map[string]int{
	"1d":  1,
	"1w":  5,
	"1m":  21,
	"3m":  63,
	"6m":  126,
	"1y":  252,
	"ytd": -1,
}

// ReferencePrice returns the trailing minimum (for "<period>_low") or maximum
// (for "<period>_high") close. 1d_low/1d_high is the latest close itself.
func ReferencePrice(closes []float64, reference string) (float64, bool) {
	period, kind, found := strings.Cut(strings.ToLower(reference), "_")
	if !found || (kind != "low" && kind != "high") {
		return 0, false
	}
	n, known := referenceLookback[period]
	if !known || len(closes) == 0 {
		return 0, false
	}
	if n == 0 {
		n = len(closes)
	}
	if len(closes) < n {
		return 0, false
	}

	ref := closes[len(closes)-1]
	for _, c := range closes[len(closes)-n:] {
		if kind == "low" {
			ref = math.Min(ref, c)
		} else {
			ref = math.Max(ref, c)
		}
	}
	return ref, true
}

// PercentFromReference returns (current - reference) / reference as a decimal
func PercentFromReference(closes []float64, reference string) (float64, bool) {
	ref, ok := ReferencePrice(closes, reference)
	if !ok || ref == 0 {
		return 0, false
	}
	return (closes[len(closes)-1] - ref) / ref, true
}

// TimeframeBars returns the return horizon for a named timeframe over a series of length n
func TimeframeBars(timeframe string, n int) (int, bool) {
	bars, ok := timeframeLookback[strings.ToLower(timeframe)]
	if !ok {
		return 0, false
	}
	if bars < 0 {
		bars = n - 1
	}
	return bars, bars > 0
}

// TimeframeReturn returns (close_now - close_{now-N}) / close_{now-N}
func TimeframeReturn(closes []float64, timeframe string) (float64, bool) {
	n, ok := TimeframeBars(timeframe, len(closes))
	if !ok || len(closes) < n+1 {
		return 0, false
	}
	base := closes[len(closes)-1-n]
	if base == 0 {
		return 0, false
	}
	return (closes[len(closes)-1] - base) / base, true
}
