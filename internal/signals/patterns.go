package signals

import (
	"github.com/bobmcallan/vire-screener/internal/models"
)

// PatternDirection is the bias of a detected candle pattern
type PatternDirection int

const (
	PatternNone    PatternDirection = 0
	PatternBullish PatternDirection = 1
	PatternBearish PatternDirection = -1
	PatternNeutral PatternDirection = 2 // detected, no intrinsic direction
)

// Engulfing tests the latest bar's body against the prior bar's body.
// Bullish: prior bar down, latest bar up, latest body covers the prior body.
func Engulfing(bars []models.Bar) PatternDirection {
	if len(bars) < 2 {
		return PatternNone
	}
	prev, cur := bars[len(bars)-2], bars[len(bars)-1]
	if cur.Body() <= prev.Body() {
		return PatternNone
	}
	if prev.Close < prev.Open && cur.Close > cur.Open &&
		cur.Open <= prev.Close && cur.Close >= prev.Open {
		return PatternBullish
	}
	if prev.Close > prev.Open && cur.Close < cur.Open &&
		cur.Open >= prev.Close && cur.Close <= prev.Open {
		return PatternBearish
	}
	return PatternNone
}

// Doji reports a body smaller than a tenth of the range
func Doji(bars []models.Bar) bool {
	if len(bars) == 0 {
		return false
	}
	b := bars[len(bars)-1]
	r := b.Range()
	if r <= 0 {
		return false
	}
	return b.Body()/r < 0.1
}

// Hammer reports a lower wick over twice the body and an upper wick under 0.3x the body
func Hammer(bars []models.Bar) bool {
	if len(bars) == 0 {
		return false
	}
	b := bars[len(bars)-1]
	bodyTop, bodyBottom := b.Open, b.Close
	if b.Close > b.Open {
		bodyTop, bodyBottom = b.Close, b.Open
	}
	body := b.Body()
	lowerWick := bodyBottom - b.Low
	upperWick := b.High - bodyTop
	return lowerWick > 2*body && upperWick < 0.3*body
}

// InsideBar reports the latest high/low strictly inside the prior bar's
func InsideBar(bars []models.Bar) bool {
	if len(bars) < 2 {
		return false
	}
	prev, cur := bars[len(bars)-2], bars[len(bars)-1]
	return cur.High < prev.High && cur.Low > prev.Low
}

// OutsideBar reports the latest high/low strictly outside the prior bar's
func OutsideBar(bars []models.Bar) bool {
	if len(bars) < 2 {
		return false
	}
	prev, cur := bars[len(bars)-2], bars[len(bars)-1]
	return cur.High > prev.High && cur.Low < prev.Low
}

// NR7 reports the latest range as the narrowest of the trailing 7 bars
func NR7(bars []models.Bar) bool {
	if len(bars) < 7 {
		return false
	}
	window := bars[len(bars)-7:]
	cur := window[6].Range()
	for _, b := range window[:6] {
		if cur > b.Range() {
			return false
		}
	}
	return true
}

// DetectPattern evaluates a named pattern on the latest bar.
// Engulfing and hammer carry a direction; the rest report PatternNeutral when present.
func DetectPattern(bars []models.Bar, name string) (PatternDirection, bool) {
	switch name {
	case "engulfing", "bullish_engulfing", "bearish_engulfing":
		return Engulfing(bars), true
	case "hammer":
		if Hammer(bars) {
			return PatternBullish, true
		}
		return PatternNone, true
	case "doji":
		return neutral(Doji(bars)), true
	case "nr7":
		return neutral(NR7(bars)), true
	case "inside_bar", "inside":
		return neutral(InsideBar(bars)), true
	case "outside_bar", "outside":
		return neutral(OutsideBar(bars)), true
	}
	return PatternNone, false
}

func neutral(found bool) PatternDirection {
	if found {
		return PatternNeutral
	}
	return PatternNone
}
