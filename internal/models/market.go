// Package models defines data structures for the screener
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the wire format of a bar date (calendar day, no time component)
const DateLayout = "2006-01-02"

// Bar represents a single day's price data for one symbol.
// (Symbol, Date) is unique within a dataset.
type Bar struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

type barJSON struct {
	Symbol string  `json:"symbol"`
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// MarshalJSON writes the date as YYYY-MM-DD.
func (b Bar) MarshalJSON() ([]byte, error) {
	return json.Marshal(barJSON{
		Symbol: b.Symbol,
		Date:   b.Date.Format(DateLayout),
		Open:   b.Open,
		High:   b.High,
		Low:    b.Low,
		Close:  b.Close,
		Volume: float64(b.Volume),
	})
}

// UnmarshalJSON accepts YYYY-MM-DD or RFC3339 dates; the time of day is dropped.
func (b *Bar) UnmarshalJSON(data []byte) error {
	var raw barJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d, err := ParseDate(raw.Date)
	if err != nil {
		return fmt.Errorf("bar %s: %w", raw.Symbol, err)
	}
	*b = Bar{
		Symbol: raw.Symbol,
		Date:   d,
		Open:   raw.Open,
		High:   raw.High,
		Low:    raw.Low,
		Close:  raw.Close,
		Volume: int64(raw.Volume),
	}
	return nil
}

// ParseDate parses a calendar date in YYYY-MM-DD or RFC3339 form, truncated to UTC midnight.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// Range returns the bar's high-low span
func (b Bar) Range() float64 {
	return b.High - b.Low
}

// Body returns the absolute open-close span
func (b Bar) Body() float64 {
	if b.Close > b.Open {
		return b.Close - b.Open
	}
	return b.Open - b.Close
}
