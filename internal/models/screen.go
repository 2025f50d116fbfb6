package models

import "time"

// EvaluationResult is the outcome of one condition against one symbol's series
type EvaluationResult struct {
	Passed bool     `json:"pass"`
	Value  *float64 `json:"value"`
	Label  string   `json:"indicator"`
	Window *int     `json:"window,omitempty"`
}

// MatchRecord is one symbol that satisfied the filter, taken at its latest bar
type MatchRecord struct {
	Symbol         string   `json:"symbol"`
	Date           string   `json:"date"`
	Close          float64  `json:"close"`
	Volume         int64    `json:"volume"`
	Change         float64  `json:"change"` // day-over-day percent
	IndicatorName  string   `json:"indicator_name"`
	IndicatorValue *float64 `json:"indicator_value"`
	Window         *int     `json:"window"`
}

// ScreenRequest screens an inline dataset with an already-parsed filter
type ScreenRequest struct {
	Filter *ParsedFilter `json:"filter"`
	Bars   []Bar         `json:"bars"`
	Limit  int           `json:"limit,omitempty"`
}

// ScreenQueryRequest parses a query and screens the stored dataset
type ScreenQueryRequest struct {
	Query   string   `json:"query"`
	Symbols []string `json:"symbols,omitempty"` // empty = every stored symbol
	Limit   int      `json:"limit,omitempty"`
}

// ScreenResponse is the screen output
type ScreenResponse struct {
	Filter  *ParsedFilter `json:"filter"`
	Results []MatchRecord `json:"results"`
	Meta    ScreenMeta    `json:"meta"`
}

// ScreenMeta contains query metadata
type ScreenMeta struct {
	TotalMatched   int       `json:"total_matched"`
	Returned       int       `json:"returned"`
	SymbolsScanned int       `json:"symbols_scanned"`
	SymbolsSkipped int       `json:"symbols_skipped"` // below the minimum history
	ExecutedAt     time.Time `json:"executed_at"`
	QueryTimeMS    int64     `json:"query_time_ms"`
}
