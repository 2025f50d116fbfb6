package screen

import (
	"errors"
	"sort"
	"sync"

	"github.com/bobmcallan/vire-screener/internal/common"
	"github.com/bobmcallan/vire-screener/internal/models"
)

// ErrNoDataset is returned when asked to screen without any bars.
var ErrNoDataset = errors.New("screen: no dataset provided")

// ErrNoFilter is returned when asked to screen without a filter.
var ErrNoFilter = errors.New("screen: no filter provided")

// DefaultMinBars is the minimum history a symbol needs to be screened
const DefaultMinBars = 50

// Screener groups a flat dataset by symbol and evaluates a filter per symbol.
type Screener struct {
	minBars int
	workers int
	logger  *common.Logger
}

// Option configures a Screener
type Option func(*Screener)

// WithMinBars overrides the minimum history per symbol
func WithMinBars(n int) Option {
	return func(s *Screener) {
		if n > 0 {
			s.minBars = n
		}
	}
}

// WithWorkers sets the number of symbols evaluated concurrently
func WithWorkers(n int) Option {
	return func(s *Screener) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithLogger sets the screener's logger
func WithLogger(l *common.Logger) Option {
	return func(s *Screener) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewScreener creates a screener
func NewScreener(opts ...Option) *Screener {
	s := &Screener{
		minBars: DefaultMinBars,
		workers: 4,
		logger:  common.NewSilentLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MinBars returns the configured minimum history
func (s *Screener) MinBars() int {
	return s.minBars
}

// Result is the outcome of one screening run
type Result struct {
	Matches []models.MatchRecord
	Scanned int // symbols evaluated
	Skipped int // symbols below the minimum history
}

// Screen evaluates the filter's first condition against every symbol in bars.
// Matches are sorted by symbol.
func (s *Screener) Screen(bars []models.Bar, filter *models.ParsedFilter) ([]models.MatchRecord, error) {
	res, err := s.Run(bars, filter)
	if err != nil {
		return nil, err
	}
	return res.Matches, nil
}

// Run is Screen with scan statistics
func (s *Screener) Run(bars []models.Bar, filter *models.ParsedFilter) (*Result, error) {
	if filter == nil {
		return nil, ErrNoFilter
	}
	cond, ok := filter.Primary()
	if !ok {
		if len(bars) == 0 {
			return nil, ErrNoDataset
		}
		// nothing to evaluate, e.g. an unparsed query
		return &Result{Matches: []models.MatchRecord{}}, nil
	}
	return s.ScreenAll(bars, cond)
}

// ScreenAll runs one evaluator pass per condition and merges the matches.
// A symbol matched by more than one pass appears once; the last pass wins.
func (s *Screener) ScreenAll(bars []models.Bar, conds ...models.Condition) (*Result, error) {
	if len(bars) == 0 {
		return nil, ErrNoDataset
	}

	groups := GroupBySymbol(bars)
	symbols := make([]string, 0, len(groups))
	skipped := 0
	for sym, series := range groups {
		if len(series) < s.minBars {
			skipped++
			continue
		}
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	merged := make(map[string]models.MatchRecord, len(symbols))
	for _, cond := range conds {
		for _, rec := range s.evaluateAll(groups, symbols, cond) {
			merged[rec.Symbol] = rec
		}
	}

	matches := make([]models.MatchRecord, 0, len(merged))
	for _, rec := range merged {
		matches = append(matches, rec)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Symbol < matches[j].Symbol })

	s.logger.Debug().
		Int("symbols", len(symbols)).
		Int("skipped", skipped).
		Int("conditions", len(conds)).
		Int("matched", len(matches)).
		Msg("Screen complete")

	return &Result{Matches: matches, Scanned: len(symbols), Skipped: skipped}, nil
}

// evaluateAll evaluates cond for each symbol on a bounded pool of goroutines.
// Each worker writes only its own slot, so output order is fixed by symbols.
func (s *Screener) evaluateAll(groups map[string][]models.Bar, symbols []string, cond models.Condition) []models.MatchRecord {
	slots := make([]*models.MatchRecord, len(symbols))

	semaphore := make(chan struct{}, s.workers)
	var wg sync.WaitGroup
	for i, sym := range symbols {
		wg.Add(1)
		go func(i int, series []models.Bar) {
			defer wg.Done()
			semaphore <- struct{}{}        // Acquire
			defer func() { <-semaphore }() // Release

			res := Evaluate(series, cond)
			if res.Passed {
				rec := buildMatch(series, res)
				slots[i] = &rec
			}
		}(i, groups[sym])
	}
	wg.Wait()

	out := make([]models.MatchRecord, 0, len(slots))
	for _, rec := range slots {
		if rec != nil {
			out = append(out, *rec)
		}
	}
	return out
}

// buildMatch takes the latest bar plus the evaluator's value and label
func buildMatch(series []models.Bar, res models.EvaluationResult) models.MatchRecord {
	latest := series[len(series)-1]
	rec := models.MatchRecord{
		Symbol:         latest.Symbol,
		Date:           latest.Date.Format(models.DateLayout),
		Close:          latest.Close,
		Volume:         latest.Volume,
		IndicatorName:  res.Label,
		IndicatorValue: res.Value,
		Window:         res.Window,
	}
	if len(series) >= 2 {
		prev := series[len(series)-2].Close
		if prev != 0 {
			rec.Change = (latest.Close - prev) / prev * 100
		}
	}
	return rec
}

// GroupBySymbol splits a flat dataset into per-symbol series sorted by date.
// A repeated (symbol, date) keeps the later bar.
func GroupBySymbol(bars []models.Bar) map[string][]models.Bar {
	groups := make(map[string][]models.Bar)
	for _, b := range bars {
		groups[b.Symbol] = append(groups[b.Symbol], b)
	}
	for sym, series := range groups {
		sort.SliceStable(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })
		deduped := series[:0]
		for _, b := range series {
			if n := len(deduped); n > 0 && deduped[n-1].Date.Equal(b.Date) {
				deduped[n-1] = b
				continue
			}
			deduped = append(deduped, b)
		}
		groups[sym] = deduped
	}
	return groups
}
