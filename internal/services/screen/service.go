package screen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bobmcallan/vire-screener/internal/common"
	"github.com/bobmcallan/vire-screener/internal/interfaces"
	"github.com/bobmcallan/vire-screener/internal/models"
)

// DefaultMaxResults caps dataset-backed screens
const DefaultMaxResults = 50

// Service implements ScreenService over a BarStore and a QueryService
type Service struct {
	store      interfaces.BarStore
	query      interfaces.QueryService
	screener   *Screener
	maxResults int
	logger     *common.Logger
}

// Compile-time check
var _ interfaces.ScreenService = (*Service)(nil)

// NewService creates a new screen service
func NewService(store interfaces.BarStore, query interfaces.QueryService, screener *Screener, maxResults int, logger *common.Logger) *Service {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	if screener == nil {
		screener = NewScreener(WithLogger(logger))
	}
	return &Service{
		store:      store,
		query:      query,
		screener:   screener,
		maxResults: maxResults,
		logger:     logger,
	}
}

// Screen evaluates an already-parsed filter against an inline dataset.
// Limit applies only when positive.
func (s *Service) Screen(ctx context.Context, req *models.ScreenRequest) (*models.ScreenResponse, error) {
	if req == nil || req.Filter == nil {
		return nil, ErrNoFilter
	}
	start := time.Now()

	res, err := s.screener.Run(req.Bars, req.Filter)
	if err != nil {
		return nil, err
	}
	return buildResponse(req.Filter, res, req.Limit, start), nil
}

// ScreenQuery parses the query, loads the stored dataset and screens it.
// Results are capped at the service's max results.
func (s *Service) ScreenQuery(ctx context.Context, req *models.ScreenQueryRequest) (*models.ScreenResponse, error) {
	if req == nil || strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("query is required")
	}
	if s.query == nil || s.store == nil {
		return nil, errors.New("screen service is not configured with a query parser and bar store")
	}
	start := time.Now()

	filter, err := s.query.ParseQuery(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to parse query: %w", err)
	}

	bars, err := s.store.GetBars(ctx, NormalizeSymbols(req.Symbols))
	if err != nil {
		return nil, fmt.Errorf("failed to load bars: %w", err)
	}
	if len(bars) == 0 {
		return nil, ErrNoDataset
	}

	res, err := s.screener.Run(bars, filter)
	if err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit <= 0 || limit > s.maxResults {
		limit = s.maxResults
	}

	resp := buildResponse(filter, res, limit, start)

	s.logger.Info().
		Str("query", req.Query).
		Int("category", int(filter.Category)).
		Str("parser", string(filter.Parser)).
		Int("matched", resp.Meta.TotalMatched).
		Int("returned", resp.Meta.Returned).
		Int64("ms", resp.Meta.QueryTimeMS).
		Msg("Screen query executed")

	return resp, nil
}

// Series returns one symbol's stored bars in date order
func (s *Service) Series(ctx context.Context, symbol string) ([]models.Bar, error) {
	if s.store == nil {
		return nil, errors.New("no bar store configured")
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	bars, err := s.store.GetBars(ctx, []string{symbol})
	if err != nil {
		return nil, fmt.Errorf("failed to load bars for %s: %w", symbol, err)
	}
	return GroupBySymbol(bars)[symbol], nil
}

// NormalizeSymbols upper-cases and trims symbols to match stored keys.
// Blanks and duplicates are dropped; nil means every stored symbol.
func NormalizeSymbols(symbols []string) []string {
	if len(symbols) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func buildResponse(filter *models.ParsedFilter, res *Result, limit int, start time.Time) *models.ScreenResponse {
	results := res.Matches
	total := len(results)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	if results == nil {
		results = []models.MatchRecord{}
	}
	return &models.ScreenResponse{
		Filter:  filter,
		Results: results,
		Meta: models.ScreenMeta{
			TotalMatched:   total,
			Returned:       len(results),
			SymbolsScanned: res.Scanned,
			SymbolsSkipped: res.Skipped,
			ExecutedAt:     time.Now().UTC(),
			QueryTimeMS:    time.Since(start).Milliseconds(),
		},
	}
}
