package surrealdb

import (
	"context"
	"fmt"
	"sort"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/bobmcallan/vire-screener/internal/common"
	"github.com/bobmcallan/vire-screener/internal/interfaces"
	"github.com/bobmcallan/vire-screener/internal/models"
)

// barSelectFields omits the record id so rows decode into barRecord
const barSelectFields = "symbol, date, open, high, low, close, volume"

// barRecord is the stored shape of a bar; dates are kept as YYYY-MM-DD strings.
type barRecord struct {
	Symbol string  `json:"symbol"`
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

func toRecord(b models.Bar) barRecord {
	return barRecord{
		Symbol: b.Symbol,
		Date:   b.Date.Format(models.DateLayout),
		Open:   b.Open,
		High:   b.High,
		Low:    b.Low,
		Close:  b.Close,
		Volume: b.Volume,
	}
}

func (r barRecord) toBar() (models.Bar, error) {
	d, err := models.ParseDate(r.Date)
	if err != nil {
		return models.Bar{}, err
	}
	return models.Bar{
		Symbol: r.Symbol,
		Date:   d,
		Open:   r.Open,
		High:   r.High,
		Low:    r.Low,
		Close:  r.Close,
		Volume: r.Volume,
	}, nil
}

// barID is the record key; one record per (symbol, date)
func barID(symbol, date string) surrealmodels.RecordID {
	return surrealmodels.NewRecordID(tableBars, symbol+"_"+date)
}

// BarStore implements interfaces.BarStore using SurrealDB.
type BarStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewBarStore creates a new BarStore.
func NewBarStore(db *surrealdb.DB, logger *common.Logger) *BarStore {
	return &BarStore{db: db, logger: logger}
}

// Compile-time check
var _ interfaces.BarStore = (*BarStore)(nil)

func (s *BarStore) GetBars(ctx context.Context, symbols []string) ([]models.Bar, error) {
	sql := "SELECT " + barSelectFields + " FROM " + tableBars
	vars := map[string]any{}
	if len(symbols) > 0 {
		sql += " WHERE symbol IN $symbols"
		vars["symbols"] = symbols
	}

	results, err := surrealdb.Query[[]barRecord](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to get bars: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}

	rows := (*results)[0].Result
	bars := make([]models.Bar, 0, len(rows))
	for _, r := range rows {
		b, err := r.toBar()
		if err != nil {
			s.logger.Warn().Str("symbol", r.Symbol).Str("date", r.Date).Msg("Skipping bar with invalid date")
			continue
		}
		bars = append(bars, b)
	}
	return bars, nil
}

func (s *BarStore) SaveBars(ctx context.Context, bars []models.Bar) error {
	sql := "UPSERT $rid CONTENT $bar"
	for _, b := range bars {
		rec := toRecord(b)
		vars := map[string]any{"rid": barID(rec.Symbol, rec.Date), "bar": rec}

		var lastErr error
		for attempt := 1; attempt <= 3; attempt++ {
			_, err := surrealdb.Query[[]barRecord](ctx, s.db, sql, vars)
			if err == nil {
				lastErr = nil
				break
			}
			lastErr = err
		}
		if lastErr != nil {
			return fmt.Errorf("failed to save bar %s %s after retries: %w", rec.Symbol, rec.Date, lastErr)
		}
	}
	s.logger.Debug().Int("bars", len(bars)).Msg("Bars saved")
	return nil
}

type symbolRow struct {
	Symbol string `json:"symbol"`
}

// DeleteBars removes the bars of the given symbols, or the whole table when
// symbols is empty. The count is of distinct symbols that had bars.
func (s *BarStore) DeleteBars(ctx context.Context, symbols []string) (int, error) {
	where := ""
	vars := map[string]any{}
	if len(symbols) > 0 {
		where = " WHERE symbol IN $symbols"
		vars["symbols"] = symbols
	}

	found, err := surrealdb.Query[[]symbolRow](ctx, s.db, "SELECT symbol FROM "+tableBars+where+" GROUP BY symbol", vars)
	if err != nil {
		return 0, fmt.Errorf("failed to find bars to delete: %w", err)
	}
	count := 0
	if found != nil && len(*found) > 0 {
		count = len((*found)[0].Result)
	}
	if count == 0 {
		return 0, nil
	}

	if _, err := surrealdb.Query[any](ctx, s.db, "DELETE FROM "+tableBars+where, vars); err != nil {
		return 0, fmt.Errorf("failed to delete bars: %w", err)
	}
	s.logger.Debug().Int("symbols", count).Msg("Bars deleted")
	return count, nil
}

func (s *BarStore) ListSymbols(ctx context.Context) ([]string, error) {
	sql := "SELECT symbol FROM " + tableBars + " GROUP BY symbol"
	results, err := surrealdb.Query[[]symbolRow](ctx, s.db, sql, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list symbols: %w", err)
	}

	symbols := []string{}
	if results != nil && len(*results) > 0 {
		for _, r := range (*results)[0].Result {
			symbols = append(symbols, r.Symbol)
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// Close is a no-op; the Manager owns the connection.
func (s *BarStore) Close() error {
	return nil
}
