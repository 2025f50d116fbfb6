// Package interfaces defines service contracts for the screener
package interfaces

import (
	"context"

	"github.com/bobmcallan/vire-screener/internal/models"
)

// BarStore provides OHLCV datasets on demand. (Symbol, Date) is the covering identity.
type BarStore interface {
	// GetBars returns bars for the given symbols (all symbols when empty), in no particular order
	GetBars(ctx context.Context, symbols []string) ([]models.Bar, error)

	// SaveBars upserts bars keyed by symbol and date
	SaveBars(ctx context.Context, bars []models.Bar) error

	// DeleteBars removes every bar of the given symbols (all symbols when empty)
	// and returns how many symbols were removed
	DeleteBars(ctx context.Context, symbols []string) (int, error)

	// ListSymbols returns the distinct stored symbols, sorted
	ListSymbols(ctx context.Context) ([]string, error)

	// Close releases resources
	Close() error
}

// AuditSink records parse events. Callers treat it as best-effort.
type AuditSink interface {
	RecordParse(ctx context.Context, event *models.ParseEvent) error
	ListParseEvents(ctx context.Context, limit int) ([]*models.ParseEvent, error)
}
