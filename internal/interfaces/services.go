// Package interfaces defines service contracts for the screener
package interfaces

import (
	"context"

	"github.com/bobmcallan/vire-screener/internal/models"
)

// QueryService turns free text into a structured filter
type QueryService interface {
	// ParseQuery runs the pattern rules then the model fallback. Errors only on empty input.
	ParseQuery(ctx context.Context, text string) (*models.ParsedFilter, error)

	// Rules lists the pattern rules in match order
	Rules() []models.RuleInfo
}

// ScreenService evaluates filters against OHLCV datasets
type ScreenService interface {
	// Screen evaluates a parsed filter against an inline dataset
	Screen(ctx context.Context, req *models.ScreenRequest) (*models.ScreenResponse, error)

	// ScreenQuery parses a query and screens the stored dataset
	ScreenQuery(ctx context.Context, req *models.ScreenQueryRequest) (*models.ScreenResponse, error)

	// Series returns one symbol's bars in date order
	Series(ctx context.Context, symbol string) ([]models.Bar, error)
}
