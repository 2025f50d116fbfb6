// Package interfaces defines service contracts for the screener
package interfaces

import (
	"context"
)

// TextGenerator is a model-based text-generation provider.
// The fallback compiler treats it as a black box: one call per attempt.
type TextGenerator interface {
	// Generate sends systemPrompt and userText to model and returns the raw reply text
	Generate(ctx context.Context, systemPrompt, userText, model string) (string, error)
}
