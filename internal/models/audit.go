package models

import "time"

// ParseEvent records one parse for the audit sink
type ParseEvent struct {
	ID              string       `json:"id"`
	Query           string       `json:"query"`
	Parser          ParserOrigin `json:"parser"`
	Model           string       `json:"model,omitempty"`
	Category        Category     `json:"category"`
	Confidence      Confidence   `json:"confidence"`
	Success         bool         `json:"success"`
	Attempts        int          `json:"attempts"`
	AttemptedModels []string     `json:"attempted_models,omitempty"`
	DurationMS      int64        `json:"duration_ms"`
	CreatedAt       time.Time    `json:"created_at"`
}
