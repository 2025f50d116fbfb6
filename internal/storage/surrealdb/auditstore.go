package surrealdb

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/bobmcallan/vire-screener/internal/common"
	"github.com/bobmcallan/vire-screener/internal/interfaces"
	"github.com/bobmcallan/vire-screener/internal/models"
)

// parseEventSelectFields aliases event_id to id for struct mapping.
const parseEventSelectFields = `event_id as id, query, parser, model, category, confidence,
	success, attempts, attempted_models, duration_ms, created_at`

// DefaultListLimit caps ListParseEvents when no limit is given
const DefaultListLimit = 100

// AuditStore implements interfaces.AuditSink using SurrealDB.
type AuditStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewAuditStore creates a new AuditStore.
func NewAuditStore(db *surrealdb.DB, logger *common.Logger) *AuditStore {
	return &AuditStore{db: db, logger: logger}
}

// Compile-time check
var _ interfaces.AuditSink = (*AuditStore)(nil)

func (s *AuditStore) RecordParse(ctx context.Context, event *models.ParseEvent) error {
	if event == nil || event.ID == "" {
		return fmt.Errorf("parse event requires an id")
	}

	sql := `UPSERT $rid SET
		event_id = $event_id, query = $query, parser = $parser, model = $model,
		category = $category, confidence = $confidence, success = $success,
		attempts = $attempts, attempted_models = $attempted_models,
		duration_ms = $duration_ms, created_at = $created_at`
	attempted := event.AttemptedModels
	if attempted == nil {
		attempted = []string{}
	}
	vars := map[string]any{
		"rid":              surrealmodels.NewRecordID(tableParseEvents, event.ID),
		"event_id":         event.ID,
		"query":            event.Query,
		"parser":           string(event.Parser),
		"model":            event.Model,
		"category":         int(event.Category),
		"confidence":       string(event.Confidence),
		"success":          event.Success,
		"attempts":         event.Attempts,
		"attempted_models": attempted,
		"duration_ms":      event.DurationMS,
		"created_at":       event.CreatedAt,
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to record parse event: %w", err)
	}
	return nil
}

// ListParseEvents returns the most recent events first
func (s *AuditStore) ListParseEvents(ctx context.Context, limit int) ([]*models.ParseEvent, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	sql := "SELECT " + parseEventSelectFields + " FROM " + tableParseEvents + " ORDER BY created_at DESC LIMIT $limit"
	vars := map[string]any{"limit": limit}

	results, err := surrealdb.Query[[]models.ParseEvent](ctx, s.db, sql, vars)
	if err != nil {
		if isNotFoundError(err) {
			return []*models.ParseEvent{}, nil
		}
		return nil, fmt.Errorf("failed to list parse events: %w", err)
	}

	events := []*models.ParseEvent{}
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			events = append(events, &(*results)[0].Result[i])
		}
	}
	return events, nil
}
