package query

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bobmcallan/vire-screener/internal/common"
	"github.com/bobmcallan/vire-screener/internal/interfaces"
	"github.com/bobmcallan/vire-screener/internal/models"
)

// ErrEmptyQuery is returned for blank query text
var ErrEmptyQuery = errors.New("query text is empty")

// auditTimeout bounds a background audit write
const auditTimeout = 5 * time.Second

// Service implements QueryService: pattern rules first, then the Compiler.
type Service struct {
	rules    *RuleParser
	compiler *Compiler
	audit    interfaces.AuditSink
	logger   *common.Logger
}

// Compile-time check
var _ interfaces.QueryService = (*Service)(nil)

// NewService creates a tiered query service. compiler and audit may be nil.
func NewService(rules *RuleParser, compiler *Compiler, audit interfaces.AuditSink, logger *common.Logger) *Service {
	if rules == nil {
		rules = NewRuleParser()
	}
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Service{
		rules:    rules,
		compiler: compiler,
		audit:    audit,
		logger:   logger,
	}
}

// ParseQuery returns a structured filter for text. The only error is ErrEmptyQuery;
// uninterpretable text yields a category 11 filter.
func (s *Service) ParseQuery(ctx context.Context, text string) (*models.ParsedFilter, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyQuery
	}
	start := time.Now()

	filter, ok := s.rules.TryParse(text)
	if !ok {
		if s.compiler != nil {
			filter = s.compiler.Parse(ctx, text)
		} else {
			filter = models.Unparsed("no pattern rule matched and no model providers are configured")
		}
	}

	elapsed := time.Since(start)
	s.logger.Debug().
		Str("query", text).
		Str("parser", string(filter.Parser)).
		Str("model", filter.Model).
		Int("category", int(filter.Category)).
		Str("confidence", string(filter.Confidence)).
		Dur("elapsed", elapsed).
		Msg("Query parsed")

	s.record(ctx, text, filter, elapsed)
	return filter, nil
}

// Rules lists the pattern rules in match order
func (s *Service) Rules() []models.RuleInfo {
	return s.rules.Rules()
}

// record writes the parse event in the background; a failing sink only logs.
func (s *Service) record(ctx context.Context, text string, f *models.ParsedFilter, elapsed time.Duration) {
	if s.audit == nil {
		return
	}
	event := &models.ParseEvent{
		ID:              uuid.New().String(),
		Query:           text,
		Parser:          f.Parser,
		Model:           f.Model,
		Category:        f.Category,
		Confidence:      f.Confidence,
		Success:         f.Category != models.CategoryUnparsed,
		Attempts:        len(f.AttemptedModels),
		AttemptedModels: f.AttemptedModels,
		DurationMS:      elapsed.Milliseconds(),
		CreatedAt:       time.Now().UTC(),
	}

	go func() {
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
		defer cancel()
		if err := s.audit.RecordParse(actx, event); err != nil {
			s.logger.Warn().Err(err).Str("id", event.ID).Msg("Failed to record parse event")
		}
	}()
}
