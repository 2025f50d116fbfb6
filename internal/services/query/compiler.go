package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bobmcallan/vire-screener/internal/common"
	"github.com/bobmcallan/vire-screener/internal/interfaces"
	"github.com/bobmcallan/vire-screener/internal/models"
)

// DefaultAttemptTimeout bounds one provider call
const DefaultAttemptTimeout = 20 * time.Second

// Attempt failure reasons
const (
	ReasonTimeout = "timeout"
	ReasonRequest = "request"
	ReasonEmpty   = "empty"
	ReasonJSON    = "json"
	ReasonSchema  = "schema"
)

// AttemptError describes why one provider attempt was skipped
type AttemptError struct {
	Model  string
	Reason string
	Err    error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Model, e.Reason, e.Err)
}

func (e *AttemptError) Unwrap() error {
	return e.Err
}

// Provider is one candidate in the fallback chain
type Provider struct {
	Name      string
	Model     string
	Generator interfaces.TextGenerator
}

func (p Provider) label() string {
	if p.Model != "" {
		return p.Model
	}
	return p.Name
}

// Compiler is the model-backed parsing tier. Providers are tried strictly in
// order, one call at a time, stopping at the first high-confidence result.
type Compiler struct {
	providers      []Provider
	systemPrompt   string
	attemptTimeout time.Duration
	clock          func() time.Time
	logger         *common.Logger
}

// CompilerOption configures a Compiler
type CompilerOption func(*Compiler)

// WithSystemPrompt replaces the default schema prompt
func WithSystemPrompt(prompt string) CompilerOption {
	return func(c *Compiler) {
		if prompt != "" {
			c.systemPrompt = prompt
		}
	}
}

// WithAttemptTimeout sets the per-provider timeout
func WithAttemptTimeout(d time.Duration) CompilerOption {
	return func(c *Compiler) {
		if d > 0 {
			c.attemptTimeout = d
		}
	}
}

// WithClock sets the time source used for attempt timings
func WithClock(clock func() time.Time) CompilerOption {
	return func(c *Compiler) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithCompilerLogger sets the compiler's logger
func WithCompilerLogger(l *common.Logger) CompilerOption {
	return func(c *Compiler) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCompiler creates a compiler over an ordered provider list
func NewCompiler(providers []Provider, opts ...CompilerOption) *Compiler {
	c := &Compiler{
		providers:      append([]Provider(nil), providers...),
		systemPrompt:   DefaultSystemPrompt,
		attemptTimeout: DefaultAttemptTimeout,
		clock:          time.Now,
		logger:         common.NewSilentLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Providers returns the provider labels in priority order
func (c *Compiler) Providers() []string {
	out := make([]string, len(c.providers))
	for i, p := range c.providers {
		out[i] = p.label()
	}
	return out
}

// Parse never fails. It returns the first high-confidence result, else the
// last medium/low one, else a category 11 filter explaining what went wrong.
func (c *Compiler) Parse(ctx context.Context, text string) *models.ParsedFilter {
	if len(c.providers) == 0 {
		return models.Unparsed("no model providers are configured to interpret this query")
	}

	var best *models.ParsedFilter
	attempted := make([]string, 0, len(c.providers))
	var failures []string

	for _, p := range c.providers {
		if err := ctx.Err(); err != nil {
			failures = append(failures, fmt.Sprintf("request cancelled: %v", err))
			break
		}
		attempted = append(attempted, p.label())

		start := c.clock()
		filter, err := c.attempt(ctx, p, text)
		elapsed := c.clock().Sub(start)

		if err != nil {
			c.logger.Warn().
				Str("provider", p.Name).
				Str("model", p.label()).
				Dur("elapsed", elapsed).
				Err(err).
				Msg("Model attempt failed")
			failures = append(failures, err.Error())
			continue
		}

		c.logger.Debug().
			Str("provider", p.Name).
			Str("model", p.label()).
			Int("category", int(filter.Category)).
			Str("confidence", string(filter.Confidence)).
			Dur("elapsed", elapsed).
			Msg("Model attempt parsed")

		if filter.Confidence == models.ConfidenceHigh {
			filter.AttemptedModels = attempted
			return filter
		}
		best = filter
	}

	if best != nil {
		best.AttemptedModels = attempted
		return best
	}

	explanation := "could not interpret the query: no model returned a usable result"
	if len(failures) > 0 {
		explanation += " (" + strings.Join(failures, "; ") + ")"
	}
	out := models.Unparsed(explanation)
	out.AttemptedModels = attempted
	return out
}

type reply struct {
	raw string
	err error
}

// attempt runs one provider call bounded by the attempt timeout, even when the
// generator ignores its context.
func (c *Compiler) attempt(ctx context.Context, p Provider, text string) (*models.ParsedFilter, error) {
	if p.Generator == nil {
		return nil, &AttemptError{Model: p.label(), Reason: ReasonRequest, Err: errors.New("no generator configured")}
	}

	actx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	ch := make(chan reply, 1)
	go func() {
		raw, err := p.Generator.Generate(actx, c.systemPrompt, text, p.Model)
		ch <- reply{raw: raw, err: err}
	}()

	var r reply
	select {
	case r = <-ch:
	case <-actx.Done():
		return nil, &AttemptError{Model: p.label(), Reason: ReasonTimeout, Err: actx.Err()}
	}

	if r.err != nil {
		reason := ReasonRequest
		if errors.Is(r.err, context.DeadlineExceeded) {
			reason = ReasonTimeout
		}
		return nil, &AttemptError{Model: p.label(), Reason: reason, Err: r.err}
	}

	filter, err := DecodeReply(r.raw)
	if err != nil {
		return nil, &AttemptError{Model: p.label(), Reason: reasonFor(err), Err: err}
	}
	filter.Parser = models.ParserModel
	filter.Model = p.label()
	return filter, nil
}

var (
	errEmptyReply = errors.New("empty reply")
	errSchema     = errors.New("reply does not match the filter schema")
)

func reasonFor(err error) string {
	switch {
	case errors.Is(err, errEmptyReply):
		return ReasonEmpty
	case errors.Is(err, errSchema):
		return ReasonSchema
	}
	return ReasonJSON
}

// StripFences removes a wrapping ``` or ```json code fence and any prose
// around the outermost JSON object.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "json")
		}
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
	}
	if start, end := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}'); start >= 0 && end > start {
		s = s[start : end+1]
	}
	return s
}

// modelReply is the lenient shape of a model's answer
type modelReply struct {
	Category      *models.Category   `json:"category"`
	Conditions    *[]json.RawMessage `json:"conditions"`
	Confidence    *string            `json:"confidence"`
	Fallback      *string            `json:"llmFallback"`
	Operator      string             `json:"operator"`
	SubConditions json.RawMessage    `json:"subConditions"`
}

// DecodeReply validates and decodes a model reply. Category, conditions and
// confidence are mandatory; a top-level operator/subConditions pair is folded
// into a single composite condition. Conditions without their own category
// inherit the top-level one.
func DecodeReply(raw string) (*models.ParsedFilter, error) {
	body := StripFences(raw)
	if body == "" {
		return nil, errEmptyReply
	}

	var r modelReply
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	if r.Category == nil {
		return nil, fmt.Errorf("%w: missing category", errSchema)
	}
	if !r.Category.Valid() {
		return nil, fmt.Errorf("%w: category %d out of range", errSchema, int(*r.Category))
	}
	if r.Confidence == nil {
		return nil, fmt.Errorf("%w: missing confidence", errSchema)
	}
	confidence := models.Confidence(strings.ToLower(strings.TrimSpace(*r.Confidence)))
	if !confidence.Valid() {
		return nil, fmt.Errorf("%w: confidence %q", errSchema, *r.Confidence)
	}

	var conds models.Conditions
	switch {
	case r.Conditions != nil:
		conds = make(models.Conditions, 0, len(*r.Conditions))
		for i, rc := range *r.Conditions {
			c, err := models.DecodeConditionDefault(rc, *r.Category)
			if err != nil {
				return nil, fmt.Errorf("%w: conditions[%d]: %v", errSchema, i, err)
			}
			conds = append(conds, c)
		}
	case r.Operator != "" && len(r.SubConditions) > 0:
		c, err := models.DecodeConditionDefault([]byte(body), models.CategoryComposite)
		if err != nil {
			return nil, fmt.Errorf("%w: composite: %v", errSchema, err)
		}
		conds = models.Conditions{c}
	default:
		return nil, fmt.Errorf("%w: missing conditions", errSchema)
	}

	filter := &models.ParsedFilter{
		Category:   *r.Category,
		Conditions: conds,
		Confidence: confidence,
		Parser:     models.ParserModel,
	}
	if r.Fallback != nil {
		filter.Fallback = *r.Fallback
	}
	return filter, nil
}
