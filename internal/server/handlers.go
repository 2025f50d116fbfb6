package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/bobmcallan/vire-screener/internal/models"
	"github.com/bobmcallan/vire-screener/internal/services/query"
	"github.com/bobmcallan/vire-screener/internal/services/screen"
)

const (
	defaultAuditLimit = 20
	maxAuditLimit     = 200
)

// Error codes returned alongside messages
const (
	codeEmptyQuery = "empty_query"
	codeNoFilter   = "no_filter"
	codeNoDataset  = "no_dataset"
	codeInternal   = "internal"
)

// writeServiceError maps service sentinels to 400s; anything else is a logged 500.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, query.ErrEmptyQuery):
		WriteErrorWithCode(w, http.StatusBadRequest, "query is required", codeEmptyQuery)
	case errors.Is(err, screen.ErrNoFilter):
		WriteErrorWithCode(w, http.StatusBadRequest, "filter is required", codeNoFilter)
	case errors.Is(err, screen.ErrNoDataset):
		WriteErrorWithCode(w, http.StatusBadRequest, "bars are required", codeNoDataset)
	default:
		s.logger.Error().
			Err(err).
			Str("path", r.URL.Path).
			Str("correlation_id", CorrelationID(r.Context())).
			Msg("Request failed")
		WriteErrorWithCode(w, http.StatusInternalServerError, err.Error(), codeInternal)
	}
}

// --- Parsing ---

type parseRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if s.deps.Query == nil {
		WriteError(w, http.StatusServiceUnavailable, "Query parser unavailable")
		return
	}

	var req parseRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	filter, err := s.deps.Query.ParseQuery(r.Context(), req.Query)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, filter)
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	if s.deps.Query == nil {
		WriteError(w, http.StatusServiceUnavailable, "Query parser unavailable")
		return
	}
	rules := s.deps.Query.Rules()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"rules": rules,
		"count": len(rules),
	})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	if s.deps.Audit == nil {
		WriteError(w, http.StatusServiceUnavailable, "Parse audit unavailable")
		return
	}

	limit := queryInt(r, "limit", defaultAuditLimit)
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}

	events, err := s.deps.Audit.ListParseEvents(r.Context(), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if events == nil {
		events = []*models.ParseEvent{}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// --- Screening ---

func (s *Server) handleScreen(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if s.deps.Screen == nil {
		WriteError(w, http.StatusServiceUnavailable, "Screen service unavailable")
		return
	}

	var req models.ScreenRequest
	if !DecodeJSONLimit(w, r, &req, maxDatasetBody) {
		return
	}

	resp, err := s.deps.Screen.Screen(r.Context(), &req)
	if err != nil {
		if errors.Is(err, screen.ErrNoDataset) {
			WriteErrorWithCode(w, http.StatusBadRequest, "bars are required", codeNoDataset)
			return
		}
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleScreenQuery(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if s.deps.Screen == nil {
		WriteError(w, http.StatusServiceUnavailable, "Screen service unavailable")
		return
	}

	var req models.ScreenQueryRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		WriteErrorWithCode(w, http.StatusBadRequest, "query is required", codeEmptyQuery)
		return
	}

	resp, err := s.deps.Screen.ScreenQuery(r.Context(), &req)
	if err != nil {
		if errors.Is(err, screen.ErrNoDataset) {
			WriteErrorWithCode(w, http.StatusNotFound, "No price data stored for the requested symbols", codeNoDataset)
			return
		}
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}

// --- Market data ---

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	if s.deps.Bars == nil {
		WriteError(w, http.StatusServiceUnavailable, "Bar store unavailable")
		return
	}

	symbols, err := s.deps.Bars.ListSymbols(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"symbols": symbols,
		"count":   len(symbols),
	})
}

type ingestRequest struct {
	Bars json.RawMessage `json:"bars"`
}

// handleBars routes /api/bars to ingest (POST) or delete (DELETE).
func (s *Server) handleBars(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost, http.MethodDelete) {
		return
	}
	if r.Method == http.MethodDelete {
		s.handleBarsDelete(w, r)
		return
	}
	s.handleBarsIngest(w, r)
}

// handleBarsDelete handles DELETE /api/bars?symbols=BHP,CBA. Without symbols
// every stored series is removed, which is refused in production.
func (s *Server) handleBarsDelete(w http.ResponseWriter, r *http.Request) {
	if s.deps.Bars == nil {
		WriteError(w, http.StatusServiceUnavailable, "Bar store unavailable")
		return
	}

	var symbols []string
	if raw := r.URL.Query().Get("symbols"); raw != "" {
		symbols = screen.NormalizeSymbols(strings.Split(raw, ","))
	}
	if len(symbols) == 0 && s.deps.Config.IsProduction() {
		WriteError(w, http.StatusForbidden, "Deleting all bars is disabled in production")
		return
	}

	removed, err := s.deps.Bars.DeleteBars(r.Context(), symbols)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if symbols == nil {
		symbols = []string{}
	}

	s.logger.Info().Int("removed", removed).Strs("symbols", symbols).Msg("Bars deleted")

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"removed": removed,
		"symbols": symbols,
	})
}

// handleBarsIngest handles POST /api/bars. Bars are upserted by symbol and date.
func (s *Server) handleBarsIngest(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if s.deps.Bars == nil {
		WriteError(w, http.StatusServiceUnavailable, "Bar store unavailable")
		return
	}

	var req ingestRequest
	if !DecodeJSONLimit(w, r, &req, maxDatasetBody) {
		return
	}
	bars, err := DecodeArray[models.Bar](req.Bars)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid bars: "+err.Error())
		return
	}
	if len(bars) == 0 {
		WriteError(w, http.StatusBadRequest, "bars are required")
		return
	}

	seen := make(map[string]bool)
	for i := range bars {
		b := &bars[i]
		b.Symbol = strings.ToUpper(strings.TrimSpace(b.Symbol))
		if b.Symbol == "" {
			WriteError(w, http.StatusBadRequest, "every bar needs a symbol")
			return
		}
		if b.Date.IsZero() {
			WriteError(w, http.StatusBadRequest, "every bar needs a date")
			return
		}
		seen[b.Symbol] = true
	}

	if err := s.deps.Bars.SaveBars(r.Context(), bars); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	symbols := make([]string, 0, len(seen))
	for sym := range seen {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	s.logger.Info().Int("bars", len(bars)).Strs("symbols", symbols).Msg("Bars ingested")

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"saved":   len(bars),
		"symbols": symbols,
	})
}

// handleBarsBySymbol handles GET /api/bars/{symbol}.
func (s *Server) handleBarsBySymbol(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	if s.deps.Screen == nil {
		WriteError(w, http.StatusServiceUnavailable, "Screen service unavailable")
		return
	}

	symbol := pathSymbol(r, "/api/bars/")
	if symbol == "" {
		WriteError(w, http.StatusBadRequest, "symbol is required in path")
		return
	}

	series, err := s.deps.Screen.Series(r.Context(), symbol)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if len(series) == 0 {
		WriteError(w, http.StatusNotFound, "No bars stored for "+symbol)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"bars":   series,
		"count":  len(series),
	})
}

// handleChart handles GET /api/chart/{symbol}?ma=sma&window=20 and returns a PNG.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	if s.deps.Screen == nil {
		WriteError(w, http.StatusServiceUnavailable, "Screen service unavailable")
		return
	}

	symbol := pathSymbol(r, "/api/chart/")
	if symbol == "" {
		WriteError(w, http.StatusBadRequest, "symbol is required in path")
		return
	}

	series, err := s.deps.Screen.Series(r.Context(), symbol)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if len(series) == 0 {
		WriteError(w, http.StatusNotFound, "No bars stored for "+symbol)
		return
	}

	maType := strings.ToLower(r.URL.Query().Get("ma"))
	window := 0
	if maType != "" {
		window = queryInt(r, "window", 20)
	}

	png, err := screen.RenderChart(series, maType, window)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}
