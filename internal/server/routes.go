package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bobmcallan/vire-screener/internal/common"
)

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/diagnostics", s.handleDiagnostics)
	mux.HandleFunc("/api/shutdown", s.handleShutdown)

	// Parsing
	mux.HandleFunc("/api/parse", s.handleParse)
	mux.HandleFunc("/api/rules", s.handleRules)
	mux.HandleFunc("/api/audit", s.handleAudit)

	// Screening
	mux.HandleFunc("/api/screen/query", s.handleScreenQuery)
	mux.HandleFunc("/api/screen", s.handleScreen)

	// Market data
	mux.HandleFunc("/api/symbols", s.handleSymbols)
	mux.HandleFunc("/api/bars/", s.handleBarsBySymbol)
	mux.HandleFunc("/api/bars", s.handleBars)
	mux.HandleFunc("/api/chart/", s.handleChart)

	if s.deps.MCP != nil {
		mux.Handle("/mcp", s.deps.MCP)
	}
}

// handleShutdown handles POST /api/shutdown (dev mode only).
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if s.deps.Config.IsProduction() {
		WriteError(w, http.StatusForbidden, "Shutdown endpoint disabled in production")
		return
	}

	s.logger.Info().Msg("Shutdown requested via HTTP endpoint")

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Shutting down gracefully...\n"))

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	if s.shutdownChan != nil {
		go func() {
			time.Sleep(100 * time.Millisecond)
			s.shutdownChan <- struct{}{}
		}()
	}
}

// --- System handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, common.CurrentVersion())
}

type providerView struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Model   string `json:"model"`
	BaseURL string `json:"base_url,omitempty"`
	APIKey  string `json:"api_key"`
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	cfg := s.deps.Config

	providers := make([]providerView, 0, len(cfg.Parser.Providers))
	for _, p := range cfg.Parser.Providers {
		key, _ := p.ResolveAPIKey()
		providers = append(providers, providerView{
			Name:    p.Name,
			Kind:    p.Kind,
			Model:   p.Model,
			BaseURL: p.BaseURL,
			APIKey:  maskSecret(key),
		})
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"environment":       cfg.Environment,
		"storage_backend":   cfg.Storage.Backend,
		"storage_address":   cfg.Storage.Address,
		"storage_namespace": cfg.Storage.Namespace,
		"storage_database":  cfg.Storage.Database,
		"storage_data_path": cfg.Storage.DataPath,
		"attempt_timeout":   cfg.Parser.GetAttemptTimeout().String(),
		"providers":         providers,
		"min_bars":          cfg.Screen.MinBars,
		"max_results":       cfg.Screen.MaxResults,
		"logging_level":     cfg.Logging.Level,
	})
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	resp := map[string]interface{}{
		"build":      common.CurrentVersion(),
		"started_at": s.deps.StartupTime,
	}
	if !s.deps.StartupTime.IsZero() {
		resp["uptime"] = time.Since(s.deps.StartupTime).Round(time.Second).String()
	}
	if s.deps.Query != nil {
		resp["pattern_rules"] = len(s.deps.Query.Rules())
	}
	if s.deps.Bars != nil {
		if symbols, err := s.deps.Bars.ListSymbols(r.Context()); err == nil {
			resp["stored_symbols"] = len(symbols)
		} else {
			resp["storage_error"] = err.Error()
		}
	}

	WriteJSON(w, http.StatusOK, resp)
}

// maskSecret keeps the last four characters of a secret.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}

// queryInt reads a positive integer query parameter, falling back to def.
func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
