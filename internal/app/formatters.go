package app

import (
	"fmt"
	"strings"

	"github.com/bobmcallan/vire-screener/internal/models"
)

// formatFilterSummary describes how a query was understood
func formatFilterSummary(f *models.ParsedFilter) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("**Category:** %d (%s)\n", int(f.Category), f.Category))
	sb.WriteString(fmt.Sprintf("**Confidence:** %s\n", f.Confidence))
	if f.Model != "" {
		sb.WriteString(fmt.Sprintf("**Parser:** %s (%s)\n", f.Parser, f.Model))
	} else {
		sb.WriteString(fmt.Sprintf("**Parser:** %s\n", f.Parser))
	}
	if len(f.AttemptedModels) > 0 {
		sb.WriteString(fmt.Sprintf("**Models tried:** %s\n", strings.Join(f.AttemptedModels, ", ")))
	}
	if f.Fallback != "" {
		sb.WriteString(fmt.Sprintf("**Note:** %s\n", f.Fallback))
	}
	return sb.String()
}

// formatScreenResponse formats screen results as a markdown table
func formatScreenResponse(query string, resp *models.ScreenResponse) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Screen: %s\n\n", query))
	sb.WriteString(formatFilterSummary(resp.Filter))
	sb.WriteString(fmt.Sprintf("**Symbols scanned:** %d (skipped %d with short history)\n", resp.Meta.SymbolsScanned, resp.Meta.SymbolsSkipped))
	sb.WriteString(fmt.Sprintf("**Matches:** %d (showing %d)\n\n", resp.Meta.TotalMatched, resp.Meta.Returned))

	if len(resp.Results) == 0 {
		sb.WriteString("No symbols matched.\n")
		return sb.String()
	}

	sb.WriteString("| Symbol | Date | Close | Change | Volume | Indicator | Value |\n")
	sb.WriteString("|--------|------|------:|-------:|-------:|-----------|------:|\n")
	for _, m := range resp.Results {
		sb.WriteString(fmt.Sprintf("| %s | %s | %.2f | %+.2f%% | %d | %s | %s |\n",
			m.Symbol, m.Date, m.Close, m.Change, m.Volume, indicatorLabel(m), formatValue(m.IndicatorValue)))
	}
	return sb.String()
}

func indicatorLabel(m models.MatchRecord) string {
	if m.Window != nil {
		return fmt.Sprintf("%s(%d)", m.IndicatorName, *m.Window)
	}
	return m.IndicatorName
}

func formatValue(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f", *v)
}

// formatRules lists pattern rules grouped in match order
func formatRules(rules []models.RuleInfo) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Pattern Rules (%d)\n\n", len(rules)))
	sb.WriteString("| # | Rule | Category |\n")
	sb.WriteString("|---|------|----------|\n")
	for i, r := range rules {
		sb.WriteString(fmt.Sprintf("| %d | %s | %d (%s) |\n", i+1, r.Name, int(r.Category), r.Category))
	}
	return sb.String()
}

// formatSymbols lists stored symbols
func formatSymbols(symbols []string) string {
	if len(symbols) == 0 {
		return "No symbols stored."
	}
	return fmt.Sprintf("# Symbols (%d)\n\n%s\n", len(symbols), strings.Join(symbols, ", "))
}

// formatParseEvents formats recent parse events as a markdown table
func formatParseEvents(events []*models.ParseEvent) string {
	if len(events) == 0 {
		return "No parses recorded."
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Recent Parses (%d)\n\n", len(events)))
	sb.WriteString("| Time | Query | Parser | Model | Category | OK | ms |\n")
	sb.WriteString("|------|-------|--------|-------|---------:|----|---:|\n")
	for _, e := range events {
		ok := "yes"
		if !e.Success {
			ok = "no"
		}
		model := e.Model
		if model == "" {
			model = "-"
		}
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %d | %s | %d |\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"), strings.ReplaceAll(e.Query, "|", "\\|"), e.Parser, model, int(e.Category), ok, e.DurationMS))
	}
	return sb.String()
}
