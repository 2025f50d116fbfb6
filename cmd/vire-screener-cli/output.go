package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/bobmcallan/vire-screener/internal/models"
)

func printScreen(w io.Writer, resp *models.ScreenResponse) {
	f := resp.Filter
	parser := string(f.Parser)
	if f.Model != "" {
		parser += " (" + f.Model + ")"
	}
	fmt.Fprintf(w, "Category: %s  Confidence: %s  Parser: %s\n", f.Category, f.Confidence, parser)
	if f.Fallback != "" {
		fmt.Fprintf(w, "Note: %s\n", f.Fallback)
	}
	fmt.Fprintf(w, "Scanned %d symbols (skipped %d), matched %d, showing %d\n\n",
		resp.Meta.SymbolsScanned, resp.Meta.SymbolsSkipped, resp.Meta.TotalMatched, resp.Meta.Returned)

	if len(resp.Results) == 0 {
		fmt.Fprintln(w, "No matches.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tDATE\tCLOSE\tCHANGE\tVOLUME\tINDICATOR\tVALUE")
	for _, m := range resp.Results {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%+.2f%%\t%d\t%s\t%s\n",
			m.Symbol, m.Date, m.Close, m.Change, m.Volume, m.IndicatorName, formatOptional(m.IndicatorValue))
	}
	tw.Flush()
}

func printRules(w io.Writer, rules []models.RuleInfo) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tRULE\tCATEGORY")
	for i, r := range rules {
		fmt.Fprintf(tw, "%d\t%s\t%s (%d)\n", i+1, r.Name, r.Category, int(r.Category))
	}
	tw.Flush()
}

func formatOptional(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}
