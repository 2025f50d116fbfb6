package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bobmcallan/vire-screener/internal/app"
	"github.com/bobmcallan/vire-screener/internal/common"
	"github.com/bobmcallan/vire-screener/internal/models"
	"github.com/bobmcallan/vire-screener/internal/services/screen"
	"github.com/bobmcallan/vire-screener/internal/storage/marketfs"
)

const commandTimeout = 2 * time.Minute

// cli holds state shared by every subcommand.
type cli struct {
	configPath string
	jsonOut    bool
	app        *app.App
}

func (c *cli) open() (*app.App, error) {
	if c.app != nil {
		return c.app, nil
	}
	a, err := app.NewApp(c.configPath)
	if err != nil {
		return nil, err
	}
	c.app = a
	return a, nil
}

func (c *cli) close() {
	if c.app != nil {
		c.app.Close()
		c.app = nil
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "vire-screener-cli",
		Short:         "Natural-language stock screener",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			c.close()
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "path to vire-screener.toml")
	root.PersistentFlags().BoolVar(&c.jsonOut, "json", false, "print JSON instead of tables")

	root.AddCommand(
		newParseCmd(c),
		newScreenCmd(c),
		newRulesCmd(c),
		newSymbolsCmd(c),
		newIngestCmd(c),
		newPurgeCmd(c),
		newChartCmd(c),
		newVersionCmd(),
	)
	return root
}

func newParseCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "parse <query>",
		Short:   "Parse a query into a structured filter",
		Example: `  vire-screener-cli parse "rsi below 30"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			filter, err := a.QueryService.ParseQuery(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return writeJSON(cmd, filter)
		},
	}
}

func newScreenCmd(c *cli) *cobra.Command {
	var (
		dataFile string
		symbols  []string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "screen <query>",
		Short: "Screen stored bars, or a JSON bar file, with a query",
		Example: `  vire-screener-cli screen "macd bullish crossover"
  vire-screener-cli screen --data bars.json "price above sma 200"
  vire-screener-cli screen --symbols BHP,CBA "rsi above 70"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			q := strings.Join(args, " ")
			var resp *models.ScreenResponse
			if dataFile != "" {
				bars, err := marketfs.LoadFile(dataFile)
				if err != nil {
					return err
				}
				filter, err := a.QueryService.ParseQuery(ctx, q)
				if err != nil {
					return err
				}
				resp, err = a.ScreenService.Screen(ctx, &models.ScreenRequest{Filter: filter, Bars: bars, Limit: limit})
				if err != nil {
					return err
				}
			} else {
				resp, err = a.ScreenService.ScreenQuery(ctx, &models.ScreenQueryRequest{Query: q, Symbols: symbols, Limit: limit})
				if err != nil {
					if errors.Is(err, screen.ErrNoDataset) {
						return fmt.Errorf("no bars stored for the requested symbols; run ingest first or pass --data")
					}
					return err
				}
			}

			if c.jsonOut {
				return writeJSON(cmd, resp)
			}
			printScreen(cmd.OutOrStdout(), resp)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dataFile, "data", "d", "", "JSON file with an array of bars to screen instead of stored data")
	cmd.Flags().StringSliceVarP(&symbols, "symbols", "s", nil, "restrict stored data to these symbols")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum results")
	return cmd
}

func newRulesCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "List pattern rules in match order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open()
			if err != nil {
				return err
			}
			rules := a.QueryService.Rules()
			if c.jsonOut {
				return writeJSON(cmd, rules)
			}
			printRules(cmd.OutOrStdout(), rules)
			return nil
		},
	}
}

func newSymbolsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "symbols",
		Short: "List stored symbols",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open()
			if err != nil {
				return err
			}
			symbols, err := a.Storage.BarStore().ListSymbols(cmd.Context())
			if err != nil {
				return err
			}
			if c.jsonOut {
				return writeJSON(cmd, symbols)
			}
			for _, s := range symbols {
				fmt.Fprintln(cmd.OutOrStdout(), s)
			}
			return nil
		},
	}
}

func newIngestCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file.json>...",
		Short: "Load JSON bar files into the configured store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open()
			if err != nil {
				return err
			}
			store := a.Storage.BarStore()
			total := 0
			seen := make(map[string]bool)
			for _, path := range args {
				bars, err := marketfs.LoadFile(path)
				if err != nil {
					return err
				}
				for i := range bars {
					bars[i].Symbol = strings.ToUpper(strings.TrimSpace(bars[i].Symbol))
					seen[bars[i].Symbol] = true
				}
				if err := store.SaveBars(cmd.Context(), bars); err != nil {
					return fmt.Errorf("failed to save %s: %w", path, err)
				}
				total += len(bars)
			}
			symbols := make([]string, 0, len(seen))
			for s := range seen {
				symbols = append(symbols, s)
			}
			sort.Strings(symbols)
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %d bars for %d symbols: %s\n", total, len(symbols), strings.Join(symbols, ", "))
			return nil
		},
	}
}

func newPurgeCmd(c *cli) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "purge [SYMBOL...]",
		Short: "Delete stored bars for symbols, or every symbol with --all",
		Example: `  vire-screener-cli purge BHP CBA
  vire-screener-cli purge --all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			symbols := screen.NormalizeSymbols(args)
			if len(symbols) == 0 && !all {
				return fmt.Errorf("name at least one symbol or pass --all")
			}
			if len(symbols) > 0 && all {
				return fmt.Errorf("--all cannot be combined with symbols")
			}
			a, err := c.open()
			if err != nil {
				return err
			}
			removed, err := a.Storage.BarStore().DeleteBars(cmd.Context(), symbols)
			if err != nil {
				return err
			}
			if c.jsonOut {
				return writeJSON(cmd, map[string]interface{}{"removed": removed, "symbols": symbols})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed bars for %d symbols\n", removed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "delete every stored symbol")
	return cmd
}

func newChartCmd(c *cli) *cobra.Command {
	var (
		maType string
		window int
		out    string
	)
	cmd := &cobra.Command{
		Use:   "chart <symbol>",
		Short: "Render a PNG price chart for a stored symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open()
			if err != nil {
				return err
			}
			symbol := strings.ToUpper(args[0])
			series, err := a.ScreenService.Series(cmd.Context(), symbol)
			if err != nil {
				return err
			}
			if len(series) == 0 {
				return fmt.Errorf("no bars stored for %s", symbol)
			}
			png, err := screen.RenderChart(series, strings.ToLower(maType), window)
			if err != nil {
				return err
			}
			if out == "" {
				out = symbol + ".png"
			}
			if err := os.WriteFile(out, png, 0644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&maType, "ma", "", "moving average overlay (sma, ema, wma, ...)")
	cmd.Flags().IntVar(&window, "window", 20, "moving average window")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default <SYMBOL>.png)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), common.GetFullVersion())
		},
	}
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
