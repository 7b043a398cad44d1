package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/algomatic/stratgraph/internal/config"
	"github.com/algomatic/stratgraph/pkg/backtest"
	"github.com/algomatic/stratgraph/pkg/events"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest <strategy-id>",
	Short: "Backtest a stored strategy with the external tools",
	Long: `Hand a stored, valid strategy to the external code generator and
backtester, then print the collected metrics. Requires a persistent store
(SG_STORE=postgres).

Examples:
  stratgraph backtest 3f6c... --start 2024-01-01 --end 2024-06-30
  stratgraph backtest --health`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBacktest,
}

var (
	backtestStart  string
	backtestEnd    string
	backtestJSON   bool
	backtestHealth bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)
	backtestCmd.Flags().StringVar(&backtestStart, "start", "", "Start date (YYYY-MM-DD)")
	backtestCmd.Flags().StringVar(&backtestEnd, "end", "", "End date (YYYY-MM-DD)")
	backtestCmd.Flags().BoolVar(&backtestJSON, "json", false, "Print the full result as JSON")
	backtestCmd.Flags().BoolVar(&backtestHealth, "health", false, "Only check that the external tools are in place")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, setupLogger(cmd.ErrOrStderr(), logLevel, false))
	if err != nil {
		return err
	}
	defer a.Close()
	out := cmd.OutOrStdout()

	if backtestHealth {
		h := a.runner.Health()
		data, _ := json.MarshalIndent(h, "", "  ")
		fmt.Fprintln(out, string(data))
		if !h.Healthy {
			return errors.New(h.Message)
		}
		return nil
	}
	if len(args) != 1 {
		return errors.New("strategy id is required")
	}

	st, err := a.store.Get(ctx, args[0])
	if err != nil {
		return err
	}
	res, err := a.runner.Run(ctx, st, backtest.Window{Start: backtestStart, End: backtestEnd})
	if err != nil {
		return err
	}
	if err := a.store.SaveBacktest(ctx, res.Record()); err != nil {
		a.logger.Warn("Failed to save backtest", "run_id", res.RunID, "error", err)
	}
	if a.bus != nil {
		ev := events.NewEvent(events.EventBacktestCompleted, res.RunID, map[string]any{
			"run_id":      res.RunID,
			"strategy_id": res.StrategyID,
			"symbol":      res.Symbol,
			"trades":      len(res.Trades),
		})
		if err := a.bus.Publish(ctx, ev); err != nil {
			a.logger.Warn("Failed to publish backtest event", "run_id", res.RunID, "error", err)
		}
	}

	if backtestJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Fprintf(out, "run %s: %s %s, %d trades\n", res.RunID, res.Symbol, res.Timeframe, len(res.Trades))
	keys := make([]string, 0, len(res.Metrics))
	for k := range res.Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "  %-24s %g\n", k, res.Metrics[k])
	}
	return nil
}
