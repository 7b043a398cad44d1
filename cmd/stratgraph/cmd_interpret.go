package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/algomatic/stratgraph/internal/config"
	"github.com/algomatic/stratgraph/pkg/interpret"
)

var interpretCmd = &cobra.Command{
	Use:   "interpret <query>",
	Short: "Turn a plain-language strategy into a stored graph",
	Long: `Ask the configured language model for a strategy graph, repair and
validate it, and store it. Provider, model and store come from SG_*
environment variables.

Examples:
  SG_LLM_API_KEY=... stratgraph interpret "buy AAPL when RSI < 30, sell above 70" --symbol AAPL`,
	Args: cobra.ExactArgs(1),
	RunE: runInterpret,
}

var (
	interpretSymbol    string
	interpretTimeframe string
)

func init() {
	rootCmd.AddCommand(interpretCmd)
	interpretCmd.Flags().StringVarP(&interpretSymbol, "symbol", "s", "", "Symbol to trade (required)")
	interpretCmd.Flags().StringVarP(&interpretTimeframe, "timeframe", "t", "1D", "Bar timeframe")
	interpretCmd.MarkFlagRequired("symbol")
}

func runInterpret(cmd *cobra.Command, args []string) error {
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

	st, err := a.service.Interpret(ctx, interpret.Request{
		UserQuery: args[0],
		Symbol:    interpretSymbol,
		Timeframe: interpretTimeframe,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(st); err != nil {
		return err
	}
	if !st.IsValid {
		return fmt.Errorf("strategy %s stored but invalid: %d errors", st.ID, len(st.ValidationErrors))
	}
	return nil
}
