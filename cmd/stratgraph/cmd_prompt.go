package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/algomatic/stratgraph/pkg/prompt"
)

var promptCmd = &cobra.Command{
	Use:   "prompt [query]",
	Short: "Print the model prompts rendered from the catalog",
	Long: `Print the system prompt that teaches a language model the DSL. When a
query is given, the user prompt for it is printed after the system prompt.

Examples:
  stratgraph prompt
  stratgraph prompt "buy when RSI drops below 30" --symbol AAPL`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPrompt,
}

var (
	promptSymbol    string
	promptTimeframe string
)

func init() {
	rootCmd.AddCommand(promptCmd)
	promptCmd.Flags().StringVarP(&promptSymbol, "symbol", "s", "SPY", "Symbol for the user prompt")
	promptCmd.Flags().StringVarP(&promptTimeframe, "timeframe", "t", "1D", "Timeframe for the user prompt")
}

func runPrompt(cmd *cobra.Command, args []string) error {
	cat, err := loadCatalog(catalogPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "# %s\n\n", prompt.Version(cat))
	fmt.Fprintln(out, prompt.System(cat))
	if len(args) == 1 {
		fmt.Fprintln(out, "\n# user")
		fmt.Fprintln(out, prompt.User(args[0], promptSymbol, promptTimeframe))
	}
	return nil
}
