package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/algomatic/stratgraph/pkg/dsl"
	"github.com/algomatic/stratgraph/pkg/repair"
)

var repairCmd = &cobra.Command{
	Use:   "repair <file|->",
	Short: "Normalize a strategy graph and re-validate it",
	Long: `Apply the automatic repairs for common model mistakes (missing symbols
and quantities, textual exit sizes, NOT and incomplete position
conditions), then validate the result. The repaired graph is printed on
stdout and each applied fix on stderr.

Examples:
  stratgraph repair raw.json --symbol AAPL > fixed.json
  stratgraph repair - --timeframe 1H < raw.json`,
	Args: cobra.ExactArgs(1),
	RunE: runRepair,
}

// Repair command flags
var (
	repairSymbol    string
	repairTimeframe string
	repairOutput    string
)

func init() {
	rootCmd.AddCommand(repairCmd)

	repairCmd.Flags().StringVarP(&repairSymbol, "symbol", "s", "", "Symbol to use when the graph has none")
	repairCmd.Flags().StringVarP(&repairTimeframe, "timeframe", "t", "1D", "Bar timeframe the strategy runs on")
	repairCmd.Flags().StringVarP(&repairOutput, "output", "o", "", "Output file (default: stdout)")
}

func runRepair(cmd *cobra.Command, args []string) error {
	cat, err := loadCatalog(catalogPath)
	if err != nil {
		return err
	}
	g, err := readGraph(cmd, args[0])
	if err != nil {
		return err
	}

	notes := repair.Normalize(g, repair.Options{DefaultSymbol: repairSymbol})
	res := dsl.Validate(cat, g, repairTimeframe)

	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding graph: %w", err)
	}
	data = append(data, '\n')
	if repairOutput != "" {
		if err := os.WriteFile(repairOutput, data, 0o644); err != nil {
			return err
		}
	} else if _, err := cmd.OutOrStdout().Write(data); err != nil {
		return err
	}

	errOut := cmd.ErrOrStderr()
	for _, n := range notes {
		fmt.Fprintf(errOut, "fix: %s\n", n)
	}
	for _, e := range res.Errors {
		fmt.Fprintf(errOut, "error: %s\n", e)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(errOut, "warning: %s\n", w)
	}
	if !res.IsValid {
		return fmt.Errorf("graph still has %d errors after repair", len(res.Errors))
	}
	return nil
}
