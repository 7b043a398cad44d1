package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Print the DSL catalog",
	Long: `Print the catalog of functions, actions, operators and timeframes that
strategy graphs are validated against.

Examples:
  stratgraph catalog
  stratgraph catalog --format yaml
  stratgraph catalog --catalog custom.yaml --format names`,
	Args: cobra.NoArgs,
	RunE: runCatalog,
}

var catalogFormat string

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.Flags().StringVar(&catalogFormat, "format", "json", "Output format (json|yaml|names)")
}

func runCatalog(cmd *cobra.Command, args []string) error {
	cat, err := loadCatalog(catalogPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	switch catalogFormat {
	case "json":
		data, err := json.MarshalIndent(cat, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
	case "yaml":
		// Round-trip through JSON so YAML keys match the JSON field names.
		data, err := json.Marshal(cat)
		if err != nil {
			return err
		}
		var doc map[string]any
		if err := json.Unmarshal(data, &doc); err != nil {
			return err
		}
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(map[string]any{"dsl_spec": doc}); err != nil {
			return err
		}
		return enc.Close()
	case "names":
		fmt.Fprintf(out, "catalog %s\n", cat.Version())
		fmt.Fprintln(out, "functions:")
		for _, f := range cat.Functions() {
			fmt.Fprintf(out, "  %-20s %s\n", f.Name, f.Category)
		}
		fmt.Fprintln(out, "actions:")
		for _, name := range cat.ActionNames() {
			fmt.Fprintf(out, "  %s\n", name)
		}
	default:
		return fmt.Errorf("unknown format %q: must be json, yaml, or names", catalogFormat)
	}
	return nil
}
