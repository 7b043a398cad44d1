package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/algomatic/stratgraph/pkg/dsl"
	"github.com/algomatic/stratgraph/pkg/ir"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file or glob...]",
	Short: "Validate strategy graph files",
	Long: `Validate one or more strategy graph JSON documents against the catalog.
Patterns may use ** to match nested directories. With no arguments the
graph is read from stdin.

Examples:
  stratgraph validate strategy.json
  stratgraph validate 'strategies/**/*.json' --timeframe 1H
  cat graph.json | stratgraph validate --json`,
	RunE: runValidate,
}

// Validate command flags
var (
	validateTimeframe string
	validateJSON      bool
	validateNoCycles  bool
	validateMaxDepth  int
)

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateTimeframe, "timeframe", "t", "1D", "Bar timeframe the strategy runs on")
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Print results as JSON")
	validateCmd.Flags().BoolVar(&validateNoCycles, "allow-cycles", false, "Do not reject cyclic graphs")
	validateCmd.Flags().IntVar(&validateMaxDepth, "max-depth", dsl.DefaultMaxDepth, "Maximum function-call nesting depth")
}

// fileResult is one validated document.
type fileResult struct {
	File   string     `json:"file"`
	Result dsl.Result `json:"result"`
	Error  string     `json:"error,omitempty"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	cat, err := loadCatalog(catalogPath)
	if err != nil {
		return err
	}
	v := dsl.NewValidator(cat,
		dsl.WithMaxDepth(validateMaxDepth),
		dsl.WithCycleCheck(!validateNoCycles),
	)

	files, err := expandArgs(args)
	if err != nil {
		return err
	}

	var results []fileResult
	if len(files) == 0 {
		results = append(results, validateReader(v, "<stdin>", cmd.InOrStdin()))
	}
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			results = append(results, fileResult{File: path, Error: err.Error()})
			continue
		}
		results = append(results, validateReader(v, path, f))
		f.Close()
	}

	out := cmd.OutOrStdout()
	if validateJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		printResults(out, results)
	}

	failed := 0
	for _, r := range results {
		if r.Error != "" || !r.Result.IsValid {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d graphs failed validation", failed, len(results))
	}
	return nil
}

func validateReader(v *dsl.Validator, name string, r io.Reader) fileResult {
	data, err := io.ReadAll(r)
	if err != nil {
		return fileResult{File: name, Error: err.Error()}
	}
	g, err := ir.ParseGraph(data)
	if err != nil {
		return fileResult{File: name, Error: err.Error()}
	}
	return fileResult{File: name, Result: v.Validate(g, validateTimeframe)}
}

func printResults(w io.Writer, results []fileResult) {
	for _, r := range results {
		switch {
		case r.Error != "":
			fmt.Fprintf(w, "%s: ERROR %s\n", r.File, r.Error)
			continue
		case r.Result.IsValid:
			fmt.Fprintf(w, "%s: VALID", r.File)
		default:
			fmt.Fprintf(w, "%s: INVALID", r.File)
		}
		fmt.Fprintf(w, " (%d errors, %d warnings)\n", len(r.Result.Errors), len(r.Result.Warnings))
		for _, e := range r.Result.Errors {
			fmt.Fprintf(w, "  error: %s\n", e)
		}
		for _, warn := range r.Result.Warnings {
			fmt.Fprintf(w, "  warning: %s\n", warn)
		}
	}
}

// expandArgs resolves each argument as a doublestar pattern. Arguments
// without glob metacharacters are kept even when they do not exist, so the
// open error is reported against the name the user typed.
func expandArgs(args []string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	for _, arg := range args {
		matches, err := doublestar.FilepathGlob(arg)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", arg, err)
		}
		if len(matches) == 0 && !hasMeta(arg) {
			matches = []string{arg}
		}
		for _, m := range matches {
			m = filepath.Clean(m)
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	return files, nil
}

func hasMeta(s string) bool {
	for _, c := range s {
		switch c {
		case '*', '?', '[', '{':
			return true
		}
	}
	return false
}

// readGraph reads a graph document from path, or stdin when path is "-".
func readGraph(cmd *cobra.Command, path string) (*ir.Graph, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	g, err := ir.ParseGraph(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}
