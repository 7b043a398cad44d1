// Command stratgraph validates, repairs and serves strategy graphs.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/algomatic/stratgraph/pkg/catalog"
)

var version = "dev"

// Global flags
var (
	logLevel    string
	catalogPath string
)

var rootCmd = &cobra.Command{
	Use:   "stratgraph",
	Short: "Strategy graph validation and repair",
	Long: `stratgraph checks trading strategy graphs against the DSL catalog,
repairs the defects language models commonly produce, and serves the
interpretation and backtest API.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		slog.SetDefault(setupLogger(cmd.ErrOrStderr(), logLevel, false))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&catalogPath, "catalog", "", "Catalog YAML file (default: embedded catalog)")
	rootCmd.Version = version
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// setupLogger builds a JSON handler for the server and a text handler for
// interactive use.
func setupLogger(w io.Writer, level string, asJSON bool) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if asJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// loadCatalog returns the catalog at path, or the embedded one when path
// is empty.
func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	cat, err := catalog.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	return cat, nil
}
