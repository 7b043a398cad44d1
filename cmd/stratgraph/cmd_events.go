package main

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/algomatic/stratgraph/internal/config"
	"github.com/algomatic/stratgraph/pkg/events"
)

var eventsCmd = &cobra.Command{
	Use:   "events [event-type...]",
	Short: "Print strategy events from the Redis bus as JSON lines",
	Long: `Watch the event bus and print each event on its own line. With no
arguments every event under the configured channel prefix is shown.

Examples:
  SG_REDIS_ADDR=localhost:6379 stratgraph events
  stratgraph events strategy_invalid backtest_completed`,
	RunE: runEvents,
}

func init() {
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Redis.Addr == "" {
		return errors.New("SG_REDIS_ADDR is not set")
	}
	logger := setupLogger(cmd.ErrOrStderr(), logLevel, false)
	bus := newBus(cfg, logger)
	defer bus.Close()

	enc := json.NewEncoder(cmd.OutOrStdout())
	return bus.Watch(cmd.Context(), args, func(_ context.Context, ev *events.Event) error {
		return enc.Encode(ev)
	})
}
