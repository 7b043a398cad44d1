package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/algomatic/stratgraph/internal/config"
	"github.com/algomatic/stratgraph/pkg/api"
)

// healthService is the name orchestration probes ask the gRPC health
// server about.
const healthService = "stratgraph.v1.StrategyService"

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and gRPC health endpoint",
	Long: `Serve the strategy API over HTTP and a gRPC health and reflection
endpoint for orchestration probes. All settings come from SG_* environment
variables; logs are JSON on stdout.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level := cfg.Log.Level
	if cmd.Flags().Changed("log-level") {
		level = logLevel
	}
	logger := setupLogger(os.Stdout, level, true)
	slog.SetDefault(logger)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info("Starting stratgraph",
		"version", version,
		"http_port", cfg.Server.HTTPPort,
		"grpc_port", cfg.Server.GRPCPort,
		"store", cfg.Store.Backend,
		"catalog_version", a.cat.Version(),
		"llm_provider", cfg.LLM.Provider,
		"events", a.bus != nil,
	)

	// HTTP API.
	srv := api.NewServer(a.service, a.store, a.runner, a.publisher(), a.metrics, logger)
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// gRPC health and reflection.
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(healthService, healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	grpcAddr := fmt.Sprintf(":%d", cfg.Server.GRPCPort)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", grpcAddr, err)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("gRPC server listening", "addr", grpcAddr)
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("gRPC server: %w", err)
		}
	}()
	go func() {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case runErr = <-errCh:
		logger.Error("Server failed", "error", runErr)
	}

	healthServer.SetServingStatus(healthService, healthpb.HealthCheckResponse_NOT_SERVING)
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	grpcServer.GracefulStop()

	logger.Info("stratgraph stopped")
	return runErr
}
