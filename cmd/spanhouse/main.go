// Package main is the entry point for the spanhouse binary.
// It provides a CLI for starting the GenAI-aware telemetry collector.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/spanhouse/spanhouse/pkg/aggregate"
	"github.com/spanhouse/spanhouse/pkg/api"
	"github.com/spanhouse/spanhouse/pkg/config"
	"github.com/spanhouse/spanhouse/pkg/ingest"
	"github.com/spanhouse/spanhouse/pkg/live"
	"github.com/spanhouse/spanhouse/pkg/logging"
	"github.com/spanhouse/spanhouse/pkg/schema"
	"github.com/spanhouse/spanhouse/pkg/storage"
	"github.com/spanhouse/spanhouse/pkg/telemetry"
)

const gracefulShutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command for spanhouse
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "spanhouse",
		Short: "GenAI-aware OpenTelemetry collector",
		Long: `A telemetry collector that ingests OTLP traces, metrics, and logs,
aggregates spans into GenAI sessions with token and cost rollups, streams
everything to live subscribers, and evolves its analytical schema through
additive-only promotions.`,
		RunE: runCollector,
	}

	rootCmd.Flags().StringP("config", "c", "", "Path to configuration file (YAML)")
	rootCmd.Flags().StringP("http-addr", "a", "", "OTLP/HTTP and API listen address (overrides config)")
	rootCmd.Flags().StringP("grpc-addr", "g", "", "OTLP/gRPC listen address (overrides config)")
	rootCmd.Flags().StringP("log-level", "l", "", "Log level (debug, info, warn, error)")

	return rootCmd
}

func runCollector(cmd *cobra.Command, _ []string) error {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("http-addr"); v != "" {
		cfg.Server.HTTPAddress = v
	}
	if v, _ := cmd.Flags().GetString("grpc-addr"); v != "" {
		cfg.Server.GRPCAddress = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Logging.Level = v
	}

	logger, logLevel := logging.Setup(logging.Config{Level: cfg.Logging.Level})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if configPath != "" {
		provider, err := config.NewFileProvider(configPath, logger)
		if err != nil {
			return err
		}
		defer provider.Close()
		updates := provider.Subscribe()
		<-updates // initial snapshot is the config already loaded above
		go applyConfigUpdates(ctx, updates, logLevel, logger)
	}

	shutdownTracing, err := telemetry.SetupProvider(ctx, telemetry.Config{
		ServiceName: "spanhouse",
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		logger.Warn("tracing setup failed, continuing without export", "error", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	metrics := telemetry.NewMetrics()

	store, closeStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	sessionCfg := aggregate.DefaultSessionConfig()
	sessionCfg.MaxSessions = cfg.Aggregation.MaxSessions
	sessionCfg.TTL = time.Duration(cfg.Aggregation.SessionTTLHours) * time.Hour
	sessions := aggregate.NewSessionAggregator(sessionCfg, logger)
	sessions.SetEvictHook(func(reason string) { metrics.RecordEviction("session", reason) })

	traceCfg := aggregate.DefaultTraceConfig()
	traceCfg.MaxTraces = cfg.Aggregation.MaxTraces
	traces := aggregate.NewTraceAggregator(traceCfg, logger)
	traces.SetEvictHook(func(reason string) { metrics.RecordEviction("trace", reason) })

	broadcaster := live.NewBroadcaster(cfg.Live.QueueSize, logger)
	broadcaster.SetDropHook(metrics.RecordDroppedMessage)
	defer broadcaster.Close()

	registry := ingest.NewServiceRegistry()
	handler := ingest.NewHandler(store, registry, sessions, traces, broadcaster, metrics, logger)

	planner := schema.NewPlanner(promotionStore(store), logger)
	executor := schema.NewExecutor(promotionStore(store), ddlExecutor(store), logger)

	sse := live.NewSSEHandler(broadcaster, logger)
	server := api.NewServer(handler, registry, sessions, traces, store, sse, planner, executor, metrics, logger)

	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddress,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		ln, err := net.Listen("tcp", cfg.Server.HTTPAddress)
		if err != nil {
			errCh <- fmt.Errorf("http listen: %w", err)
			return
		}
		logger.Info("http server listening", "addr", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var grpcServer *ingest.GRPCServer
	if cfg.Server.GRPCAddress != "" {
		grpcServer = ingest.NewGRPCServer(handler, logger)
		go func() {
			if err := grpcServer.Serve(cfg.Server.GRPCAddress); err != nil {
				errCh <- fmt.Errorf("grpc serve: %w", err)
			}
		}()
	}

	retention := storage.NewRetentionLoop(
		time.Duration(cfg.Storage.RetentionHours)*time.Hour,
		time.Hour,
		logger,
	)
	if mem, ok := store.(*storage.MemoryStore); ok {
		retention.Register("store", mem)
	}
	retention.Register("sessions", sessions)
	retention.Register("traces", traces)
	go retention.Run(ctx)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Stop()
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", "error", err)
	}
	return nil
}

// applyConfigUpdates consumes reloaded configuration snapshots and applies
// the knobs that can change at runtime. Only the log level is reloadable;
// everything else requires a restart.
func applyConfigUpdates(ctx context.Context, updates <-chan *config.Config, level *slog.LevelVar, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-updates:
			if !ok {
				return
			}
			level.Set(logging.ParseLevel(cfg.Logging.Level))
			logger.Info("applied reloaded configuration", "log_level", cfg.Logging.Level)
		}
	}
}

// buildStore constructs the configured storage backend.
func buildStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.TelemetryStore, func(), error) {
	switch cfg.Storage.Backend {
	case "clickhouse":
		ch, err := storage.NewClickHouseStore(ctx, storage.ClickHouseConfig{
			Addrs:    cfg.Storage.ClickHouse.Addrs,
			Database: cfg.Storage.ClickHouse.Database,
			Username: cfg.Storage.ClickHouse.Username,
			Password: cfg.Storage.ClickHouse.Password,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using clickhouse storage", "addrs", cfg.Storage.ClickHouse.Addrs)
		return ch, func() { _ = ch.Close() }, nil
	default:
		logger.Info("using in-memory storage")
		return storage.NewMemoryStore(), func() {}, nil
	}
}

func promotionStore(store storage.TelemetryStore) storage.PromotionStore {
	return store.(storage.PromotionStore)
}

func ddlExecutor(store storage.TelemetryStore) storage.DDLExecutor {
	return store.(storage.DDLExecutor)
}
