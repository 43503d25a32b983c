// Package main is the entry point for the market simulator server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tuanle/tickersim/internal/config"
	"github.com/tuanle/tickersim/internal/engine"
	"github.com/tuanle/tickersim/internal/market"
	"github.com/tuanle/tickersim/internal/metrics"
	"github.com/tuanle/tickersim/internal/persistence"
	"github.com/tuanle/tickersim/internal/server"
)

// Version information (set by build flags).
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version", "-v", "--version":
		cmdVersion()
	case "help", "-h", "--help":
		printUsage()
	case "run":
		cmdRun(os.Args[2:])
	case "validate":
		cmdValidate(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Tickersim - Multi-Asset Market Simulator

Usage:
  tickersim <command> [options]

Commands:
  run        Start the simulator server
  validate   Validate configuration file
  version    Show version information
  help       Show this help message

Examples:
  tickersim run --config config.yaml
  tickersim validate --config config.yaml

Use "tickersim <command> --help" for more information about a command.`)
}

func cmdVersion() {
	fmt.Printf("tickersim version %s\n", Version)
	fmt.Printf("  Build time: %s\n", BuildTime)
	fmt.Printf("  Git commit: %s\n", GitCommit)
}

func cmdValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Configuration is valid!")
	fmt.Printf("  Listen address: %s\n", cfg.Server.Addr)
	fmt.Printf("  Instruments: %d\n", len(cfg.Market.Instruments))
	fmt.Printf("  Tick interval: %s\n", cfg.TickInterval())
	fmt.Printf("  Starting cash: $%.2f\n", cfg.Session.StartingCash)
}

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	fs.Parse(args)

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("tickersim starting",
		"version", Version,
		"addr", cfg.Server.Addr,
		"instruments", len(cfg.Market.Instruments),
		"tick_interval", cfg.TickInterval(),
	)

	// Optional trade journal
	var repo persistence.Repository
	if cfg.Persistence.Enabled {
		sqliteRepo, err := persistence.NewSQLiteRepository(cfg.Persistence.Path)
		if err != nil {
			slog.Error("failed to open trade journal", "err", err)
			os.Exit(1)
		}
		repo = sqliteRepo
		slog.Info("trade journal enabled", "path", cfg.Persistence.Path)
	}

	// Market simulator and engine
	sim := market.NewSimulator(cfg.ToMarketConfig(), logger)
	eng := engine.New(engine.Config{
		Session: cfg.ToSessionConfig(),
	}, sim, repo, logger)

	// Websocket hub and HTTP server
	hub := server.NewHub(eng, logger)
	eng.SetBroadcaster(hub)
	go hub.Run(ctx)

	srv := server.New(server.Config{Addr: cfg.Server.Addr}, eng, hub, logger)

	// Optional metrics server
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		serverCfg := metrics.DefaultServerConfig()
		serverCfg.Port = cfg.Metrics.Port
		serverCfg.MetricsPath = cfg.Metrics.Path
		metricsServer = metrics.NewServer(serverCfg, logger)
		metricsServer.RegisterHealthCheck("engine", func() metrics.Check {
			if eng.IsRunning() {
				return metrics.Check{Status: "healthy"}
			}
			return metrics.Check{Status: "unhealthy", Message: "engine stopped"}
		})
		_ = metricsServer.Start()
	}

	if err := eng.Start(ctx); err != nil {
		slog.Error("failed to start engine", "err", err)
		os.Exit(1)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			slog.Error("http server failed", "err", err)
		}
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.ShutdownTimeout(),
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "err", err)
	}
	if err := eng.Stop(shutdownCtx); err != nil {
		slog.Error("engine shutdown error", "err", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics shutdown error", "err", err)
		}
	}
	if repo != nil {
		if err := repo.Close(); err != nil {
			slog.Error("failed to close trade journal", "err", err)
		}
	}

	slog.Info("tickersim shutdown complete")
}
