// Kestrel - Client opportunity detection that deploys in 60 seconds.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/history"
	"github.com/opensource-finance/kestrel/internal/match"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/scan"
	"github.com/opensource-finance/kestrel/internal/scenario"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Load .env if present (ignored when absent)
	_ = godotenv.Load()

	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Match Engine
	engine := match.NewEngine(cfg.Engine.DefaultMatchThreshold)

	// Load scenarios: database first, then optional file
	if err := loadScenariosFromDatabase(ctx, repo, engine); err != nil {
		slog.Error("failed to load scenarios", "error", err)
		os.Exit(1)
	}
	if err := loadScenariosFromFile(cfg, engine); err != nil {
		slog.Error("failed to load scenario file", "error", err)
		os.Exit(1)
	}
	slog.Info("match engine initialized",
		"scenario_count", engine.ScenarioCount(),
		"default_threshold", cfg.Engine.DefaultMatchThreshold,
	)

	// Initialize Scan Processor
	processor := scan.NewProcessor(engine, cfg.Engine.MaxWorkers)
	slog.Info("scan processor initialized", "max_workers", cfg.Engine.MaxWorkers)

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		detectionHistory := history.NewService(repo, history.DefaultWindow)
		asyncWorker = worker.NewWorker(busImpl, repo, cacheImpl, processor, detectionHistory)

		tenantIDs := []string{}
		if envTenants := os.Getenv("KESTREL_TENANTS"); envTenants != "" {
			for _, t := range strings.Split(envTenants, ",") {
				if t = strings.TrimSpace(t); t != "" {
					tenantIDs = append(tenantIDs, t)
				}
			}
		}

		workerCfg := worker.Config{
			TenantIDs:   tenantIDs,
			WorkerCount: 5,
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, engine, processor, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// GlobalTenantID is used for scenarios that apply to all tenants.
const GlobalTenantID = "*"

// loadScenariosFromDatabase loads scenarios from the database into the engine.
func loadScenariosFromDatabase(ctx context.Context, repo domain.Repository, engine *match.Engine) error {
	dbScenarios, err := repo.ListScenarios(ctx, GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list scenarios from database", "error", err)
		return nil // Start empty - scenarios can be added via API
	}

	if len(dbScenarios) > 0 {
		slog.Info("loading scenarios from database", "count", len(dbScenarios))
		return engine.LoadScenarios(dbScenarios)
	}

	slog.Info("no scenarios in database - configure via POST /scenarios API or KESTREL_SCENARIOS file")
	return nil
}

// loadScenariosFromFile loads scenarios from the configured YAML/JSON file.
// The file path comes from KESTREL_SCENARIOS or the engine config.
func loadScenariosFromFile(cfg *domain.Config, engine *match.Engine) error {
	path := os.Getenv("KESTREL_SCENARIOS")
	if path == "" {
		path = cfg.Engine.ScenarioPath
	}
	if path == "" {
		return nil
	}

	scenarios, err := scenario.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load scenario file %s: %w", path, err)
	}

	for _, s := range scenarios {
		if err := scenario.Validate(s); err != nil {
			return fmt.Errorf("invalid scenario %s: %w", s.ID, err)
		}
	}

	slog.Info("loading scenarios from file", "path", path, "count", len(scenarios))
	return engine.LoadScenarios(scenarios)
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🦅 KESTREL                  ║")
	fmt.Println("  ║     Opportunity Detection Engine          ║")
	fmt.Println("  ║      Eyes on every client.                ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /scan                - Run an opportunity scan")
	fmt.Println("    GET  /scans/{id}          - Get scan result by ID")
	fmt.Println("    GET  /opportunities/{id}  - Get opportunity by ID")
	fmt.Println("    POST /entities            - Ingest an entity")
	fmt.Println("    GET  /entities            - List entities")
	fmt.Println("    GET  /scenarios           - List all scenarios")
	fmt.Println("    POST /scenarios           - Create a new scenario")
	fmt.Println("    PUT  /scenarios/{id}      - Update a scenario")
	fmt.Println("    DELETE /scenarios/{id}    - Delete a scenario")
	fmt.Println("    POST /scenarios/reload    - Hot-reload scenarios")
	fmt.Println("    GET  /health              - Health check")
	fmt.Println()
}
