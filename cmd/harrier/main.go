// Harrier - Claims triage that deploys in 60 seconds.
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

	"github.com/opensource-finance/harrier/internal/api"
	"github.com/opensource-finance/harrier/internal/bus"
	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/fraud"
	"github.com/opensource-finance/harrier/internal/llm"
	"github.com/opensource-finance/harrier/internal/queue"
	"github.com/opensource-finance/harrier/internal/recent"
	"github.com/opensource-finance/harrier/internal/repository"
	"github.com/opensource-finance/harrier/internal/review"
	"github.com/opensource-finance/harrier/internal/stages"
	"github.com/opensource-finance/harrier/internal/worker"
	"github.com/opensource-finance/harrier/internal/workflow"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("HARRIER_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting harrier",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("HARRIER_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	applyEnvOverrides(cfg)

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"llm", cfg.LLM.Provider,
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

	// Initialize text-generation provider (optional)
	provider, err := llm.New(cfg.LLM)
	if err != nil {
		slog.Error("failed to initialize llm provider", "error", err)
		os.Exit(1)
	}
	if provider != nil {
		slog.Info("llm provider initialized", "provider", provider.Name())
	} else {
		slog.Info("no llm provider configured, structured intake only")
	}

	// Initialize custom fraud checks. Stored checks for known tenants are
	// loaded at startup; other tenants load theirs via the reload endpoint.
	checks, err := fraud.NewCustomChecks()
	if err != nil {
		slog.Error("failed to initialize fraud check engine", "error", err)
		os.Exit(1)
	}
	loadFraudChecks(ctx, repo, checks, splitTenants(os.Getenv("HARRIER_TENANTS")))

	// Model-based scorer rides on the llm provider when available.
	var scorer domain.FraudScorer
	if provider != nil {
		s, err := stages.NewModelScorer(provider, logger)
		if err != nil {
			slog.Error("failed to initialize model scorer", "error", err)
			os.Exit(1)
		}
		scorer = s
	}

	fraudEngine := fraud.NewEngine(scorer, checks, cfg.Fraud, cfg.Pipeline.StageTimeout, logger)
	slog.Info("fraud engine initialized", "model_scorer", scorer != nil)

	// Duplicate-claim tracker over the cache
	tracker := recent.NewTracker(cacheImpl, cfg.Fraud.DuplicateWindow)

	// Pipeline collaborators
	extractor := stages.NewExtractor(provider, logger)
	validator := stages.NewValidator(repo, cacheImpl, logger)
	router := stages.NewRouter(cfg.Pipeline.LargeAmountThreshold)

	// Review queue, feedback loop, and per-claim locks shared between the
	// orchestrator and the review agent
	locks := domain.NewClaimLocks()
	reviewQueue := queue.New(repo, logger)
	feedback := review.NewFeedbackLog(repo)
	agent := review.NewAgent(reviewQueue, feedback, repo, busImpl, locks, logger)

	// Workflow orchestrator
	orch := workflow.New(repo, busImpl, extractor, validator, router,
		fraudEngine, tracker, reviewQueue, locks, cfg.Pipeline, logger)
	slog.Info("workflow orchestrator initialized",
		"stage_timeout", cfg.Pipeline.StageTimeout,
		"large_amount_threshold", cfg.Pipeline.LargeAmountThreshold,
	)

	// Initialize async intake worker (Pro tier)
	var intakeWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("HARRIER_ASYNC_INTAKE") == "true" {
		tenantIDs := splitTenants(os.Getenv("HARRIER_TENANTS"))
		if len(tenantIDs) == 0 {
			slog.Warn("async intake enabled but HARRIER_TENANTS is empty, skipping")
		} else {
			intakeWorker = worker.NewWorker(busImpl, orch, logger)
			if err := intakeWorker.Start(worker.Config{TenantIDs: tenantIDs}); err != nil {
				slog.Error("failed to start intake worker", "error", err)
			} else {
				slog.Info("intake worker started", "tenant_count", len(tenantIDs))
			}
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, orch, agent, reviewQueue, checks, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("harrier is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop intake first so no new pipelines start
	if intakeWorker != nil {
		intakeWorker.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("harrier shutdown complete")
}

// loadFraudChecks pulls stored custom checks for the given tenants into the
// engine. Failures are logged and skipped so one bad tenant cannot block
// startup.
func loadFraudChecks(ctx context.Context, repo domain.Repository, checks *fraud.CustomChecks, tenantIDs []string) {
	loaded := 0
	for _, tenantID := range tenantIDs {
		configs, err := repo.ListFraudChecks(ctx, tenantID)
		if err != nil {
			slog.Warn("failed to load fraud checks", "tenant_id", tenantID, "error", err)
			continue
		}
		for _, cfg := range configs {
			if err := checks.LoadCheck(cfg); err != nil {
				slog.Warn("failed to compile fraud check",
					"tenant_id", tenantID,
					"check_id", cfg.ID,
					"error", err,
				)
				continue
			}
			loaded++
		}
	}
	if loaded > 0 {
		slog.Info("fraud checks loaded", "count", loaded)
	}
}

// applyEnvOverrides layers environment settings over the tier defaults.
func applyEnvOverrides(cfg *domain.Config) {
	if v := os.Getenv("HARRIER_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("HARRIER_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("HARRIER_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("HARRIER_DB_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("HARRIER_PG_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("HARRIER_PG_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("HARRIER_PG_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("HARRIER_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("HARRIER_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
}

func splitTenants(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🦅 HARRIER                  ║")
	fmt.Println("  ║        Claims Triage Engine               ║")
	fmt.Println("  ║     Every claim, rightly routed.          ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /claims                              - Submit a claim")
	fmt.Println("    GET  /claims/{id}                         - Get claim by ID")
	fmt.Println("    GET  /claims?status=...                   - List claims by status")
	fmt.Println("    GET  /review/pending                      - List pending reviews")
	fmt.Println("    GET  /review/next                         - Next review item")
	fmt.Println("    POST /review/claims/{claimID}/decision    - Record a human decision")
	fmt.Println("    GET  /review/stats                        - Review statistics")
	fmt.Println("    GET  /fraud-checks                        - List custom fraud checks")
	fmt.Println("    POST /fraud-checks                        - Create a fraud check")
	fmt.Println("    POST /fraud-checks/reload                 - Reload fraud checks")
	fmt.Println("    GET  /health                              - Health check")
	fmt.Println()
}
