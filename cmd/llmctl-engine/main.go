// Command llmctl-engine is the long-running service: it opens the
// Persistent Store, wires the Provider Router and Docker execution
// provider, starts the Flowchart Execution Scheduler's tick loop, and
// runs the Temporal worker that actually executes NodeRun dispatches.
// Structured the way the teacher's cmd/cortex/main.go is: flag-based
// config path, SIGHUP reloads the config file, SIGINT/SIGTERM drain and
// exit.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/nodadyoushutup/llmctl-engine/internal/config"
	"github.com/nodadyoushutup/llmctl-engine/internal/noderun"
	"github.com/nodadyoushutup/llmctl-engine/internal/provider"
	"github.com/nodadyoushutup/llmctl-engine/internal/scheduler"
	"github.com/nodadyoushutup/llmctl-engine/internal/store"
	"github.com/nodadyoushutup/llmctl-engine/internal/temporal"
	"github.com/nodadyoushutup/llmctl-engine/internal/workspace"

	"go.temporal.io/sdk/client"
)

// configureLogger mirrors the teacher's cmd/cortex configureLogger: JSON
// handler by default, text handler under -dev, level selected from the
// config file's general.log_level.
func configureLogger(logLevel string, useDev bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if useDev {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// validateRuntimeConfigReload rejects a SIGHUP reload that changes a
// field the running process has already wired connections around,
// mirroring the teacher's validateRuntimeConfigReload for StateDB/
// API.Bind.
func validateRuntimeConfigReload(oldCfg, newCfg *config.Config) error {
	if oldCfg == nil || newCfg == nil {
		return fmt.Errorf("invalid config state during reload")
	}
	if strings.TrimSpace(oldCfg.Store.DSN) != strings.TrimSpace(newCfg.Store.DSN) {
		return fmt.Errorf("store.dsn changed (%q -> %q) and requires restart", oldCfg.Store.DSN, newCfg.Store.DSN)
	}
	if strings.TrimSpace(oldCfg.Queue.HostPort) != strings.TrimSpace(newCfg.Queue.HostPort) {
		return fmt.Errorf("queue.host_port changed (%q -> %q) and requires restart", oldCfg.Queue.HostPort, newCfg.Queue.HostPort)
	}
	return nil
}

// buildRouter constructs a Provider Adapter per configured provider,
// keyed by name, the way spec §4.3 routes a node's provider_name to its
// adapter. A provider whose credentials are missing is skipped with a
// warning rather than failing startup, so a partially-configured
// instance still serves the providers it can.
func buildRouter(ctx context.Context, cfg *config.Config, logger *slog.Logger) *provider.Router {
	adapters := make(map[string]provider.Adapter, len(cfg.Providers))
	for name, p := range cfg.Providers {
		adapter, err := buildAdapter(ctx, p)
		if err != nil {
			logger.Warn("skipping provider: failed to build adapter", "provider", name, "kind", p.Kind, "error", err)
			continue
		}
		adapters[name] = adapter
	}
	return provider.NewRouter(adapters, nil)
}

func buildAdapter(ctx context.Context, p config.Provider) (provider.Adapter, error) {
	switch p.Kind {
	case "anthropic":
		return provider.NewAnthropicAdapter(os.Getenv("ANTHROPIC_API_KEY"), p.Model)
	case "openai":
		return provider.NewOpenAIAdapter(os.Getenv("OPENAI_API_KEY"), p.Model)
	case "bedrock":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return provider.NewBedrockAdapter(bedrockruntime.NewFromConfig(awsCfg), p.Model)
	default:
		return nil, fmt.Errorf("unknown provider kind %q", p.Kind)
	}
}

func main() {
	configPath := flag.String("config", "llmctl-engine.toml", "path to config file")
	once := flag.Bool("once", false, "run a single scheduler tick then exit")
	dev := flag.Bool("dev", false, "use text log format (default is JSON)")
	flag.Parse()

	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	bootLogger.Info("llmctl-engine starting", "config", *configPath)

	cfgManager, err := config.LoadManager(*configPath)
	if err != nil {
		bootLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := cfgManager.Get()

	logger := configureLogger(cfg.General.LogLevel, *dev)
	slog.SetDefault(logger)

	dbPath := config.ExpandHome(cfg.Store.DSN)
	if dbPath == "" {
		dbPath = "llmctl.db"
	}
	st, err := store.Open(dbPath)
	if err != nil {
		logger.Error("failed to open store", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ws := workspace.NewManager(config.ExpandHome(cfg.Workspace.Root))
	router := buildRouter(ctx, cfg, logger.With("component", "provider"))

	var containers *workspace.ContainerRunner
	if cfg.Workspace.ContainerImage != "" {
		containers, err = workspace.NewContainerRunner(cfg.Workspace.ContainerImage)
		if err != nil {
			logger.Warn("docker execution provider unavailable", "error", err)
			containers = nil
		}
	}

	rt := &noderun.Runtime{Workspace: ws, Router: router, Store: st, Containers: containers}

	temporalClient, err := client.Dial(client.Options{HostPort: cfg.Queue.HostPort})
	if err != nil {
		logger.Error("failed to connect to temporal", "host_port", cfg.Queue.HostPort, "error", err)
		os.Exit(1)
	}
	defer temporalClient.Close()

	taskQueue := temporal.Queue{Client: temporalClient}

	schedulerRef := scheduler.New(st, taskQueue, ws, scheduler.Config{
		TickInterval:             cfg.General.TickInterval.Duration,
		MaxConcurrentRuns:        cfg.General.MaxConcurrentRuns,
		MaxConcurrentNodesPerRun: cfg.General.MaxConcurrentNodesPerRun,
		WorkspaceSweepInterval:   cfg.General.WorkspaceSweepInterval.Duration,
		WorkspaceRetention:       cfg.General.WorkspaceRetention.Duration,
	}, logger.With("component", "scheduler"), st.ListActiveRunIDs)

	if *once {
		logger.Info("running single tick (--once mode)")
		schedulerRef.Tick(ctx)
		logger.Info("single tick complete, exiting")
		return
	}

	go schedulerRef.Run(ctx)

	stopWorker, err := temporal.StartWorker(cfg.Queue.HostPort, rt, st)
	if err != nil {
		logger.Error("failed to start temporal worker", "error", err)
		os.Exit(1)
	}
	defer stopWorker()

	logger.Info("llmctl-engine running",
		"tick_interval", cfg.General.TickInterval.Duration.String(),
		"max_concurrent_runs", cfg.General.MaxConcurrentRuns,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	for {
		sig := <-sigCh
		switch sig {
		case syscall.SIGHUP:
			newCfg, err := config.Load(*configPath)
			if err != nil {
				logger.Error("config reload failed", "error", err)
				continue
			}
			if err := validateRuntimeConfigReload(cfg, newCfg); err != nil {
				logger.Error("config reload rejected", "error", err)
				continue
			}
			cfgManager.Set(newCfg)
			cfg = newCfg
			logger = configureLogger(cfg.General.LogLevel, *dev)
			slog.SetDefault(logger)
			logger.Info("config reloaded")
		case syscall.SIGINT, syscall.SIGTERM:
			shutdownStart := time.Now()
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			logger.Info("llmctl-engine stopped", "shutdown_duration", time.Since(shutdownStart).String())
			return
		}
	}
}
