// Command gridd runs the persistent world-orchestration engine.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/coldasblues/the-grid/internal/action"
	"github.com/coldasblues/the-grid/internal/api"
	"github.com/coldasblues/the-grid/internal/broadcast"
	"github.com/coldasblues/the-grid/internal/config"
	"github.com/coldasblues/the-grid/internal/decide"
	"github.com/coldasblues/the-grid/internal/scheduler"
	"github.com/coldasblues/the-grid/internal/spatial"
	"github.com/coldasblues/the-grid/internal/world"
)

func main() {
	configPath := flag.String("config", "", "path to grid.yaml (empty = built-in defaults)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}
	slog.Info("the-grid starting",
		"seed", cfg.World.Seed,
		"turn_interval", cfg.Scheduler.TurnInterval,
		"deliberation_interval", cfg.Scheduler.DeliberationInterval,
	)

	// ── Database ──────────────────────────────────────────────────────
	os.MkdirAll(filepath.Dir(cfg.DB.Path), 0755)
	store, err := world.Open(cfg.DB.Path, world.StoreOptions{
		SpawnRadius: cfg.World.SpawnRadius,
		Seed:        cfg.World.Seed,
	})
	if err != nil {
		slog.Error("failed to open world database", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("world database opened", "path", cfg.DB.Path)

	// ── Spatial + broadcast + actions ─────────────────────────────────
	resolver := spatial.NewResolver(store, cfg.World.CellSize)

	hub := broadcast.NewHub()
	sink := broadcast.Fanout{broadcast.LogSink{}, hub}

	exec := &action.Executor{
		Store:   store,
		Spatial: resolver,
		Sink:    sink,
	}

	// ── Decision source ───────────────────────────────────────────────
	var source decide.Source
	if cfg.Decision.Provider == "anthropic" {
		apiKey := os.Getenv(cfg.Decision.APIKeyEnv)
		if apiKey != "" {
			source = decide.NewAnthropicSource(apiKey, cfg.Decision.Model, cfg.Decision.MaxTokens)
			slog.Info("decision source enabled", "model", cfg.Decision.Model)
		} else {
			slog.Warn("decision API key not set — running on fallback policy only",
				"env", cfg.Decision.APIKeyEnv)
		}
	} else {
		slog.Info("decision source disabled by configuration")
	}
	fallback := decide.NewFallback(cfg.World.Seed)

	// ── Scheduler ─────────────────────────────────────────────────────
	spawner := world.NewSpawner(cfg.World.Seed)
	sched := scheduler.New(scheduler.Config{
		TurnInterval:         cfg.Scheduler.TurnInterval,
		DeliberationInterval: cfg.Scheduler.DeliberationInterval,
		DecisionTimeout:      cfg.Decision.Timeout,
		DrainGrace:           cfg.Scheduler.DrainGrace,
		PerceptionRadius:     cfg.World.PerceptionRadius,
		MinPopulation:        cfg.World.MinPopulation,
	}, store, resolver, exec, source, fallback, spawner, sink)

	// Directives raised through the admin surface also reach the next turn.
	exec.Instructor = sched

	if err := sched.Init(); err != nil {
		slog.Error("failed to seed population", "error", err)
		os.Exit(1)
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	adminKey := os.Getenv(cfg.Server.AdminKeyEnv)
	if adminKey == "" {
		slog.Warn("admin key not set — admin POST endpoints will be disabled",
			"env", cfg.Server.AdminKeyEnv)
	}

	srv := &api.Server{
		Store:           store,
		Spatial:         resolver,
		Exec:            exec,
		Sched:           sched,
		Hub:             hub,
		Port:            cfg.Server.Port,
		AdminKey:        adminKey,
		DeliberateLimit: cfg.Server.DeliberatePerHour,
	}
	srv.Start()

	// ── Run ───────────────────────────────────────────────────────────
	sched.Start()
	fmt.Printf("the-grid is live: %d residents awake.\n", len(store.Residents()))
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.Server.Port)
	fmt.Println("Running... (Ctrl+C to stop)")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("received signal, shutting down", "signal", sig)

	sched.Stop()
	hub.Close()
	slog.Info("shutdown complete")
}
