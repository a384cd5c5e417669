package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.World.CellSize != 10 || cfg.World.MinPopulation != 5 {
		t.Fatalf("world defaults = %+v", cfg.World)
	}
	if cfg.Scheduler.TurnInterval != 5*time.Second {
		t.Fatalf("turn interval = %v, want 5s", cfg.Scheduler.TurnInterval)
	}
	if cfg.Decision.Provider != "anthropic" {
		t.Fatalf("provider = %q", cfg.Decision.Provider)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults fail validation: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.yaml")
	doc := `
world:
  seed: 7
  min_population: 12
scheduler:
  turn_interval: 2s
decision:
  provider: none
server:
  port: 9090
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.World.Seed != 7 || cfg.World.MinPopulation != 12 {
		t.Fatalf("world = %+v", cfg.World)
	}
	if cfg.Scheduler.TurnInterval != 2*time.Second {
		t.Fatalf("turn interval = %v", cfg.Scheduler.TurnInterval)
	}
	if cfg.Decision.Provider != "none" {
		t.Fatalf("provider = %q", cfg.Decision.Provider)
	}
	// Unset fields keep their defaults.
	if cfg.World.CellSize != 10 {
		t.Fatalf("cell size = %v, want default 10", cfg.World.CellSize)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
	if cfg.Server.DeliberatePerHour != 12 {
		t.Fatalf("deliberate_per_hour = %d, want default 12", cfg.Server.DeliberatePerHour)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing file accepted")
	}
}

func TestValidateRejects(t *testing.T) {
	mutations := map[string]func(*Config){
		"zero cell size":        func(c *Config) { c.World.CellSize = 0 },
		"negative spawn radius": func(c *Config) { c.World.SpawnRadius = -1 },
		"zero turn interval":    func(c *Config) { c.Scheduler.TurnInterval = 0 },
		"zero timeout":          func(c *Config) { c.Decision.Timeout = 0 },
		"bad provider":          func(c *Config) { c.Decision.Provider = "oracle" },
		"bad port":              func(c *Config) { c.Server.Port = 70000 },
		"zero deliberate cap":   func(c *Config) { c.Server.DeliberatePerHour = 0 },
	}
	for name, mutate := range mutations {
		cfg := defaults()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: accepted", name)
		}
	}
}
