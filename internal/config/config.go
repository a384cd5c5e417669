// Package config loads engine configuration from a YAML file with
// sensible defaults for every field.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the gridd daemon.
type Config struct {
	World     WorldConfig     `yaml:"world"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Decision  DecisionConfig  `yaml:"decision"`
	Server    ServerConfig    `yaml:"server"`
	DB        DBConfig        `yaml:"db"`
}

// WorldConfig controls the shared world geometry and population floor.
type WorldConfig struct {
	Seed             int64   `yaml:"seed"`
	CellSize         float64 `yaml:"cell_size"`
	SpawnRadius      float64 `yaml:"spawn_radius"`
	MinPopulation    int     `yaml:"min_population"`
	PerceptionRadius float64 `yaml:"perception_radius"`
}

// SchedulerConfig controls the two tick cadences and shutdown behavior.
type SchedulerConfig struct {
	TurnInterval         time.Duration `yaml:"turn_interval"`
	DeliberationInterval time.Duration `yaml:"deliberation_interval"`
	DrainGrace           time.Duration `yaml:"drain_grace"`
}

// DecisionConfig controls the external decision source.
type DecisionConfig struct {
	Provider  string        `yaml:"provider"` // "anthropic" or "none"
	Model     string        `yaml:"model"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
	APIKeyEnv string        `yaml:"api_key_env"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Port              int    `yaml:"port"`
	AdminKeyEnv       string `yaml:"admin_key_env"`
	DeliberatePerHour int    `yaml:"deliberate_per_hour"` // per-IP cap on /api/v1/deliberate
}

// DBConfig locates the SQLite world database.
type DBConfig struct {
	Path string `yaml:"path"`
}

// Load reads configuration from path. An empty path returns defaults.
func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("grid.yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("grid.yaml: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		World: WorldConfig{
			Seed:             42,
			CellSize:         10,
			SpawnRadius:      40,
			MinPopulation:    5,
			PerceptionRadius: 30,
		},
		Scheduler: SchedulerConfig{
			TurnInterval:         5 * time.Second,
			DeliberationInterval: 2 * time.Minute,
			DrainGrace:           10 * time.Second,
		},
		Decision: DecisionConfig{
			Provider:  "anthropic",
			Model:     "claude-haiku-4-5-20251001",
			MaxTokens: 512,
			Timeout:   15 * time.Second,
			APIKeyEnv: "ANTHROPIC_API_KEY",
		},
		Server: ServerConfig{
			Port:              8080,
			AdminKeyEnv:       "GRIDD_ADMIN_KEY",
			DeliberatePerHour: 12,
		},
		DB: DBConfig{
			Path: "data/grid.db",
		},
	}
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.World.CellSize <= 0 {
		return fmt.Errorf("world.cell_size must be positive, got %v", c.World.CellSize)
	}
	if c.World.SpawnRadius < 0 {
		return fmt.Errorf("world.spawn_radius must be non-negative, got %v", c.World.SpawnRadius)
	}
	if c.World.MinPopulation < 0 {
		return fmt.Errorf("world.min_population must be non-negative, got %d", c.World.MinPopulation)
	}
	if c.Scheduler.TurnInterval <= 0 {
		return fmt.Errorf("scheduler.turn_interval must be positive, got %v", c.Scheduler.TurnInterval)
	}
	if c.Scheduler.DeliberationInterval <= 0 {
		return fmt.Errorf("scheduler.deliberation_interval must be positive, got %v", c.Scheduler.DeliberationInterval)
	}
	if c.Decision.Timeout <= 0 {
		return fmt.Errorf("decision.timeout must be positive, got %v", c.Decision.Timeout)
	}
	switch c.Decision.Provider {
	case "anthropic", "none":
	default:
		return fmt.Errorf("decision.provider must be \"anthropic\" or \"none\", got %q", c.Decision.Provider)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.DeliberatePerHour <= 0 {
		return fmt.Errorf("server.deliberate_per_hour must be positive, got %d", c.Server.DeliberatePerHour)
	}
	return nil
}
