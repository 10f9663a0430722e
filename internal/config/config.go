// Package config provides centralized configuration management.
// This is the SINGLE SOURCE OF TRUTH for world rules and server settings.
//
// Precedence, lowest to highest: built-in defaults, optional YAML file,
// environment variables. Command-line flags are applied by cmd/server on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// WORLD CONFIGURATION
// =============================================================================

// WorldConfig holds the fixed rules of the arena.
// These values are exposed to clients in the init payload.
type WorldConfig struct {
	ArenaWidth      float64       `yaml:"arena_width"`
	ArenaHeight     float64       `yaml:"arena_height"`
	MaxNutrients    int           `yaml:"max_nutrients"`     // Startup population
	MinNutrients    int           `yaml:"min_nutrients"`     // Replenishment floor, checked every tick
	TickInterval    time.Duration `yaml:"tick_interval"`     // Jitter/replenish/collision/broadcast period
	MaxMoveDistance float64       `yaml:"max_move_distance"` // Max displacement per accepted move
	EggRadius       float64       `yaml:"egg_radius"`        // Added to the player size for the reach check
	EggBonus        int           `yaml:"egg_bonus"`
	NutrientScore   int           `yaml:"nutrient_score"`
	KillBonus       int           `yaml:"kill_bonus"`
	DeathPenalty    int           `yaml:"death_penalty"`
	LeaderboardSize int           `yaml:"leaderboard_size"`
	Seed            int64         `yaml:"seed"` // 0 = seeded from the clock
}

// DefaultWorld returns the default world rules.
func DefaultWorld() WorldConfig {
	return WorldConfig{
		ArenaWidth:      5000,
		ArenaHeight:     5000,
		MaxNutrients:    150,
		MinNutrients:    100,
		TickInterval:    2000 * time.Millisecond,
		MaxMoveDistance: 5,
		EggRadius:       20,
		EggBonus:        100,
		NutrientScore:   10,
		KillBonus:       50,
		DeathPenalty:    20,
		LeaderboardSize: 10,
	}
}

// WorldFromEnv applies environment overrides to cfg.
func WorldFromEnv(cfg WorldConfig) WorldConfig {
	if d := getEnvDuration("TICK_INTERVAL", 0); d > 0 {
		cfg.TickInterval = d
	}
	if s := getEnvInt64("WORLD_SEED", 0); s != 0 {
		cfg.Seed = s
	}
	return cfg
}

// Validate rejects rule combinations the world cannot honour.
func (c WorldConfig) Validate() error {
	var errs []error
	if c.ArenaWidth <= 0 || c.ArenaHeight <= 0 {
		errs = append(errs, fmt.Errorf("arena must be positive, got %.0fx%.0f", c.ArenaWidth, c.ArenaHeight))
	}
	if c.MinNutrients < 0 || c.MaxNutrients < c.MinNutrients {
		errs = append(errs, fmt.Errorf("nutrient bounds invalid: min=%d max=%d", c.MinNutrients, c.MaxNutrients))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("tick interval must be positive, got %s", c.TickInterval))
	}
	if c.MaxMoveDistance <= 0 {
		errs = append(errs, fmt.Errorf("max move distance must be positive, got %.2f", c.MaxMoveDistance))
	}
	if c.LeaderboardSize <= 0 {
		errs = append(errs, fmt.Errorf("leaderboard size must be positive, got %d", c.LeaderboardSize))
	}
	return errors.Join(errs...)
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP and WebSocket server settings.
type ServerConfig struct {
	Port                int           `yaml:"port"`
	MaxPlayers          int           `yaml:"max_players"` // Hard cap on concurrent WebSocket connections
	MaxConnectionsPerIP int           `yaml:"max_connections_per_ip"`
	OutboundQueueSize   int           `yaml:"outbound_queue_size"` // Frames buffered per connection
	StaticDir           string        `yaml:"static_dir"`          // Client assets; empty disables
	CORSOrigins         []string      `yaml:"cors_origins"`
	ShutdownTimeout     time.Duration `yaml:"shutdown_timeout"`
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:                3000,
		MaxPlayers:          500,
		MaxConnectionsPerIP: 10,
		OutboundQueueSize:   64,
		ShutdownTimeout:     10 * time.Second,
	}
}

// ServerFromEnv applies environment overrides to cfg.
func ServerFromEnv(cfg ServerConfig) ServerConfig {
	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if mp := getEnvInt("MAX_PLAYERS", 0); mp > 0 {
		cfg.MaxPlayers = mp
	}
	if dir := os.Getenv("STATIC_DIR"); dir != "" {
		cfg.StaticDir = dir
	}
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}
	return cfg
}

// =============================================================================
// RATE LIMITING
// =============================================================================

// RateLimitConfig configures the per-IP HTTP limiter.
type RateLimitConfig struct {
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval"`
}

// DefaultRateLimit returns production-safe defaults.
func DefaultRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 10,
		Burst:             20,
		CleanupInterval:   5 * time.Minute,
	}
}

// =============================================================================
// LOGGING
// =============================================================================

// LogConfig controls the zap logger and its rotating file sink.
type LogConfig struct {
	Level      string `yaml:"level"` // debug, info, warn, error
	File       string `yaml:"file"`  // Empty logs to stderr only
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// DefaultLog returns the default logging configuration.
func DefaultLog() LogConfig {
	return LogConfig{
		Level:      "info",
		File:       "arena.log",
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 7,
	}
}

// LogFromEnv applies environment overrides to cfg.
func LogFromEnv(cfg LogConfig) LogConfig {
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		cfg.Level = lvl
	}
	if f, ok := os.LookupEnv("LOG_FILE"); ok {
		cfg.File = f
	}
	return cfg
}

// =============================================================================
// OBSERVABILITY
// =============================================================================

// DebugConfig configures the loopback pprof/metrics listener.
type DebugConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"` // MUST stay on loopback in production
}

// DefaultDebug returns safe defaults.
func DefaultDebug() DebugConfig {
	return DebugConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060",
	}
}

// DebugFromEnv applies environment overrides to cfg.
func DebugFromEnv(cfg DebugConfig) DebugConfig {
	if os.Getenv("DISABLE_DEBUG_SERVER") == "true" {
		cfg.Enabled = false
	}
	if addr := os.Getenv("DEBUG_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}
	return cfg
}

// EventLogConfig configures the gameplay audit trail.
type EventLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultEventLog returns the default audit trail settings.
func DefaultEventLog() EventLogConfig {
	return EventLogConfig{
		Enabled: true,
		Path:    "events.jsonl",
	}
}

// EventLogFromEnv applies environment overrides to cfg.
func EventLogFromEnv(cfg EventLogConfig) EventLogConfig {
	if p := os.Getenv("EVENT_LOG_PATH"); p != "" {
		cfg.Path = p
	}
	if os.Getenv("EVENT_LOG_ENABLED") == "false" {
		cfg.Enabled = false
	}
	return cfg
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	World     WorldConfig     `yaml:"world"`
	Server    ServerConfig    `yaml:"server"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
	Debug     DebugConfig     `yaml:"debug"`
	EventLog  EventLogConfig  `yaml:"event_log"`
}

// Default returns the complete configuration without any overrides.
func Default() AppConfig {
	return AppConfig{
		World:     DefaultWorld(),
		Server:    DefaultServer(),
		RateLimit: DefaultRateLimit(),
		Log:       DefaultLog(),
		Debug:     DefaultDebug(),
		EventLog:  DefaultEventLog(),
	}
}

// Load returns the complete configuration: defaults, then the YAML file at
// path (if non-empty), then environment overrides.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	if path != "" {
		if err := overlayFile(&cfg, path); err != nil {
			return cfg, err
		}
	}
	cfg = applyEnv(cfg)
	if err := cfg.World.Validate(); err != nil {
		return cfg, fmt.Errorf("config: invalid world: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg AppConfig) AppConfig {
	cfg.World = WorldFromEnv(cfg.World)
	cfg.Server = ServerFromEnv(cfg.Server)
	cfg.Log = LogFromEnv(cfg.Log)
	cfg.Debug = DebugFromEnv(cfg.Debug)
	cfg.EventLog = EventLogFromEnv(cfg.EventLog)
	return cfg
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
