// arena-server runs the authoritative egg arena game server.
//
// Usage:
//
//	arena-server                 - Start the server
//	arena-server config          - Print the effective configuration as YAML
//
// Global flags:
//
//	--config <path>     - YAML config file (defaults, then file, then env)
//	--env-file <path>   - .env file loaded before reading config (default: .env)
//	--port <n>          - Override the listen port
//	--log-level <lvl>   - Override the log level
//	--seed <value>      - Set RNG seed for reproducible worlds
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"egg-arena/internal/api"
	"egg-arena/internal/config"
	"egg-arena/internal/game"
	"egg-arena/internal/logging"
)

var (
	flagConfig   string
	flagEnvFile  string
	flagPort     int
	flagLogLevel string
	flagSeed     int64
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "arena-server",
	Short: "Authoritative multiplayer egg arena server",
	Long: `arena-server hosts a shared arena where players grow by collecting
nutrients, absorb smaller players on contact and score at the central egg.

Clients connect over WebSocket at /ws. Read-only state is served under /api.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return run(cfg)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return config.Dump(cfg, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", ".env", "Path to .env file")
	rootCmd.PersistentFlags().IntVar(&flagPort, "port", 0, "Listen port (overrides config and PORT)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Int64Var(&flagSeed, "seed", 0, "RNG seed (0 = random based on time)")

	rootCmd.AddCommand(configCmd)
}

// loadConfig applies, in order: defaults, config file, .env + environment,
// then explicit flags.
func loadConfig(cmd *cobra.Command) (config.AppConfig, error) {
	if err := godotenv.Load(flagEnvFile); err != nil {
		// A missing default .env is normal; a missing explicit one is not.
		if !errors.Is(err, fs.ErrNotExist) || cmd.Flags().Changed("env-file") {
			return config.AppConfig{}, fmt.Errorf("load env file %s: %w", flagEnvFile, err)
		}
	}

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Server.Port = flagPort
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = flagLogLevel
	}
	if flags.Changed("seed") {
		cfg.World.Seed = flagSeed
	}
	return cfg, nil
}

func run(cfg config.AppConfig) error {
	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logging.Sync(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := game.OpenEventLog(cfg.EventLog, log)
	defer events.Stop()
	if events != nil {
		log.Info("event log enabled", zap.String("path", cfg.EventLog.Path))
	}

	debugSrv := api.StartDebugServer(cfg.Debug, log)

	hub := api.NewHub(cfg.Server, log)
	engine := game.NewEngine(cfg.World, game.Options{
		Broadcaster: hub,
		Logger:      log,
		EventLog:    events,
	})
	// The engine outlives the signal context so leaves queued during
	// shutdown are still applied; Stop drains them.
	engine.Start(context.Background())

	srv := api.NewServer(engine, hub, cfg, log)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	log.Info("arena ready",
		zap.Int("port", cfg.Server.Port),
		zap.Float64("width", cfg.World.ArenaWidth),
		zap.Float64("height", cfg.World.ArenaHeight),
		zap.Duration("tick", cfg.World.TickInterval))

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case serveErr = <-errCh:
		if serveErr != nil {
			log.Error("server failed", zap.Error(serveErr))
		}
	}

	// Close connections first; Stop then drains the leaves they queued.
	if err := srv.Shutdown(context.Background()); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	engine.Stop()
	if debugSrv != nil {
		_ = debugSrv.Close()
	}
	return serveErr
}
