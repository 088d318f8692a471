// ABOUTME: Entry point for the courier bot engine
// ABOUTME: Loads config, wires the engine, and runs until interrupted

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"

	"github.com/candourhq/courier/internal/config"
	"github.com/candourhq/courier/internal/engine"
)

// version is set at build time.
var version = "dev"

const banner = `
                      _
  ___ ___  _   _ _ __(_) ___ _ __
 / __/ _ \| | | | '__| |/ _ \ '__|
| (_| (_) | |_| | |  | |  __/ |
 \___\___/ \__,_|_|  |_|\___|_|
`

// getConfigPath returns the path to the courier config file.
// Priority: COURIER_CONFIG env var > XDG_CONFIG_HOME/courier/courier.yaml >
// ~/.config/courier/courier.yaml
func getConfigPath() string {
	if envPath := os.Getenv("COURIER_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "courier.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "courier", "courier.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: courier <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  run      Start the event engine")
		fmt.Println("  init     Create a starter config file")
		fmt.Println("  version  Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "run":
		err = runEngine(ctx)
	case "init":
		err = runInit()
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runEngine(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config: %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Mode:   %s\n", cfg.API.Mode)
	if cfg.API.Mode == config.ModeWebhook {
		green.Print("    ▶ ")
		fmt.Printf("Listen: %s\n", cfg.Webhook.Addr)
	}
	fmt.Println()

	logger.Info("starting courier",
		"config", configPath,
		"mode", cfg.API.Mode,
	)

	eng, err := engine.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	return eng.Run(ctx)
}

const starterConfig = `api:
  base_url: "https://api.telegram.org"
  token: "${COURIER_BOT_TOKEN}"
  mode: "polling"

polling:
  timeout: "50s"
  backoff_base: "1s"
  backoff_cap: "30s"

dispatch:
  workers: 4
  shutdown_grace: "5s"

conversation:
  default_timeout: "10m"
  idle_eviction: "30m"
  # flow_file: "flow.toml"

database:
  path: "courier.db"

logging:
  level: "info"
  format: "text"
`

// runInit writes a starter config file, refusing to overwrite an existing
// one.
func runInit() error {
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists at %s", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(starterConfig), 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("✓ ")
	fmt.Printf("Wrote starter config to %s\n", configPath)
	fmt.Println("Set COURIER_BOT_TOKEN and run: courier run")
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
