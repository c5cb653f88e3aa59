package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/productlab/catalog-engine/internal/config"
	"github.com/productlab/catalog-engine/internal/logging"
	"github.com/productlab/catalog-engine/internal/store"
)

func main() {
	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|validate")
	flag.Parse()

	// validate needs neither config nor a database.
	if *cmd == "validate" {
		if err := store.ValidateMigrations(); err != nil {
			fmt.Fprintf(os.Stderr, "migration validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("migration validation passed")
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, logOut, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logOut.Close()
	slog.SetDefault(logger)

	if cfg.App.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required for migrations")
		os.Exit(1)
	}

	switch *cmd {
	case "up", "down", "status", "version":
	default:
		fmt.Fprintln(os.Stderr, "unknown -cmd value:", *cmd)
		os.Exit(1)
	}

	slog.Info("migrate ready", "cmd", *cmd)
	if err := store.Migrate(context.Background(), cfg.App.DatabaseURL, *cmd, flag.Args()...); err != nil {
		slog.Error("migration failed", "cmd", *cmd, logging.Err(err))
		os.Exit(1)
	}
}
