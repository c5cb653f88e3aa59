package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/productlab/catalog-engine/internal/config"
	"github.com/productlab/catalog-engine/internal/importer"
	"github.com/productlab/catalog-engine/internal/logging"
	"github.com/productlab/catalog-engine/internal/store"
)

func main() {
	file := flag.String("file", "", "CSV or XLSX file of products to import")
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "missing -file")
		os.Exit(2)
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

	if err := run(*file, cfg.App.DatabaseURL); err != nil {
		slog.Error("import failed", "file", *file, logging.Err(err))
		os.Exit(1)
	}
}

func run(path, dsn string) error {
	if dsn == "" {
		return errors.New("DATABASE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("database connection: %w", err)
	}
	defer pool.Close()

	n, err := importer.Load(ctx, store.NewPostgresStore(pool), f, path)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d products\n", n)
	return nil
}
