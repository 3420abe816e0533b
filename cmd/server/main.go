// Package main is the entry point for the listing-pipeline HTTP server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sellkit/listing-pipeline/internal/app"
	"github.com/sellkit/listing-pipeline/internal/cache"
	"github.com/sellkit/listing-pipeline/internal/config"
	"github.com/sellkit/listing-pipeline/internal/server"
	"github.com/sellkit/listing-pipeline/internal/storage"
)

func main() {
	// run is separate so deferred cleanup executes before os.Exit.
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := os.Getenv("LISTING_CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	var logger *zap.Logger
	if cfg.Log.Level == "debug" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	// Sync commonly fails on stdout/stderr; not a real problem.
	defer func() { _ = logger.Sync() }()

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DatabasePath), 0755); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}
	db, err := storage.NewDatabase(cfg.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	components, err := app.Build(context.Background(), cfg, cache.NewSQLiteStore(db), logger)
	if err != nil {
		return fmt.Errorf("building pipeline: %w", err)
	}

	deps := server.Deps{
		Processor:      components.Pipeline,
		VisionRegistry: components.VisionRegistry,
		PriceRegistry:  components.PriceRegistry,
		TextGenClients: components.TextGenClients,
		Monitor:        components.Monitor,
		CacheStore:     components.Store,
	}
	// A nil *Grouper must stay a nil interface so the handler's check works.
	if components.Grouper != nil {
		deps.Grouper = components.Grouper
	}

	srv := server.New(cfg, deps, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errChan:
		if err != nil {
			return err
		}
	}

	// Give in-flight requests 10 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(ctx)
}
