package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eshaffer321/propledger/internal/api"
	"github.com/eshaffer321/propledger/internal/infrastructure/config"
	"github.com/eshaffer321/propledger/internal/infrastructure/logging"
	"github.com/eshaffer321/propledger/internal/infrastructure/storage"
)

// RunServe runs the API server.
func RunServe(cfg *config.Config, flags *ServeFlags) error {
	// Set up logging
	loggingCfg := cfg.Observability.Logging
	if flags.Verbose {
		loggingCfg.Level = "debug"
	}
	logger := logging.NewLoggerWithSystem(loggingCfg, logging.SystemAPI)

	// Initialize storage
	store, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	services, err := NewServices(cfg, store, logger)
	if err != nil {
		return err
	}

	apiCfg := api.Config{
		Port:           cfg.API.Port,
		AllowedOrigins: cfg.API.AllowedOrigins,
		RateLimitRPS:   cfg.API.RateLimitRPS,
		RateLimitBurst: cfg.API.RateLimitBurst,
	}
	if flags.Port != 0 {
		apiCfg.Port = flags.Port
	}
	if len(apiCfg.AllowedOrigins) == 0 {
		apiCfg.AllowedOrigins = api.DefaultConfig().AllowedOrigins
	}

	// Create and start server
	server := api.NewServer(apiCfg, services, logger)

	// Handle graceful shutdown
	done := make(chan bool, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info("received shutdown signal")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("server shutdown error", slog.Any("error", err))
		}
		close(done)
	}()

	// Start server (blocks until shutdown)
	if err := server.Start(); err != nil {
		return err
	}

	<-done
	logger.Info("server stopped")
	return nil
}
