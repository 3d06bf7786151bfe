// Package main is the entry point for the stratrand randomization service.
// It assigns experimental treatments to newly enrolled subjects so that each
// stratum reproduces, in expectation, the treatment mix observed in the
// historical allocation table.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/clinops/stratrand/internal/clients/redcap"
	"github.com/clinops/stratrand/internal/config"
	"github.com/clinops/stratrand/internal/database"
	"github.com/clinops/stratrand/internal/modules/allocation"
	"github.com/clinops/stratrand/internal/modules/randomization"
	"github.com/clinops/stratrand/internal/modules/runs"
	"github.com/clinops/stratrand/internal/scheduler"
	"github.com/clinops/stratrand/internal/server"
	"github.com/clinops/stratrand/internal/services"
	"github.com/clinops/stratrand/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting stratrand")

	// Run-audit database
	runsDB, err := database.New(database.Config{
		Path: filepath.Join(cfg.DataDir, "runs.db"),
		Name: "runs",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open runs database")
	}
	defer runsDB.Close()

	if err := runsDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate runs database")
	}

	// Wire dependencies
	runsRepo := runs.NewRepository(runsDB.Conn(), log)
	redcapClient := redcap.NewClient(cfg.RedcapEndpoint, cfg.RedcapAPIToken, log)
	loader := allocation.NewLoader(log)
	randomizer := randomization.NewSeeded(cfg.RandomSeed, log)

	service := services.NewRandomizationService(redcapClient, loader, randomizer, runsRepo, cfg, log)

	// Optional scheduled runs
	var sched *scheduler.Scheduler
	if cfg.RandomizeCron != "" {
		sched = scheduler.New(log)
		if err := sched.AddJob(cfg.RandomizeCron, scheduler.NewRandomizeJob(service, log)); err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.RandomizeCron).Msg("Failed to register randomize job")
		}
		sched.Start()
	}

	srv := server.New(server.Config{
		Port:     cfg.Port,
		Log:      log,
		RunsDB:   runsDB,
		RunsRepo: runsRepo,
		Service:  service,
		DevMode:  cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	if sched != nil {
		sched.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
