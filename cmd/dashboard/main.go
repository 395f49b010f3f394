package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blockedby/chanscope/internal/config"
	"github.com/blockedby/chanscope/internal/database"
	"github.com/blockedby/chanscope/internal/logger"
	"github.com/blockedby/chanscope/internal/repository"
	"github.com/blockedby/chanscope/internal/web"
	"github.com/blockedby/chanscope/internal/web/handlers"
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// 2. Initialize logger
	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	log := logger.Get()
	log.Info().Msg("starting dashboard")

	// 3. Setup context with graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("received shutdown signal")
		cancel()
	}()

	// 4. Connect to database
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	// 5. Initialize handlers
	channelsHandler := handlers.NewChannelsHandler(
		repository.NewChannelsRepository(db.GORM),
		repository.NewSnapshotsRepository(db.GORM),
		repository.NewPassportsRepository(db.GORM),
		log.With("web"),
	)

	// 6. Initialize server
	server := web.NewServer(&web.Config{
		Port:      cfg.HTTPPort,
		StaticDir: cfg.StaticDir,
		MediaDir:  cfg.MediaDir,
	})
	server.RegisterChannelsHandler(channelsHandler)
	server.SetupSPAFallback()

	log.Info().Int("port", cfg.HTTPPort).Msg("starting web server")
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// 7. Wait for shutdown
	<-ctx.Done()
	log.Info().Msg("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}

	log.Info().Msg("shutdown complete")
}
