// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/belayhq/belay/internal/booking"
	"github.com/belayhq/belay/internal/booking/policy"
	"github.com/belayhq/belay/internal/config"
	"github.com/belayhq/belay/internal/db"
	"github.com/belayhq/belay/internal/scheduler"
	"github.com/belayhq/belay/internal/sessions"
)

const shutdownTimeout = 30 * time.Second

func setupLogger(environment string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func loadConfig() (*config.Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Warn().Msg("CONFIG_PATH not set, using default configuration")
		return config.Default(), nil
	}
	return config.Load(configPath)
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg.App.Environment)

	database, err := db.NewFromConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer database.Close()

	policyProvider := policy.New(database.Queries, cfg.Booking.HorizonDays, cfg.Booking.CancellationWindowHours)
	if err := policyProvider.Refresh(context.Background()); err != nil {
		log.Warn().Err(err).Msg("Using configured booking policy; settings load failed")
	}

	bookingService := booking.NewService(database, policyProvider, booking.StoreGuardians{Queries: database.Queries})
	sessionManager := sessions.NewManager(database, policyProvider)

	if cfg.Features.EnableScheduler {
		if err := scheduler.Init(); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize scheduler")
		}
		if err := scheduler.RegisterPolicyRefreshJob(policyProvider); err != nil {
			log.Fatal().Err(err).Msg("Failed to register policy refresh job")
		}
		if err := scheduler.RegisterScheduleDigestJob(database); err != nil {
			log.Fatal().Err(err).Msg("Failed to register schedule digest job")
		}
		if err := scheduler.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start scheduler")
		}
	}

	server := newServer(cfg, database, bookingService, sessionManager, policyProvider)

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Run server
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("Starting server")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Wait for interrupt signal
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		log.Info().Msg("Shutting down server")
		if cfg.Features.EnableScheduler {
			if err := scheduler.Stop(); err != nil {
				log.Error().Err(err).Msg("Scheduler shutdown error")
			}
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server terminated with error")
		os.Exit(1)
	}
}
