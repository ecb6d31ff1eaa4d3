// Package main is the entry point for the stonks paper-trading service.
// It wires the quote client, market clock, ledger and snapshot store, then
// serves the trading API and runs the periodic queue-drain tick.
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

	"github.com/stonksbot/stonks/internal/clientdata"
	"github.com/stonksbot/stonks/internal/clients/fmp"
	"github.com/stonksbot/stonks/internal/config"
	"github.com/stonksbot/stonks/internal/database"
	"github.com/stonksbot/stonks/internal/events"
	"github.com/stonksbot/stonks/internal/modules/broker"
	"github.com/stonksbot/stonks/internal/modules/market_hours"
	"github.com/stonksbot/stonks/internal/modules/snapshots"
	"github.com/stonksbot/stonks/internal/scheduler"
	"github.com/stonksbot/stonks/internal/server"
	"github.com/stonksbot/stonks/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})

	log.Info().
		Bool("test_mode", cfg.TestMode).
		Int("api_keys", len(cfg.APIKeys)).
		Msg("Starting stonks")

	// Databases: the ledger snapshot wants durability, the quote cache wants
	// speed and can be rebuilt from the provider at any time.
	stateDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "state.db"),
		Profile: database.ProfileState,
		Name:    "state",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open state database")
	}
	defer stateDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	if err := clientdata.InitSchema(cacheDB.Conn()); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize cache schema")
	}
	cacheRepo := clientdata.NewRepository(cacheDB.Conn())

	// Quote provider with rotating credential pool.
	pool, err := fmp.NewCredentialPool(cfg.APIKeys)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build credential pool")
	}
	fmpClient := fmp.NewClient(pool, cacheRepo, log)

	marketSvc := market_hours.NewService(fmpClient, cfg.TestMode, log)

	// Ledger state: start from the last snapshot, or defaults on first boot.
	snapRepo := snapshots.NewRepository(stateDB.Conn(), cfg.StartingBalance, log)
	if err := snapRepo.InitSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize snapshot schema")
	}
	initial := snapRepo.Load()
	log.Info().
		Float64("balance", initial.Balance).
		Int("positions", len(initial.Positions)).
		Int("queued_orders", initial.Queue.Len()).
		Msg("Ledger state loaded")

	brokerSvc := broker.NewService(initial, fmpClient, marketSvc, snapRepo, log)

	bus := events.NewBus(log)

	// Periodic tick: drain the queue at market open, record a valuation.
	sched := scheduler.New(log)
	drainJob := scheduler.NewDrainJob(brokerSvc, bus, log)
	if err := sched.AddJob(cfg.DrainSchedule, drainJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register drain job")
	}
	sched.Start()

	// First tick right away rather than waiting out the schedule interval,
	// so a queue carried over from the last run drains promptly.
	if err := sched.RunNow(drainJob); err != nil {
		log.Warn().Err(err).Msg("Initial drain tick failed")
	}

	srv := server.New(server.Config{
		Log:         log,
		Config:      cfg,
		StateDB:     stateDB,
		CacheDB:     cacheDB,
		Broker:      brokerSvc,
		Quotes:      fmpClient,
		MarketHours: marketSvc,
		EventBus:    bus,
		Port:        cfg.Port,
	})

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Error().Err(err).Msg("HTTP server failed")
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}

	log.Info().Msg("Stonks stopped")
}
