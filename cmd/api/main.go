package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"grantpay/internal/adapter/repo"
	"grantpay/internal/domain"
	"grantpay/internal/http/handlers"
	"grantpay/internal/http/httpapi"
	"grantpay/internal/infra"
	"grantpay/internal/infra/credentials"
	"grantpay/internal/infra/geoip"
	"grantpay/internal/middleware"
	"grantpay/internal/payout"
	"grantpay/internal/providers/ledger"
)

func main() {
	// Load .env (optional)
	_ = godotenv.Load()

	// Config & logger
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()

	// Job store per STORE_DRIVER
	var store domain.JobStore
	var runner *infra.SQLRunner
	switch cfg.StoreDriver {
	case infra.StoreDriverPostgres:
		if err := repo.MigratePG(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("failed to run migrations")
		}
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer pool.Close()
		runner = infra.NewSQLRunner(pool, logger)
		store = repo.NewJobStorePG(pool)
	case infra.StoreDriverMongo:
		db, disconnect, err := infra.NewMongoDatabase(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect mongodb")
		}
		defer func() { _ = disconnect(context.Background()) }()
		mongoStore := repo.NewJobStoreMongo(db)
		if err := mongoStore.EnsureIndexes(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to ensure mongodb indexes")
		}
		store = mongoStore
	default:
		logger.Warn().Msg("using in-memory job store, jobs are lost on restart")
		store = repo.NewJobStoreMemory()
	}

	// Ledger client: real endpoint when configured, simulated otherwise
	var ledgerClient ledger.Client
	if cfg.LedgerBaseURL != "" {
		apiKey := strings.TrimSpace(cfg.LedgerAPIKey)
		if apiKey == "" && runner != nil {
			credStore := credentials.NewStore(runner)
			keyFromStore, err := credStore.LedgerAPIKey(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("failed to load ledger api key from store")
			} else {
				apiKey = keyFromStore
			}
		}
		client, err := ledger.NewHTTPClient(ledger.Options{
			BaseURL:    cfg.LedgerBaseURL,
			APIKey:     apiKey,
			HTTPClient: &http.Client{Timeout: cfg.LedgerTimeout},
			Logger:     &logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure ledger client")
		}
		ledgerClient = client
	} else {
		logger.Warn().Msg("ledger base url missing, using simulated disbursements")
		ledgerClient = ledger.NewSimulatedClient(&logger)
	}

	orchestrator := payout.NewOrchestrator(store, ledgerClient, logger, payout.Options{
		MaxRetries:        cfg.PayoutMaxRetries,
		BaseDelay:         cfg.PayoutBaseDelay,
		BackoffMultiplier: cfg.PayoutBackoffMultiplier,
	})

	sweeper, err := payout.NewSweeper(orchestrator, store, logger, payout.SweeperOptions{
		BatchSize: cfg.SweepBatchSize,
		Schedule:  cfg.SweepSchedule,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure sweeper")
	}

	// Country lookups for audit logs (optional)
	var countryLookup middleware.CountryLookup
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open geoip database")
	}
	if resolver != nil {
		countryLookup = resolver.CountryCode
	}

	// App container & router
	app := handlers.NewApp(store, orchestrator, sweeper, logger)
	router := httpapi.NewRouter(app, httpapi.Options{
		Config:        cfg,
		Logger:        logger,
		CountryLookup: countryLookup,
	})

	server := infra.NewHTTPServer(cfg, router)

	// Background sweep loop (optional)
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	if cfg.SweepEnabled {
		go func() {
			if err := sweeper.Run(sweepCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("sweep loop stopped with error")
			}
		}()
	}

	// Start async
	go func() {
		logger.Info().Msgf("API listening on %s", server.Addr())
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	stopSweep()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
