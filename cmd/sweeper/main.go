package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"grantpay/internal/adapter/repo"
	"grantpay/internal/domain"
	"grantpay/internal/infra"
	"grantpay/internal/infra/credentials"
	"grantpay/internal/payout"
	"grantpay/internal/providers/ledger"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store domain.JobStore
	var runner *infra.SQLRunner
	switch cfg.StoreDriver {
	case infra.StoreDriverPostgres:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("sweeper: db connection failed")
		}
		defer pool.Close()
		runner = infra.NewSQLRunner(pool, logger)
		store = repo.NewJobStorePG(pool)
	case infra.StoreDriverMongo:
		db, disconnect, err := infra.NewMongoDatabase(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("sweeper: mongodb connection failed")
		}
		defer func() { _ = disconnect(context.Background()) }()
		store = repo.NewJobStoreMongo(db)
	default:
		logger.Warn().Msg("sweeper: in-memory job store holds no jobs from other processes")
		store = repo.NewJobStoreMemory()
	}

	var ledgerClient ledger.Client
	if cfg.LedgerBaseURL != "" {
		apiKey := strings.TrimSpace(cfg.LedgerAPIKey)
		if apiKey == "" && runner != nil {
			credStore := credentials.NewStore(runner)
			keyFromStore, err := credStore.LedgerAPIKey(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("sweeper: failed to load ledger api key from store")
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
			logger.Fatal().Err(err).Msg("sweeper: failed to configure ledger client")
		}
		ledgerClient = client
	} else {
		logger.Warn().Msg("sweeper: ledger base url missing, using simulated disbursements")
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
		logger.Fatal().Err(err).Msg("sweeper: invalid sweep configuration")
	}

	if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("sweeper: stopped with error")
	}
	logger.Info().Msg("sweeper: stopped")
}
