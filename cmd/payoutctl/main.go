package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"grantpay/internal/adapter/repo"
	"grantpay/internal/domain"
	"grantpay/internal/infra"
	"grantpay/internal/payout"
	"grantpay/internal/providers/ledger"
)

func main() {
	var (
		enqueueFlag    bool
		eventFlag      string
		winnersFlag    string
		operatorFlag   string
		getFlag        string
		processFlag    string
		retryFlag      string
		cancelFlag     string
		retryEventFlag string
		sweepFlag      bool
		metricsFlag    string
		byRefFlag      string
	)

	flag.BoolVar(&enqueueFlag, "enqueue", false, "enqueue a payout job (requires -event, -winners and -operator)")
	flag.StringVar(&eventFlag, "event", "", "event reference for -enqueue")
	flag.StringVar(&winnersFlag, "winners", "", "comma-separated address=amount pairs for -enqueue")
	flag.StringVar(&operatorFlag, "operator", "", "operator recorded as the initiator for -enqueue")
	flag.StringVar(&getFlag, "get", "", "job ID to print")
	flag.StringVar(&processFlag, "process", "", "job ID to process now")
	flag.StringVar(&retryFlag, "retry", "", "failed job ID to retry")
	flag.StringVar(&cancelFlag, "cancel", "", "job ID to cancel")
	flag.StringVar(&retryEventFlag, "retry-event", "", "event reference whose failed jobs should all be retried")
	flag.BoolVar(&sweepFlag, "sweep", false, "process one batch of pending jobs")
	flag.StringVar(&metricsFlag, "metrics", "", "event reference to print payout metrics for")
	flag.StringVar(&byRefFlag, "by-ref", "", "ledger reference to find the producing job for")
	flag.Parse()

	getID := strings.TrimSpace(getFlag)
	processID := strings.TrimSpace(processFlag)
	retryID := strings.TrimSpace(retryFlag)
	cancelID := strings.TrimSpace(cancelFlag)
	retryEvent := strings.TrimSpace(retryEventFlag)
	metricsEvent := strings.TrimSpace(metricsFlag)
	byRef := strings.TrimSpace(byRefFlag)

	modes := 0
	if enqueueFlag {
		modes++
	}
	if sweepFlag {
		modes++
	}
	for _, v := range []string{getID, processID, retryID, cancelID, retryEvent, metricsEvent, byRef} {
		if v != "" {
			modes++
		}
	}
	if modes != 1 {
		exitWithError(errors.New("exactly one of -enqueue, -get, -process, -retry, -cancel, -retry-event, -sweep, -metrics or -by-ref must be provided"))
	}

	logger := infra.NewLogger("cli").With().Str("cmd", "payoutctl").Logger()

	connectCtx, cancelConnect := context.WithTimeout(context.Background(), 10*time.Second)
	store, closeStore, err := openStore(connectCtx)
	cancelConnect()
	if err != nil {
		exitWithError(err)
	}
	defer closeStore()

	paying := processID != "" || retryID != "" || retryEvent != "" || sweepFlag

	var ledgerClient ledger.Client
	if baseURL := strings.TrimSpace(os.Getenv("LEDGER_BASE_URL")); baseURL != "" {
		client, err := ledger.NewHTTPClient(ledger.Options{
			BaseURL:    baseURL,
			APIKey:     strings.TrimSpace(os.Getenv("LEDGER_API_KEY")),
			HTTPClient: &http.Client{Timeout: 30 * time.Second},
			Logger:     &logger,
		})
		if err != nil {
			exitWithError(err)
		}
		ledgerClient = client
	} else {
		if paying {
			logger.Warn().Msg("payoutctl: ledger base url missing, using simulated disbursements")
		}
		ledgerClient = ledger.NewSimulatedClient(&logger)
	}

	orchestrator := payout.NewOrchestrator(store, ledgerClient, logger, payout.Options{})

	// Paying modes may sit through the full backoff schedule.
	opTimeout := 10 * time.Second
	if paying {
		opTimeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	switch {
	case enqueueFlag:
		event := strings.TrimSpace(eventFlag)
		if event == "" {
			exitWithError(errors.New("-event is required with -enqueue"))
		}
		operator := strings.TrimSpace(operatorFlag)
		if operator == "" {
			exitWithError(errors.New("-operator is required with -enqueue"))
		}
		winners, err := parseWinners(winnersFlag)
		if err != nil {
			exitWithError(err)
		}
		job, err := orchestrator.EnqueuePayout(ctx, event, winners, operator)
		if err != nil {
			exitWithError(err)
		}
		printJob(job)
	case getID != "":
		job, err := store.Get(ctx, getID)
		if err != nil {
			exitWithError(err)
		}
		printJob(job)
	case byRef != "":
		job, err := store.FindByReference(ctx, byRef)
		if err != nil {
			exitWithError(err)
		}
		printJob(job)
	case processID != "":
		job, err := orchestrator.ProcessJob(ctx, processID)
		if err != nil {
			exitWithError(err)
		}
		printJob(job)
	case retryID != "":
		job, err := orchestrator.RetryFailedJob(ctx, retryID)
		if err != nil {
			exitWithError(err)
		}
		printJob(job)
	case cancelID != "":
		job, err := orchestrator.CancelJob(ctx, cancelID)
		if err != nil {
			exitWithError(err)
		}
		printJob(job)
	case retryEvent != "":
		count, err := orchestrator.RetryAllFailedJobsForEvent(ctx, retryEvent)
		if err != nil {
			exitWithError(err)
		}
		fmt.Printf("Retried %d failed jobs for event %s\n", count, retryEvent)
	case sweepFlag:
		sweeper, err := payout.NewSweeper(orchestrator, store, logger, payout.SweeperOptions{})
		if err != nil {
			exitWithError(err)
		}
		processed, err := sweeper.ProcessPendingPayouts(ctx)
		if err != nil {
			exitWithError(err)
		}
		fmt.Printf("Swept %d jobs to a terminal state\n", processed)
	case metricsEvent != "":
		m, err := orchestrator.PayoutMetrics(ctx, metricsEvent)
		if err != nil {
			exitWithError(err)
		}
		fmt.Printf("Payout metrics for event %s\n", metricsEvent)
		fmt.Printf("total_jobs=%d\n", m.TotalJobs)
		fmt.Printf("completed_jobs=%d\n", m.CompletedJobs)
		fmt.Printf("failed_jobs=%d\n", m.FailedJobs)
		fmt.Printf("average_processing_time_ms=%d\n", m.AverageProcessingTimeMs)
		fmt.Printf("total_amount=%s\n", m.TotalAmount.String())
	}
}

func openStore(ctx context.Context) (domain.JobStore, func(), error) {
	driver := strings.TrimSpace(strings.ToLower(os.Getenv("STORE_DRIVER")))
	if driver == "" {
		driver = infra.StoreDriverPostgres
	}

	switch driver {
	case infra.StoreDriverPostgres:
		dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
		if dbURL == "" {
			return nil, nil, errors.New("DATABASE_URL is required")
		}
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect database: %w", err)
		}
		return repo.NewJobStorePG(pool), pool.Close, nil
	case infra.StoreDriverMongo:
		mongoURI := strings.TrimSpace(os.Getenv("MONGO_URI"))
		if mongoURI == "" {
			return nil, nil, errors.New("MONGO_URI is required")
		}
		mongoDatabase := strings.TrimSpace(os.Getenv("MONGO_DATABASE"))
		if mongoDatabase == "" {
			mongoDatabase = "grantpay"
		}
		db, disconnect, err := infra.NewMongoDatabase(ctx, &infra.Config{MongoURI: mongoURI, MongoDatabase: mongoDatabase})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect mongodb: %w", err)
		}
		return repo.NewJobStoreMongo(db), func() { _ = disconnect(context.Background()) }, nil
	case infra.StoreDriverMemory:
		return nil, nil, errors.New("STORE_DRIVER=memory is not usable here, jobs would not outlive the process")
	default:
		return nil, nil, fmt.Errorf("unsupported STORE_DRIVER %q", driver)
	}
}

func parseWinners(raw string) ([]domain.Winner, error) {
	parts := strings.Split(raw, ",")
	winners := make([]domain.Winner, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		address, amountText, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("winner %q must be address=amount", part)
		}
		amount, err := domain.ParseAmount(strings.TrimSpace(amountText))
		if err != nil {
			return nil, fmt.Errorf("winner %q: %w", part, err)
		}
		winners = append(winners, domain.Winner{Address: strings.TrimSpace(address), Amount: amount})
	}
	if len(winners) == 0 {
		return nil, errors.New("-winners must list at least one address=amount pair")
	}
	return winners, nil
}

func printJob(job *domain.Job) {
	fmt.Printf("Job %s is %s (event %s, %d winners)\n", job.ID, job.Status, job.Payload.EventRef, len(job.Payload.Winners))
	if job.Result == nil {
		return
	}
	if job.Result.Reference != "" {
		fmt.Printf("reference=%s\n", job.Result.Reference)
	}
	if job.Result.Error != "" {
		fmt.Printf("error=%s\n", job.Result.Error)
	}
	fmt.Printf("retry_count=%d\n", job.Result.RetryCount)
	fmt.Printf("processing_time_ms=%d\n", job.Result.ProcessingTimeMs)
	fmt.Printf("recorded_at=%s\n", job.Result.RecordedAt.UTC().Format(time.RFC3339))
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
