package payout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"grantpay/internal/domain"
	"grantpay/internal/infra"
	"grantpay/internal/providers/ledger"
)

// Retry policy defaults. With three retries a job sees at most four ledger
// attempts, waiting 5s, 10s and 20s between them.
const (
	DefaultMaxRetries        = 3
	DefaultBaseDelay         = 5 * time.Second
	DefaultBackoffMultiplier = 2
)

// CancelledByOperator is the terminal error message recorded when an operator
// cancels a job.
const CancelledByOperator = "cancelled by operator"

// SleepFunc waits for d or until ctx is done, whichever comes first. It is a
// seam so tests can observe backoff waits without real time passing.
type SleepFunc func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Options tunes the orchestrator's retry loop. Zero values fall back to the
// package defaults.
type Options struct {
	MaxRetries        int
	BaseDelay         time.Duration
	BackoffMultiplier int
	Sleep             SleepFunc
}

// Orchestrator drives payout jobs through their state machine: it claims a
// job, invokes the ledger with bounded retries and exponential backoff, and
// records the terminal result. All collaborators are injected.
type Orchestrator struct {
	store      domain.JobStore
	ledger     ledger.Client
	logger     infra.Logger
	maxRetries int
	backoff    Backoff
	sleep      SleepFunc
}

// NewOrchestrator constructs an orchestrator over the given store and ledger.
func NewOrchestrator(store domain.JobStore, ledgerClient ledger.Client, logger infra.Logger, opts Options) *Orchestrator {
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	if opts.MaxRetries == 0 {
		maxRetries = DefaultMaxRetries
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	multiplier := opts.BackoffMultiplier
	if multiplier < 1 {
		multiplier = DefaultBackoffMultiplier
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = defaultSleep
	}
	return &Orchestrator{
		store:      store,
		ledger:     ledgerClient,
		logger:     logger,
		maxRetries: maxRetries,
		backoff:    ExponentialBackoff{Base: baseDelay, Multiplier: multiplier},
		sleep:      sleep,
	}
}

// EnqueuePayout validates the request shape and persists a new PENDING job.
// It does not start processing; that is the trigger's (sweep, API, operator)
// decision.
func (o *Orchestrator) EnqueuePayout(ctx context.Context, eventRef string, winners []domain.Winner, initiatedBy string) (*domain.Job, error) {
	if strings.TrimSpace(eventRef) == "" {
		return nil, domain.ErrEmptyEventRef
	}
	if len(winners) == 0 {
		return nil, domain.ErrEmptyWinners
	}
	for i, w := range winners {
		if strings.TrimSpace(w.Address) == "" {
			return nil, fmt.Errorf("winner %d: %w", i, domain.ErrBadAddress)
		}
	}

	payload := domain.PayoutPayload{
		EventRef:    eventRef,
		Winners:     winners,
		InitiatedBy: initiatedBy,
	}
	job, err := o.store.Create(ctx, domain.JobKindPayout, payload)
	if err != nil {
		return nil, err
	}

	o.logger.Info().
		Str("job_id", job.ID).
		Str("event_ref", eventRef).
		Int("winners", len(winners)).
		Msg("payout: job enqueued")

	return job, nil
}

// ProcessJob drives one job to a terminal state. Re-entry on a COMPLETED or
// already PROCESSING job is a no-op returning the current record. Ledger
// failures are absorbed into the job result; store failures propagate.
func (o *Orchestrator) ProcessJob(ctx context.Context, id string) (*domain.Job, error) {
	job, claimed, err := o.store.Claim(ctx, id)
	if err != nil {
		return nil, err
	}
	if !claimed {
		o.logger.Debug().
			Str("job_id", id).
			Str("status", string(job.Status)).
			Msg("payout: job not claimable, skipping")
		return job, nil
	}

	// Retries from earlier cycles accumulate into the recorded count.
	carried := 0
	if job.Result != nil {
		carried = job.Result.RetryCount
	}

	o.logger.Info().
		Str("job_id", job.ID).
		Str("event_ref", job.Payload.EventRef).
		Msg("payout: processing started")

	payReq := payRequest(job)
	started := time.Now()
	attempt := 0
	for {
		if attempt > 0 {
			// Between attempts an operator may have cancelled the job. Respect
			// the cancellation instead of clobbering its terminal state.
			current, err := o.store.Get(ctx, job.ID)
			if err != nil {
				return nil, err
			}
			if current.Status != domain.JobStatusProcessing {
				o.logger.Info().
					Str("job_id", job.ID).
					Str("status", string(current.Status)).
					Msg("payout: processing aborted, job left the processing state")
				return current, nil
			}
		}

		result, payErr := o.ledger.Pay(ctx, payReq)
		if payErr == nil {
			return o.completeJob(ctx, job, result.Reference, started, carried+attempt)
		}

		attempt++
		o.logger.Warn().
			Err(payErr).
			Str("job_id", job.ID).
			Int("attempt", attempt).
			Msg("payout: ledger attempt failed")

		if attempt > o.maxRetries {
			return o.failJob(ctx, job, payErr.Error(), started, carried+o.maxRetries)
		}

		delay := o.backoff.Delay(attempt)
		if err := o.sleep(ctx, delay); err != nil {
			return job, fmt.Errorf("payout: backoff interrupted: %w", err)
		}
	}
}

// RetryFailedJob re-queues a FAILED job and immediately processes it. The new
// cycle's retry count continues from the recorded one.
func (o *Orchestrator) RetryFailedJob(ctx context.Context, id string) (*domain.Job, error) {
	job, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobStatusFailed {
		return nil, fmt.Errorf("retry job %s in status %s: %w", id, job.Status, domain.ErrInvalidState)
	}

	job.Status = domain.JobStatusPending
	if _, err := o.store.Save(ctx, job); err != nil {
		return nil, err
	}

	o.logger.Info().Str("job_id", id).Msg("payout: failed job re-queued by operator")

	return o.ProcessJob(ctx, id)
}

// RetryAllFailedJobsForEvent retries every FAILED job of an event and returns
// how many were re-driven to a terminal state. Individual failures are logged
// and skipped so one broken job does not block the rest.
func (o *Orchestrator) RetryAllFailedJobsForEvent(ctx context.Context, eventRef string) (int, error) {
	jobs, err := o.store.ListByEvent(ctx, eventRef)
	if err != nil {
		return 0, err
	}

	retried := 0
	for _, job := range jobs {
		if job.Status != domain.JobStatusFailed {
			continue
		}
		if _, err := o.RetryFailedJob(ctx, job.ID); err != nil {
			o.logger.Error().
				Err(err).
				Str("job_id", job.ID).
				Str("event_ref", eventRef).
				Msg("payout: bulk retry skipped job")
			continue
		}
		retried++
	}

	o.logger.Info().
		Str("event_ref", eventRef).
		Int("retried", retried).
		Msg("payout: bulk retry finished")

	return retried, nil
}

// CancelJob marks a PENDING or PROCESSING job as FAILED with a cancellation
// result. Cancellation is cooperative: an in-flight ledger attempt is never
// aborted, but the processing loop stops before its next attempt.
func (o *Orchestrator) CancelJob(ctx context.Context, id string) (*domain.Job, error) {
	job, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobStatusPending && job.Status != domain.JobStatusProcessing {
		return nil, fmt.Errorf("cancel job %s in status %s: %w", id, job.Status, domain.ErrInvalidState)
	}

	carried := 0
	if job.Result != nil {
		carried = job.Result.RetryCount
	}
	job.Status = domain.JobStatusFailed
	job.Result = &domain.JobResult{
		Error:      CancelledByOperator,
		RecordedAt: time.Now().UTC(),
		RetryCount: carried,
	}
	saved, err := o.store.Save(ctx, job)
	if err != nil {
		return nil, err
	}

	o.logger.Info().Str("job_id", id).Msg("payout: job cancelled by operator")

	return saved, nil
}

func (o *Orchestrator) completeJob(ctx context.Context, job *domain.Job, reference string, started time.Time, retries int) (*domain.Job, error) {
	job.Status = domain.JobStatusCompleted
	job.Result = &domain.JobResult{
		Reference:        reference,
		RecordedAt:       time.Now().UTC(),
		ProcessingTimeMs: time.Since(started).Milliseconds(),
		RetryCount:       retries,
	}
	saved, err := o.store.Save(ctx, job)
	if err != nil {
		return nil, err
	}

	o.logger.Info().
		Str("job_id", job.ID).
		Str("reference", reference).
		Int("retries", retries).
		Int64("processing_time_ms", saved.Result.ProcessingTimeMs).
		Msg("payout: job completed")

	return saved, nil
}

func (o *Orchestrator) failJob(ctx context.Context, job *domain.Job, message string, started time.Time, retries int) (*domain.Job, error) {
	job.Status = domain.JobStatusFailed
	job.Result = &domain.JobResult{
		Error:            message,
		RecordedAt:       time.Now().UTC(),
		ProcessingTimeMs: time.Since(started).Milliseconds(),
		RetryCount:       retries,
	}
	saved, err := o.store.Save(ctx, job)
	if err != nil {
		return nil, err
	}

	o.logger.Error().
		Str("job_id", job.ID).
		Str("error", message).
		Int("retries", retries).
		Msg("payout: job failed after exhausting retries")

	return saved, nil
}

func payRequest(job *domain.Job) ledger.PayRequest {
	items := make([]ledger.PayItem, len(job.Payload.Winners))
	for i, w := range job.Payload.Winners {
		items[i] = ledger.PayItem{Address: w.Address, Amount: w.Amount.String()}
	}
	return ledger.PayRequest{
		JobID:    job.ID,
		EventRef: job.Payload.EventRef,
		Items:    items,
	}
}

// IsLedgerFailure reports whether err is a payment rejection rather than an
// infrastructure problem.
func IsLedgerFailure(err error) bool {
	var failure *ledger.Failure
	return errors.As(err, &failure)
}
