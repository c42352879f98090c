package payout

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"

	"grantpay/internal/domain"
	"grantpay/internal/infra"
)

// ErrSweepActive is returned when a sweep is requested while another one is
// still running in this process.
var ErrSweepActive = errors.New("sweep already in progress")

const (
	DefaultSweepBatchSize = 10
	DefaultSweepSchedule  = "@every 30s"
)

// scheduleParser accepts standard 5-field cron expressions plus descriptors
// like "@every 30s".
var scheduleParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// SweeperOptions tunes the sweep loop. Zero values fall back to the package
// defaults.
type SweeperOptions struct {
	BatchSize int
	Schedule  string
}

// Sweeper periodically drains PENDING payout jobs through the orchestrator,
// one bounded batch per tick. A single sweep runs at a time per process;
// concurrent triggers skip instead of stacking.
type Sweeper struct {
	orchestrator *Orchestrator
	store        domain.JobStore
	logger       infra.Logger
	batchSize    int
	schedule     cron.Schedule
	running      *semaphore.Weighted
}

// NewSweeper builds a sweeper over the orchestrator and store. It fails when
// the schedule expression does not parse.
func NewSweeper(orchestrator *Orchestrator, store domain.JobStore, logger infra.Logger, opts SweeperOptions) (*Sweeper, error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultSweepBatchSize
	}
	spec := opts.Schedule
	if spec == "" {
		spec = DefaultSweepSchedule
	}
	schedule, err := scheduleParser.Parse(spec)
	if err != nil {
		return nil, err
	}
	return &Sweeper{
		orchestrator: orchestrator,
		store:        store,
		logger:       logger,
		batchSize:    batchSize,
		schedule:     schedule,
		running:      semaphore.NewWeighted(1),
	}, nil
}

// ProcessPendingPayouts runs one sweep: it fetches up to BatchSize PENDING
// jobs, oldest first, and processes them sequentially. It returns how many
// jobs reached a terminal state, and ErrSweepActive when another sweep holds
// the slot.
func (s *Sweeper) ProcessPendingPayouts(ctx context.Context) (int, error) {
	if !s.running.TryAcquire(1) {
		return 0, ErrSweepActive
	}
	defer s.running.Release(1)

	jobs, err := s.store.ListByStatus(ctx, domain.JobStatusPending, s.batchSize)
	if err != nil {
		return 0, err
	}
	if len(jobs) == 0 {
		s.logger.Debug().Msg("sweep: no pending jobs")
		return 0, nil
	}

	s.logger.Info().Int("batch", len(jobs)).Msg("sweep: started")

	processed := 0
	for _, job := range jobs {
		done, err := s.orchestrator.ProcessJob(ctx, job.ID)
		if err != nil {
			if ctx.Err() != nil {
				return processed, ctx.Err()
			}
			s.logger.Error().
				Err(err).
				Str("job_id", job.ID).
				Msg("sweep: job processing errored, continuing")
			continue
		}
		if done.Status.Terminal() {
			processed++
		}
	}

	s.logger.Info().Int("processed", processed).Msg("sweep: finished")

	return processed, nil
}

// Run sweeps on the configured schedule until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info().Int("batch_size", s.batchSize).Msg("sweep: scheduler started")

	for {
		next := s.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info().Msg("sweep: scheduler stopped")
			return ctx.Err()
		case <-timer.C:
		}

		if _, err := s.ProcessPendingPayouts(ctx); err != nil {
			if errors.Is(err, ErrSweepActive) {
				continue
			}
			if ctx.Err() != nil {
				s.logger.Info().Msg("sweep: scheduler stopped")
				return ctx.Err()
			}
			s.logger.Error().Err(err).Msg("sweep: pass failed")
		}
	}
}
