package domain

import "context"

// JobStore defines persistence for payout jobs. Implementations must be safe
// for concurrent use.
type JobStore interface {
	// Create persists a new job in PENDING state, assigning its ID and
	// timestamps.
	Create(ctx context.Context, kind JobKind, payload PayoutPayload) (*Job, error)

	// Get fetches a job by ID. Returns ErrNotFound when absent.
	Get(ctx context.Context, id string) (*Job, error)

	// Claim atomically moves the job to PROCESSING if and only if its current
	// status is PENDING or FAILED. The status check and the update are a single
	// store operation so concurrent claimers resolve to exactly one winner.
	// When the job cannot be claimed, the current job is returned with
	// claimed=false. Returns ErrNotFound when absent.
	Claim(ctx context.Context, id string) (job *Job, claimed bool, err error)

	// Save overwrites the job's mutable fields (status and result) and bumps
	// UpdatedAt. Returns ErrNotFound when absent.
	Save(ctx context.Context, job *Job) (*Job, error)

	// ListByStatus returns up to limit jobs in the given status, oldest first.
	ListByStatus(ctx context.Context, status JobStatus, limit int) ([]*Job, error)

	// ListByEvent returns all jobs for an event reference, newest first.
	ListByEvent(ctx context.Context, eventRef string) ([]*Job, error)

	// FindByReference returns the job whose result carries the given ledger
	// reference. Returns ErrNotFound when none matches.
	FindByReference(ctx context.Context, reference string) (*Job, error)
}
