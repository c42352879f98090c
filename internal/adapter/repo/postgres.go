package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"grantpay/internal/domain"
)

// JobStorePG implements domain.JobStore backed by PostgreSQL. The payout
// payload and result are stored as JSONB so amounts survive as exact decimal
// strings.
type JobStorePG struct {
	pool *pgxpool.Pool
}

// NewJobStorePG creates a job store backed by the given connection pool.
func NewJobStorePG(pool *pgxpool.Pool) *JobStorePG {
	return &JobStorePG{pool: pool}
}

const jobColumns = `id, kind, status, payload, result, created_at, updated_at`

// Create inserts a new pending job.
func (s *JobStorePG) Create(ctx context.Context, kind domain.JobKind, payload domain.PayoutPayload) (*domain.Job, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payout payload: %w", err)
	}

	now := time.Now().UTC()
	job := &domain.Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    domain.JobStatusPending,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}

	query := `
INSERT INTO payout_jobs (id, kind, status, payload, result, created_at, updated_at)
VALUES ($1, $2, $3, $4, NULL, $5, $6);
`
	if _, err := s.pool.Exec(ctx, query, job.ID, job.Kind, job.Status, payloadJSON, job.CreatedAt, job.UpdatedAt); err != nil {
		return nil, fmt.Errorf("create payout job: %w", err)
	}
	return job, nil
}

// Get fetches a job by its identifier.
func (s *JobStorePG) Get(ctx context.Context, id string) (*domain.Job, error) {
	query := `
SELECT ` + jobColumns + `
FROM payout_jobs
WHERE id = $1;
`
	job, err := scanJob(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get payout job: %w", err)
	}
	return job, nil
}

// Claim moves a PENDING or FAILED job to PROCESSING in a single conditional
// update. The predicate and the write execute as one statement, so two
// concurrent claimers observe exactly one winner.
func (s *JobStorePG) Claim(ctx context.Context, id string) (*domain.Job, bool, error) {
	query := `
UPDATE payout_jobs
SET status = $2, updated_at = NOW()
WHERE id = $1 AND status IN ($3, $4)
RETURNING ` + jobColumns + `;
`
	job, err := scanJob(s.pool.QueryRow(ctx, query, id, domain.JobStatusProcessing, domain.JobStatusPending, domain.JobStatusFailed))
	if err == nil {
		return job, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("claim payout job: %w", err)
	}

	// No claimable row: either the job does not exist or its status forbids
	// claiming. Distinguish by reading the current record.
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

// Save overwrites the job's status and result.
func (s *JobStorePG) Save(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	resultJSON, err := marshalResult(job.Result)
	if err != nil {
		return nil, err
	}

	query := `
UPDATE payout_jobs
SET status = $2, result = $3, updated_at = NOW()
WHERE id = $1
RETURNING ` + jobColumns + `;
`
	saved, err := scanJob(s.pool.QueryRow(ctx, query, job.ID, job.Status, resultJSON))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("save payout job: %w", err)
	}
	return saved, nil
}

// ListByStatus returns up to limit jobs in the given status, oldest first.
// A limit of zero or less means no cap, matching the other stores.
func (s *JobStorePG) ListByStatus(ctx context.Context, status domain.JobStatus, limit int) ([]*domain.Job, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	query := `
SELECT ` + jobColumns + `
FROM payout_jobs
WHERE status = $1
ORDER BY created_at ASC
LIMIT $2;
`
	rows, err := s.pool.Query(ctx, query, status, lim)
	if err != nil {
		return nil, fmt.Errorf("list payout jobs by status: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// ListByEvent returns all jobs for an event reference, newest first.
func (s *JobStorePG) ListByEvent(ctx context.Context, eventRef string) ([]*domain.Job, error) {
	query := `
SELECT ` + jobColumns + `
FROM payout_jobs
WHERE payload->>'event_ref' = $1
ORDER BY created_at DESC;
`
	rows, err := s.pool.Query(ctx, query, eventRef)
	if err != nil {
		return nil, fmt.Errorf("list payout jobs by event: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// FindByReference returns the job whose result carries the given ledger reference.
func (s *JobStorePG) FindByReference(ctx context.Context, reference string) (*domain.Job, error) {
	query := `
SELECT ` + jobColumns + `
FROM payout_jobs
WHERE result->>'reference' = $1
LIMIT 1;
`
	job, err := scanJob(s.pool.QueryRow(ctx, query, reference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find payout job by reference: %w", err)
	}
	return job, nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job         domain.Job
		payloadJSON []byte
		resultJSON  []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.Kind,
		&job.Status,
		&payloadJSON,
		&resultJSON,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payloadJSON, &job.Payload); err != nil {
		return nil, fmt.Errorf("decode payout payload: %w", err)
	}
	if len(resultJSON) > 0 {
		var result domain.JobResult
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return nil, fmt.Errorf("decode payout result: %w", err)
		}
		job.Result = &result
	}
	return &job, nil
}

func collectJobs(rows pgx.Rows) ([]*domain.Job, error) {
	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payout jobs: %w", err)
	}
	return jobs, nil
}

func marshalResult(result *domain.JobResult) ([]byte, error) {
	if result == nil {
		return nil, nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode payout result: %w", err)
	}
	return data, nil
}
