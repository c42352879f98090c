package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"grantpay/internal/domain"
)

// JobStoreMemory is an in-memory implementation of domain.JobStore. Safe for
// concurrent use. Intended for tests and local development.
type JobStoreMemory struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
	seq  map[string]uint64
	next uint64
}

// NewJobStoreMemory returns an empty in-memory job store.
func NewJobStoreMemory() *JobStoreMemory {
	return &JobStoreMemory{
		jobs: make(map[string]*domain.Job),
		seq:  make(map[string]uint64),
	}
}

// Create inserts a new pending job.
func (s *JobStoreMemory) Create(_ context.Context, kind domain.JobKind, payload domain.PayoutPayload) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	job := &domain.Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    domain.JobStatusPending,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.next++
	s.seq[job.ID] = s.next
	s.jobs[job.ID] = cloneJob(job)
	return job, nil
}

// Get fetches a job by its identifier.
func (s *JobStoreMemory) Get(_ context.Context, id string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneJob(job), nil
}

// Claim moves a PENDING or FAILED job to PROCESSING. The check and the write
// happen under one lock acquisition, so concurrent claimers observe exactly
// one winner.
func (s *JobStoreMemory) Claim(_ context.Context, id string) (*domain.Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, false, domain.ErrNotFound
	}
	if job.Status != domain.JobStatusPending && job.Status != domain.JobStatusFailed {
		return cloneJob(job), false, nil
	}
	job.Status = domain.JobStatusProcessing
	job.UpdatedAt = time.Now().UTC()
	return cloneJob(job), true, nil
}

// Save overwrites the job's status and result.
func (s *JobStoreMemory) Save(_ context.Context, job *domain.Job) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.jobs[job.ID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	stored.Status = job.Status
	if job.Result != nil {
		r := *job.Result
		stored.Result = &r
	} else {
		stored.Result = nil
	}
	stored.UpdatedAt = time.Now().UTC()
	return cloneJob(stored), nil
}

// ListByStatus returns up to limit jobs in the given status, oldest first.
func (s *JobStoreMemory) ListByStatus(_ context.Context, status domain.JobStatus, limit int) ([]*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*domain.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if job.Status == status {
			matched = append(matched, job)
		}
	}
	s.sortByCreation(matched, false)

	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return cloneJobs(matched), nil
}

// ListByEvent returns all jobs for an event reference, newest first.
func (s *JobStoreMemory) ListByEvent(_ context.Context, eventRef string) ([]*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*domain.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if job.Payload.EventRef == eventRef {
			matched = append(matched, job)
		}
	}
	s.sortByCreation(matched, true)
	return cloneJobs(matched), nil
}

// FindByReference returns the job whose result carries the given ledger reference.
func (s *JobStoreMemory) FindByReference(_ context.Context, reference string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, job := range s.jobs {
		if job.Result != nil && job.Result.Reference == reference {
			return cloneJob(job), nil
		}
	}
	return nil, domain.ErrNotFound
}

// sortByCreation orders jobs by CreatedAt, breaking ties with insertion order
// since wall clocks are too coarse to separate jobs created back to back.
func (s *JobStoreMemory) sortByCreation(jobs []*domain.Job, newestFirst bool) {
	sort.Slice(jobs, func(i, k int) bool {
		a, b := jobs[i], jobs[k]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if newestFirst {
				return a.CreatedAt.After(b.CreatedAt)
			}
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if newestFirst {
			return s.seq[a.ID] > s.seq[b.ID]
		}
		return s.seq[a.ID] < s.seq[b.ID]
	})
}

// cloneJob returns a deep copy so callers never alias store-owned records.
func cloneJob(job *domain.Job) *domain.Job {
	cp := *job
	cp.Payload.Winners = append([]domain.Winner(nil), job.Payload.Winners...)
	if job.Result != nil {
		r := *job.Result
		cp.Result = &r
	}
	return &cp
}

func cloneJobs(jobs []*domain.Job) []*domain.Job {
	out := make([]*domain.Job, len(jobs))
	for i, job := range jobs {
		out[i] = cloneJob(job)
	}
	return out
}
