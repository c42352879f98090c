package repo

import (
	"context"
	"sync"
	"testing"
	"time"

	"grantpay/internal/domain"
)

func payloadFixture(eventRef string) domain.PayoutPayload {
	return domain.PayoutPayload{
		EventRef: eventRef,
		Winners: []domain.Winner{
			{Address: "0xabc", Amount: domain.MustAmount("600")},
			{Address: "0xdef", Amount: domain.MustAmount("400")},
		},
		InitiatedBy: "judge-1",
	}
}

func TestMemoryStoreCreateAndGetRoundTrip(t *testing.T) {
	store := NewJobStoreMemory()
	ctx := context.Background()

	created, err := store.Create(ctx, domain.JobKindPayout, payloadFixture("event-7"))
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if created.ID == "" {
		t.Fatal("Create did not assign an ID")
	}
	if created.Status != domain.JobStatusPending {
		t.Fatalf("Create status = %q, want %q", created.Status, domain.JobStatusPending)
	}

	got, err := store.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.Payload.EventRef != "event-7" {
		t.Fatalf("EventRef = %q, want %q", got.Payload.EventRef, "event-7")
	}
	if len(got.Payload.Winners) != 2 {
		t.Fatalf("winners = %d, want 2", len(got.Payload.Winners))
	}
	if got.Payload.Winners[0].Amount.String() != "600" {
		t.Fatalf("winner amount = %q, want %q", got.Payload.Winners[0].Amount.String(), "600")
	}
	if got.Result != nil {
		t.Fatalf("fresh job has result: %+v", got.Result)
	}

	// The returned job must be a copy: mutating it must not reach the store.
	got.Status = domain.JobStatusCompleted
	got.Payload.Winners[0].Address = "tampered"
	again, err := store.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if again.Status != domain.JobStatusPending {
		t.Fatalf("store job mutated through returned copy: status %q", again.Status)
	}
	if again.Payload.Winners[0].Address != "0xabc" {
		t.Fatalf("store winners mutated through returned copy: %q", again.Payload.Winners[0].Address)
	}
}

func TestMemoryStoreGetUnknownID(t *testing.T) {
	store := NewJobStoreMemory()
	if _, err := store.Get(context.Background(), "missing"); err != domain.ErrNotFound {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreClaimTransitions(t *testing.T) {
	tests := []struct {
		name        string
		status      domain.JobStatus
		wantClaimed bool
	}{
		{name: "pending is claimable", status: domain.JobStatusPending, wantClaimed: true},
		{name: "failed is claimable", status: domain.JobStatusFailed, wantClaimed: true},
		{name: "processing is not", status: domain.JobStatusProcessing, wantClaimed: false},
		{name: "completed is not", status: domain.JobStatusCompleted, wantClaimed: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := NewJobStoreMemory()
			ctx := context.Background()
			job, err := store.Create(ctx, domain.JobKindPayout, payloadFixture("event-1"))
			if err != nil {
				t.Fatalf("Create returned error: %v", err)
			}
			job.Status = tc.status
			if _, err := store.Save(ctx, job); err != nil {
				t.Fatalf("Save returned error: %v", err)
			}

			claimedJob, claimed, err := store.Claim(ctx, job.ID)
			if err != nil {
				t.Fatalf("Claim returned error: %v", err)
			}
			if claimed != tc.wantClaimed {
				t.Fatalf("claimed = %v, want %v", claimed, tc.wantClaimed)
			}
			if tc.wantClaimed && claimedJob.Status != domain.JobStatusProcessing {
				t.Fatalf("claimed job status = %q, want %q", claimedJob.Status, domain.JobStatusProcessing)
			}
			if !tc.wantClaimed && claimedJob.Status != tc.status {
				t.Fatalf("unclaimed job status = %q, want unchanged %q", claimedJob.Status, tc.status)
			}
		})
	}
}

func TestMemoryStoreClaimSingleWinner(t *testing.T) {
	store := NewJobStoreMemory()
	ctx := context.Background()
	job, err := store.Create(ctx, domain.JobKindPayout, payloadFixture("event-1"))
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	const claimers = 16
	var wg sync.WaitGroup
	wins := make(chan bool, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, claimed, err := store.Claim(ctx, job.ID)
			if err != nil {
				t.Errorf("Claim returned error: %v", err)
				return
			}
			wins <- claimed
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for claimed := range wins {
		if claimed {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("claim winners = %d, want exactly 1", winners)
	}
}

func TestMemoryStoreListByStatusOrderAndLimit(t *testing.T) {
	store := NewJobStoreMemory()
	ctx := context.Background()

	var ids []string
	for i := 0; i < 15; i++ {
		job, err := store.Create(ctx, domain.JobKindPayout, payloadFixture("event-1"))
		if err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
		ids = append(ids, job.ID)
	}

	pending, err := store.ListByStatus(ctx, domain.JobStatusPending, 10)
	if err != nil {
		t.Fatalf("ListByStatus returned error: %v", err)
	}
	if len(pending) != 10 {
		t.Fatalf("ListByStatus returned %d jobs, want 10", len(pending))
	}
	for i, job := range pending {
		if job.ID != ids[i] {
			t.Fatalf("ListByStatus[%d] = %s, want oldest-first %s", i, job.ID, ids[i])
		}
	}
}

func TestMemoryStoreListByEventNewestFirst(t *testing.T) {
	store := NewJobStoreMemory()
	ctx := context.Background()

	first, _ := store.Create(ctx, domain.JobKindPayout, payloadFixture("event-1"))
	if _, err := store.Create(ctx, domain.JobKindPayout, payloadFixture("other-event")); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	second, _ := store.Create(ctx, domain.JobKindPayout, payloadFixture("event-1"))

	jobs, err := store.ListByEvent(ctx, "event-1")
	if err != nil {
		t.Fatalf("ListByEvent returned error: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("ListByEvent returned %d jobs, want 2", len(jobs))
	}
	if jobs[0].ID != second.ID || jobs[1].ID != first.ID {
		t.Fatalf("ListByEvent order = [%s %s], want newest first [%s %s]", jobs[0].ID, jobs[1].ID, second.ID, first.ID)
	}
}

func TestMemoryStoreSaveResultAndFindByReference(t *testing.T) {
	store := NewJobStoreMemory()
	ctx := context.Background()
	job, err := store.Create(ctx, domain.JobKindPayout, payloadFixture("event-1"))
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	job.Status = domain.JobStatusCompleted
	job.Result = &domain.JobResult{
		Reference:        "0xtx-99",
		RecordedAt:       time.Now().UTC(),
		ProcessingTimeMs: 1234,
		RetryCount:       2,
	}
	saved, err := store.Save(ctx, job)
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if saved.Result == nil || saved.Result.Reference != "0xtx-99" {
		t.Fatalf("saved result = %+v, want reference 0xtx-99", saved.Result)
	}

	found, err := store.FindByReference(ctx, "0xtx-99")
	if err != nil {
		t.Fatalf("FindByReference returned error: %v", err)
	}
	if found.ID != job.ID {
		t.Fatalf("FindByReference = %s, want %s", found.ID, job.ID)
	}
	if found.Result.RetryCount != 2 {
		t.Fatalf("RetryCount = %d, want 2", found.Result.RetryCount)
	}

	if _, err := store.FindByReference(ctx, "unknown-ref"); err != domain.ErrNotFound {
		t.Fatalf("FindByReference(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreSaveUnknownJob(t *testing.T) {
	store := NewJobStoreMemory()
	job := &domain.Job{ID: "ghost", Status: domain.JobStatusFailed}
	if _, err := store.Save(context.Background(), job); err != domain.ErrNotFound {
		t.Fatalf("Save(ghost) error = %v, want ErrNotFound", err)
	}
}
