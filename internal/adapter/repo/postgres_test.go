package repo

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"grantpay/internal/domain"
)

type simpleRow struct {
	scan func(dest ...any) error
}

func (r simpleRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

func jobRow(id, kind, status string, payload, result []byte, createdAt, updatedAt time.Time) simpleRow {
	return simpleRow{scan: func(dest ...any) error {
		*dest[0].(*string) = id
		*dest[1].(*domain.JobKind) = domain.JobKind(kind)
		*dest[2].(*domain.JobStatus) = domain.JobStatus(status)
		*dest[3].(*[]byte) = payload
		*dest[4].(*[]byte) = result
		*dest[5].(*time.Time) = createdAt
		*dest[6].(*time.Time) = updatedAt
		return nil
	}}
}

func TestScanJobDecodesPayloadAndResult(t *testing.T) {
	createdAt := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	payload := []byte(`{"event_ref":"event-42","winners":[{"address":"0xabc","amount":"123456789012345678901"}],"initiated_by":"judge-9"}`)
	result := []byte(`{"reference":"0xtx-1","recorded_at":"2026-03-14T09:00:05Z","processing_time_ms":5012,"retry_count":1}`)

	job, err := scanJob(jobRow("job-1", "PAYOUT", "COMPLETED", payload, result, createdAt, createdAt))
	if err != nil {
		t.Fatalf("scanJob returned error: %v", err)
	}
	if job.Kind != domain.JobKindPayout {
		t.Fatalf("Kind = %q, want %q", job.Kind, domain.JobKindPayout)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("Status = %q, want %q", job.Status, domain.JobStatusCompleted)
	}
	if job.Payload.EventRef != "event-42" {
		t.Fatalf("EventRef = %q, want %q", job.Payload.EventRef, "event-42")
	}
	if got := job.Payload.Winners[0].Amount.String(); got != "123456789012345678901" {
		t.Fatalf("Amount = %q, want the exact decimal string back", got)
	}
	if job.Result == nil || job.Result.Reference != "0xtx-1" {
		t.Fatalf("Result = %+v, want reference 0xtx-1", job.Result)
	}
	if job.Result.RetryCount != 1 {
		t.Fatalf("RetryCount = %d, want 1", job.Result.RetryCount)
	}
}

func TestScanJobNullResult(t *testing.T) {
	now := time.Now().UTC()
	payload := []byte(`{"event_ref":"event-1","winners":[{"address":"0xabc","amount":"5"}],"initiated_by":"judge-1"}`)

	job, err := scanJob(jobRow("job-2", "PAYOUT", "PENDING", payload, nil, now, now))
	if err != nil {
		t.Fatalf("scanJob returned error: %v", err)
	}
	if job.Result != nil {
		t.Fatalf("Result = %+v, want nil for NULL column", job.Result)
	}
}

func TestScanJobRejectsCorruptPayload(t *testing.T) {
	now := time.Now().UTC()
	if _, err := scanJob(jobRow("job-3", "PAYOUT", "PENDING", []byte(`{`), nil, now, now)); err == nil {
		t.Fatal("scanJob accepted corrupt payload JSON")
	}
}

func TestMarshalResult(t *testing.T) {
	data, err := marshalResult(nil)
	if err != nil {
		t.Fatalf("marshalResult(nil) returned error: %v", err)
	}
	if data != nil {
		t.Fatalf("marshalResult(nil) = %s, want nil for NULL column", data)
	}

	recordedAt := time.Date(2026, 3, 14, 9, 0, 5, 0, time.UTC)
	data, err = marshalResult(&domain.JobResult{
		Error:            "insufficient treasury balance",
		RecordedAt:       recordedAt,
		ProcessingTimeMs: 35000,
		RetryCount:       3,
	})
	if err != nil {
		t.Fatalf("marshalResult returned error: %v", err)
	}
	want := `{"error":"insufficient treasury balance","recorded_at":"2026-03-14T09:00:05Z","processing_time_ms":35000,"retry_count":3}`
	if string(data) != want {
		t.Fatalf("marshalResult = %s, want %s", data, want)
	}
}
