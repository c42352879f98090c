package domain

import "time"

// JobKind enumerates supported background job categories.
type JobKind string

const (
	JobKindPayout JobKind = "PAYOUT"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// Terminal reports whether the status admits no further automatic transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Winner is a single payout recipient: a ledger address and the base-unit
// amount it should receive.
type Winner struct {
	Address string `json:"address"`
	Amount  Amount `json:"amount"`
}

// PayoutPayload describes what a payout job must disburse. It is written once
// at creation and never mutated afterwards.
type PayoutPayload struct {
	EventRef    string   `json:"event_ref"`
	Winners     []Winner `json:"winners"`
	InitiatedBy string   `json:"initiated_by"`
}

// JobResult records the terminal outcome of a processing cycle. Exactly one of
// Reference and Error is set.
type JobResult struct {
	Reference        string    `json:"reference,omitempty"`
	Error            string    `json:"error,omitempty"`
	RecordedAt       time.Time `json:"recorded_at"`
	ProcessingTimeMs int64     `json:"processing_time_ms"`
	RetryCount       int       `json:"retry_count"`
}

// Job encapsulates the lifecycle of a payout.
type Job struct {
	ID        string
	Kind      JobKind
	Status    JobStatus
	Payload   PayoutPayload
	Result    *JobResult
	CreatedAt time.Time
	UpdatedAt time.Time
}
