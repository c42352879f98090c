package payout

import (
	"context"

	"grantpay/internal/domain"
)

// Metrics aggregates the payout jobs of one event. TotalAmount sums every
// winner amount across all jobs regardless of status, so it can exceed what
// was actually disbursed when jobs failed.
type Metrics struct {
	TotalJobs               int           `json:"total_jobs"`
	CompletedJobs           int           `json:"completed_jobs"`
	FailedJobs              int           `json:"failed_jobs"`
	AverageProcessingTimeMs int64         `json:"average_processing_time_ms"`
	TotalAmount             domain.Amount `json:"total_amount"`
}

// PayoutMetrics computes aggregate figures for an event's payout jobs. The
// average processing time covers COMPLETED jobs only; events with none report
// zero.
func (o *Orchestrator) PayoutMetrics(ctx context.Context, eventRef string) (Metrics, error) {
	jobs, err := o.store.ListByEvent(ctx, eventRef)
	if err != nil {
		return Metrics{}, err
	}

	var m Metrics
	var sumMs int64
	for _, job := range jobs {
		m.TotalJobs++
		switch job.Status {
		case domain.JobStatusCompleted:
			m.CompletedJobs++
			if job.Result != nil {
				sumMs += job.Result.ProcessingTimeMs
			}
		case domain.JobStatusFailed:
			m.FailedJobs++
		}
		for _, w := range job.Payload.Winners {
			m.TotalAmount = m.TotalAmount.Add(w.Amount)
		}
	}
	if m.CompletedJobs > 0 {
		m.AverageProcessingTimeMs = sumMs / int64(m.CompletedJobs)
	}
	return m, nil
}
