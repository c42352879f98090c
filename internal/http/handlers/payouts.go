package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"grantpay/internal/domain"
)

type winnerRequest struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type enqueuePayoutRequest struct {
	EventRef string          `json:"event_ref"`
	Winners  []winnerRequest `json:"winners"`
}

type jobResponse struct {
	ID        string               `json:"id"`
	Kind      domain.JobKind       `json:"kind"`
	Status    domain.JobStatus     `json:"status"`
	Payload   domain.PayoutPayload `json:"payload"`
	Result    *domain.JobResult    `json:"result,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

func toJobResponse(job *domain.Job) jobResponse {
	return jobResponse{
		ID:        job.ID,
		Kind:      job.Kind,
		Status:    job.Status,
		Payload:   job.Payload,
		Result:    job.Result,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
}

func toJobResponses(jobs []*domain.Job) []jobResponse {
	out := make([]jobResponse, len(jobs))
	for i, job := range jobs {
		out[i] = toJobResponse(job)
	}
	return out
}

// PayoutsEnqueue accepts a payout request for later processing.
func (a *App) PayoutsEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueuePayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	winners := make([]domain.Winner, 0, len(req.Winners))
	for i, win := range req.Winners {
		amount, err := domain.ParseAmount(win.Amount)
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("winner %d: invalid amount %q", i, win.Amount))
			return
		}
		winners = append(winners, domain.Winner{Address: win.Address, Amount: amount})
	}

	job, err := a.Payouts.EnqueuePayout(r.Context(), req.EventRef, winners, a.currentActor(r))
	if err != nil {
		a.domainError(w, err)
		return
	}

	a.audit(r, "payout_enqueue", map[string]string{"job_id": job.ID, "event_ref": req.EventRef})
	a.json(w, http.StatusAccepted, toJobResponse(job))
}

// PayoutsGet returns the full job record.
func (a *App) PayoutsGet(w http.ResponseWriter, r *http.Request) {
	job, err := a.Store.Get(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, toJobResponse(job))
}

// PayoutsSweep runs one sweep over pending jobs.
func (a *App) PayoutsSweep(w http.ResponseWriter, r *http.Request) {
	processed, err := a.Sweeper.ProcessPendingPayouts(r.Context())
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.audit(r, "payout_sweep", map[string]string{"processed": fmt.Sprint(processed)})
	a.json(w, http.StatusAccepted, map[string]int{"processed": processed})
}

// PayoutsRetry re-runs a failed job.
func (a *App) PayoutsRetry(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := a.Payouts.RetryFailedJob(r.Context(), jobID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.audit(r, "payout_retry", map[string]string{"job_id": jobID})
	a.json(w, http.StatusOK, toJobResponse(job))
}

// PayoutsCancel cancels a pending or processing job.
func (a *App) PayoutsCancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := a.Payouts.CancelJob(r.Context(), jobID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.audit(r, "payout_cancel", map[string]string{"job_id": jobID})
	a.json(w, http.StatusOK, toJobResponse(job))
}

// EventPayoutsList returns an event's payout jobs, newest first.
func (a *App) EventPayoutsList(w http.ResponseWriter, r *http.Request) {
	jobs, err := a.Store.ListByEvent(r.Context(), chi.URLParam(r, "eventRef"))
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"items": toJobResponses(jobs)})
}

// EventPayoutsMetrics returns aggregate payout figures for an event.
func (a *App) EventPayoutsMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := a.Payouts.PayoutMetrics(r.Context(), chi.URLParam(r, "eventRef"))
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, metrics)
}

// EventPayoutsRetry retries every failed job of an event.
func (a *App) EventPayoutsRetry(w http.ResponseWriter, r *http.Request) {
	eventRef := chi.URLParam(r, "eventRef")
	retried, err := a.Payouts.RetryAllFailedJobsForEvent(r.Context(), eventRef)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.audit(r, "payout_retry_event", map[string]string{"event_ref": eventRef, "retried": fmt.Sprint(retried)})
	a.json(w, http.StatusOK, map[string]int{"retried": retried})
}
