package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"grantpay/internal/domain"
	"grantpay/internal/infra"
	"grantpay/internal/middleware"
	"grantpay/internal/payout"
)

type App struct {
	Store   domain.JobStore
	Payouts *payout.Orchestrator
	Sweeper *payout.Sweeper
	Logger  infra.Logger
}

func NewApp(store domain.JobStore, payouts *payout.Orchestrator, sweeper *payout.Sweeper, logger infra.Logger) *App {
	return &App{Store: store, Payouts: payouts, Sweeper: sweeper, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]any{
		"error": map[string]string{"code": errCode, "message": message},
	})
}

// domainError maps store and orchestrator errors onto HTTP responses.
func (a *App) domainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "job not found")
	case errors.Is(err, domain.ErrInvalidState):
		a.error(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, domain.ErrEmptyEventRef),
		errors.Is(err, domain.ErrEmptyWinners),
		errors.Is(err, domain.ErrBadAddress),
		errors.Is(err, domain.ErrBadAmount):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, payout.ErrSweepActive):
		a.error(w, http.StatusConflict, "sweep_active", "a sweep is already running")
	default:
		a.Logger.Error().Err(err).Msg("http: request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (a *App) currentActor(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

// audit records who did what from where. Mutating payout endpoints call it
// after the action succeeds.
func (a *App) audit(r *http.Request, action string, fields map[string]string) {
	ev := a.Logger.Info().
		Str("action", action).
		Str("actor", a.currentActor(r)).
		Str("ip", middleware.ClientIP(r))
	if country := middleware.CountryFromContext(r.Context()); country != "" {
		ev = ev.Str("country", country)
	}
	for k, v := range fields {
		ev = ev.Str(k, v)
	}
	ev.Msg("audit: operator action")
}
