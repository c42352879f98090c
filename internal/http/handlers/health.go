package handlers

import (
	"net/http"
)

// Health is the liveness probe. It only proves the process answers; store and
// ledger reachability show up in job results, not here.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok", "service": "grantpay"})
}
