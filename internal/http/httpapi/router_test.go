package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"grantpay/internal/adapter/repo"
	"grantpay/internal/http/handlers"
	"grantpay/internal/infra"
	"grantpay/internal/middleware"
	"grantpay/internal/payout"
	"grantpay/internal/providers/ledger"
)

const testSecret = "router-secret"

type okLedger struct{}

func (okLedger) Pay(_ context.Context, req ledger.PayRequest) (*ledger.PayResult, error) {
	return &ledger.PayResult{Reference: "TX-" + req.JobID[:8]}, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	store := repo.NewJobStoreMemory()
	orc := payout.NewOrchestrator(store, okLedger{}, zerolog.Nop(), payout.Options{
		Sleep: func(context.Context, time.Duration) error { return nil },
	})
	sweeper, err := payout.NewSweeper(orc, store, zerolog.Nop(), payout.SweeperOptions{})
	if err != nil {
		t.Fatalf("NewSweeper: %v", err)
	}
	app := handlers.NewApp(store, orc, sweeper, zerolog.Nop())

	cfg := &infra.Config{JWTSecret: testSecret}
	return NewRouter(app, Options{Config: cfg, Logger: zerolog.Nop()})
}

func operatorToken(t *testing.T) string {
	t.Helper()
	token, err := middleware.SignJWT(testSecret, middleware.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "operator-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	return token
}

func do(t *testing.T, router http.Handler, method, path, token string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestRouterHealthIsOpen(t *testing.T) {
	router := newTestRouter(t)

	rr := do(t, router, "GET", "/v1/healthz", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status code: got %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestRouterRequiresToken(t *testing.T) {
	router := newTestRouter(t)

	for _, tc := range []struct {
		method string
		path   string
	}{
		{"POST", "/v1/payouts"},
		{"GET", "/v1/payouts/some-id"},
		{"POST", "/v1/payouts/sweep"},
		{"GET", "/v1/events/hack-1/payouts"},
	} {
		rr := do(t, router, tc.method, tc.path, "", nil)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s status = %d, want %d", tc.method, tc.path, rr.Code, http.StatusUnauthorized)
		}
	}

	rr := do(t, router, "GET", "/v1/payouts/some-id", "not.a.token", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestRouterPayoutLifecycle(t *testing.T) {
	router := newTestRouter(t)
	token := operatorToken(t)

	// Enqueue.
	body := `{"event_ref":"hack-1","winners":[{"address":"0xaaa","amount":"777"}]}`
	rr := do(t, router, "POST", "/v1/payouts", token, strings.NewReader(body))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("enqueue status = %d, want %d (%s)", rr.Code, http.StatusAccepted, rr.Body.String())
	}
	var created struct {
		ID      string `json:"id"`
		Status  string `json:"status"`
		Payload struct {
			InitiatedBy string `json:"initiated_by"`
		} `json:"payload"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatalf("decode enqueue response: %v", err)
	}
	if created.Status != "PENDING" {
		t.Fatalf("status = %q, want PENDING", created.Status)
	}
	if created.Payload.InitiatedBy != "operator-1" {
		t.Fatalf("initiated_by = %q, want operator-1 (token subject)", created.Payload.InitiatedBy)
	}

	// Sweep drives it to completion.
	rr = do(t, router, "POST", "/v1/payouts/sweep", token, nil)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("sweep status = %d, want %d", rr.Code, http.StatusAccepted)
	}
	var swept struct {
		Processed int `json:"processed"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&swept); err != nil {
		t.Fatalf("decode sweep response: %v", err)
	}
	if swept.Processed != 1 {
		t.Fatalf("processed = %d, want 1", swept.Processed)
	}

	// Job is now COMPLETED with a ledger reference.
	rr = do(t, router, "GET", "/v1/payouts/"+created.ID, token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d, want %d", rr.Code, http.StatusOK)
	}
	var fetched struct {
		Status string `json:"status"`
		Result struct {
			Reference  string `json:"reference"`
			RetryCount int    `json:"retry_count"`
		} `json:"result"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&fetched); err != nil {
		t.Fatalf("decode get response: %v", err)
	}
	if fetched.Status != "COMPLETED" || fetched.Result.Reference == "" {
		t.Fatalf("job after sweep = %+v, want COMPLETED with reference", fetched)
	}

	// Listed under its event.
	rr = do(t, router, "GET", "/v1/events/hack-1/payouts", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d, want %d", rr.Code, http.StatusOK)
	}
	var listed struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&listed); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if len(listed.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(listed.Items))
	}

	// Metrics reflect the completed payout.
	rr = do(t, router, "GET", "/v1/events/hack-1/payouts/metrics", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want %d", rr.Code, http.StatusOK)
	}
	var metrics struct {
		TotalJobs     int    `json:"total_jobs"`
		CompletedJobs int    `json:"completed_jobs"`
		TotalAmount   string `json:"total_amount"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&metrics); err != nil {
		t.Fatalf("decode metrics response: %v", err)
	}
	if metrics.TotalJobs != 1 || metrics.CompletedJobs != 1 || metrics.TotalAmount != "777" {
		t.Fatalf("metrics = %+v, want one completed job totalling 777", metrics)
	}

	// Retrying a completed job conflicts.
	rr = do(t, router, "POST", "/v1/payouts/"+created.ID+"/retry", token, nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("retry status = %d, want %d", rr.Code, http.StatusConflict)
	}

	// Unknown job is a 404 through the router.
	rr = do(t, router, "GET", "/v1/payouts/00000000-0000-0000-0000-000000000000", token, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown job status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}
