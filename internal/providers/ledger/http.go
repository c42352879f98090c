package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"grantpay/internal/infra"
)

// Options controls how the HTTP ledger client is configured.
type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// HTTPClient talks to the ledger service over its JSON API. The job ID doubles
// as an idempotency key so a disbursement resubmitted after a network failure
// is not paid twice by a cooperating ledger.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *infra.Logger
}

type payRequestBody struct {
	JobID    string        `json:"job_id"`
	EventRef string        `json:"event_ref"`
	Items    []payItemBody `json:"items"`
}

type payItemBody struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type payResponseBody struct {
	Reference string `json:"reference"`
}

type ledgerErrorResponse struct {
	Error struct {
		Code    string `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// NewHTTPClient constructs a ledger client. Callers may provide a nil HTTP
// client; a reusable one with a sensible timeout will be created.
func NewHTTPClient(opts Options) (*HTTPClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("ledger: base url is required")
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	return &HTTPClient{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(opts.APIKey),
		httpClient: client,
		logger:     logger,
	}, nil
}

// Pay submits the disbursement. Rejections surface as *Failure; transport and
// decoding problems surface as plain errors. Both count as failed attempts to
// the caller.
func (c *HTTPClient) Pay(ctx context.Context, req PayRequest) (*PayResult, error) {
	items := make([]payItemBody, len(req.Items))
	for i, item := range req.Items {
		items[i] = payItemBody{Address: item.Address, Amount: item.Amount}
	}
	body, err := json.Marshal(payRequestBody{JobID: req.JobID, EventRef: req.EventRef, Items: items})
	if err != nil {
		return nil, fmt.Errorf("ledger: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payouts", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ledger: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.JobID)
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ledger: invoke pay: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, c.decodeFailure(resp)
	}

	var out payResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ledger: decode response: %w", err)
	}
	if out.Reference == "" {
		return nil, fmt.Errorf("ledger: response missing reference")
	}

	c.logger.Debug().
		Str("job_id", req.JobID).
		Str("reference", out.Reference).
		Int("items", len(req.Items)).
		Msg("ledger: disbursement accepted")

	return &PayResult{Reference: out.Reference}, nil
}

func (c *HTTPClient) decodeFailure(resp *http.Response) error {
	code := fmt.Sprintf("LEDGER_%d", resp.StatusCode)

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &Failure{Code: code, Message: resp.Status}
	}

	var apiErr ledgerErrorResponse
	if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
		if apiErr.Error.Code != "" {
			code = apiErr.Error.Code
		}
		return &Failure{Code: code, Message: apiErr.Error.Message}
	}

	if msg := strings.TrimSpace(string(data)); msg != "" {
		return &Failure{Code: code, Message: msg}
	}
	return &Failure{Code: code, Message: resp.Status}
}
