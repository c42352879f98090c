package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"grantpay/internal/infra"
)

// SimulatedClient is a deterministic in-process ledger used when no ledger
// endpoint is configured. It keeps the rest of the pipeline (claiming, result
// persistence, metrics) exercised in local and CI environments. References
// are derived from the request so repeated runs produce identical results.
type SimulatedClient struct {
	logger *infra.Logger
}

// NewSimulatedClient constructs a simulated ledger. A nil logger is replaced
// with a discarding one.
func NewSimulatedClient(logger *infra.Logger) *SimulatedClient {
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &SimulatedClient{logger: logger}
}

// Pay always accepts the disbursement with a synthetic reference.
func (c *SimulatedClient) Pay(ctx context.Context, req PayRequest) (*PayResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reference := "SIM-" + deterministicSeed(req.JobID, req.EventRef, len(req.Items))

	c.logger.Debug().
		Str("job_id", req.JobID).
		Str("reference", reference).
		Int("items", len(req.Items)).
		Msg("ledger: simulated disbursement")

	return &PayResult{Reference: reference}, nil
}

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		hasher.Write([]byte(fmt.Sprintf("%v", part)))
		hasher.Write([]byte{'|'})
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}
