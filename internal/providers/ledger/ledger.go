package ledger

import "context"

// Client abstracts the external ledger responsible for executing
// disbursements. Pay submits one batch disbursement and blocks until the
// ledger accepts or rejects it. Implementations do not retry; retry policy
// belongs to the caller.
type Client interface {
	Pay(ctx context.Context, req PayRequest) (*PayResult, error)
}

// PayRequest describes a batch disbursement for one payout job.
type PayRequest struct {
	JobID    string
	EventRef string
	Items    []PayItem
}

// PayItem is a single transfer: a recipient address and a base-unit amount as
// a decimal string.
type PayItem struct {
	Address string
	Amount  string
}

// PayResult is returned when the ledger accepted the disbursement.
type PayResult struct {
	Reference string
}

// Failure is a payment failure reported by the ledger service. Callers record
// it against the job rather than propagating it upward.
type Failure struct {
	Code    string
	Message string
}

func (f *Failure) Error() string {
	if f.Code == "" {
		return f.Message
	}
	return f.Code + ": " + f.Message
}
