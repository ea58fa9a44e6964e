package settlement

import (
	"context"

	"github.com/shopspring/decimal"
)

const (
	OutcomeSucceeded = "SUCCEEDED"
	OutcomeFailed    = "FAILED"
)

// GatewayResult is the gateway's answer for a single money movement.
type GatewayResult struct {
	TransactionRef string
	Outcome        string
}

// Gateway is the payment-gateway port. Every call is fallible and
// retryable; the reference passed in makes retries idempotent on the
// gateway side. A transport error must be reported as an error, never as a
// FAILED outcome, so callers can keep the local state PENDING.
type Gateway interface {
	Charge(ctx context.Context, amount decimal.Decimal, method, reference string) (GatewayResult, error)
	ConfirmTransfer(ctx context.Context, reference string) (bool, error)
	Payout(ctx context.Context, sellerRef string, amount decimal.Decimal, reference string) (GatewayResult, error)
	Reverse(ctx context.Context, buyerRef string, amount decimal.Decimal, reference string) (GatewayResult, error)
}
