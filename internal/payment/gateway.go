package payment

import "context"

// ChargeRequest asks the gateway to charge a customer the full amount.
type ChargeRequest struct {
	CustomerID string
	// Amount is in the currency's smallest unit.
	Amount    int64
	Currency  string
	Reference string
	Metadata  map[string]string
}

// GatewayResult is the outcome of a charge or capture call. RequiresAction
// signals a challenge step the customer must finish via ActionURL.
type GatewayResult struct {
	TransactionID  string
	RequiresAction bool
	ActionURL      string
}

// Gateway abstracts the payment provider. The Stripe implementation lives
// in stripe.go; tests substitute a mock.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*GatewayResult, error)
	Capture(ctx context.Context, reference string, amount int64) (*GatewayResult, error)
	Void(ctx context.Context, authorizationID string) error
}
