package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"ms-fulfillment/internal/logger"
)

var (
	ErrStripeAPIError         = errors.New("stripe API error")
	ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")
)

// StripeGateway implements Gateway on top of Stripe payment intents.
type StripeGateway struct {
	client *client.API
	log    *logger.Logger
}

func NewStripeGateway(secretKey string, log *logger.Logger) (*StripeGateway, error) {
	if secretKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY environment variable not set")
		return nil, ErrStripeClientInitFailed
	}

	sc := client.New(secretKey, nil)
	if sc == nil {
		log.Error("STRIPE", "Failed to initialize Stripe client")
		return nil, ErrStripeClientInitFailed
	}

	log.Info("STRIPE", "Stripe client initialized successfully")
	return &StripeGateway{client: sc, log: log}, nil
}

// Charge confirms a payment intent for the full amount. A payment intent
// that lands in requires_action is not a failure: the caller gets the
// redirect URL and the customer finishes the challenge out of band.
func (g *StripeGateway) Charge(ctx context.Context, req ChargeRequest) (*GatewayResult, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("invalid charge amount: %d", req.Amount)
	}

	metadata := map[string]string{"reference": req.Reference, "customer_id": req.CustomerID}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	params := &stripe.PaymentIntentParams{
		Params:             stripe.Params{Context: ctx},
		Amount:             stripe.Int64(req.Amount),
		Currency:           stripe.String(req.Currency),
		Customer:           stripe.String(req.CustomerID),
		Metadata:           metadata,
		ConfirmationMethod: stripe.String("automatic"),
		Confirm:            stripe.Bool(true),
	}

	g.log.Info("STRIPE", fmt.Sprintf("Creating payment intent for %s, amount: %d %s", req.Reference, req.Amount, req.Currency))
	pi, err := g.client.PaymentIntents.New(params)
	if err != nil {
		g.log.Error("STRIPE", fmt.Sprintf("Failed to create payment intent for %s: %v", req.Reference, err))
		return nil, fmt.Errorf("%w: %v", ErrStripeAPIError, err)
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		g.log.Info("STRIPE", fmt.Sprintf("Charge succeeded for %s (intent %s)", req.Reference, pi.ID))
		return &GatewayResult{TransactionID: pi.ID}, nil
	case stripe.PaymentIntentStatusRequiresAction:
		result := &GatewayResult{TransactionID: pi.ID, RequiresAction: true}
		if pi.NextAction != nil && pi.NextAction.RedirectToURL != nil {
			result.ActionURL = pi.NextAction.RedirectToURL.URL
		}
		g.log.Info("STRIPE", fmt.Sprintf("Charge for %s requires further customer action (intent %s)", req.Reference, pi.ID))
		return result, nil
	default:
		g.log.Error("STRIPE", fmt.Sprintf("Charge for %s failed with status %s", req.Reference, pi.Status))
		return nil, fmt.Errorf("%w: payment intent status %s", ErrStripeAPIError, pi.Status)
	}
}

// Capture settles a previously authorized payment intent.
func (g *StripeGateway) Capture(ctx context.Context, reference string, amount int64) (*GatewayResult, error) {
	params := &stripe.PaymentIntentCaptureParams{
		Params:          stripe.Params{Context: ctx},
		AmountToCapture: stripe.Int64(amount),
	}

	g.log.Info("STRIPE", fmt.Sprintf("Capturing %d on intent %s", amount, reference))
	pi, err := g.client.PaymentIntents.Capture(reference, params)
	if err != nil {
		g.log.Error("STRIPE", fmt.Sprintf("Capture failed for intent %s: %v", reference, err))
		return nil, fmt.Errorf("%w: %v", ErrStripeAPIError, err)
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		g.log.Error("STRIPE", fmt.Sprintf("Capture for intent %s ended in status %s", reference, pi.Status))
		return nil, fmt.Errorf("%w: capture ended in status %s", ErrStripeAPIError, pi.Status)
	}

	return &GatewayResult{TransactionID: pi.ID}, nil
}

// Void cancels an authorization without charging it.
func (g *StripeGateway) Void(ctx context.Context, authorizationID string) error {
	params := &stripe.PaymentIntentCancelParams{
		Params: stripe.Params{Context: ctx},
	}

	g.log.Info("STRIPE", fmt.Sprintf("Voiding intent %s", authorizationID))
	if _, err := g.client.PaymentIntents.Cancel(authorizationID, params); err != nil {
		g.log.Error("STRIPE", fmt.Sprintf("Void failed for intent %s: %v", authorizationID, err))
		return fmt.Errorf("%w: %v", ErrStripeAPIError, err)
	}
	return nil
}
