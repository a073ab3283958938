package payment

import (
	"context"
	"fmt"

	"ms-fulfillment/internal/errs"
	"ms-fulfillment/internal/lifecycle"
	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/models"
)

// Action is what a lifecycle transition requires of the payment gateway.
type Action int

const (
	ActionNone Action = iota
	ActionCapture
	ActionMarkPaid
	ActionVoid
	ActionRefundAsync
	ActionCharge
)

func (a Action) String() string {
	switch a {
	case ActionCapture:
		return "capture"
	case ActionMarkPaid:
		return "mark_paid"
	case ActionVoid:
		return "void"
	case ActionRefundAsync:
		return "refund_async"
	case ActionCharge:
		return "charge"
	default:
		return "none"
	}
}

// Input describes the transition being executed and the entity's payment
// state at the time of the read.
type Input struct {
	EntityType lifecycle.EntityType
	EntityID   string
	From       string
	To         string

	CustomerID      string
	PaymentMethod   string
	PaymentStatus   string
	AuthorizationID string
	Amount          int64
	Currency        string
}

// Outcome feeds back into the fields written by the transition. An empty
// PaymentStatus means the transition leaves payment state untouched.
type Outcome struct {
	Action        Action
	PaymentStatus string
	TransactionID string
	ActionURL     string

	// VoidFailed records a reconciliation gap: the cancellation still
	// commits, but an operator alert must be raised.
	VoidFailed bool
	// RefundRequested flags an asynchronous refund side effect for a
	// cancellation after capture.
	RefundRequested bool
}

// Coordinator decides whether a transition needs a gateway call, makes
// it, and maps the result onto a payment status.
type Coordinator struct {
	gateway Gateway
	log     *logger.Logger
}

func NewCoordinator(gateway Gateway, log *logger.Logger) *Coordinator {
	return &Coordinator{gateway: gateway, log: log}
}

// Decide resolves the payment action for a (entityType, from, to)
// transition given the entity's current payment state.
func (c *Coordinator) Decide(in Input) Action {
	switch in.EntityType {
	case lifecycle.EntityOrder:
		switch in.To {
		case models.OrderCompleted:
			if models.IsPayOnDelivery(in.PaymentMethod) {
				return ActionMarkPaid
			}
			if in.AuthorizationID != "" && in.PaymentStatus != models.PaymentPaid {
				return ActionCapture
			}
		case models.OrderCancelled:
			if in.PaymentStatus == models.PaymentPaid {
				return ActionRefundAsync
			}
			if in.AuthorizationID != "" && in.PaymentStatus == models.PaymentAuthorized {
				return ActionVoid
			}
		}
	case lifecycle.EntityBooking:
		if in.From == models.BookingPendingCustomerConfirmation && in.To == models.BookingConfirmed {
			return ActionCharge
		}
		if in.To == models.BookingCancelled && in.PaymentStatus == models.PaymentPaid {
			return ActionRefundAsync
		}
	}
	return ActionNone
}

// Execute runs the decided action. Capture and charge failures are fatal
// to the transition; void failures are recovered into a distinguishing
// payment status because blocking a cancellation on refund mechanics is
// worse than recording a reconciliation gap.
func (c *Coordinator) Execute(ctx context.Context, in Input) (*Outcome, error) {
	action := c.Decide(in)
	outcome := &Outcome{Action: action}

	switch action {
	case ActionNone:
		return outcome, nil

	case ActionMarkPaid:
		c.log.LogPayment("MARK_PAID", in.EntityID, fmt.Sprintf("%s settles on delivery, no gateway call", in.PaymentMethod))
		outcome.PaymentStatus = models.PaymentPaid
		return outcome, nil

	case ActionCapture:
		result, err := c.gateway.Capture(ctx, in.AuthorizationID, in.Amount)
		if err != nil {
			c.log.Error("PAYMENT", fmt.Sprintf("Capture failed for %s (auth %s): %v", in.EntityID, in.AuthorizationID, err))
			return nil, errs.CaptureFailed(in.EntityID, err)
		}
		c.log.LogPayment("CAPTURE", in.EntityID, fmt.Sprintf("captured %d %s (txn %s)", in.Amount, in.Currency, result.TransactionID))
		outcome.PaymentStatus = models.PaymentPaid
		outcome.TransactionID = result.TransactionID
		return outcome, nil

	case ActionVoid:
		if err := c.gateway.Void(ctx, in.AuthorizationID); err != nil {
			c.log.Error("PAYMENT", fmt.Sprintf("Void failed for %s (auth %s): %v", in.EntityID, in.AuthorizationID, err))
			outcome.PaymentStatus = models.PaymentVoidFailed
			outcome.VoidFailed = true
			return outcome, nil
		}
		c.log.LogPayment("VOID", in.EntityID, fmt.Sprintf("voided authorization %s", in.AuthorizationID))
		outcome.PaymentStatus = models.PaymentVoided
		return outcome, nil

	case ActionRefundAsync:
		c.log.LogPayment("REFUND", in.EntityID, "cancellation after capture, flagging asynchronous refund")
		outcome.PaymentStatus = models.PaymentRefundPending
		outcome.RefundRequested = true
		return outcome, nil

	case ActionCharge:
		result, err := c.gateway.Charge(ctx, ChargeRequest{
			CustomerID: in.CustomerID,
			Amount:     in.Amount,
			Currency:   in.Currency,
			Reference:  in.EntityID,
		})
		if err != nil {
			c.log.Error("PAYMENT", fmt.Sprintf("Charge failed for %s: %v", in.EntityID, err))
			return nil, errs.CaptureFailed(in.EntityID, err)
		}
		outcome.TransactionID = result.TransactionID
		if result.RequiresAction {
			c.log.LogPayment("CHARGE", in.EntityID, "charge requires further customer action")
			outcome.PaymentStatus = models.PaymentActionRequired
			outcome.ActionURL = result.ActionURL
		} else {
			c.log.LogPayment("CHARGE", in.EntityID, fmt.Sprintf("charged %d %s (txn %s)", in.Amount, in.Currency, result.TransactionID))
			outcome.PaymentStatus = models.PaymentPaid
		}
		return outcome, nil
	}

	return outcome, nil
}
