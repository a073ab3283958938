package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-fulfillment/internal/errs"
	"ms-fulfillment/internal/inventory"
	"ms-fulfillment/internal/lifecycle"
	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/models"
	ordersdb "ms-fulfillment/internal/orders/db"
	"ms-fulfillment/internal/payment"
	"ms-fulfillment/internal/sideeffects"
)

// PermUpdateOrderStatus guards the order transition endpoint.
const PermUpdateOrderStatus = "orders.update_status"

type Store interface {
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, order *models.Order, expectedStatus string) error
	UpdateOrderStatusWithRestock(ctx context.Context, order *models.Order, expectedStatus string, adjustments []inventory.Adjustment) error
	SetProcessingError(ctx context.Context, orderID, message string) error
}

type PermissionChecker interface {
	HasPermission(ctx context.Context, actorID, claimedRole, permissionID string) bool
}

type PaymentCoordinator interface {
	Execute(ctx context.Context, in payment.Input) (*payment.Outcome, error)
}

type Dispatcher interface {
	Submit(ev sideeffects.Event)
}

// Service drives order status transitions: authorize, validate against
// the transition table, settle payment, then commit and announce.
type Service struct {
	DB         Store
	Perms      PermissionChecker
	Payments   PaymentCoordinator
	Dispatcher Dispatcher
	Engine     *lifecycle.Engine
	Logger     *logger.Logger
}

func NewService(db Store, perms PermissionChecker, payments PaymentCoordinator, dispatcher Dispatcher, engine *lifecycle.Engine, log *logger.Logger) *Service {
	return &Service{
		DB:         db,
		Perms:      perms,
		Payments:   payments,
		Dispatcher: dispatcher,
		Engine:     engine,
		Logger:     log,
	}
}

// GetOrder fetches one order.
func (s *Service) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return s.DB.GetOrderByID(ctx, orderID)
}

type UpdateStatusInput struct {
	OrderID      string
	ActorID      string
	ActorRole    string
	TargetStatus string
	Details      lifecycle.Details
}

// UpdateStatus moves an order to a new status. A repeated request for the
// current status returns the order unchanged. Payment failures abort
// before anything is written; a cancellation restocks the box in the same
// transaction as the status write.
func (s *Service) UpdateStatus(ctx context.Context, in UpdateStatusInput) (*models.Order, error) {
	if in.ActorID == "" {
		return nil, errs.Unauthenticated()
	}
	if !s.Perms.HasPermission(ctx, in.ActorID, in.ActorRole, PermUpdateOrderStatus) {
		return nil, errs.PermissionDenied(in.ActorID)
	}

	order, err := s.DB.GetOrderByID(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}

	plan, err := s.Engine.Plan(lifecycle.EntityOrder, order.OrderID, order.Status, in.TargetStatus,
		lifecycle.Actor{ID: in.ActorID, Role: in.ActorRole}, in.Details)
	if err != nil {
		return nil, err
	}
	if plan.NoOp {
		return order, nil
	}

	outcome, err := s.Payments.Execute(ctx, payment.Input{
		EntityType:      lifecycle.EntityOrder,
		EntityID:        order.OrderID,
		From:            plan.From,
		To:              plan.To,
		CustomerID:      order.CustomerID,
		PaymentMethod:   order.PaymentMethod,
		PaymentStatus:   order.PaymentStatus,
		AuthorizationID: order.AuthorizationID,
		Amount:          order.AuthorizedAmount,
		Currency:        order.CurrencyCode,
	})
	if err != nil {
		// The status is untouched; the failure is recorded on the order so
		// operators can see why the transition did not land.
		if dbErr := s.DB.SetProcessingError(ctx, order.OrderID, err.Error()); dbErr != nil {
			s.Logger.Error("ORDERS", fmt.Sprintf("Failed to record processing error on %s: %v", order.OrderID, dbErr))
		}
		return nil, err
	}

	s.applyPlan(order, plan, outcome)

	if plan.To == models.OrderCancelled && len(order.Items) > 0 {
		err = s.DB.UpdateOrderStatusWithRestock(ctx, order, plan.From, restockAdjustments(order.Items))
	} else {
		err = s.DB.UpdateOrderStatus(ctx, order, plan.From)
	}
	if err != nil {
		return nil, s.mapWriteError(ctx, err, in.OrderID, in.TargetStatus)
	}

	s.Dispatcher.Submit(s.buildEvent(order, plan, outcome))
	return order, nil
}

func (s *Service) applyPlan(order *models.Order, plan *lifecycle.Plan, outcome *payment.Outcome) {
	order.Status = plan.To
	order.StatusHistory = append(order.StatusHistory, plan.Entry)
	order.ProcessingError = nil
	if plan.ActualEndTime != nil {
		order.CompletedAt = plan.ActualEndTime
	}
	if outcome.PaymentStatus != "" {
		order.PaymentStatus = outcome.PaymentStatus
	}
	if outcome.Action == payment.ActionVoid && !outcome.VoidFailed {
		order.AuthorizationID = ""
	}
	order.UpdatedAt = time.Now().UTC()
}

// mapWriteError turns a failed precondition into the taxonomy error the
// caller expects: the row is either gone or was moved by a concurrent
// writer.
func (s *Service) mapWriteError(ctx context.Context, err error, orderID, target string) error {
	if !errors.Is(err, ordersdb.ErrPreconditionFailed) {
		return err
	}
	current, fetchErr := s.DB.GetOrderByID(ctx, orderID)
	if fetchErr != nil {
		return fetchErr
	}
	return errs.InvalidTransition(orderID, current.Status, target)
}

func (s *Service) buildEvent(order *models.Order, plan *lifecycle.Plan, outcome *payment.Outcome) sideeffects.Event {
	ev := sideeffects.Event{
		EntityType: string(lifecycle.EntityOrder),
		EntityID:   order.OrderID,
		Action:     "status_update",
		ActorID:    plan.Entry.ActorID,
		ActorRole:  plan.Entry.ActorRole,
		FromStatus: plan.From,
		ToStatus:   plan.To,
		Payload: map[string]string{
			"payment_action": outcome.Action.String(),
		},
	}
	if plan.Reason != "" {
		ev.Payload["reason"] = plan.Reason
	}

	switch plan.To {
	case models.OrderReady:
		ev.Notifications = append(ev.Notifications, models.Notification{
			RecipientID: order.CustomerID,
			TemplateKey: "order_ready",
		})
		ev.PickupCode = &sideeffects.PickupCodeRequest{
			OrderID:    order.OrderID,
			BoxID:      order.BoxID,
			CustomerID: order.CustomerID,
		}
	case models.OrderCompleted:
		ev.Notifications = append(ev.Notifications, models.Notification{
			RecipientID: order.CustomerID,
			TemplateKey: "order_completed",
		})
	case models.OrderCancelled:
		ev.Notifications = append(ev.Notifications, models.Notification{
			RecipientID: order.CustomerID,
			TemplateKey: "order_cancelled",
			Params:      reasonParams(plan.Reason),
		})
	}

	if outcome.VoidFailed {
		ev.Alerts = append(ev.Alerts, models.Notification{
			RecipientID: "ops",
			TemplateKey: "payment_void_failed",
			Params: map[string]string{
				"order_id":         order.OrderID,
				"authorization_id": order.AuthorizationID,
			},
		})
	}
	if outcome.RefundRequested {
		ev.Alerts = append(ev.Alerts, models.Notification{
			RecipientID: "ops",
			TemplateKey: "refund_requested",
			Params: map[string]string{
				"order_id": order.OrderID,
				"amount":   fmt.Sprintf("%d", order.AuthorizedAmount),
				"currency": order.CurrencyCode,
			},
		})
	}
	return ev
}

func restockAdjustments(items []models.OrderItem) []inventory.Adjustment {
	adjustments := make([]inventory.Adjustment, 0, len(items))
	for _, item := range items {
		adjustments = append(adjustments, inventory.Adjustment{
			ProductID: item.ProductID,
			Delta:     item.Quantity,
		})
	}
	return adjustments
}

func reasonParams(reason string) map[string]string {
	if reason == "" {
		return nil
	}
	return map[string]string{"reason": reason}
}
