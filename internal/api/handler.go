package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-fulfillment/internal/bookings"
	"ms-fulfillment/internal/errs"
	"ms-fulfillment/internal/inventory"
	"ms-fulfillment/internal/lifecycle"
	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/models"
	"ms-fulfillment/internal/orders"
)

// PermAdjustInventory guards the manual stock adjustment endpoint.
const PermAdjustInventory = "inventory.adjust"

type OrderService interface {
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	UpdateStatus(ctx context.Context, in orders.UpdateStatusInput) (*models.Order, error)
}

type BookingService interface {
	GetBooking(ctx context.Context, bookingID string) (*models.EventBooking, error)
	Approve(ctx context.Context, in bookings.ApproveInput) (*models.EventBooking, error)
	Confirm(ctx context.Context, in bookings.ConfirmInput) (*models.EventBooking, error)
	AssignResources(ctx context.Context, in bookings.AssignResourcesInput) (*models.EventBooking, error)
	UpdateStatus(ctx context.Context, in bookings.UpdateStatusInput) (*models.EventBooking, error)
}

type InventoryService interface {
	ApplyAdjustments(ctx context.Context, boxID string, adjustments []inventory.Adjustment, reason string) error
}

type PermissionChecker interface {
	HasPermission(ctx context.Context, actorID, claimedRole, permissionID string) bool
}

type Handler struct {
	Orders    OrderService
	Bookings  BookingService
	Inventory InventoryService
	Perms     PermissionChecker
	Logger    *logger.Logger
}

func NewHandler(orderService OrderService, bookingService BookingService, inventoryService InventoryService,
	perms PermissionChecker, log *logger.Logger) *Handler {
	return &Handler{
		Orders:    orderService,
		Bookings:  bookingService,
		Inventory: inventoryService,
		Perms:     perms,
		Logger:    log,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Route("/orders/{orderId}", func(r chi.Router) {
			r.Get("/", h.GetOrder)
			r.Post("/status", h.UpdateOrderStatus)
		})
		r.Route("/bookings/{bookingId}", func(r chi.Router) {
			r.Get("/", h.GetBooking)
			r.Post("/approval", h.ApproveBooking)
			r.Post("/confirmation", h.ConfirmBooking)
			r.Post("/resources", h.AssignResources)
			r.Post("/status", h.UpdateBookingStatus)
		})
		r.Post("/boxes/{boxId}/inventory/adjustments", h.AdjustInventory)
	})
	return r
}

type statusUpdateRequest struct {
	TargetStatus    string     `json:"target_status"`
	Reason          string     `json:"reason,omitempty"`
	ActualStartTime *time.Time `json:"actual_start_time,omitempty"`
	ActualEndTime   *time.Time `json:"actual_end_time,omitempty"`
}

type approvalRequest struct {
	Approved bool   `json:"approved"`
	Notes    string `json:"notes,omitempty"`
}

type resourcesRequest struct {
	Resources   map[string][]string `json:"resources"`
	LeadActorID string              `json:"lead_actor_id,omitempty"`
}

type adjustmentsRequest struct {
	Adjustments []inventory.Adjustment `json:"adjustments"`
	Reason      string                 `json:"reason,omitempty"`
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	h.Logger.Info("API", fmt.Sprintf("GetOrder: orderId=%s", orderID))

	order, err := h.Orders.GetOrder(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "order", map[string]interface{}{
		"order":           order,
		"allowed_targets": lifecycle.AllowedTargets(lifecycle.EntityOrder, order.Status),
	})
}

func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	actor, err := ExtractActor(r)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("UpdateOrderStatus: %v", err))
		writeError(w, errs.Unauthenticated())
		return
	}

	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.InvalidArgument("error.invalid_request_body"))
		return
	}
	h.Logger.Info("API", fmt.Sprintf("UpdateOrderStatus: orderId=%s target=%s actor=%s", orderID, req.TargetStatus, actor.ID))

	order, err := h.Orders.UpdateStatus(r.Context(), orders.UpdateStatusInput{
		OrderID:      orderID,
		ActorID:      actor.ID,
		ActorRole:    actor.Role,
		TargetStatus: req.TargetStatus,
		Details:      detailsFor(req),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "order status updated", order)
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	h.Logger.Info("API", fmt.Sprintf("GetBooking: bookingId=%s", bookingID))

	booking, err := h.Bookings.GetBooking(r.Context(), bookingID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "booking", map[string]interface{}{
		"booking":         booking,
		"allowed_targets": lifecycle.AllowedTargets(lifecycle.EntityBooking, booking.BookingStatus),
	})
}

func (h *Handler) ApproveBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	actor, err := ExtractActor(r)
	if err != nil {
		writeError(w, errs.Unauthenticated())
		return
	}

	var req approvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.InvalidArgument("error.invalid_request_body"))
		return
	}
	h.Logger.Info("API", fmt.Sprintf("ApproveBooking: bookingId=%s approved=%t actor=%s", bookingID, req.Approved, actor.ID))

	booking, err := h.Bookings.Approve(r.Context(), bookings.ApproveInput{
		BookingID: bookingID,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Approved:  req.Approved,
		Notes:     req.Notes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "approval recorded", booking)
}

func (h *Handler) ConfirmBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	actor, err := ExtractActor(r)
	if err != nil {
		writeError(w, errs.Unauthenticated())
		return
	}
	h.Logger.Info("API", fmt.Sprintf("ConfirmBooking: bookingId=%s actor=%s", bookingID, actor.ID))

	booking, err := h.Bookings.Confirm(r.Context(), bookings.ConfirmInput{
		BookingID: bookingID,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "booking confirmed", booking)
}

func (h *Handler) AssignResources(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	actor, err := ExtractActor(r)
	if err != nil {
		writeError(w, errs.Unauthenticated())
		return
	}

	var req resourcesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.InvalidArgument("error.invalid_request_body"))
		return
	}
	h.Logger.Info("API", fmt.Sprintf("AssignResources: bookingId=%s actor=%s", bookingID, actor.ID))

	booking, err := h.Bookings.AssignResources(r.Context(), bookings.AssignResourcesInput{
		BookingID:   bookingID,
		ActorID:     actor.ID,
		ActorRole:   actor.Role,
		Resources:   req.Resources,
		LeadActorID: req.LeadActorID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "resources assigned", booking)
}

func (h *Handler) UpdateBookingStatus(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	actor, err := ExtractActor(r)
	if err != nil {
		writeError(w, errs.Unauthenticated())
		return
	}

	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.InvalidArgument("error.invalid_request_body"))
		return
	}
	h.Logger.Info("API", fmt.Sprintf("UpdateBookingStatus: bookingId=%s target=%s actor=%s", bookingID, req.TargetStatus, actor.ID))

	booking, err := h.Bookings.UpdateStatus(r.Context(), bookings.UpdateStatusInput{
		BookingID:    bookingID,
		ActorID:      actor.ID,
		ActorRole:    actor.Role,
		TargetStatus: req.TargetStatus,
		Details:      detailsFor(req),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "booking status updated", booking)
}

func (h *Handler) AdjustInventory(w http.ResponseWriter, r *http.Request) {
	boxID := chi.URLParam(r, "boxId")
	actor, err := ExtractActor(r)
	if err != nil {
		writeError(w, errs.Unauthenticated())
		return
	}
	if !h.Perms.HasPermission(r.Context(), actor.ID, actor.Role, PermAdjustInventory) {
		writeError(w, errs.PermissionDenied(actor.ID))
		return
	}

	var req adjustmentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.InvalidArgument("error.invalid_request_body"))
		return
	}
	h.Logger.Info("API", fmt.Sprintf("AdjustInventory: boxId=%s entries=%d actor=%s", boxID, len(req.Adjustments), actor.ID))

	if err := h.Inventory.ApplyAdjustments(r.Context(), boxID, req.Adjustments, req.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "adjustments applied", nil)
}

// detailsFor maps the request body onto the detail variant the target
// status accepts. Unrelated fields are dropped rather than rejected.
func detailsFor(req statusUpdateRequest) lifecycle.Details {
	switch req.TargetStatus {
	case models.OrderCancelled, models.BookingRejected:
		return lifecycle.CancelDetails{Reason: req.Reason}
	case models.BookingDelayed:
		return lifecycle.DelayDetails{Reason: req.Reason}
	case models.BookingRequiresAttention:
		return lifecycle.AttentionDetails{Reason: req.Reason}
	case models.OrderCompleted:
		return lifecycle.CompleteDetails{ActualEndTime: req.ActualEndTime}
	case models.BookingInProgress:
		return lifecycle.StartDetails{ActualStartTime: req.ActualStartTime}
	default:
		return nil
	}
}
