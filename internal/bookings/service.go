package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-fulfillment/internal/bookings/db"
	"ms-fulfillment/internal/calendar"
	"ms-fulfillment/internal/errs"
	"ms-fulfillment/internal/lifecycle"
	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/models"
	"ms-fulfillment/internal/payment"
	"ms-fulfillment/internal/sideeffects"
)

const (
	PermApproveBooking      = "bookings.approve"
	PermConfirmBooking      = "bookings.confirm"
	PermAssignResources     = "bookings.assign_resources"
	PermUpdateBookingStatus = "bookings.update_status"
)

type Store interface {
	GetBookingByID(ctx context.Context, id string) (*models.EventBooking, error)
	UpdateBookingStatus(ctx context.Context, booking *models.EventBooking, expectedStatus string) error
	UpdateAssignment(ctx context.Context, booking *models.EventBooking, expectedStatus string) error
	SetProcessingError(ctx context.Context, bookingID, message string) error
	SetCalendarSync(ctx context.Context, bookingID, calendarEventID string, needsManualSync bool) error
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

// ResourceLocker serializes resource assignment across bookings.
type ResourceLocker interface {
	LockResources(resourceIDs []string, bookingID string) (bool, error)
	UnlockResources(resourceIDs []string, bookingID string) error
}

// CalendarClient creates the external calendar entry for a confirmed
// booking.
type CalendarClient interface {
	CreateEvent(ctx context.Context, req calendar.EventRequest) (string, error)
}

// Service drives the event booking lifecycle: admin approval, customer
// confirmation with immediate charge, resource assignment under locks,
// and the remaining status moves.
type Service struct {
	DB         Store
	Perms      PermissionChecker
	Payments   PaymentCoordinator
	Dispatcher Dispatcher
	Engine     *lifecycle.Engine
	Locks      ResourceLocker
	Calendar   CalendarClient
	Logger     *logger.Logger
}

func NewService(store Store, perms PermissionChecker, payments PaymentCoordinator, dispatcher Dispatcher,
	engine *lifecycle.Engine, locks ResourceLocker, cal CalendarClient, log *logger.Logger) *Service {
	return &Service{
		DB:         store,
		Perms:      perms,
		Payments:   payments,
		Dispatcher: dispatcher,
		Engine:     engine,
		Locks:      locks,
		Calendar:   cal,
		Logger:     log,
	}
}

// GetBooking fetches one event booking.
func (s *Service) GetBooking(ctx context.Context, bookingID string) (*models.EventBooking, error) {
	return s.DB.GetBookingByID(ctx, bookingID)
}

type ApproveInput struct {
	BookingID string
	ActorID   string
	ActorRole string
	Approved  bool
	Notes     string
}

// Approve records the admin decision on a pending booking: approval
// forwards it to the customer, rejection is terminal.
func (s *Service) Approve(ctx context.Context, in ApproveInput) (*models.EventBooking, error) {
	target := models.BookingPendingCustomerConfirmation
	var details lifecycle.Details
	if !in.Approved {
		target = models.BookingRejected
		if in.Notes != "" {
			details = lifecycle.CancelDetails{Reason: in.Notes}
		}
	}

	return s.transition(ctx, PermApproveBooking, UpdateStatusInput{
		BookingID:    in.BookingID,
		ActorID:      in.ActorID,
		ActorRole:    in.ActorRole,
		TargetStatus: target,
		Details:      details,
	}, func(booking *models.EventBooking) {
		booking.AdminApproval = &models.AdminApprovalDetails{
			Approved:  in.Approved,
			ActorID:   in.ActorID,
			Timestamp: time.Now().UTC(),
			Notes:     in.Notes,
		}
	})
}

type ConfirmInput struct {
	BookingID string
	ActorID   string
	ActorRole string
}

// Confirm executes the customer confirmation: the booking is charged
// immediately and, on success, the calendar entry is created.
func (s *Service) Confirm(ctx context.Context, in ConfirmInput) (*models.EventBooking, error) {
	return s.transition(ctx, PermConfirmBooking, UpdateStatusInput{
		BookingID:    in.BookingID,
		ActorID:      in.ActorID,
		ActorRole:    in.ActorRole,
		TargetStatus: models.BookingConfirmed,
	}, nil)
}

type UpdateStatusInput struct {
	BookingID    string
	ActorID      string
	ActorRole    string
	TargetStatus string
	Details      lifecycle.Details
}

// UpdateStatus moves a booking to a new status through the generic
// transition path.
func (s *Service) UpdateStatus(ctx context.Context, in UpdateStatusInput) (*models.EventBooking, error) {
	return s.transition(ctx, PermUpdateBookingStatus, in, nil)
}

func (s *Service) transition(ctx context.Context, permission string, in UpdateStatusInput,
	mutate func(*models.EventBooking)) (*models.EventBooking, error) {
	if in.ActorID == "" {
		return nil, errs.Unauthenticated()
	}
	if !s.Perms.HasPermission(ctx, in.ActorID, in.ActorRole, permission) {
		return nil, errs.PermissionDenied(in.ActorID)
	}

	booking, err := s.DB.GetBookingByID(ctx, in.BookingID)
	if err != nil {
		return nil, err
	}

	plan, err := s.Engine.Plan(lifecycle.EntityBooking, booking.BookingID, booking.BookingStatus, in.TargetStatus,
		lifecycle.Actor{ID: in.ActorID, Role: in.ActorRole}, in.Details)
	if err != nil {
		return nil, err
	}
	if plan.NoOp {
		return booking, nil
	}

	outcome, err := s.Payments.Execute(ctx, payment.Input{
		EntityType:    lifecycle.EntityBooking,
		EntityID:      booking.BookingID,
		From:          plan.From,
		To:            plan.To,
		CustomerID:    booking.CustomerID,
		PaymentStatus: booking.PaymentStatus,
		Amount:        booking.TotalAmount,
		Currency:      booking.CurrencyCode,
	})
	if err != nil {
		// The status is untouched; the failure is recorded on the booking
		// so operators can see why the transition did not land.
		if dbErr := s.DB.SetProcessingError(ctx, booking.BookingID, err.Error()); dbErr != nil {
			s.Logger.Error("BOOKINGS", fmt.Sprintf("Failed to record processing error on %s: %v", booking.BookingID, dbErr))
		}
		return nil, err
	}

	s.applyPlan(booking, plan, outcome)
	if mutate != nil {
		mutate(booking)
	}

	if err := s.DB.UpdateBookingStatus(ctx, booking, plan.From); err != nil {
		return nil, s.mapWriteError(ctx, err, in.BookingID, in.TargetStatus)
	}

	if plan.To == models.BookingConfirmed && booking.CalendarEventID == "" {
		s.syncCalendar(ctx, booking)
	}

	s.Dispatcher.Submit(s.buildEvent(booking, plan, outcome))
	return booking, nil
}

func (s *Service) applyPlan(booking *models.EventBooking, plan *lifecycle.Plan, outcome *payment.Outcome) {
	booking.BookingStatus = plan.To
	booking.StatusHistory = append(booking.StatusHistory, plan.Entry)
	booking.ProcessingError = nil
	if plan.ActualStartTime != nil {
		booking.ActualStartTime = plan.ActualStartTime
	}
	if plan.ActualEndTime != nil {
		booking.ActualEndTime = plan.ActualEndTime
	}
	if outcome.PaymentStatus != "" {
		booking.PaymentStatus = outcome.PaymentStatus
	}
	if outcome.TransactionID != "" {
		booking.TransactionID = outcome.TransactionID
	}
	booking.ActionURL = outcome.ActionURL
	booking.UpdatedAt = time.Now().UTC()
}

// syncCalendar runs after the status commit; a failure never rolls the
// confirmation back, it flags the booking for a manual follow-up instead.
func (s *Service) syncCalendar(ctx context.Context, booking *models.EventBooking) {
	if s.Calendar == nil {
		return
	}

	eventID, err := s.Calendar.CreateEvent(ctx, calendar.EventRequest{
		BookingID: booking.BookingID,
		BoxID:     booking.BoxID,
		Title:     "Event booking " + booking.BookingID,
		StartTime: booking.ScheduledStart,
	})
	if err != nil {
		s.Logger.Warn("CALENDAR", fmt.Sprintf("Calendar sync failed for booking %s, flagging for manual follow-up: %v", booking.BookingID, err))
		booking.NeedsManualSync = true
		if dbErr := s.DB.SetCalendarSync(ctx, booking.BookingID, "", true); dbErr != nil {
			s.Logger.Error("CALENDAR", fmt.Sprintf("Failed to flag booking %s for manual sync: %v", booking.BookingID, dbErr))
		}
		return
	}

	booking.CalendarEventID = eventID
	booking.NeedsManualSync = false
	if dbErr := s.DB.SetCalendarSync(ctx, booking.BookingID, eventID, false); dbErr != nil {
		s.Logger.Error("CALENDAR", fmt.Sprintf("Failed to store calendar event %s on booking %s: %v", eventID, booking.BookingID, dbErr))
	}
}

type AssignResourcesInput struct {
	BookingID   string
	ActorID     string
	ActorRole   string
	Resources   map[string][]string
	LeadActorID string
}

// AssignResources writes the staff and equipment assignment for a
// confirmed or scheduled booking. The individual resources are locked
// for the duration of the write so two bookings cannot claim the same
// resource concurrently.
func (s *Service) AssignResources(ctx context.Context, in AssignResourcesInput) (*models.EventBooking, error) {
	if in.ActorID == "" {
		return nil, errs.Unauthenticated()
	}
	if !s.Perms.HasPermission(ctx, in.ActorID, in.ActorRole, PermAssignResources) {
		return nil, errs.PermissionDenied(in.ActorID)
	}

	resourceIDs := flattenResources(in.Resources)
	if len(resourceIDs) == 0 {
		return nil, errs.InvalidArgument("error.no_resources_given")
	}

	booking, err := s.DB.GetBookingByID(ctx, in.BookingID)
	if err != nil {
		return nil, err
	}
	if !assignable(booking.BookingStatus) {
		return nil, errs.InvalidArgument("error.booking_not_assignable")
	}

	locked, err := s.Locks.LockResources(resourceIDs, in.BookingID)
	if err != nil {
		return nil, errs.Internal(err)
	}
	if !locked {
		return nil, errs.InvalidArgument("error.resources_unavailable")
	}
	defer func() {
		if unlockErr := s.Locks.UnlockResources(resourceIDs, in.BookingID); unlockErr != nil {
			s.Logger.Warn("REDIS", fmt.Sprintf("Failed to release resource locks for booking %s: %v", in.BookingID, unlockErr))
		}
	}()

	expectedStatus := booking.BookingStatus
	booking.AssignedResources = in.Resources
	booking.AssignedLeadActorID = in.LeadActorID
	booking.UpdatedAt = time.Now().UTC()

	if err := s.DB.UpdateAssignment(ctx, booking, expectedStatus); err != nil {
		if errors.Is(err, db.ErrPreconditionFailed) {
			return nil, errs.InvalidArgument("error.booking_not_assignable")
		}
		return nil, err
	}

	ev := sideeffects.Event{
		EntityType: string(lifecycle.EntityBooking),
		EntityID:   booking.BookingID,
		Action:     "resources_assigned",
		ActorID:    in.ActorID,
		ActorRole:  in.ActorRole,
		FromStatus: expectedStatus,
		ToStatus:   expectedStatus,
		Payload:    map[string]string{"lead_actor_id": in.LeadActorID},
	}
	if in.LeadActorID != "" {
		ev.Notifications = append(ev.Notifications, models.Notification{
			RecipientID: in.LeadActorID,
			TemplateKey: "booking_assigned",
			Params:      map[string]string{"booking_id": booking.BookingID},
		})
	}
	s.Dispatcher.Submit(ev)

	return booking, nil
}

func (s *Service) mapWriteError(ctx context.Context, err error, bookingID, target string) error {
	if !errors.Is(err, db.ErrPreconditionFailed) {
		return err
	}
	current, fetchErr := s.DB.GetBookingByID(ctx, bookingID)
	if fetchErr != nil {
		return fetchErr
	}
	return errs.InvalidTransition(bookingID, current.BookingStatus, target)
}

func (s *Service) buildEvent(booking *models.EventBooking, plan *lifecycle.Plan, outcome *payment.Outcome) sideeffects.Event {
	ev := sideeffects.Event{
		EntityType: string(lifecycle.EntityBooking),
		EntityID:   booking.BookingID,
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

	notify := func(templateKey string, params map[string]string) {
		ev.Notifications = append(ev.Notifications, models.Notification{
			RecipientID: booking.CustomerID,
			TemplateKey: templateKey,
			Params:      params,
		})
	}

	switch plan.To {
	case models.BookingPendingCustomerConfirmation:
		notify("booking_approved", nil)
	case models.BookingRejected:
		notify("booking_rejected", reasonParams(plan.Reason))
	case models.BookingConfirmed:
		if outcome.ActionURL != "" {
			notify("booking_payment_action_required", map[string]string{"action_url": outcome.ActionURL})
		} else {
			notify("booking_confirmed", nil)
		}
	case models.BookingDelayed:
		notify("booking_delayed", reasonParams(plan.Reason))
	case models.BookingCancelled:
		notify("booking_cancelled", reasonParams(plan.Reason))
	case models.BookingCompleted:
		notify("booking_completed", nil)
	case models.BookingRequiresAttention:
		ev.Alerts = append(ev.Alerts, models.Notification{
			RecipientID: "ops",
			TemplateKey: "booking_requires_attention",
			Params:      reasonParams(plan.Reason),
		})
	}

	if booking.NeedsManualSync && plan.To == models.BookingConfirmed {
		ev.Alerts = append(ev.Alerts, models.Notification{
			RecipientID: "ops",
			TemplateKey: "calendar_sync_failed",
			Params:      map[string]string{"booking_id": booking.BookingID},
		})
	}
	if outcome.RefundRequested {
		ev.Alerts = append(ev.Alerts, models.Notification{
			RecipientID: "ops",
			TemplateKey: "refund_requested",
			Params: map[string]string{
				"booking_id": booking.BookingID,
				"amount":     fmt.Sprintf("%d", booking.TotalAmount),
				"currency":   booking.CurrencyCode,
			},
		})
	}
	return ev
}

func assignable(status string) bool {
	return status == models.BookingConfirmed || status == models.BookingScheduled
}

func flattenResources(resources map[string][]string) []string {
	var ids []string
	for _, group := range resources {
		ids = append(ids, group...)
	}
	return ids
}

func reasonParams(reason string) map[string]string {
	if reason == "" {
		return nil
	}
	return map[string]string{"reason": reason}
}
