package lifecycle

import "ms-fulfillment/internal/models"

type EntityType string

const (
	EntityOrder   EntityType = "order"
	EntityBooking EntityType = "event_booking"
)

// orderTransitions defines the valid order state transitions. The key is
// the current status, the value the set of allowed next statuses.
var orderTransitions = map[string][]string{
	models.OrderPlaced: {models.OrderPreparing, models.OrderCancelled},
	// Couriers may complete a handover straight from preparing, skipping
	// the ready step.
	models.OrderPreparing: {models.OrderReady, models.OrderCompleted, models.OrderCancelled},
	models.OrderReady:     {models.OrderCompleted, models.OrderCancelled},
	models.OrderCompleted: {}, // Terminal state
	models.OrderCancelled: {}, // Terminal state
}

// bookingTransitions defines the valid event booking transitions.
// RequiresAttention is the escape hatch reachable from every non-terminal
// status; Delayed can return to Preparing or InProgress.
var bookingTransitions = map[string][]string{
	models.BookingPendingAdminApproval: {
		models.BookingPendingCustomerConfirmation,
		models.BookingRejected,
		models.BookingRequiresAttention,
	},
	models.BookingPendingCustomerConfirmation: {
		models.BookingConfirmed,
		models.BookingCancelled,
		models.BookingRequiresAttention,
	},
	models.BookingConfirmed: {
		models.BookingScheduled,
		models.BookingCancelled,
		models.BookingRequiresAttention,
	},
	models.BookingScheduled: {
		models.BookingPreparing,
		models.BookingCancelled,
		models.BookingRequiresAttention,
	},
	models.BookingPreparing: {
		models.BookingInProgress,
		models.BookingDelayed,
		models.BookingRequiresAttention,
	},
	models.BookingInProgress: {
		models.BookingCompleted,
		models.BookingDelayed,
		models.BookingRequiresAttention,
	},
	models.BookingDelayed: {
		models.BookingPreparing,
		models.BookingInProgress,
		models.BookingCancelled,
		models.BookingRequiresAttention,
	},
	models.BookingRequiresAttention: {
		models.BookingConfirmed,
		models.BookingScheduled,
		models.BookingCancelled,
	},
	models.BookingCompleted: {}, // Terminal state
	models.BookingRejected:  {}, // Terminal state
	models.BookingCancelled: {}, // Terminal state
}

func tableFor(entityType EntityType) map[string][]string {
	if entityType == EntityOrder {
		return orderTransitions
	}
	return bookingTransitions
}

// KnownStatus reports whether status belongs to the entity type's
// enumeration.
func KnownStatus(entityType EntityType, status string) bool {
	_, ok := tableFor(entityType)[status]
	return ok
}

// CanTransition checks if a transition from one status to another is
// allowed for the entity type.
func CanTransition(entityType EntityType, from, to string) bool {
	allowed, exists := tableFor(entityType)[from]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// AllowedTargets returns a copy of the allowed next statuses.
func AllowedTargets(entityType EntityType, from string) []string {
	allowed := tableFor(entityType)[from]
	out := make([]string, len(allowed))
	copy(out, allowed)
	return out
}
