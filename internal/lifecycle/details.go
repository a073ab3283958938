package lifecycle

import (
	"time"

	"ms-fulfillment/internal/errs"
	"ms-fulfillment/internal/models"
)

// Details carries the target-status-specific fields of a transition
// request. Each target status accepts exactly one variant, so an invalid
// combination (say, an end time on a cancellation) cannot be built.
type Details interface {
	details()
}

// CancelDetails applies to Cancelled and Rejected targets. Reason is
// optional and stored in the history entry when present.
type CancelDetails struct {
	Reason string
}

// DelayDetails applies to the Delayed target. Reason is required.
type DelayDetails struct {
	Reason string
}

// AttentionDetails applies to the RequiresAttention target. Reason is
// required.
type AttentionDetails struct {
	Reason string
}

// CompleteDetails applies to Completed targets. ActualEndTime defaults to
// the transition timestamp when nil.
type CompleteDetails struct {
	ActualEndTime *time.Time
}

// StartDetails applies to the InProgress target. ActualStartTime defaults
// to the transition timestamp when nil.
type StartDetails struct {
	ActualStartTime *time.Time
}

func (CancelDetails) details()    {}
func (DelayDetails) details()     {}
func (AttentionDetails) details() {}
func (CompleteDetails) details()  {}
func (StartDetails) details()     {}

// validateDetails checks the variant against the target status. Runs
// before the transition table is consulted, so a missing required reason
// is an INVALID_ARGUMENT, never an INVALID_STATUS_TRANSITION.
func validateDetails(entityType EntityType, target string, details Details) error {
	switch target {
	case models.BookingDelayed:
		d, ok := details.(DelayDetails)
		if !ok || d.Reason == "" {
			return errs.InvalidArgument("error.reason_required")
		}
	case models.BookingRequiresAttention:
		d, ok := details.(AttentionDetails)
		if !ok || d.Reason == "" {
			return errs.InvalidArgument("error.reason_required")
		}
	case models.OrderCancelled, models.BookingRejected:
		// models.BookingCancelled shares the "cancelled" value with
		// models.OrderCancelled, so both entity types land here.
		if details != nil {
			if _, ok := details.(CancelDetails); !ok {
				return errs.InvalidArgument("error.invalid_details")
			}
		}
	case models.OrderCompleted:
		if details != nil {
			if _, ok := details.(CompleteDetails); !ok {
				return errs.InvalidArgument("error.invalid_details")
			}
		}
	case models.BookingInProgress:
		if details != nil {
			if _, ok := details.(StartDetails); !ok {
				return errs.InvalidArgument("error.invalid_details")
			}
		}
	default:
		if details != nil {
			return errs.InvalidArgument("error.invalid_details")
		}
	}
	return nil
}

func reasonOf(details Details) string {
	switch d := details.(type) {
	case CancelDetails:
		return d.Reason
	case DelayDetails:
		return d.Reason
	case AttentionDetails:
		return d.Reason
	default:
		return ""
	}
}
