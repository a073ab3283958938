package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ms-fulfillment/internal/errs"
	"ms-fulfillment/internal/models"
)

var testActor = Actor{ID: "user-1", Role: "courier"}

func fixedClockEngine() *Engine {
	e := NewEngine(nil)
	e.Now = func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	return e
}

func TestPlanHappyPath(t *testing.T) {
	e := fixedClockEngine()

	plan, err := e.Plan(EntityOrder, "o1", models.OrderPreparing, models.OrderReady, testActor, nil)

	assert.NoError(t, err)
	assert.False(t, plan.NoOp)
	assert.Equal(t, models.OrderPreparing, plan.Entry.From)
	assert.Equal(t, models.OrderReady, plan.Entry.To)
	assert.Equal(t, "user-1", plan.Entry.ActorID)
	assert.Equal(t, "courier", plan.Entry.ActorRole)
}

func TestPlanSameStatusIsNoOp(t *testing.T) {
	e := fixedClockEngine()

	// Idempotent retries of the same request never error, for every
	// status of both entity types, regardless of details.
	for status := range orderTransitions {
		plan, err := e.Plan(EntityOrder, "o1", status, status, testActor, nil)
		assert.NoError(t, err, "order status %s", status)
		assert.True(t, plan.NoOp)
	}
	for status := range bookingTransitions {
		plan, err := e.Plan(EntityBooking, "b1", status, status, testActor, nil)
		assert.NoError(t, err, "booking status %s", status)
		assert.True(t, plan.NoOp)
	}
}

func TestPlanTableClosure(t *testing.T) {
	e := fixedClockEngine()

	// Every (from, to) pair not explicitly allowed must fail with
	// INVALID_STATUS_TRANSITION.
	for from := range orderTransitions {
		for to := range orderTransitions {
			if from == to || CanTransition(EntityOrder, from, to) {
				continue
			}
			details := detailsForTarget(to)
			_, err := e.Plan(EntityOrder, "o1", from, to, testActor, details)
			assert.Error(t, err, "%s -> %s", from, to)
			assert.Equal(t, errs.CodeInvalidTransition, errs.CodeOf(err), "%s -> %s", from, to)
		}
	}
	for from := range bookingTransitions {
		for to := range bookingTransitions {
			if from == to || CanTransition(EntityBooking, from, to) {
				continue
			}
			details := detailsForTarget(to)
			_, err := e.Plan(EntityBooking, "b1", from, to, testActor, details)
			assert.Error(t, err, "%s -> %s", from, to)
			assert.Equal(t, errs.CodeInvalidTransition, errs.CodeOf(err), "%s -> %s", from, to)
		}
	}
}

func detailsForTarget(target string) Details {
	switch target {
	case models.BookingDelayed:
		return DelayDetails{Reason: "late supplier"}
	case models.BookingRequiresAttention:
		return AttentionDetails{Reason: "manual check"}
	default:
		return nil
	}
}

func TestPlanInvalidTransitionCarriesPair(t *testing.T) {
	e := fixedClockEngine()

	_, err := e.Plan(EntityOrder, "o1", models.OrderPlaced, models.OrderCompleted, testActor, nil)

	assert.Error(t, err)
	appErr, ok := err.(*errs.Error)
	assert.True(t, ok)
	assert.Equal(t, models.OrderPlaced, appErr.From)
	assert.Equal(t, models.OrderCompleted, appErr.To)
	assert.Equal(t, "o1", appErr.EntityID)
}

func TestPlanUnknownTargetStatus(t *testing.T) {
	e := fixedClockEngine()

	_, err := e.Plan(EntityOrder, "o1", models.OrderPlaced, "shipped", testActor, nil)

	assert.Equal(t, errs.CodeInvalidArgument, errs.CodeOf(err))
}

func TestPlanDelayedRequiresReason(t *testing.T) {
	e := fixedClockEngine()

	// Missing reason fails validation even though Confirmed -> Delayed is
	// not in the table: the details check runs first.
	_, err := e.Plan(EntityBooking, "b1", models.BookingConfirmed, models.BookingDelayed, testActor, nil)
	assert.Equal(t, errs.CodeInvalidArgument, errs.CodeOf(err))

	_, err = e.Plan(EntityBooking, "b1", models.BookingConfirmed, models.BookingDelayed, testActor, DelayDetails{})
	assert.Equal(t, errs.CodeInvalidArgument, errs.CodeOf(err))

	// With a reason the table lookup takes over and rejects the pair.
	_, err = e.Plan(EntityBooking, "b1", models.BookingConfirmed, models.BookingDelayed, testActor, DelayDetails{Reason: "storm"})
	assert.Equal(t, errs.CodeInvalidTransition, errs.CodeOf(err))

	// From Preparing the delay is legal and the reason is stored.
	plan, err := e.Plan(EntityBooking, "b1", models.BookingPreparing, models.BookingDelayed, testActor, DelayDetails{Reason: "storm"})
	assert.NoError(t, err)
	assert.Equal(t, "storm", plan.Entry.Reason)
}

func TestPlanRequiresAttentionRequiresReason(t *testing.T) {
	e := fixedClockEngine()

	_, err := e.Plan(EntityBooking, "b1", models.BookingScheduled, models.BookingRequiresAttention, testActor, nil)
	assert.Equal(t, errs.CodeInvalidArgument, errs.CodeOf(err))

	plan, err := e.Plan(EntityBooking, "b1", models.BookingScheduled, models.BookingRequiresAttention, testActor, AttentionDetails{Reason: "double booking"})
	assert.NoError(t, err)
	assert.Equal(t, "double booking", plan.Reason)
}

func TestPlanCompletedDefaultsEndTime(t *testing.T) {
	e := fixedClockEngine()

	plan, err := e.Plan(EntityOrder, "o1", models.OrderReady, models.OrderCompleted, testActor, nil)
	assert.NoError(t, err)
	assert.NotNil(t, plan.ActualEndTime)
	assert.Equal(t, e.Now(), *plan.ActualEndTime)

	supplied := time.Date(2025, 5, 30, 9, 0, 0, 0, time.UTC)
	plan, err = e.Plan(EntityOrder, "o1", models.OrderReady, models.OrderCompleted, testActor, CompleteDetails{ActualEndTime: &supplied})
	assert.NoError(t, err)
	assert.Equal(t, supplied, *plan.ActualEndTime)
}

func TestPlanInProgressDefaultsStartTime(t *testing.T) {
	e := fixedClockEngine()

	plan, err := e.Plan(EntityBooking, "b1", models.BookingPreparing, models.BookingInProgress, testActor, nil)
	assert.NoError(t, err)
	assert.NotNil(t, plan.ActualStartTime)
	assert.Equal(t, e.Now(), *plan.ActualStartTime)
}

func TestPlanRejectsMismatchedDetails(t *testing.T) {
	e := fixedClockEngine()

	// An end time on a cancellation is unrepresentable by construction;
	// the closest malformed input is the wrong variant.
	_, err := e.Plan(EntityOrder, "o1", models.OrderPlaced, models.OrderCancelled, testActor, CompleteDetails{})
	assert.Equal(t, errs.CodeInvalidArgument, errs.CodeOf(err))

	_, err = e.Plan(EntityOrder, "o1", models.OrderPlaced, models.OrderPreparing, testActor, CancelDetails{Reason: "nope"})
	assert.Equal(t, errs.CodeInvalidArgument, errs.CodeOf(err))
}

func TestDelayedCanReturnToPreparingAndInProgress(t *testing.T) {
	assert.True(t, CanTransition(EntityBooking, models.BookingDelayed, models.BookingPreparing))
	assert.True(t, CanTransition(EntityBooking, models.BookingDelayed, models.BookingInProgress))
}

func TestRequiresAttentionReachableFromNonTerminals(t *testing.T) {
	terminals := map[string]bool{
		models.BookingCompleted: true,
		models.BookingRejected:  true,
		models.BookingCancelled: true,
	}
	for from := range bookingTransitions {
		if terminals[from] || from == models.BookingRequiresAttention {
			continue
		}
		assert.True(t, CanTransition(EntityBooking, from, models.BookingRequiresAttention), "from %s", from)
	}
	for terminal := range terminals {
		assert.False(t, CanTransition(EntityBooking, terminal, models.BookingRequiresAttention))
	}
}
