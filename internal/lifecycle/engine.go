package lifecycle

import (
	"time"

	"ms-fulfillment/internal/errs"
	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/models"
)

// Actor identifies who requested a transition.
type Actor struct {
	ID   string
	Role string
}

// Plan is the update payload produced by a validated transition. The
// engine never writes it; the caller applies it as a plain update or
// folds it into the same transaction as an inventory change.
type Plan struct {
	EntityType EntityType
	EntityID   string
	From       string
	To         string

	// NoOp marks an idempotent retry: target equals current status. No
	// history entry, no payment or inventory effects.
	NoOp bool

	Entry  models.StatusChange
	Reason string

	ActualStartTime *time.Time
	ActualEndTime   *time.Time
}

// Engine validates transitions against the per-entity-type tables and
// builds the resulting update payloads.
type Engine struct {
	log *logger.Logger

	// Now is injectable for tests.
	Now func() time.Time
}

func NewEngine(log *logger.Logger) *Engine {
	return &Engine{log: log, Now: time.Now}
}

// Plan validates a requested transition and returns the update payload.
//
// Validation order matters: unknown target and malformed details fail
// before the table is consulted, and a same-status request short-circuits
// to an idempotent no-op before anything else can error.
func (e *Engine) Plan(entityType EntityType, entityID, current, target string, actor Actor, details Details) (*Plan, error) {
	if !KnownStatus(entityType, target) {
		return nil, errs.InvalidArgument("error.unknown_status")
	}

	if current == target {
		return &Plan{
			EntityType: entityType,
			EntityID:   entityID,
			From:       current,
			To:         target,
			NoOp:       true,
		}, nil
	}

	if err := validateDetails(entityType, target, details); err != nil {
		return nil, err
	}

	if !CanTransition(entityType, current, target) {
		return nil, errs.InvalidTransition(entityID, current, target)
	}

	now := e.Now()
	plan := &Plan{
		EntityType: entityType,
		EntityID:   entityID,
		From:       current,
		To:         target,
		Reason:     reasonOf(details),
		Entry: models.StatusChange{
			From:      current,
			To:        target,
			Timestamp: now,
			ActorID:   actor.ID,
			ActorRole: actor.Role,
			Reason:    reasonOf(details),
		},
	}

	switch d := details.(type) {
	case CompleteDetails:
		plan.ActualEndTime = d.ActualEndTime
	case StartDetails:
		plan.ActualStartTime = d.ActualStartTime
	}

	// Derived timestamps default to the transition time.
	if target == models.OrderCompleted && plan.ActualEndTime == nil {
		t := now
		plan.ActualEndTime = &t
	}
	if target == models.BookingInProgress && plan.ActualStartTime == nil {
		t := now
		plan.ActualStartTime = &t
	}

	if e.log != nil {
		e.log.LogTransition(string(entityType), entityID, current, target)
	}
	return plan, nil
}
