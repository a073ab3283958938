package models

// Order lifecycle statuses.
const (
	OrderPlaced    = "placed"
	OrderPreparing = "preparing"
	OrderReady     = "ready"
	OrderCompleted = "completed"
	OrderCancelled = "cancelled"
)

// Event booking lifecycle statuses.
const (
	BookingPendingAdminApproval         = "pending_admin_approval"
	BookingPendingCustomerConfirmation  = "pending_customer_confirmation"
	BookingConfirmed                    = "confirmed"
	BookingScheduled                    = "scheduled"
	BookingPreparing                    = "preparing"
	BookingInProgress                   = "in_progress"
	BookingCompleted                    = "completed"
	BookingRejected                     = "rejected"
	BookingCancelled                    = "cancelled"
	BookingDelayed                      = "delayed"
	BookingRequiresAttention            = "requires_attention"
)

// Payment statuses. ActionRequired is distinct from Paid so downstream
// logic never treats an unfinished challenge flow as settled.
const (
	PaymentPending        = "pending"
	PaymentAuthorized     = "authorized"
	PaymentPaid           = "paid"
	PaymentActionRequired = "action_required"
	PaymentVoided         = "voided"
	PaymentVoidFailed     = "void_failed"
	PaymentRefundPending  = "refund_pending"
	PaymentFailed         = "failed"
)

// Payment methods.
const (
	MethodCard             = "card"
	MethodCashOnDelivery   = "cash_on_delivery"
	MethodCreditOnDelivery = "credit_on_delivery"
)

// IsPayOnDelivery reports whether the method settles at handover with no
// gateway involvement.
func IsPayOnDelivery(method string) bool {
	return method == MethodCashOnDelivery || method == MethodCreditOnDelivery
}
