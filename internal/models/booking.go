package models

import (
	"time"

	"github.com/uptrace/bun"
)

// BookingItem is one line of an event booking. Quantity-priced items set
// Quantity; time-priced items set DurationMinutes.
type BookingItem struct {
	LineID          string `json:"line_id"`
	ProductID       string `json:"product_id"`
	Quantity        int    `json:"quantity,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
}

type AdminApprovalDetails struct {
	Approved  bool      `json:"approved"`
	ActorID   string    `json:"actor_id"`
	Timestamp time.Time `json:"timestamp"`
	Notes     string    `json:"notes,omitempty"`
}

type EventBooking struct {
	bun.BaseModel `bun:"table:event_bookings"`

	BookingID     string        `bun:"booking_id,pk" json:"booking_id"`
	CustomerID    string        `bun:"customer_id" json:"customer_id"`
	BoxID         string        `bun:"box_id" json:"box_id"`
	BookingStatus string        `bun:"booking_status" json:"booking_status"`
	SelectedItems []BookingItem `bun:"selected_items,type:jsonb" json:"selected_items"`

	// TotalAmount is in the currency's smallest unit.
	TotalAmount   int64  `bun:"total_amount" json:"total_amount"`
	CurrencyCode  string `bun:"currency_code" json:"currency_code"`
	PaymentStatus string `bun:"payment_status" json:"payment_status"`
	TransactionID string `bun:"transaction_id" json:"transaction_id,omitempty"`
	// ActionURL is set when the gateway reports the charge needs a
	// customer challenge step.
	ActionURL string `bun:"action_url" json:"action_url,omitempty"`

	AdminApproval       *AdminApprovalDetails `bun:"admin_approval,type:jsonb" json:"admin_approval,omitempty"`
	AssignedResources   map[string][]string   `bun:"assigned_resources,type:jsonb" json:"assigned_resources,omitempty"`
	AssignedLeadActorID string                `bun:"assigned_lead_actor_id" json:"assigned_lead_actor_id,omitempty"`

	StatusHistory   []StatusChange `bun:"status_history,type:jsonb" json:"status_history"`
	ProcessingError *string        `bun:"processing_error" json:"processing_error,omitempty"`

	// CalendarEventID doubles as the create-once guard for calendar sync.
	CalendarEventID string `bun:"calendar_event_id" json:"calendar_event_id,omitempty"`
	NeedsManualSync bool   `bun:"needs_manual_sync" json:"needs_manual_sync"`

	ScheduledStart  *time.Time `bun:"scheduled_start" json:"scheduled_start,omitempty"`
	ActualStartTime *time.Time `bun:"actual_start_time" json:"actual_start_time,omitempty"`
	ActualEndTime   *time.Time `bun:"actual_end_time" json:"actual_end_time,omitempty"`
	CreatedAt       time.Time  `bun:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `bun:"updated_at" json:"updated_at"`
}
