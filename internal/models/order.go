package models

import (
	"time"

	"github.com/uptrace/bun"
)

// StatusChange is one immutable entry in an entity's status history.
type StatusChange struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	ActorID   string    `json:"actor_id"`
	ActorRole string    `json:"actor_role"`
	Reason    string    `json:"reason,omitempty"`
}

type OrderItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type Order struct {
	bun.BaseModel `bun:"table:orders"`

	OrderID       string      `bun:"order_id,pk" json:"order_id"`
	CustomerID    string      `bun:"customer_id" json:"customer_id"`
	BoxID         string      `bun:"box_id" json:"box_id"`
	Items         []OrderItem `bun:"items,type:jsonb" json:"items"`
	Status        string      `bun:"status" json:"status"`
	PaymentStatus string      `bun:"payment_status" json:"payment_status"`
	PaymentMethod string      `bun:"payment_method" json:"payment_method"`

	// Authorization details from the gateway. AuthorizedAmount is in the
	// currency's smallest unit.
	AuthorizationID  string `bun:"authorization_id" json:"authorization_id,omitempty"`
	AuthorizedAmount int64  `bun:"authorized_amount" json:"authorized_amount"`
	CurrencyCode     string `bun:"currency_code" json:"currency_code"`

	StatusHistory   []StatusChange `bun:"status_history,type:jsonb" json:"status_history"`
	ProcessingError *string        `bun:"processing_error" json:"processing_error,omitempty"`

	CompletedAt *time.Time `bun:"completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time  `bun:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `bun:"updated_at" json:"updated_at"`
}
