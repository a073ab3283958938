package models

import (
	"time"

	"github.com/uptrace/bun"
)

type AuditLog struct {
	bun.BaseModel `bun:"table:audit_logs"`

	AuditID    string            `bun:"audit_id,pk" json:"audit_id"`
	EntityType string            `bun:"entity_type" json:"entity_type"`
	EntityID   string            `bun:"entity_id" json:"entity_id"`
	Action     string            `bun:"action" json:"action"`
	ActorID    string            `bun:"actor_id" json:"actor_id"`
	ActorRole  string            `bun:"actor_role" json:"actor_role"`
	FromStatus string            `bun:"from_status" json:"from_status"`
	ToStatus   string            `bun:"to_status" json:"to_status"`
	Payload    map[string]string `bun:"payload,type:jsonb" json:"payload,omitempty"`
	CreatedAt  time.Time         `bun:"created_at" json:"created_at"`
}

// Notification is a fire-and-forget message for the notification
// collaborator. Params feed the template on the consumer side.
type Notification struct {
	RecipientID string            `json:"recipient_id"`
	TemplateKey string            `json:"template_key"`
	Params      map[string]string `json:"params,omitempty"`
}
