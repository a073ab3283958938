package sideeffects

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/models"
)

// Publisher hands notifications to the message broker.
type Publisher interface {
	Publish(topic string, key string, value []byte) error
}

// AuditStore persists audit-log entries.
type AuditStore interface {
	InsertAuditLog(ctx context.Context, entry *models.AuditLog) error
}

type Topics struct {
	Notifications string
	Alerts        string
}

// PickupCodeRequest asks the worker to attach a pickup QR code to the
// customer notification.
type PickupCodeRequest struct {
	OrderID    string
	BoxID      string
	CustomerID string
}

// Event is everything to record and announce after a transition commits.
type Event struct {
	EntityType string
	EntityID   string
	Action     string
	ActorID    string
	ActorRole  string
	FromStatus string
	ToStatus   string
	Payload    map[string]string

	Notifications []models.Notification
	Alerts        []models.Notification
	PickupCode    *PickupCodeRequest
}

// Dispatcher runs audit writes and notification publishes on a background
// worker. Submitting never blocks the transition caller, and failures
// here never roll a transition back.
type Dispatcher struct {
	audit    AuditStore
	producer Publisher
	codes    *PickupCodeGenerator
	topics   Topics
	log      *logger.Logger

	ch   chan Event
	done chan struct{}
}

const submitBuffer = 256

func NewDispatcher(audit AuditStore, producer Publisher, codes *PickupCodeGenerator, topics Topics, log *logger.Logger) *Dispatcher {
	d := &Dispatcher{
		audit:    audit,
		producer: producer,
		codes:    codes,
		topics:   topics,
		log:      log,
		ch:       make(chan Event, submitBuffer),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

// Submit hands an event to the worker. If the buffer is saturated the
// event is dropped with an error log; there is no delivery guarantee
// beyond a best-effort immediate attempt.
func (d *Dispatcher) Submit(ev Event) {
	select {
	case d.ch <- ev:
	default:
		d.log.Error("DISPATCH", fmt.Sprintf("Side-effect buffer full, dropping event for %s %s", ev.EntityType, ev.EntityID))
	}
}

// Close drains pending events and stops the worker.
func (d *Dispatcher) Close() {
	close(d.ch)
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for ev := range d.ch {
		d.process(ev)
	}
}

func (d *Dispatcher) process(ev Event) {
	d.writeAudit(ev)

	params := map[string]string{}
	if ev.PickupCode != nil && d.codes != nil {
		png, err := d.codes.Generate(ev.PickupCode.OrderID, ev.PickupCode.BoxID, ev.PickupCode.CustomerID)
		if err != nil {
			d.log.Error("DISPATCH", fmt.Sprintf("Failed to generate pickup code for order %s: %v", ev.PickupCode.OrderID, err))
		} else {
			params["pickup_code_png"] = base64.StdEncoding.EncodeToString(png)
		}
	}

	for _, n := range ev.Notifications {
		d.publish(d.topics.Notifications, ev, n, params)
	}
	for _, n := range ev.Alerts {
		d.publish(d.topics.Alerts, ev, n, nil)
	}
}

func (d *Dispatcher) writeAudit(ev Event) {
	if d.audit == nil {
		return
	}
	entry := &models.AuditLog{
		AuditID:    uuid.NewString(),
		EntityType: ev.EntityType,
		EntityID:   ev.EntityID,
		Action:     ev.Action,
		ActorID:    ev.ActorID,
		ActorRole:  ev.ActorRole,
		FromStatus: ev.FromStatus,
		ToStatus:   ev.ToStatus,
		Payload:    ev.Payload,
		CreatedAt:  time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.audit.InsertAuditLog(ctx, entry); err != nil {
		d.log.Error("DISPATCH", fmt.Sprintf("Failed to write audit log for %s %s: %v", ev.EntityType, ev.EntityID, err))
		return
	}
	d.log.LogDispatch("AUDIT", ev.EntityID, fmt.Sprintf("%s: %s -> %s", ev.Action, ev.FromStatus, ev.ToStatus))
}

func (d *Dispatcher) publish(topic string, ev Event, n models.Notification, extraParams map[string]string) {
	if d.producer == nil || topic == "" {
		return
	}
	if len(extraParams) > 0 {
		if n.Params == nil {
			n.Params = map[string]string{}
		}
		for k, v := range extraParams {
			n.Params[k] = v
		}
	}

	value, err := json.Marshal(n)
	if err != nil {
		d.log.Error("DISPATCH", fmt.Sprintf("Failed to marshal notification for %s: %v", n.RecipientID, err))
		return
	}
	if err := d.producer.Publish(topic, n.RecipientID, value); err != nil {
		d.log.Error("DISPATCH", fmt.Sprintf("Failed to publish %s to %s: %v", n.TemplateKey, topic, err))
		return
	}
	d.log.LogDispatch("NOTIFY", ev.EntityID, fmt.Sprintf("%s -> %s", n.TemplateKey, n.RecipientID))
}
