package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/invoice-approval/internal/domain/entity"
)

// Payload keys
const (
	KeyInvoice   = "invoice"
	KeyOldStatus = "old_status"
	KeyNewStatus = "new_status"
	KeyAction    = "action"
	KeyDelegator = "delegated_from"
)

// Event represents a domain event
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	InvoiceID     string                 `json:"invoice_id"`
	ActorID       string                 `json:"actor_id"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates a new domain event with a generated ID and timestamp
func NewEvent(eventType Type, invoiceID, actorID string, payload map[string]interface{}) *Event {
	id := uuid.NewString()
	return &Event{
		ID:            id,
		Type:          eventType,
		InvoiceID:     invoiceID,
		ActorID:       actorID,
		Payload:       payload,
		Timestamp:     time.Now(),
		CorrelationID: id,
	}
}

// NewEventWithCorrelation creates an event linked to a correlation chain
func NewEventWithCorrelation(eventType Type, invoiceID, actorID string, payload map[string]interface{}, correlationID string) *Event {
	e := NewEvent(eventType, invoiceID, actorID, payload)
	e.CorrelationID = correlationID
	return e
}

// ForInvoice builds an event carrying a snapshot of inv
func ForInvoice(eventType Type, inv *entity.Invoice, actorID string) *Event {
	return NewEvent(eventType, inv.ID, actorID, map[string]interface{}{
		KeyInvoice: inv.Clone(),
	})
}

// WithPayload returns a new Event with an added payload key-value pair (immutable operation)
func (e *Event) WithPayload(key string, value interface{}) *Event {
	newPayload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	c := *e
	c.Payload = newPayload
	return &c
}

// Invoice returns the invoice snapshot, or nil when the event carries none
func (e *Event) Invoice() *entity.Invoice {
	if inv, ok := e.Payload[KeyInvoice].(*entity.Invoice); ok {
		return inv
	}
	return nil
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
