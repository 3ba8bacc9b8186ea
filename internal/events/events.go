package events

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventReservationCreated   = "reservation_created"
	EventReservationCancelled = "reservation_cancelled"
	EventRentalCreated        = "rental_created"
	EventRentalCancelled      = "rental_cancelled"
	EventRentalReturned       = "rental_returned"

	// AllEvents subscribes a handler to every event type.
	AllEvents = "*"
)

// BookingEventPayload is the snapshot of a reservation or rental sent to subscribers.
type BookingEventPayload struct {
	ReservationID   int64     `json:"reservation_id,omitempty"`
	RentalID        int64     `json:"rental_id,omitempty"`
	Code            string    `json:"code"`
	EquipmentID     int64     `json:"equipment_id"`
	CustomerID      int64     `json:"customer_id"`
	BranchID        int64     `json:"branch_id,omitempty"`
	Status          string    `json:"status"`
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `json:"end_date"`
	FinalPayable    string    `json:"final_payable,omitempty"`
	SecurityDeposit string    `json:"security_deposit,omitempty"`
}

// ReturnEventPayload describes a settled return.
type ReturnEventPayload struct {
	RentalID          int64     `json:"rental_id"`
	Code              string    `json:"code"`
	EquipmentID       int64     `json:"equipment_id"`
	CustomerID        int64     `json:"customer_id"`
	ReturnDate        time.Time `json:"return_date"`
	TotalCharges      string    `json:"total_charges"`
	RefundAmount      string    `json:"refund_amount"`
	AdditionalPayment string    `json:"additional_payment"`
}

// Money formats an amount for event payloads.
func Money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type, or AllEvents.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish runs the handlers of the event type synchronously and joins their errors.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.subscribers[AllEvents]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var errs []error
	for _, handler := range handlers {
		if err := handler(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
}
