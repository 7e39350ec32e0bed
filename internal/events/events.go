package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventBookingCreated       = "booking_created"
	EventBookingApproved      = "booking_approved"
	EventBookingAutoRejected  = "booking_auto_rejected"
	EventBookingStatusChanged = "booking_status_changed"
	EventBookingDeleted       = "booking_deleted"
	EventAvailabilityChecked  = "availability_checked"
	EventApprovalConflict     = "approval_conflict"
)

// BookingEventPayload is the booking snapshot carried by lifecycle events.
type BookingEventPayload struct {
	Kind            string `json:"kind"`
	BookingID       int64  `json:"booking_id"`
	AccommodationID int64  `json:"accommodation_id,omitempty"`
	Date            string `json:"date"`
	Slot            string `json:"slot"`
	Status          string `json:"status"`
	PreviousStatus  string `json:"previous_status,omitempty"`
	Reason          string `json:"reason,omitempty"`
	// CascadeOf is the approved booking that caused an auto-rejection.
	CascadeOf int64 `json:"cascade_of,omitempty"`
}

// AvailabilityPayload describes one availability check outcome.
type AvailabilityPayload struct {
	Kind       string `json:"kind"`
	Date       string `json:"date"`
	Available  bool   `json:"available"`
	Restricted bool   `json:"restricted"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the JSON payload into v.
func (e *Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	onError     func(eventType string, err error)
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// OnError installs a callback for handler failures; they are dropped otherwise.
func (b *EventBus) OnError(fn func(eventType string, err error)) {
	b.mu.Lock()
	b.onError = fn
	b.mu.Unlock()
}

func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish runs the handlers synchronously; one failing handler does not stop the rest.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	onError := b.onError
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		if err := handler(event); err != nil && onError != nil {
			onError(event.Type, err)
		}
	}
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

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
