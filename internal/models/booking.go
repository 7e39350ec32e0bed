package models

import (
	"fmt"
	"time"
)

// RegularBooking reserves one accommodation for a date range and slot.
type RegularBooking struct {
	ID                int64             `json:"id"`
	AccommodationID   int64             `json:"accommodation_id"`
	AccommodationType AccommodationType `json:"accommodation_type"`
	UserID            int64             `json:"user_id"`
	OwnerContact      string            `json:"owner_contact"`
	CheckIn           time.Time         `json:"check_in_date"`
	CheckOut          *time.Time        `json:"check_out_date,omitempty"`
	TimeSlot          TimeSlot          `json:"time_slot"`
	Status            BookingStatus     `json:"status"`
	TotalPrice        float64           `json:"total_price"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// LastDay is the checkout date, or the check-in date for single-day bookings.
func (b *RegularBooking) LastDay() time.Time {
	if b.CheckOut == nil {
		return b.CheckIn
	}
	return *b.CheckOut
}

// Covers reports whether date falls inside the booking's inclusive range.
func (b *RegularBooking) Covers(date time.Time) bool {
	return !date.Before(b.CheckIn) && !date.After(b.LastDay())
}

func (b *RegularBooking) Ref() string {
	return fmt.Sprintf("R-%d", b.ID)
}

// EventBooking reserves the whole resort for one date and daypart.
type EventBooking struct {
	ID           int64         `json:"id"`
	UserID       int64         `json:"user_id"`
	OwnerContact string        `json:"owner_contact"`
	BookingDate  time.Time     `json:"booking_date"`
	EventType    EventType     `json:"event_type"`
	Status       BookingStatus `json:"status"`
	TotalPrice   float64       `json:"total_price"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

func (e *EventBooking) Ref() string {
	return fmt.Sprintf("E-%d", e.ID)
}

// RegularFilter selects regular bookings whose range intersects [From, To].
// Zero values leave the corresponding bound or field unconstrained.
type RegularFilter struct {
	AccommodationID int64
	From            time.Time
	To              time.Time
	Statuses        []BookingStatus
}

// EventFilter selects event bookings dated inside [From, To].
type EventFilter struct {
	From     time.Time
	To       time.Time
	Statuses []BookingStatus
}

// Accommodation is the display projection kept for each unit.
type Accommodation struct {
	ID        int64               `json:"id"`
	Type      AccommodationType   `json:"type"`
	Status    AccommodationStatus `json:"status"`
	UpdatedAt time.Time           `json:"updated_at"`
}
