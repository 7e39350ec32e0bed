package models

// ConflictRef points at the booking that made a request infeasible.
type ConflictRef struct {
	Type BookingKind `json:"type"`
	ID   int64       `json:"id"`
	Date string      `json:"date"`
}

// Verdict is the outcome of an availability check.
type Verdict struct {
	Available          bool         `json:"available"`
	Reason             string       `json:"reason,omitempty"`
	AvailableSlots     []DaySlot    `json:"available_slots"`
	ConflictingBooking *ConflictRef `json:"conflicting_booking,omitempty"`
}

// Restricted reports an accept that only allows part of the day.
func (v Verdict) Restricted() bool {
	return v.Available && len(v.AvailableSlots) < len(AllDaySlots())
}

// EventConflicts summarises the event bookings held on one date.
type EventConflicts struct {
	HasWholeDay    bool      `json:"has_whole_day"`
	HasMorning     bool      `json:"has_morning"`
	HasEvening     bool      `json:"has_evening"`
	AvailableSlots []DaySlot `json:"available_slots"`
}

type PartialDay struct {
	Date           string    `json:"date"`
	AvailableSlots []DaySlot `json:"available_slots"`
	Reason         string    `json:"reason"`
}

// CalendarView lists fully and partially unavailable dates in a range.
type CalendarView struct {
	Dates              []string     `json:"dates"`
	PartiallyAvailable []PartialDay `json:"partially_available"`
}
