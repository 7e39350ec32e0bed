package conflict

import (
	"time"

	"resortbook/internal/models"
)

// DeriveSlots maps the events held on a date to the day slots left open.
func DeriveSlots(hasWholeDay, hasMorning, hasEvening bool) []models.DaySlot {
	switch {
	case hasWholeDay:
		return []models.DaySlot{}
	case hasMorning && hasEvening:
		return []models.DaySlot{}
	case hasMorning:
		return []models.DaySlot{models.DayAfternoon}
	case hasEvening:
		return []models.DaySlot{models.DayMorning}
	default:
		return models.AllDaySlots()
	}
}

// SummarizeEvents folds events that already passed the status filter.
func SummarizeEvents(events []*models.EventBooking) models.EventConflicts {
	var c models.EventConflicts
	for _, e := range events {
		switch e.EventType {
		case models.EventWholeDay:
			c.HasWholeDay = true
		case models.EventMorning:
			c.HasMorning = true
		case models.EventEvening:
			c.HasEvening = true
		}
	}
	c.AvailableSlots = DeriveSlots(c.HasWholeDay, c.HasMorning, c.HasEvening)
	return c
}

// RangesOverlap treats both ranges as inclusive; a nil end equals the start.
func RangesOverlap(aStart time.Time, aEnd *time.Time, bStart time.Time, bEnd *time.Time) bool {
	aLast, bLast := aStart, bStart
	if aEnd != nil {
		aLast = *aEnd
	}
	if bEnd != nil {
		bLast = *bEnd
	}
	return !(aLast.Before(bStart) || bLast.Before(aStart))
}

// EventTypesConflict applies the daypart exclusion rules between two events.
func EventTypesConflict(candidate, existing models.EventType) bool {
	switch candidate {
	case models.EventWholeDay:
		return true
	case models.EventMorning:
		return existing == models.EventWholeDay || existing == models.EventMorning
	case models.EventEvening:
		return existing == models.EventWholeDay || existing == models.EventEvening
	}
	return false
}

// FirstEventConflict returns the lowest-id event that excludes eventType.
func FirstEventConflict(events []*models.EventBooking, eventType models.EventType) *models.EventBooking {
	var first *models.EventBooking
	for _, e := range events {
		if !EventTypesConflict(eventType, e.EventType) {
			continue
		}
		if first == nil || e.ID < first.ID {
			first = e
		}
	}
	return first
}

// FirstRegularOverlap returns the lowest-id booking overlapping [checkIn, checkOut].
func FirstRegularOverlap(bookings []*models.RegularBooking, checkIn time.Time, checkOut *time.Time) *models.RegularBooking {
	var first *models.RegularBooking
	for _, b := range bookings {
		if !RangesOverlap(checkIn, checkOut, b.CheckIn, b.CheckOut) {
			continue
		}
		if first == nil || b.ID < first.ID {
			first = b
		}
	}
	return first
}

// SlotPermitted enforces a verdict's slot list for a concrete regular slot.
// Night is never restricted by daytime events.
func SlotPermitted(available []models.DaySlot, slot models.TimeSlot) bool {
	var want models.DaySlot
	switch slot {
	case models.SlotNight:
		return true
	case models.SlotMorning:
		want = models.DayMorning
	case models.SlotWholeDay:
		want = models.DayWholeDay
	default:
		return false
	}
	for _, s := range available {
		if s == want {
			return true
		}
	}
	return false
}
