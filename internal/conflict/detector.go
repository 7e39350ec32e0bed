// Package conflict answers overlap questions between a candidate booking and
// the bookings already held in a store.
package conflict

import (
	"context"
	"fmt"
	"time"

	"resortbook/internal/domain"
	"resortbook/internal/models"
)

// EventOverlap describes the first event blocking a candidate event.
type EventOverlap struct {
	Conflict bool
	WithType models.EventType
	Booking  *models.EventBooking
}

// Detector reads bookings through a store. Event and regular bookings are
// filtered by independent status sets; both default to pending+approved.
// An excludeID of 0 excludes nothing.
type Detector struct {
	store           domain.BookingReader
	eventStatuses   []models.BookingStatus
	regularStatuses []models.BookingStatus
}

func NewDetector(store domain.BookingReader) *Detector {
	return &Detector{
		store:           store,
		eventStatuses:   models.ActiveStatuses,
		regularStatuses: models.ActiveStatuses,
	}
}

func (d *Detector) WithEventStatuses(statuses ...models.BookingStatus) *Detector {
	cp := *d
	cp.eventStatuses = statuses
	return &cp
}

func (d *Detector) WithRegularStatuses(statuses ...models.BookingStatus) *Detector {
	cp := *d
	cp.regularStatuses = statuses
	return &cp
}

func (d *Detector) eventsOn(ctx context.Context, date time.Time, excludeID int64) ([]*models.EventBooking, error) {
	day := models.Day(date)
	events, err := d.store.FindEventBookings(ctx, models.EventFilter{From: day, To: day, Statuses: d.eventStatuses})
	if err != nil {
		return nil, fmt.Errorf("find events on %s: %w", models.FormatDate(day), err)
	}
	if excludeID == 0 {
		return events, nil
	}
	out := events[:0:0]
	for _, e := range events {
		if e.ID != excludeID {
			out = append(out, e)
		}
	}
	return out, nil
}

// EventsOn lists the events in the detector's status set on date.
func (d *Detector) EventsOn(ctx context.Context, date time.Time, excludeID int64) ([]*models.EventBooking, error) {
	return d.eventsOn(ctx, date, excludeID)
}

func (d *Detector) EventConflictsForDate(ctx context.Context, date time.Time, excludeID int64) (models.EventConflicts, error) {
	events, err := d.eventsOn(ctx, date, excludeID)
	if err != nil {
		return models.EventConflicts{}, err
	}
	return SummarizeEvents(events), nil
}

func (d *Detector) EventOverlap(ctx context.Context, date time.Time, eventType models.EventType, excludeID int64) (EventOverlap, error) {
	events, err := d.eventsOn(ctx, date, excludeID)
	if err != nil {
		return EventOverlap{}, err
	}
	first := FirstEventConflict(events, eventType)
	if first == nil {
		return EventOverlap{}, nil
	}
	return EventOverlap{Conflict: true, WithType: first.EventType, Booking: first}, nil
}

// FirstRegularOverlap returns the lowest-id booking of the accommodation
// overlapping the range, or nil.
func (d *Detector) FirstRegularOverlap(ctx context.Context, accommodationID int64, checkIn time.Time, checkOut *time.Time, excludeID int64) (*models.RegularBooking, error) {
	last := checkIn
	if checkOut != nil {
		last = *checkOut
	}
	bookings, err := d.store.FindRegularBookings(ctx, models.RegularFilter{
		AccommodationID: accommodationID,
		From:            models.Day(checkIn),
		To:              models.Day(last),
		Statuses:        d.regularStatuses,
	})
	if err != nil {
		return nil, fmt.Errorf("find bookings for accommodation %d: %w", accommodationID, err)
	}

	candidates := bookings[:0:0]
	for _, b := range bookings {
		if b.ID == excludeID {
			continue
		}
		if b.AccommodationID != accommodationID {
			continue
		}
		candidates = append(candidates, b)
	}
	return FirstRegularOverlap(candidates, models.Day(checkIn), dayPtr(checkOut)), nil
}

func (d *Detector) RegularOverlap(ctx context.Context, accommodationID int64, checkIn time.Time, checkOut *time.Time, excludeID int64) (bool, error) {
	b, err := d.FirstRegularOverlap(ctx, accommodationID, checkIn, checkOut, excludeID)
	return b != nil, err
}

// RegularOccupant returns the lowest-id regular booking on any accommodation
// covering date, or nil.
func (d *Detector) RegularOccupant(ctx context.Context, date time.Time) (*models.RegularBooking, error) {
	day := models.Day(date)
	bookings, err := d.store.FindRegularBookings(ctx, models.RegularFilter{From: day, To: day, Statuses: d.regularStatuses})
	if err != nil {
		return nil, fmt.Errorf("find regular bookings on %s: %w", models.FormatDate(day), err)
	}
	return FirstRegularOverlap(bookings, day, nil), nil
}

func dayPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := models.Day(*t)
	return &d
}
