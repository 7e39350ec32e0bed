package service

import (
	"context"
	"fmt"
	"time"

	"resortbook/internal/conflict"
	"resortbook/internal/domain"
	"resortbook/internal/events"
	"resortbook/internal/models"

	"github.com/rs/zerolog"
)

const (
	ReasonWholeDayEvent    = "date is reserved for a whole-day event"
	ReasonBothEventSlots   = "both morning and evening slots are booked for events"
	ReasonRegularOverlap   = "accommodation already booked for the selected dates"
	ReasonRegularOccupant  = "date has existing regular bookings"
	reasonEventOverlapFmt  = "date already has a %s event booking"
	reasonMorningEventOnly = "morning event booked; only the afternoon is open"
	reasonEveningEventOnly = "evening event booked; only the morning is open"
)

// AvailabilityService answers whether a new booking may be accepted.
// Unavailability is reported in the verdict, never as an error.
type AvailabilityService struct {
	detector *conflict.Detector
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewAvailabilityService(store domain.BookingReader, eventBus domain.EventPublisher, logger *zerolog.Logger) *AvailabilityService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &AvailabilityService{
		detector: conflict.NewDetector(store),
		eventBus: eventBus,
		logger:   logger,
	}
}

func (s *AvailabilityService) CheckRegularBookingAvailability(ctx context.Context, accommodationID int64, checkIn time.Time, checkOut *time.Time, excludeID int64) (models.Verdict, error) {
	if err := validateRegularRange(accommodationID, checkIn, checkOut); err != nil {
		return models.Verdict{}, err
	}

	verdict, err := checkRegular(ctx, s.detector, accommodationID, checkIn, checkOut, excludeID)
	if err != nil {
		s.logger.Error().Err(err).
			Int64("accommodation_id", accommodationID).
			Str("date", models.FormatDate(checkIn)).
			Msg("regular availability check failed")
		return models.Verdict{}, err
	}

	s.publish(models.KindRegular, checkIn, verdict)
	return verdict, nil
}

func (s *AvailabilityService) CheckEventBookingAvailability(ctx context.Context, date time.Time, eventType models.EventType, excludeID int64) (models.Verdict, error) {
	if date.IsZero() {
		return models.Verdict{}, domain.NewValidationError("booking_date", "is required")
	}
	if !eventType.Valid() {
		return models.Verdict{}, domain.NewValidationError("event_type", "unknown event type %q", eventType)
	}

	verdict, err := checkEvent(ctx, s.detector, date, eventType, excludeID)
	if err != nil {
		s.logger.Error().Err(err).
			Str("date", models.FormatDate(date)).
			Str("event_type", string(eventType)).
			Msg("event availability check failed")
		return models.Verdict{}, err
	}

	s.publish(models.KindEvent, date, verdict)
	return verdict, nil
}

func (s *AvailabilityService) publish(kind models.BookingKind, date time.Time, v models.Verdict) {
	if s.eventBus == nil {
		return
	}
	payload := events.AvailabilityPayload{
		Kind:      string(kind),
		Date:      models.FormatDate(date),
		Available: v.Available,
		// Slot restrictions only exist for regular bookings.
		Restricted: kind == models.KindRegular && v.Restricted(),
	}
	if err := s.eventBus.PublishJSON(events.EventAvailabilityChecked, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", events.EventAvailabilityChecked).Msg("publish event error")
	}
}

// checkRegular runs the regular-booking decision against det. Events always
// outrank regular bookings, so they are consulted first. excludeID names a
// regular booking and never filters events.
func checkRegular(ctx context.Context, det *conflict.Detector, accommodationID int64, checkIn time.Time, checkOut *time.Time, excludeID int64) (models.Verdict, error) {
	ev, err := det.EventConflictsForDate(ctx, checkIn, 0)
	if err != nil {
		return models.Verdict{}, err
	}

	switch {
	case ev.HasWholeDay:
		return rejectWithEvent(ctx, det, checkIn, models.EventWholeDay, ReasonWholeDayEvent)
	case ev.HasMorning && ev.HasEvening:
		return models.Verdict{Available: false, Reason: ReasonBothEventSlots, AvailableSlots: []models.DaySlot{}}, nil
	case ev.HasMorning:
		return models.Verdict{Available: true, Reason: reasonMorningEventOnly, AvailableSlots: ev.AvailableSlots}, nil
	case ev.HasEvening:
		return models.Verdict{Available: true, Reason: reasonEveningEventOnly, AvailableSlots: ev.AvailableSlots}, nil
	}

	overlap, err := det.FirstRegularOverlap(ctx, accommodationID, checkIn, checkOut, excludeID)
	if err != nil {
		return models.Verdict{}, err
	}
	if overlap != nil {
		return models.Verdict{
			Available:      false,
			Reason:         ReasonRegularOverlap,
			AvailableSlots: []models.DaySlot{},
			ConflictingBooking: &models.ConflictRef{
				Type: models.KindRegular,
				ID:   overlap.ID,
				Date: models.FormatDate(overlap.CheckIn),
			},
		}, nil
	}

	return models.Verdict{Available: true, AvailableSlots: models.AllDaySlots()}, nil
}

// rejectWithEvent builds a rejection naming the lowest-id event of eventType
// on date.
func rejectWithEvent(ctx context.Context, det *conflict.Detector, date time.Time, eventType models.EventType, reason string) (models.Verdict, error) {
	held, err := det.EventsOn(ctx, date, 0)
	if err != nil {
		return models.Verdict{}, err
	}
	v := models.Verdict{Available: false, Reason: reason, AvailableSlots: []models.DaySlot{}}
	for _, e := range held {
		if e.EventType != eventType {
			continue
		}
		if v.ConflictingBooking == nil || e.ID < v.ConflictingBooking.ID {
			v.ConflictingBooking = &models.ConflictRef{Type: models.KindEvent, ID: e.ID, Date: models.FormatDate(e.BookingDate)}
		}
	}
	return v, nil
}

// checkEvent runs the event-booking decision against det. An existing
// regular occupant blocks a new event even though events otherwise win.
func checkEvent(ctx context.Context, det *conflict.Detector, date time.Time, eventType models.EventType, excludeID int64) (models.Verdict, error) {
	overlap, err := det.EventOverlap(ctx, date, eventType, excludeID)
	if err != nil {
		return models.Verdict{}, err
	}
	if overlap.Conflict {
		return models.Verdict{
			Available:      false,
			Reason:         fmt.Sprintf(reasonEventOverlapFmt, overlap.WithType),
			AvailableSlots: []models.DaySlot{},
			ConflictingBooking: &models.ConflictRef{
				Type: models.KindEvent,
				ID:   overlap.Booking.ID,
				Date: models.FormatDate(overlap.Booking.BookingDate),
			},
		}, nil
	}

	occupant, err := det.RegularOccupant(ctx, date)
	if err != nil {
		return models.Verdict{}, err
	}
	if occupant != nil {
		return models.Verdict{
			Available:      false,
			Reason:         ReasonRegularOccupant,
			AvailableSlots: []models.DaySlot{},
			ConflictingBooking: &models.ConflictRef{
				Type: models.KindRegular,
				ID:   occupant.ID,
				Date: models.FormatDate(occupant.CheckIn),
			},
		}, nil
	}

	return models.Verdict{Available: true, AvailableSlots: []models.DaySlot{}}, nil
}

func validateRegularRange(accommodationID int64, checkIn time.Time, checkOut *time.Time) error {
	if accommodationID <= 0 {
		return domain.NewValidationError("accommodation_id", "must be positive")
	}
	if checkIn.IsZero() {
		return domain.NewValidationError("check_in_date", "is required")
	}
	if checkOut != nil && models.Day(*checkOut).Before(models.Day(checkIn)) {
		return domain.NewValidationError("check_out_date", "must not be before check-in")
	}
	return nil
}
