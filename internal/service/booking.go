package service

import (
	"context"
	"fmt"

	"resortbook/internal/cascade"
	"resortbook/internal/conflict"
	"resortbook/internal/domain"
	"resortbook/internal/events"
	"resortbook/internal/models"
	"resortbook/internal/slots"

	"github.com/rs/zerolog"
)

// BookingService owns creation and the manual lifecycle transitions.
// Approval goes through ApprovalService.
type BookingService struct {
	store        domain.Store
	catalog      *slots.Catalog
	availability *AvailabilityService
	eventBus     domain.EventPublisher
	logger       *zerolog.Logger
}

func NewBookingService(store domain.Store, catalog *slots.Catalog, availability *AvailabilityService, eventBus domain.EventPublisher, logger *zerolog.Logger) *BookingService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &BookingService{
		store:        store,
		catalog:      catalog,
		availability: availability,
		eventBus:     eventBus,
		logger:       logger,
	}
}

// CreateRegularBooking checks availability and stores the booking as
// pending. The check and the insert are not atomic; colliding pending
// bookings are resolved when one of them is approved.
func (s *BookingService) CreateRegularBooking(ctx context.Context, booking *models.RegularBooking) error {
	if err := s.validateRegular(booking); err != nil {
		return err
	}
	booking.CheckIn = models.Day(booking.CheckIn)
	if booking.CheckOut != nil {
		out := models.Day(*booking.CheckOut)
		booking.CheckOut = &out
	}

	verdict, err := s.availability.CheckRegularBookingAvailability(ctx, booking.AccommodationID, booking.CheckIn, booking.CheckOut, 0)
	if err != nil {
		return err
	}
	if !verdict.Available {
		return domain.ConflictFromVerdict(verdict)
	}
	if !conflict.SlotPermitted(verdict.AvailableSlots, booking.TimeSlot) {
		return &domain.ConflictError{
			Reason: fmt.Sprintf("%s slot is not available on %s; open slots: %v",
				booking.TimeSlot, models.FormatDate(booking.CheckIn), verdict.AvailableSlots),
		}
	}

	booking.Status = models.StatusPending
	err = s.store.InTx(ctx, RegularLockKey(booking.AccommodationID), func(tx domain.BookingStore) error {
		if err := tx.CreateRegularBooking(ctx, booking); err != nil {
			return err
		}
		return projectAccommodation(ctx, tx, booking.AccommodationID)
	})
	if err != nil {
		s.logger.Error().Err(err).Int64("accommodation_id", booking.AccommodationID).Msg("create regular booking")
		return err
	}

	s.publish(events.EventBookingCreated, regularPayload(booking, ""))
	return nil
}

func (s *BookingService) CreateEventBooking(ctx context.Context, booking *models.EventBooking) error {
	if booking.TotalPrice < 0 {
		return domain.NewValidationError("total_price", "must not be negative")
	}
	booking.BookingDate = models.Day(booking.BookingDate)

	verdict, err := s.availability.CheckEventBookingAvailability(ctx, booking.BookingDate, booking.EventType, 0)
	if err != nil {
		return err
	}
	if !verdict.Available {
		return domain.ConflictFromVerdict(verdict)
	}

	booking.Status = models.StatusPending
	if err := s.store.CreateEventBooking(ctx, booking); err != nil {
		s.logger.Error().Err(err).Str("date", models.FormatDate(booking.BookingDate)).Msg("create event booking")
		return err
	}

	s.publish(events.EventBookingCreated, eventPayload(booking, ""))
	return nil
}

func (s *BookingService) RejectBooking(ctx context.Context, kind models.BookingKind, id int64) error {
	return s.changeStatus(ctx, kind, id, models.StatusRejected)
}

func (s *BookingService) CancelBooking(ctx context.Context, kind models.BookingKind, id int64) error {
	return s.changeStatus(ctx, kind, id, models.StatusCancelled)
}

// CompleteBooking closes an approved booking at checkout.
func (s *BookingService) CompleteBooking(ctx context.Context, kind models.BookingKind, id int64) error {
	return s.changeStatus(ctx, kind, id, models.StatusCompleted)
}

// DeleteBooking removes a cancelled or rejected booking.
func (s *BookingService) DeleteBooking(ctx context.Context, kind models.BookingKind, id int64) error {
	switch kind {
	case models.KindRegular:
		booking, err := s.store.GetRegularBooking(ctx, id)
		if err != nil {
			return err
		}
		err = s.store.InTx(ctx, RegularLockKey(booking.AccommodationID), func(tx domain.BookingStore) error {
			current, err := tx.GetRegularBooking(ctx, id)
			if err != nil {
				return err
			}
			if !current.Status.Deletable() {
				return fmt.Errorf("delete %s in status %s: %w", current.Ref(), current.Status, domain.ErrInvalidTransition)
			}
			if err := tx.DeleteRegularBooking(ctx, id); err != nil {
				return err
			}
			booking = current
			return projectAccommodation(ctx, tx, current.AccommodationID)
		})
		if err != nil {
			return err
		}
		s.publish(events.EventBookingDeleted, regularPayload(booking, ""))

	case models.KindEvent:
		booking, err := s.store.GetEventBooking(ctx, id)
		if err != nil {
			return err
		}
		err = s.store.InTx(ctx, EventLockKey(models.FormatDate(booking.BookingDate)), func(tx domain.BookingStore) error {
			current, err := tx.GetEventBooking(ctx, id)
			if err != nil {
				return err
			}
			if !current.Status.Deletable() {
				return fmt.Errorf("delete %s in status %s: %w", current.Ref(), current.Status, domain.ErrInvalidTransition)
			}
			booking = current
			return tx.DeleteEventBooking(ctx, id)
		})
		if err != nil {
			return err
		}
		s.publish(events.EventBookingDeleted, eventPayload(booking, ""))

	default:
		return domain.NewValidationError("kind", "unknown booking kind %q", kind)
	}

	s.logger.Info().Str("kind", string(kind)).Int64("booking_id", id).Msg("booking deleted")
	return nil
}

func (s *BookingService) GetRegularBooking(ctx context.Context, id int64) (*models.RegularBooking, error) {
	return s.store.GetRegularBooking(ctx, id)
}

func (s *BookingService) GetEventBooking(ctx context.Context, id int64) (*models.EventBooking, error) {
	return s.store.GetEventBooking(ctx, id)
}

func (s *BookingService) changeStatus(ctx context.Context, kind models.BookingKind, id int64, to models.BookingStatus) error {
	switch kind {
	case models.KindRegular:
		booking, err := s.store.GetRegularBooking(ctx, id)
		if err != nil {
			return err
		}
		var from models.BookingStatus
		err = s.store.InTx(ctx, RegularLockKey(booking.AccommodationID), func(tx domain.BookingStore) error {
			current, err := tx.GetRegularBooking(ctx, id)
			if err != nil {
				return err
			}
			if !models.CanTransition(current.Status, to) {
				return fmt.Errorf("%s %s -> %s: %w", current.Ref(), current.Status, to, domain.ErrInvalidTransition)
			}
			if err := tx.UpdateRegularStatus(ctx, id, current.Status, to); err != nil {
				return err
			}
			from = current.Status
			booking = current
			return projectAccommodation(ctx, tx, current.AccommodationID)
		})
		if err != nil {
			return err
		}
		booking.Status = to
		s.publish(events.EventBookingStatusChanged, regularPayload(booking, from))

	case models.KindEvent:
		booking, err := s.store.GetEventBooking(ctx, id)
		if err != nil {
			return err
		}
		var from models.BookingStatus
		err = s.store.InTx(ctx, EventLockKey(models.FormatDate(booking.BookingDate)), func(tx domain.BookingStore) error {
			current, err := tx.GetEventBooking(ctx, id)
			if err != nil {
				return err
			}
			if !models.CanTransition(current.Status, to) {
				return fmt.Errorf("%s %s -> %s: %w", current.Ref(), current.Status, to, domain.ErrInvalidTransition)
			}
			from = current.Status
			booking = current
			return tx.UpdateEventStatus(ctx, id, current.Status, to)
		})
		if err != nil {
			return err
		}
		booking.Status = to
		s.publish(events.EventBookingStatusChanged, eventPayload(booking, from))

	default:
		return domain.NewValidationError("kind", "unknown booking kind %q", kind)
	}

	s.logger.Info().Str("kind", string(kind)).Int64("booking_id", id).Str("status", string(to)).Msg("booking status changed")
	return nil
}

// projectAccommodation recomputes the display status from the bookings
// still active on the accommodation.
func projectAccommodation(ctx context.Context, tx domain.BookingStore, accommodationID int64) error {
	active, err := tx.FindRegularBookings(ctx, models.RegularFilter{
		AccommodationID: accommodationID,
		Statuses:        models.ActiveStatuses,
	})
	if err != nil {
		return fmt.Errorf("find active bookings: %w", err)
	}
	status := cascade.ProjectAccommodationStatus(active)
	if err := tx.SetAccommodationStatus(ctx, accommodationID, status); err != nil {
		return fmt.Errorf("set accommodation %d status: %w", accommodationID, err)
	}
	return nil
}

func (s *BookingService) validateRegular(b *models.RegularBooking) error {
	if err := validateRegularRange(b.AccommodationID, b.CheckIn, b.CheckOut); err != nil {
		return err
	}
	if !b.AccommodationType.Valid() {
		return domain.NewValidationError("accommodation_type", "unknown accommodation type %q", b.AccommodationType)
	}
	if !b.TimeSlot.Valid() {
		return domain.NewValidationError("time_slot", "unknown time slot %q", b.TimeSlot)
	}
	if b.TotalPrice < 0 {
		return domain.NewValidationError("total_price", "must not be negative")
	}
	if s.catalog != nil && !s.catalog.Offers(b.TimeSlot, b.AccommodationType) {
		return domain.NewValidationError("time_slot", "%s does not offer the %s slot", b.AccommodationType, b.TimeSlot)
	}
	return nil
}

func (s *BookingService) publish(eventType string, payload events.BookingEventPayload) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", payload.BookingID).Msg("publish event error")
	}
}

func regularPayload(b *models.RegularBooking, previous models.BookingStatus) events.BookingEventPayload {
	return events.BookingEventPayload{
		Kind:            string(models.KindRegular),
		BookingID:       b.ID,
		AccommodationID: b.AccommodationID,
		Date:            models.FormatDate(b.CheckIn),
		Slot:            string(b.TimeSlot),
		Status:          string(b.Status),
		PreviousStatus:  string(previous),
	}
}

func eventPayload(e *models.EventBooking, previous models.BookingStatus) events.BookingEventPayload {
	return events.BookingEventPayload{
		Kind:           string(models.KindEvent),
		BookingID:      e.ID,
		Date:           models.FormatDate(e.BookingDate),
		Slot:           string(e.EventType),
		Status:         string(e.Status),
		PreviousStatus: string(previous),
	}
}
