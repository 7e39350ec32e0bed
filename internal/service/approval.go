package service

import (
	"context"
	"errors"
	"fmt"

	"resortbook/internal/cascade"
	"resortbook/internal/conflict"
	"resortbook/internal/domain"
	"resortbook/internal/events"
	"resortbook/internal/models"
	"resortbook/internal/worker"

	"github.com/rs/zerolog"
)

// ApprovalService applies approval plans. Each approval is serialized per
// contested unit and committed in a single transaction together with its
// outbox rows; notification delivery happens afterwards.
type ApprovalService struct {
	store    domain.Store
	locker   domain.UnitLocker
	queue    domain.NotificationQueue
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewApprovalService(store domain.Store, locker domain.UnitLocker, queue domain.NotificationQueue, eventBus domain.EventPublisher, logger *zerolog.Logger) *ApprovalService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &ApprovalService{
		store:    store,
		locker:   locker,
		queue:    queue,
		eventBus: eventBus,
		logger:   logger,
	}
}

// RegularLockKey serializes approvals of one accommodation across all dates
// and slots.
func RegularLockKey(accommodationID int64) string {
	return fmt.Sprintf("regular:%d", accommodationID)
}

// EventLockKey serializes event approvals of one date.
func EventLockKey(date string) string {
	return "event:" + date
}

// regularApprovalDetector blocks on every active event but only on approved
// regular bookings. Pending regular requests are cascade targets.
func regularApprovalDetector(tx domain.BookingReader) *conflict.Detector {
	return conflict.NewDetector(tx).
		WithEventStatuses(models.ActiveStatuses...).
		WithRegularStatuses(models.CommittedStatuses...)
}

// eventApprovalDetector sees only approved bookings: pending events on the
// date are cascade targets and pending regular requests never block an event.
func eventApprovalDetector(tx domain.BookingReader) *conflict.Detector {
	return conflict.NewDetector(tx).
		WithEventStatuses(models.CommittedStatuses...).
		WithRegularStatuses(models.CommittedStatuses...)
}

func (s *ApprovalService) ApproveRegularBooking(ctx context.Context, bookingID int64) (*models.ApprovalResult, error) {
	booking, err := s.store.GetRegularBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	key := RegularLockKey(booking.AccommodationID)
	release, err := s.lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		plan   cascade.Plan
		target *models.RegularBooking
		rows   []models.Notification
	)
	err = s.store.InTx(ctx, key, func(tx domain.BookingStore) error {
		var err error
		target, err = tx.GetRegularBooking(ctx, bookingID)
		if err != nil {
			return err
		}

		det := regularApprovalDetector(tx)
		verdict, err := checkRegular(ctx, det, target.AccommodationID, target.CheckIn, target.CheckOut, target.ID)
		if err != nil {
			return err
		}
		approvedOverlap, err := det.FirstRegularOverlap(ctx, target.AccommodationID, target.CheckIn, target.CheckOut, target.ID)
		if err != nil {
			return err
		}
		day := models.Day(target.CheckIn)
		pending, err := tx.FindRegularBookings(ctx, models.RegularFilter{
			AccommodationID: target.AccommodationID,
			From:            day,
			To:              day,
			Statuses:        []models.BookingStatus{models.StatusPending},
		})
		if err != nil {
			return fmt.Errorf("find pending bookings: %w", err)
		}

		plan, err = cascade.PlanRegularApproval(cascade.RegularInput{
			Target:          target,
			Verdict:         verdict,
			ApprovedOverlap: approvedOverlap,
			Pending:         pending,
		})
		if err != nil {
			return err
		}

		rows, err = applyPlan(ctx, tx, plan)
		return err
	})
	if err != nil {
		s.reportFailure(models.KindRegular, bookingID, err)
		return nil, err
	}

	s.dispatch(ctx, rows)
	s.publishRegularApproval(target, plan)

	s.logger.Info().
		Int64("booking_id", target.ID).
		Int64("accommodation_id", target.AccommodationID).
		Int("rejected", len(plan.Rejected())).
		Msg("regular booking approved")
	return approvalResult(models.KindRegular, target.ID, plan), nil
}

func (s *ApprovalService) ApproveEventBooking(ctx context.Context, bookingID int64) (*models.ApprovalResult, error) {
	booking, err := s.store.GetEventBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	key := EventLockKey(models.FormatDate(booking.BookingDate))
	release, err := s.lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		plan   cascade.Plan
		target *models.EventBooking
		rows   []models.Notification
	)
	err = s.store.InTx(ctx, key, func(tx domain.BookingStore) error {
		var err error
		target, err = tx.GetEventBooking(ctx, bookingID)
		if err != nil {
			return err
		}

		verdict, err := checkEvent(ctx, eventApprovalDetector(tx), target.BookingDate, target.EventType, target.ID)
		if err != nil {
			return err
		}
		day := models.Day(target.BookingDate)
		pending, err := tx.FindEventBookings(ctx, models.EventFilter{
			From:     day,
			To:       day,
			Statuses: []models.BookingStatus{models.StatusPending},
		})
		if err != nil {
			return fmt.Errorf("find pending events: %w", err)
		}

		plan, err = cascade.PlanEventApproval(cascade.EventInput{
			Target:  target,
			Verdict: verdict,
			Pending: pending,
		})
		if err != nil {
			return err
		}

		rows, err = applyPlan(ctx, tx, plan)
		return err
	})
	if err != nil {
		s.reportFailure(models.KindEvent, bookingID, err)
		return nil, err
	}

	s.dispatch(ctx, rows)
	s.publishEventApproval(target, plan)

	s.logger.Info().
		Int64("booking_id", target.ID).
		Str("date", models.FormatDate(target.BookingDate)).
		Int("rejected", len(plan.Rejected())).
		Msg("event booking approved")
	return approvalResult(models.KindEvent, target.ID, plan), nil
}

func (s *ApprovalService) lock(ctx context.Context, key string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	release, err := s.locker.Lock(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	return release, nil
}

// applyPlan writes every transition, the accommodation projection and the
// outbox rows through tx, returning the persisted rows.
func applyPlan(ctx context.Context, tx domain.BookingStore, plan cascade.Plan) ([]models.Notification, error) {
	for _, t := range plan.Transitions {
		if err := applyTransition(ctx, tx, t); err != nil {
			return nil, err
		}
	}

	if plan.AccommodationID != 0 {
		if err := tx.SetAccommodationStatus(ctx, plan.AccommodationID, plan.AccommodationStatus); err != nil {
			return nil, fmt.Errorf("set accommodation %d status: %w", plan.AccommodationID, err)
		}
	}

	rows := make([]models.Notification, 0, len(plan.Intents))
	for _, intent := range plan.Intents {
		n, err := worker.NotificationFromIntent(intent)
		if err != nil {
			return nil, err
		}
		if err := tx.CreateNotification(ctx, &n); err != nil {
			return nil, fmt.Errorf("store %s notice for %s: %w", intent.Kind, intent.BookingRef, err)
		}
		rows = append(rows, n)
	}
	return rows, nil
}

func applyTransition(ctx context.Context, tx domain.BookingStore, t models.Transition) error {
	var err error
	switch t.Kind {
	case models.KindRegular:
		err = tx.UpdateRegularStatus(ctx, t.BookingID, t.From, t.To)
	case models.KindEvent:
		err = tx.UpdateEventStatus(ctx, t.BookingID, t.From, t.To)
	default:
		err = fmt.Errorf("unknown booking kind %q", t.Kind)
	}
	if err != nil {
		return fmt.Errorf("%s booking %d %s -> %s: %w", t.Kind, t.BookingID, t.From, t.To, err)
	}
	return nil
}

// dispatch hands committed rows to the queue. A failed hand-off only delays
// delivery until the dispatcher polls the outbox.
func (s *ApprovalService) dispatch(ctx context.Context, rows []models.Notification) {
	if s.queue == nil {
		return
	}
	for i := range rows {
		if err := s.queue.Schedule(ctx, rows[i]); err != nil {
			s.logger.Warn().Err(err).
				Int64("notification_id", rows[i].ID).
				Int64("booking_id", rows[i].BookingID).
				Msg("schedule notification failed, left to polling")
		}
	}
}

func (s *ApprovalService) reportFailure(kind models.BookingKind, bookingID int64, err error) {
	var ce *domain.ConflictError
	if !errors.As(err, &ce) {
		if !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, domain.ErrInvalidTransition) {
			s.logger.Error().Err(err).Str("kind", string(kind)).Int64("booking_id", bookingID).Msg("approval failed")
		}
		return
	}

	s.logger.Info().Str("kind", string(kind)).Int64("booking_id", bookingID).Str("reason", ce.Reason).Msg("approval rejected by re-check")
	s.publish(events.EventApprovalConflict, events.BookingEventPayload{
		Kind:      string(kind),
		BookingID: bookingID,
		Status:    string(models.StatusPending),
		Reason:    ce.Reason,
	})
}

func (s *ApprovalService) publishRegularApproval(target *models.RegularBooking, plan cascade.Plan) {
	date := models.FormatDate(target.CheckIn)
	s.publish(events.EventBookingApproved, events.BookingEventPayload{
		Kind:            string(models.KindRegular),
		BookingID:       target.ID,
		AccommodationID: target.AccommodationID,
		Date:            date,
		Slot:            string(target.TimeSlot),
		Status:          string(models.StatusApproved),
		PreviousStatus:  string(target.Status),
	})
	for _, id := range plan.Rejected() {
		s.publish(events.EventBookingAutoRejected, events.BookingEventPayload{
			Kind:            string(models.KindRegular),
			BookingID:       id,
			AccommodationID: target.AccommodationID,
			Date:            date,
			Slot:            string(target.TimeSlot),
			Status:          string(models.StatusRejected),
			PreviousStatus:  string(models.StatusPending),
			Reason:          cascade.RefundReasonRegular,
			CascadeOf:       target.ID,
		})
	}
}

func (s *ApprovalService) publishEventApproval(target *models.EventBooking, plan cascade.Plan) {
	date := models.FormatDate(target.BookingDate)
	s.publish(events.EventBookingApproved, events.BookingEventPayload{
		Kind:           string(models.KindEvent),
		BookingID:      target.ID,
		Date:           date,
		Slot:           string(target.EventType),
		Status:         string(models.StatusApproved),
		PreviousStatus: string(target.Status),
	})
	for _, id := range plan.Rejected() {
		s.publish(events.EventBookingAutoRejected, events.BookingEventPayload{
			Kind:           string(models.KindEvent),
			BookingID:      id,
			Date:           date,
			Status:         string(models.StatusRejected),
			PreviousStatus: string(models.StatusPending),
			Reason:         cascade.RefundReasonEvent,
			CascadeOf:      target.ID,
		})
	}
}

func (s *ApprovalService) publish(eventType string, payload events.BookingEventPayload) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", payload.BookingID).Msg("publish event error")
	}
}

func approvalResult(kind models.BookingKind, id int64, plan cascade.Plan) *models.ApprovalResult {
	rejected := plan.Rejected()
	if rejected == nil {
		rejected = []int64{}
	}
	return &models.ApprovalResult{
		Kind:          kind,
		BookingID:     id,
		RejectedCount: len(rejected),
		RejectedIDs:   rejected,
	}
}
