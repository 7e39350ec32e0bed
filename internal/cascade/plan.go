// Package cascade decides what an approval changes. It performs no I/O:
// callers gather the inputs, then apply the returned Plan in one transaction.
package cascade

import (
	"fmt"
	"sort"

	"resortbook/internal/conflict"
	"resortbook/internal/domain"
	"resortbook/internal/models"
)

const (
	RefundReasonRegular = "the requested slot was allocated to another booking"
	RefundReasonEvent   = "the requested date was allocated to another event"
)

// Plan is the complete effect of one approval.
type Plan struct {
	Transitions []models.Transition
	// AccommodationID is zero for event approvals.
	AccommodationID     int64
	AccommodationStatus models.AccommodationStatus
	Intents             []models.NotificationIntent
}

// Rejected lists the ids the plan auto-rejects, in ascending order.
func (p Plan) Rejected() []int64 {
	var ids []int64
	for _, t := range p.Transitions {
		if t.To == models.StatusRejected {
			ids = append(ids, t.BookingID)
		}
	}
	return ids
}

// RegularInput is everything PlanRegularApproval needs, read inside the
// approval transaction.
type RegularInput struct {
	Target *models.RegularBooking
	// Verdict is the availability re-check excluding Target.
	Verdict models.Verdict
	// ApprovedOverlap is the lowest-id approved booking of the same
	// accommodation overlapping Target, if any.
	ApprovedOverlap *models.RegularBooking
	// Pending holds pending bookings of the accommodation around Target's check-in.
	Pending []*models.RegularBooking
}

func PlanRegularApproval(in RegularInput) (Plan, error) {
	target := in.Target
	if !models.CanTransition(target.Status, models.StatusApproved) {
		return Plan{}, fmt.Errorf("approve %s from %s: %w", target.Ref(), target.Status, domain.ErrInvalidTransition)
	}
	if !in.Verdict.Available {
		return Plan{}, domain.ConflictFromVerdict(in.Verdict)
	}
	if !conflict.SlotPermitted(in.Verdict.AvailableSlots, target.TimeSlot) {
		return Plan{}, &domain.ConflictError{
			Reason: fmt.Sprintf("%s slot is not available on %s; open slots: %v",
				target.TimeSlot, models.FormatDate(target.CheckIn), in.Verdict.AvailableSlots),
		}
	}
	if o := in.ApprovedOverlap; o != nil && o.ID != target.ID {
		return Plan{}, &domain.ConflictError{
			Reason:      "accommodation already has an approved booking for the selected dates",
			Conflicting: &models.ConflictRef{Type: models.KindRegular, ID: o.ID, Date: models.FormatDate(o.CheckIn)},
		}
	}

	plan := Plan{
		Transitions: []models.Transition{{
			Kind: models.KindRegular, BookingID: target.ID, From: target.Status, To: models.StatusApproved,
		}},
		AccommodationID:     target.AccommodationID,
		AccommodationStatus: models.BookedStatus(target.TimeSlot),
	}

	for _, s := range coLocatedRegular(target, in.Pending) {
		plan.Transitions = append(plan.Transitions, models.Transition{
			Kind: models.KindRegular, BookingID: s.ID, From: s.Status, To: models.StatusRejected,
		})
		plan.Intents = append(plan.Intents, models.NotificationIntent{
			Kind:        models.NoticeRefund,
			Recipient:   s.OwnerContact,
			BookingKind: models.KindRegular,
			BookingID:   s.ID,
			BookingRef:  s.Ref(),
			Reason:      RefundReasonRegular,
		})
	}

	plan.Intents = append(plan.Intents, models.NotificationIntent{
		Kind:        models.NoticeApproval,
		Recipient:   target.OwnerContact,
		BookingKind: models.KindRegular,
		BookingID:   target.ID,
		BookingRef:  target.Ref(),
	})
	return plan, nil
}

// coLocatedRegular picks the other pending bookings sharing the target's
// accommodation, check-in date and time slot.
func coLocatedRegular(target *models.RegularBooking, pending []*models.RegularBooking) []*models.RegularBooking {
	var out []*models.RegularBooking
	for _, b := range pending {
		if b.ID == target.ID || b.Status != models.StatusPending {
			continue
		}
		if b.AccommodationID != target.AccommodationID || b.TimeSlot != target.TimeSlot {
			continue
		}
		if !models.Day(b.CheckIn).Equal(models.Day(target.CheckIn)) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// EventInput mirrors RegularInput for event approvals.
type EventInput struct {
	Target  *models.EventBooking
	Verdict models.Verdict
	// Pending holds pending events on Target's date.
	Pending []*models.EventBooking
}

func PlanEventApproval(in EventInput) (Plan, error) {
	target := in.Target
	if !models.CanTransition(target.Status, models.StatusApproved) {
		return Plan{}, fmt.Errorf("approve %s from %s: %w", target.Ref(), target.Status, domain.ErrInvalidTransition)
	}
	if !in.Verdict.Available {
		return Plan{}, domain.ConflictFromVerdict(in.Verdict)
	}

	plan := Plan{
		Transitions: []models.Transition{{
			Kind: models.KindEvent, BookingID: target.ID, From: target.Status, To: models.StatusApproved,
		}},
	}

	siblings := make([]*models.EventBooking, 0, len(in.Pending))
	for _, e := range in.Pending {
		if e.ID == target.ID || e.Status != models.StatusPending {
			continue
		}
		if !models.Day(e.BookingDate).Equal(models.Day(target.BookingDate)) {
			continue
		}
		if !conflict.EventTypesConflict(target.EventType, e.EventType) {
			continue
		}
		siblings = append(siblings, e)
	}
	sort.Slice(siblings, func(i, j int) bool { return siblings[i].ID < siblings[j].ID })

	for _, e := range siblings {
		plan.Transitions = append(plan.Transitions, models.Transition{
			Kind: models.KindEvent, BookingID: e.ID, From: e.Status, To: models.StatusRejected,
		})
		plan.Intents = append(plan.Intents, models.NotificationIntent{
			Kind:        models.NoticeRefund,
			Recipient:   e.OwnerContact,
			BookingKind: models.KindEvent,
			BookingID:   e.ID,
			BookingRef:  e.Ref(),
			Reason:      RefundReasonEvent,
		})
	}

	plan.Intents = append(plan.Intents, models.NotificationIntent{
		Kind:        models.NoticeApproval,
		Recipient:   target.OwnerContact,
		BookingKind: models.KindEvent,
		BookingID:   target.ID,
		BookingRef:  target.Ref(),
	})
	return plan, nil
}

// ProjectAccommodationStatus derives the display status from the bookings
// still active on an accommodation. The lowest-id approved booking wins.
func ProjectAccommodationStatus(active []*models.RegularBooking) models.AccommodationStatus {
	var approved *models.RegularBooking
	hasPending := false
	for _, b := range active {
		switch b.Status {
		case models.StatusApproved:
			if approved == nil || b.ID < approved.ID {
				approved = b
			}
		case models.StatusPending:
			hasPending = true
		case models.StatusRejected, models.StatusCancelled, models.StatusCompleted:
		}
	}
	switch {
	case approved != nil:
		return models.BookedStatus(approved.TimeSlot)
	case hasPending:
		return models.AccommodationPending
	default:
		return models.AccommodationVacant
	}
}
