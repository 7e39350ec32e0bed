package service

import (
	"context"
	"testing"

	"resortbook/internal/domain"
	"resortbook/internal/events"
	"resortbook/internal/locking"
	"resortbook/internal/models"
	"resortbook/internal/repository"
	"resortbook/internal/slots"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bookingFixture struct {
	store    *repository.MemoryStore
	bus      *recordingBus
	bookings *BookingService
	approval *ApprovalService
}

func newBookingFixture(t *testing.T) *bookingFixture {
	t.Helper()
	catalog, err := slots.NewCatalog(slots.Defaults())
	require.NoError(t, err)

	store := repository.NewMemoryStore()
	bus := &recordingBus{}
	availability := NewAvailabilityService(store, bus, testLogger())
	return &bookingFixture{
		store:    store,
		bus:      bus,
		bookings: NewBookingService(store, catalog, availability, bus, testLogger()),
		approval: NewApprovalService(store, locking.NewMemoryLocker(), nil, bus, testLogger()),
	}
}

func (f *bookingFixture) accommodationStatus(t *testing.T, id int64) models.AccommodationStatus {
	t.Helper()
	acc, err := f.store.GetAccommodation(context.Background(), id)
	require.NoError(t, err)
	return acc.Status
}

func TestCreateRegularBooking(t *testing.T) {
	ctx := context.Background()
	f := newBookingFixture(t)

	b := &models.RegularBooking{
		AccommodationID:   5,
		AccommodationType: models.AccommodationRoom,
		OwnerContact:      "guest@example.com",
		CheckIn:           day("2025-03-10"),
		CheckOut:          dayPtr("2025-03-12"),
		TimeSlot:          models.SlotNight,
		TotalPrice:        240,
	}
	require.NoError(t, f.bookings.CreateRegularBooking(ctx, b))
	assert.NotZero(t, b.ID)
	assert.Equal(t, models.StatusPending, b.Status)
	assert.Equal(t, models.AccommodationPending, f.accommodationStatus(t, 5))
	assert.Equal(t, 1, f.bus.count(events.EventBookingCreated))

	got, err := f.bookings.GetRegularBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-12", models.FormatDate(*got.CheckOut))

	// Overlapping request on the same accommodation is refused.
	err = f.bookings.CreateRegularBooking(ctx, &models.RegularBooking{
		AccommodationID: 5, AccommodationType: models.AccommodationRoom,
		CheckIn: day("2025-03-11"), TimeSlot: models.SlotMorning,
	})
	var ce *domain.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ReasonRegularOverlap, ce.Reason)
	assert.Equal(t, b.ID, ce.Conflicting.ID)
}

func TestCreateRegularBookingValidation(t *testing.T) {
	ctx := context.Background()
	f := newBookingFixture(t)

	tests := []struct {
		name    string
		booking models.RegularBooking
	}{
		{"missing accommodation", models.RegularBooking{AccommodationType: models.AccommodationRoom, CheckIn: day("2025-03-10"), TimeSlot: models.SlotNight}},
		{"unknown slot", models.RegularBooking{AccommodationID: 1, AccommodationType: models.AccommodationRoom, CheckIn: day("2025-03-10"), TimeSlot: "noon"}},
		{"unknown type", models.RegularBooking{AccommodationID: 1, AccommodationType: "villa", CheckIn: day("2025-03-10"), TimeSlot: models.SlotNight}},
		{"cottage whole day", models.RegularBooking{AccommodationID: 1, AccommodationType: models.AccommodationCottage, CheckIn: day("2025-03-10"), TimeSlot: models.SlotWholeDay}},
		{"checkout before checkin", models.RegularBooking{AccommodationID: 1, AccommodationType: models.AccommodationRoom, CheckIn: day("2025-03-10"), CheckOut: dayPtr("2025-03-09"), TimeSlot: models.SlotNight}},
		{"negative price", models.RegularBooking{AccommodationID: 1, AccommodationType: models.AccommodationRoom, CheckIn: day("2025-03-10"), TimeSlot: models.SlotNight, TotalPrice: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.booking
			err := f.bookings.CreateRegularBooking(ctx, &b)
			assert.True(t, domain.IsValidation(err), "got %v", err)
		})
	}
}

func TestCreateRegularBookingEnforcesRestriction(t *testing.T) {
	ctx := context.Background()
	f := newBookingFixture(t)
	seedEvent(t, f.store, models.EventBooking{BookingDate: day("2025-05-01"), EventType: models.EventMorning, Status: models.StatusApproved})

	err := f.bookings.CreateRegularBooking(ctx, &models.RegularBooking{
		AccommodationID: 1, AccommodationType: models.AccommodationRoom,
		CheckIn: day("2025-05-01"), TimeSlot: models.SlotMorning,
	})
	assert.True(t, domain.IsConflict(err))

	night := &models.RegularBooking{
		AccommodationID: 1, AccommodationType: models.AccommodationRoom,
		CheckIn: day("2025-05-01"), TimeSlot: models.SlotNight,
	}
	require.NoError(t, f.bookings.CreateRegularBooking(ctx, night))
}

func TestCreateEventBooking(t *testing.T) {
	ctx := context.Background()
	f := newBookingFixture(t)

	morning := &models.EventBooking{BookingDate: day("2025-05-01"), EventType: models.EventMorning, OwnerContact: "host@example.com"}
	require.NoError(t, f.bookings.CreateEventBooking(ctx, morning))
	assert.Equal(t, models.StatusPending, morning.Status)

	evening := &models.EventBooking{BookingDate: day("2025-05-01"), EventType: models.EventEvening}
	require.NoError(t, f.bookings.CreateEventBooking(ctx, evening))

	err := f.bookings.CreateEventBooking(ctx, &models.EventBooking{BookingDate: day("2025-05-01"), EventType: models.EventWholeDay})
	assert.True(t, domain.IsConflict(err))

	err = f.bookings.CreateEventBooking(ctx, &models.EventBooking{BookingDate: day("2025-05-02"), EventType: "brunch"})
	assert.True(t, domain.IsValidation(err))
}

func TestRegularLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newBookingFixture(t)

	b := &models.RegularBooking{AccommodationID: 4, AccommodationType: models.AccommodationRoom, CheckIn: day("2025-03-10"), TimeSlot: models.SlotWholeDay}
	require.NoError(t, f.bookings.CreateRegularBooking(ctx, b))

	// Completion requires an approved booking.
	err := f.bookings.CompleteBooking(ctx, models.KindRegular, b.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.approval.ApproveRegularBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AccommodationBookedWholeDay, f.accommodationStatus(t, 4))

	err = f.bookings.CancelBooking(ctx, models.KindRegular, b.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	require.NoError(t, f.bookings.CompleteBooking(ctx, models.KindRegular, b.ID))
	assert.Equal(t, models.AccommodationVacant, f.accommodationStatus(t, 4))
	assert.Equal(t, 1, f.bus.count(events.EventBookingStatusChanged))

	got, err := f.bookings.GetRegularBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)

	// Completed bookings are kept.
	err = f.bookings.DeleteBooking(ctx, models.KindRegular, b.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestRejectAndDeleteRegular(t *testing.T) {
	ctx := context.Background()
	f := newBookingFixture(t)

	first := &models.RegularBooking{AccommodationID: 4, AccommodationType: models.AccommodationRoom, CheckIn: day("2025-03-10"), TimeSlot: models.SlotNight}
	require.NoError(t, f.bookings.CreateRegularBooking(ctx, first))
	second := &models.RegularBooking{AccommodationID: 4, AccommodationType: models.AccommodationRoom, CheckIn: day("2025-03-20"), TimeSlot: models.SlotNight}
	require.NoError(t, f.bookings.CreateRegularBooking(ctx, second))

	err := f.bookings.DeleteBooking(ctx, models.KindRegular, first.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	require.NoError(t, f.bookings.RejectBooking(ctx, models.KindRegular, first.ID))
	assert.Equal(t, models.AccommodationPending, f.accommodationStatus(t, 4))

	require.NoError(t, f.bookings.CancelBooking(ctx, models.KindRegular, second.ID))
	assert.Equal(t, models.AccommodationVacant, f.accommodationStatus(t, 4))

	require.NoError(t, f.bookings.DeleteBooking(ctx, models.KindRegular, first.ID))
	_, err = f.bookings.GetRegularBooking(ctx, first.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 1, f.bus.count(events.EventBookingDeleted))
}

func TestEventLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newBookingFixture(t)

	e := &models.EventBooking{BookingDate: day("2025-05-01"), EventType: models.EventWholeDay}
	require.NoError(t, f.bookings.CreateEventBooking(ctx, e))

	require.NoError(t, f.bookings.CancelBooking(ctx, models.KindEvent, e.ID))
	got, err := f.bookings.GetEventBooking(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)

	err = f.bookings.RejectBooking(ctx, models.KindEvent, e.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	require.NoError(t, f.bookings.DeleteBooking(ctx, models.KindEvent, e.ID))
	_, err = f.bookings.GetEventBooking(ctx, e.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// The date is free again.
	require.NoError(t, f.bookings.CreateEventBooking(ctx, &models.EventBooking{BookingDate: day("2025-05-01"), EventType: models.EventWholeDay}))
}

func TestStatusChangeUnknownKindAndMissing(t *testing.T) {
	ctx := context.Background()
	f := newBookingFixture(t)

	assert.True(t, domain.IsValidation(f.bookings.RejectBooking(ctx, "spa", 1)))
	assert.True(t, domain.IsValidation(f.bookings.DeleteBooking(ctx, "spa", 1)))
	assert.ErrorIs(t, f.bookings.CancelBooking(ctx, models.KindRegular, 42), domain.ErrNotFound)
	assert.ErrorIs(t, f.bookings.DeleteBooking(ctx, models.KindEvent, 42), domain.ErrNotFound)
}
