package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"resortbook/internal/database"
	"resortbook/internal/domain"
	"resortbook/internal/events"
	"resortbook/internal/locking"
	"resortbook/internal/models"
	"resortbook/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestApproveRegularCascade(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	seedRegular(t, store, models.RegularBooking{ID: 10, AccommodationID: 5, CheckIn: day("2025-03-10"), OwnerContact: "ten@example.com", Status: models.StatusPending})
	seedRegular(t, store, models.RegularBooking{ID: 11, AccommodationID: 5, CheckIn: day("2025-03-10"), OwnerContact: "eleven@example.com", Status: models.StatusPending})
	seedRegular(t, store, models.RegularBooking{ID: 12, AccommodationID: 5, CheckIn: day("2025-03-11"), Status: models.StatusPending})
	seedRegular(t, store, models.RegularBooking{ID: 13, AccommodationID: 6, CheckIn: day("2025-03-10"), Status: models.StatusPending})

	queue := new(mockQueue)
	queue.On("Schedule", ctx, mock.AnythingOfType("models.Notification")).Return(nil).Twice()
	bus := &recordingBus{}
	svc := NewApprovalService(store, locking.NewMemoryLocker(), queue, bus, testLogger())

	res, err := svc.ApproveRegularBooking(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RejectedCount)
	assert.Equal(t, []int64{11}, res.RejectedIDs)
	assert.Equal(t, models.KindRegular, res.Kind)

	b, err := store.GetRegularBooking(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, b.Status)

	b, err = store.GetRegularBooking(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, b.Status)

	// Other dates and accommodations are untouched.
	for _, id := range []int64{12, 13} {
		b, err = store.GetRegularBooking(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, b.Status, "booking %d", id)
	}

	acc, err := store.GetAccommodation(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, models.AccommodationBookedMorning, acc.Status)

	pending, err := store.GetPendingNotifications(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	recipients := []string{pending[0].Recipient, pending[1].Recipient}
	assert.ElementsMatch(t, []string{"ten@example.com", "eleven@example.com"}, recipients)

	assert.Equal(t, 1, bus.count(events.EventBookingApproved))
	assert.Equal(t, 1, bus.count(events.EventBookingAutoRejected))
	queue.AssertExpectations(t)
}

func TestApproveRegularLeavesOtherSlotsPending(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	seedRegular(t, store, models.RegularBooking{ID: 1, AccommodationID: 3, CheckIn: day("2025-03-10"), TimeSlot: models.SlotMorning, Status: models.StatusPending})
	seedRegular(t, store, models.RegularBooking{ID: 2, AccommodationID: 3, CheckIn: day("2025-03-10"), TimeSlot: models.SlotNight, Status: models.StatusPending})
	svc := NewApprovalService(store, locking.NewMemoryLocker(), nil, nil, testLogger())

	res, err := svc.ApproveRegularBooking(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, res.RejectedCount)
	assert.Equal(t, []int64{}, res.RejectedIDs)

	b, err := store.GetRegularBooking(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, b.Status)

	// The night booking overlaps the approved stay, so it cannot be approved.
	_, err = svc.ApproveRegularBooking(ctx, 2)
	var ce *domain.ConflictError
	require.ErrorAs(t, err, &ce)
	require.NotNil(t, ce.Conflicting)
	assert.Equal(t, int64(1), ce.Conflicting.ID)

	b, err = store.GetRegularBooking(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, b.Status)
}

func TestApproveRegularRejectedByApprovedWholeDayEvent(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	seedRegular(t, store, models.RegularBooking{ID: 1, AccommodationID: 3, CheckIn: day("2025-04-01"), Status: models.StatusPending})
	seedEvent(t, store, models.EventBooking{ID: 1, BookingDate: day("2025-04-01"), EventType: models.EventWholeDay, Status: models.StatusApproved})
	bus := &recordingBus{}
	svc := NewApprovalService(store, locking.NewMemoryLocker(), nil, bus, testLogger())

	_, err := svc.ApproveRegularBooking(ctx, 1)
	var ce *domain.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ReasonWholeDayEvent, ce.Reason)
	assert.Equal(t, 1, bus.count(events.EventApprovalConflict))

	b, err := store.GetRegularBooking(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, b.Status)

	pending, err := store.GetPendingNotifications(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestApproveRegularBlockedByPendingWholeDayEvent(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	seedEvent(t, store, models.EventBooking{ID: 1, BookingDate: day("2025-04-01"), EventType: models.EventWholeDay, Status: models.StatusPending})
	seedRegular(t, store, models.RegularBooking{ID: 2, AccommodationID: 3, CheckIn: day("2025-04-01"), Status: models.StatusPending})
	svc := NewApprovalService(store, locking.NewMemoryLocker(), nil, nil, testLogger())

	_, err := svc.ApproveRegularBooking(ctx, 2)
	var ce *domain.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ReasonWholeDayEvent, ce.Reason)
	require.NotNil(t, ce.Conflicting)
	assert.Equal(t, models.KindEvent, ce.Conflicting.Type)
	assert.Equal(t, int64(1), ce.Conflicting.ID)

	b, err := store.GetRegularBooking(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, b.Status)

	// The event keeps its priority over the regular request.
	_, err = svc.ApproveEventBooking(ctx, 1)
	require.NoError(t, err)
}

func TestApproveRegularRestrictedSlot(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	seedRegular(t, store, models.RegularBooking{ID: 1, AccommodationID: 3, CheckIn: day("2025-05-01"), TimeSlot: models.SlotMorning, Status: models.StatusPending})
	seedRegular(t, store, models.RegularBooking{ID: 2, AccommodationID: 4, CheckIn: day("2025-05-01"), TimeSlot: models.SlotNight, Status: models.StatusPending})
	seedEvent(t, store, models.EventBooking{BookingDate: day("2025-05-01"), EventType: models.EventMorning, Status: models.StatusApproved})
	svc := NewApprovalService(store, nil, nil, nil, testLogger())

	_, err := svc.ApproveRegularBooking(ctx, 1)
	assert.True(t, domain.IsConflict(err))

	// Night stays are not blocked by daytime events.
	_, err = svc.ApproveRegularBooking(ctx, 2)
	require.NoError(t, err)
}

func TestApproveIsNotRepeatable(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	seedRegular(t, store, models.RegularBooking{ID: 1, AccommodationID: 3, CheckIn: day("2025-03-10"), Status: models.StatusPending})
	seedEvent(t, store, models.EventBooking{ID: 1, BookingDate: day("2025-03-12"), EventType: models.EventMorning, Status: models.StatusPending})
	svc := NewApprovalService(store, locking.NewMemoryLocker(), nil, nil, testLogger())

	_, err := svc.ApproveRegularBooking(ctx, 1)
	require.NoError(t, err)
	_, err = svc.ApproveRegularBooking(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = svc.ApproveEventBooking(ctx, 1)
	require.NoError(t, err)
	_, err = svc.ApproveEventBooking(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	pending, err := store.GetPendingNotifications(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestApproveNotFound(t *testing.T) {
	ctx := context.Background()
	svc := NewApprovalService(repository.NewMemoryStore(), nil, nil, nil, testLogger())

	_, err := svc.ApproveRegularBooking(ctx, 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.ApproveEventBooking(ctx, 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestApproveEventCascade(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	seedEvent(t, store, models.EventBooking{ID: 1, BookingDate: day("2025-06-01"), EventType: models.EventWholeDay, Status: models.StatusPending})
	seedEvent(t, store, models.EventBooking{ID: 2, BookingDate: day("2025-06-01"), EventType: models.EventMorning, Status: models.StatusPending})
	seedEvent(t, store, models.EventBooking{ID: 3, BookingDate: day("2025-06-01"), EventType: models.EventEvening, Status: models.StatusPending})
	seedEvent(t, store, models.EventBooking{ID: 4, BookingDate: day("2025-06-01"), EventType: models.EventMorning, Status: models.StatusPending})
	seedEvent(t, store, models.EventBooking{ID: 5, BookingDate: day("2025-06-02"), EventType: models.EventMorning, Status: models.StatusPending})
	bus := &recordingBus{}
	svc := NewApprovalService(store, locking.NewMemoryLocker(), nil, bus, testLogger())

	res, err := svc.ApproveEventBooking(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 4}, res.RejectedIDs)
	assert.Equal(t, 2, res.RejectedCount)
	assert.Equal(t, 2, bus.count(events.EventBookingAutoRejected))

	statuses := map[int64]models.BookingStatus{}
	for id := int64(1); id <= 5; id++ {
		e, err := store.GetEventBooking(ctx, id)
		require.NoError(t, err)
		statuses[id] = e.Status
	}
	assert.Equal(t, map[int64]models.BookingStatus{
		1: models.StatusRejected,
		2: models.StatusApproved,
		3: models.StatusPending,
		4: models.StatusRejected,
		5: models.StatusPending,
	}, statuses)

	// The evening event still fits next to the approved morning one.
	res, err = svc.ApproveEventBooking(ctx, 3)
	require.NoError(t, err)
	assert.Zero(t, res.RejectedCount)

	pending, err := store.GetPendingNotifications(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 4)
}

func TestApproveEventBlockedByApprovedRegular(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	seedRegular(t, store, models.RegularBooking{ID: 7, AccommodationID: 2, CheckIn: day("2025-06-05"), CheckOut: dayPtr("2025-06-07"), Status: models.StatusApproved})
	seedRegular(t, store, models.RegularBooking{ID: 8, AccommodationID: 3, CheckIn: day("2025-06-09"), Status: models.StatusPending})
	seedEvent(t, store, models.EventBooking{ID: 1, BookingDate: day("2025-06-06"), EventType: models.EventEvening, Status: models.StatusPending})
	seedEvent(t, store, models.EventBooking{ID: 2, BookingDate: day("2025-06-09"), EventType: models.EventEvening, Status: models.StatusPending})
	svc := NewApprovalService(store, nil, nil, nil, testLogger())

	_, err := svc.ApproveEventBooking(ctx, 1)
	var ce *domain.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ReasonRegularOccupant, ce.Reason)
	assert.Equal(t, int64(7), ce.Conflicting.ID)

	// Pending regular bookings do not block an approval.
	_, err = svc.ApproveEventBooking(ctx, 2)
	require.NoError(t, err)
}

func TestApproveLockFailure(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	seedRegular(t, store, models.RegularBooking{ID: 1, AccommodationID: 3, CheckIn: day("2025-03-10"), Status: models.StatusPending})

	locker := new(mockLocker)
	locker.On("Lock", ctx, "regular:3").Return(nil, domain.ErrLockNotAcquired)
	svc := NewApprovalService(store, locker, nil, nil, testLogger())

	_, err := svc.ApproveRegularBooking(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrLockNotAcquired)

	b, err := store.GetRegularBooking(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, b.Status)
	locker.AssertExpectations(t)
}

func TestApproveScheduleFailureKeepsApproval(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	seedRegular(t, store, models.RegularBooking{ID: 1, AccommodationID: 3, CheckIn: day("2025-03-10"), Status: models.StatusPending})
	seedRegular(t, store, models.RegularBooking{ID: 2, AccommodationID: 3, CheckIn: day("2025-03-10"), Status: models.StatusPending})

	queue := new(mockQueue)
	queue.On("Schedule", ctx, mock.Anything).Return(errors.New("queue down"))
	released := false
	locker := new(mockLocker)
	locker.On("Lock", ctx, "regular:3").Return(func() { released = true }, nil)
	svc := NewApprovalService(store, locker, queue, nil, testLogger())

	res, err := svc.ApproveRegularBooking(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RejectedCount)
	assert.True(t, released)

	// Rows stay in the outbox for the poller.
	pending, err := store.GetPendingNotifications(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
	queue.AssertNumberOfCalls(t, "Schedule", 2)
}

func TestApproveRegularOnSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := database.NewDB(":memory:", testLogger())
	require.NoError(t, err)
	defer db.Close()

	for _, b := range []*models.RegularBooking{
		{ID: 10, AccommodationID: 5, AccommodationType: models.AccommodationRoom, CheckIn: day("2025-03-10"), TimeSlot: models.SlotMorning, Status: models.StatusPending},
		{ID: 11, AccommodationID: 5, AccommodationType: models.AccommodationRoom, CheckIn: day("2025-03-10"), TimeSlot: models.SlotMorning, Status: models.StatusPending},
	} {
		require.NoError(t, db.CreateRegularBooking(ctx, b))
	}

	svc := NewApprovalService(db, locking.NewMemoryLocker(), nil, nil, testLogger())
	res, err := svc.ApproveRegularBooking(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RejectedCount)

	b, err := db.GetRegularBooking(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, b.Status)

	acc, err := db.GetAccommodation(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, models.AccommodationBookedMorning, acc.Status)

	pending, err := db.GetPendingNotifications(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func approvalBackends() []struct {
	name string
	open func(t *testing.T) domain.Store
} {
	return []struct {
		name string
		open func(t *testing.T) domain.Store
	}{
		{"memory", func(t *testing.T) domain.Store { return repository.NewMemoryStore() }},
		{"sqlite", func(t *testing.T) domain.Store {
			db, err := database.NewDB(":memory:", testLogger())
			require.NoError(t, err)
			t.Cleanup(func() { _ = db.Close() })
			return db
		}},
	}
}

// approveConcurrently starts every approval at once and returns their errors
// in order.
func approveConcurrently(approvals ...func() error) []error {
	errs := make([]error, len(approvals))
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(len(approvals))
	for i, approve := range approvals {
		go func(i int, approve func() error) {
			defer wg.Done()
			<-start
			errs[i] = approve()
		}(i, approve)
	}
	close(start)
	wg.Wait()
	return errs
}

func TestConcurrentConflictingApprovals(t *testing.T) {
	const iterations = 20
	ctx := context.Background()

	for _, backend := range approvalBackends() {
		t.Run(backend.name, func(t *testing.T) {
			for i := 0; i < iterations; i++ {
				store := backend.open(t)
				seedRegular(t, store, models.RegularBooking{ID: 1, AccommodationID: 7, CheckIn: day("2025-08-01"), CheckOut: dayPtr("2025-08-03"), TimeSlot: models.SlotNight, Status: models.StatusPending})
				seedRegular(t, store, models.RegularBooking{ID: 2, AccommodationID: 7, CheckIn: day("2025-08-02"), TimeSlot: models.SlotNight, Status: models.StatusPending})
				seedEvent(t, store, models.EventBooking{ID: 1, BookingDate: day("2025-08-01"), EventType: models.EventWholeDay, Status: models.StatusPending})
				svc := NewApprovalService(store, locking.NewMemoryLocker(), nil, nil, testLogger())

				errs := approveConcurrently(
					func() error { _, err := svc.ApproveRegularBooking(ctx, 1); return err },
					func() error { _, err := svc.ApproveRegularBooking(ctx, 2); return err },
					func() error { _, err := svc.ApproveEventBooking(ctx, 1); return err },
				)

				// The whole-day event blocks booking 1 whether or not it is
				// approved yet, which leaves booking 2 free.
				assert.True(t, domain.IsConflict(errs[0]), "booking 1: %v", errs[0])
				assert.NoError(t, errs[1], "booking 2")
				assert.NoError(t, errs[2], "event 1")

				first, err := store.GetRegularBooking(ctx, 1)
				require.NoError(t, err)
				second, err := store.GetRegularBooking(ctx, 2)
				require.NoError(t, err)
				event, err := store.GetEventBooking(ctx, 1)
				require.NoError(t, err)

				assert.Equal(t, models.StatusPending, first.Status)
				assert.Equal(t, models.StatusApproved, second.Status)
				assert.Equal(t, models.StatusApproved, event.Status)
			}
		})
	}
}

func TestConcurrentOverlappingRegularApprovals(t *testing.T) {
	const iterations = 20
	ctx := context.Background()

	for _, backend := range approvalBackends() {
		t.Run(backend.name, func(t *testing.T) {
			for i := 0; i < iterations; i++ {
				store := backend.open(t)
				seedRegular(t, store, models.RegularBooking{ID: 1, AccommodationID: 7, CheckIn: day("2025-08-01"), CheckOut: dayPtr("2025-08-03"), TimeSlot: models.SlotNight, Status: models.StatusPending})
				seedRegular(t, store, models.RegularBooking{ID: 2, AccommodationID: 7, CheckIn: day("2025-08-02"), TimeSlot: models.SlotNight, Status: models.StatusPending})
				svc := NewApprovalService(store, locking.NewMemoryLocker(), nil, nil, testLogger())

				errs := approveConcurrently(
					func() error { _, err := svc.ApproveRegularBooking(ctx, 1); return err },
					func() error { _, err := svc.ApproveRegularBooking(ctx, 2); return err },
				)

				successCount := 0
				for _, err := range errs {
					if err == nil {
						successCount++
						continue
					}
					assert.True(t, domain.IsConflict(err), "unexpected error: %v", err)
				}
				assert.Equal(t, 1, successCount, "only one of two overlapping bookings may be approved")

				approved := 0
				for _, id := range []int64{1, 2} {
					b, err := store.GetRegularBooking(ctx, id)
					require.NoError(t, err)
					if b.Status == models.StatusApproved {
						approved++
					}
				}
				assert.Equal(t, 1, approved)
			}
		})
	}
}
