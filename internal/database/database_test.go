package database

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"resortbook/internal/domain"
	"resortbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	logger := zerolog.New(io.Discard)
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	return db
}

func date(s string) time.Time {
	d, err := models.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func datePtr(s string) *time.Time {
	d := date(s)
	return &d
}

func TestNewDB_DirectoryCreation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	logger := zerolog.Nop()

	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, dbPath)
}

func TestRegularBookingCRUD(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	b := &models.RegularBooking{
		AccommodationID:   5,
		AccommodationType: models.AccommodationCottage,
		OwnerContact:      "guest@example.com",
		CheckIn:           date("2025-05-01"),
		CheckOut:          datePtr("2025-05-03"),
		TimeSlot:          models.SlotNight,
		Status:            models.StatusPending,
		TotalPrice:        1500,
	}
	require.NoError(t, db.CreateRegularBooking(ctx, b))
	assert.NotZero(t, b.ID)

	got, err := db.GetRegularBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.AccommodationID, got.AccommodationID)
	assert.Equal(t, "2025-05-01", models.FormatDate(got.CheckIn))
	require.NotNil(t, got.CheckOut)
	assert.Equal(t, "2025-05-03", models.FormatDate(*got.CheckOut))
	assert.Equal(t, models.SlotNight, got.TimeSlot)

	acc, err := db.GetAccommodation(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, models.AccommodationCottage, acc.Type)
	assert.Equal(t, models.AccommodationVacant, acc.Status)

	_, err = db.GetRegularBooking(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExplicitIDs(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	b := &models.RegularBooking{ID: 42, AccommodationID: 1, CheckIn: date("2025-05-01"), TimeSlot: models.SlotMorning, Status: models.StatusPending}
	require.NoError(t, db.CreateRegularBooking(ctx, b))
	assert.Equal(t, int64(42), b.ID)

	e := &models.EventBooking{ID: 7, BookingDate: date("2025-05-01"), EventType: models.EventMorning, Status: models.StatusPending}
	require.NoError(t, db.CreateEventBooking(ctx, e))
	assert.Equal(t, int64(7), e.ID)

	dup := &models.EventBooking{ID: 7, BookingDate: date("2025-05-02"), EventType: models.EventEvening, Status: models.StatusPending}
	assert.Error(t, db.CreateEventBooking(ctx, dup))
}

func TestFindRegularBookingsRange(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	seed := []*models.RegularBooking{
		{AccommodationID: 1, CheckIn: date("2025-05-01"), CheckOut: datePtr("2025-05-03"), TimeSlot: models.SlotNight, Status: models.StatusApproved},
		{AccommodationID: 1, CheckIn: date("2025-05-10"), TimeSlot: models.SlotMorning, Status: models.StatusPending},
		{AccommodationID: 1, CheckIn: date("2025-05-02"), TimeSlot: models.SlotMorning, Status: models.StatusCancelled},
		{AccommodationID: 2, CheckIn: date("2025-05-02"), TimeSlot: models.SlotMorning, Status: models.StatusPending},
	}
	for _, b := range seed {
		require.NoError(t, db.CreateRegularBooking(ctx, b))
	}

	got, err := db.FindRegularBookings(ctx, models.RegularFilter{
		AccommodationID: 1,
		From:            date("2025-05-03"),
		To:              date("2025-05-10"),
		Statuses:        models.ActiveStatuses,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, seed[0].ID, got[0].ID)
	assert.Equal(t, seed[1].ID, got[1].ID)

	// A single-day booking is matched on its check-in date.
	got, err = db.FindRegularBookings(ctx, models.RegularFilter{From: date("2025-05-02"), To: date("2025-05-02")})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = db.FindRegularBookings(ctx, models.RegularFilter{From: date("2025-05-04"), To: date("2025-05-09")})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindEventBookings(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	for _, e := range []*models.EventBooking{
		{BookingDate: date("2025-05-01"), EventType: models.EventMorning, Status: models.StatusPending},
		{BookingDate: date("2025-05-01"), EventType: models.EventEvening, Status: models.StatusRejected},
		{BookingDate: date("2025-05-02"), EventType: models.EventWholeDay, Status: models.StatusApproved},
	} {
		require.NoError(t, db.CreateEventBooking(ctx, e))
	}

	got, err := db.FindEventBookings(ctx, models.EventFilter{From: date("2025-05-01"), To: date("2025-05-01"), Statuses: models.ActiveStatuses})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.EventMorning, got[0].EventType)

	got, err = db.FindEventBookings(ctx, models.EventFilter{})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestUpdateStatusIsGuarded(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	e := &models.EventBooking{BookingDate: date("2025-05-01"), EventType: models.EventMorning, Status: models.StatusPending}
	require.NoError(t, db.CreateEventBooking(ctx, e))

	require.NoError(t, db.UpdateEventStatus(ctx, e.ID, models.StatusPending, models.StatusApproved))
	err := db.UpdateEventStatus(ctx, e.ID, models.StatusPending, models.StatusRejected)
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)

	err = db.UpdateRegularStatus(ctx, 404, models.StatusPending, models.StatusApproved)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got, err := db.GetEventBooking(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)
}

func TestDeleteBooking(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	b := &models.RegularBooking{AccommodationID: 1, CheckIn: date("2025-05-01"), TimeSlot: models.SlotMorning, Status: models.StatusCancelled}
	require.NoError(t, db.CreateRegularBooking(ctx, b))

	require.NoError(t, db.DeleteRegularBooking(ctx, b.ID))
	assert.ErrorIs(t, db.DeleteRegularBooking(ctx, b.ID), domain.ErrNotFound)
	assert.ErrorIs(t, db.DeleteEventBooking(ctx, 1), domain.ErrNotFound)
}

func TestAccommodationStatus(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	acc, err := db.GetAccommodation(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, models.AccommodationVacant, acc.Status)

	require.NoError(t, db.SetAccommodationStatus(ctx, 9, models.AccommodationBookedNight))
	acc, err = db.GetAccommodation(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, models.AccommodationBookedNight, acc.Status)
}

func TestInTxRollback(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	e := &models.EventBooking{BookingDate: date("2025-05-01"), EventType: models.EventMorning, Status: models.StatusPending}
	require.NoError(t, db.CreateEventBooking(ctx, e))

	boom := errors.New("boom")
	err := db.InTx(ctx, "event:2025-05-01", func(tx domain.BookingStore) error {
		if err := tx.UpdateEventStatus(ctx, e.ID, models.StatusPending, models.StatusApproved); err != nil {
			return err
		}
		if err := tx.CreateNotification(ctx, &models.Notification{IdempotencyKey: "k1", Kind: models.NoticeApproval, BookingKind: models.KindEvent, BookingID: e.ID}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := db.GetEventBooking(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)

	pending, err := db.GetPendingNotifications(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestInTxCommit(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	err := db.InTx(ctx, "regular:1", func(tx domain.BookingStore) error {
		b := &models.RegularBooking{AccommodationID: 1, CheckIn: date("2025-05-01"), TimeSlot: models.SlotWholeDay, Status: models.StatusPending}
		if err := tx.CreateRegularBooking(ctx, b); err != nil {
			return err
		}
		return tx.SetAccommodationStatus(ctx, 1, models.AccommodationPending)
	})
	require.NoError(t, err)

	got, err := db.FindRegularBookings(ctx, models.RegularFilter{AccommodationID: 1})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestConcurrentGuardedApproval(t *testing.T) {
	logger := zerolog.New(io.Discard)
	db, err := NewDB(filepath.Join(t.TempDir(), "concurrency.db"), &logger)
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	e := &models.EventBooking{BookingDate: date("2025-05-01"), EventType: models.EventWholeDay, Status: models.StatusPending}
	require.NoError(t, db.CreateEventBooking(ctx, e))

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			results <- db.InTx(ctx, "event:2025-05-01", func(tx domain.BookingStore) error {
				return tx.UpdateEventStatus(ctx, e.ID, models.StatusPending, models.StatusApproved)
			})
		}()
	}
	wg.Wait()
	close(results)

	successCount := 0
	for err := range results {
		if err == nil {
			successCount++
		} else {
			assert.ErrorIs(t, err, domain.ErrConcurrentModification)
		}
	}
	assert.Equal(t, 1, successCount, "only one approval may win")
}

func TestDB_ErrorPaths(t *testing.T) {
	db := setupTestDB(t)
	db.Close()
	ctx := context.Background()

	_, err := db.FindRegularBookings(ctx, models.RegularFilter{})
	assert.Error(t, err)
	assert.Error(t, db.CreateEventBooking(ctx, &models.EventBooking{}))
	_, err = db.GetPendingNotifications(ctx, 10)
	assert.Error(t, err)
	assert.Error(t, db.InTx(ctx, "x", func(domain.BookingStore) error { return nil }))
}
