package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"resortbook/internal/domain"
	"resortbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func day(s string) time.Time {
	d, err := models.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func dayPtr(s string) *time.Time {
	d := day(s)
	return &d
}

func seedRegular(t *testing.T, store domain.BookingStore, b models.RegularBooking) *models.RegularBooking {
	t.Helper()
	if b.AccommodationType == "" {
		b.AccommodationType = models.AccommodationRoom
	}
	if b.TimeSlot == "" {
		b.TimeSlot = models.SlotMorning
	}
	if b.OwnerContact == "" {
		b.OwnerContact = "guest@example.com"
	}
	require.NoError(t, store.CreateRegularBooking(context.Background(), &b))
	return &b
}

func seedEvent(t *testing.T, store domain.BookingStore, e models.EventBooking) *models.EventBooking {
	t.Helper()
	if e.OwnerContact == "" {
		e.OwnerContact = "host@example.com"
	}
	require.NoError(t, store.CreateEventBooking(context.Background(), &e))
	return &e
}

// recordingBus keeps the published event types in order.
type recordingBus struct {
	mu    sync.Mutex
	types []string
}

func (b *recordingBus) PublishJSON(eventType string, payload interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.types = append(b.types, eventType)
	return nil
}

func (b *recordingBus) count(eventType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, t := range b.types {
		if t == eventType {
			n++
		}
	}
	return n
}

type mockQueue struct {
	mock.Mock
}

func (m *mockQueue) Schedule(ctx context.Context, n models.Notification) error {
	return m.Called(ctx, n).Error(0)
}

type mockLocker struct {
	mock.Mock
}

func (m *mockLocker) Lock(ctx context.Context, key string) (func(), error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(func()), args.Error(1)
}
