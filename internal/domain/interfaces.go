package domain

import (
	"context"
	"time"

	"resortbook/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BookingReader is the read side used by conflict detection and the calendar.
// Find methods return bookings ordered by id ascending.
type BookingReader interface {
	GetRegularBooking(ctx context.Context, id int64) (*models.RegularBooking, error)
	GetEventBooking(ctx context.Context, id int64) (*models.EventBooking, error)
	FindRegularBookings(ctx context.Context, filter models.RegularFilter) ([]*models.RegularBooking, error)
	FindEventBookings(ctx context.Context, filter models.EventFilter) ([]*models.EventBooking, error)
}

type AccommodationProjector interface {
	SetAccommodationStatus(ctx context.Context, accommodationID int64, status models.AccommodationStatus) error
}

// BookingStore is everything a single transaction can touch.
type BookingStore interface {
	BookingReader
	AccommodationProjector

	CreateRegularBooking(ctx context.Context, booking *models.RegularBooking) error
	CreateEventBooking(ctx context.Context, booking *models.EventBooking) error
	// Update*Status return ErrConcurrentModification when the row is no
	// longer in the from status.
	UpdateRegularStatus(ctx context.Context, id int64, from, to models.BookingStatus) error
	UpdateEventStatus(ctx context.Context, id int64, from, to models.BookingStatus) error
	DeleteRegularBooking(ctx context.Context, id int64) error
	DeleteEventBooking(ctx context.Context, id int64) error
	CreateNotification(ctx context.Context, n *models.Notification) error
}

// Store runs fn inside one transaction; lockKey names the unit being
// serialized so backends with explicit locks can take it.
type Store interface {
	BookingStore
	InTx(ctx context.Context, lockKey string, fn func(tx BookingStore) error) error
}

// NotificationStore is the outbox consumed by the dispatcher.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	GetPendingNotifications(ctx context.Context, limit int) ([]models.Notification, error)
	GetNotification(ctx context.Context, id int64) (*models.Notification, error)
	UpdateNotificationStatus(ctx context.Context, id int64, status models.NotificationStatus, errMsg string, nextRetryAt *time.Time) error
}

// OutboxInspector lists notifications that exhausted their retries.
type OutboxInspector interface {
	GetFailedNotifications(ctx context.Context) ([]models.Notification, error)
}

// NotificationQueue hands already persisted notifications to the dispatcher.
type NotificationQueue interface {
	Schedule(ctx context.Context, n models.Notification) error
}

type Notifier interface {
	SendApprovalNotice(ctx context.Context, recipient, bookingRef string) error
	SendRefundNotice(ctx context.Context, recipient, bookingRef, reason string) error
}

// UnitLocker serializes work on a named unit across goroutines or processes.
type UnitLocker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}
