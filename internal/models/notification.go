package models

import "time"

type NotificationStatus string

const (
	NotificationPending   NotificationStatus = "pending"
	NotificationRetry     NotificationStatus = "retry"
	NotificationCompleted NotificationStatus = "completed"
	NotificationFailed    NotificationStatus = "failed"
)

// Transition is a single status change produced by an approval plan.
type Transition struct {
	Kind      BookingKind   `json:"kind"`
	BookingID int64         `json:"booking_id"`
	From      BookingStatus `json:"from"`
	To        BookingStatus `json:"to"`
}

// NotificationIntent is a notice the approval flow wants delivered.
type NotificationIntent struct {
	Kind        NoticeKind  `json:"kind"`
	Recipient   string      `json:"recipient"`
	BookingKind BookingKind `json:"booking_kind"`
	BookingID   int64       `json:"booking_id"`
	BookingRef  string      `json:"booking_ref"`
	Reason      string      `json:"reason,omitempty"`
}

// Notification is an outbox row holding one intent until it is delivered.
type Notification struct {
	ID             int64              `json:"id"`
	IdempotencyKey string             `json:"idempotency_key"`
	Kind           NoticeKind         `json:"kind"`
	Recipient      string             `json:"recipient"`
	BookingKind    BookingKind        `json:"booking_kind"`
	BookingID      int64              `json:"booking_id"`
	Payload        string             `json:"payload"`
	Status         NotificationStatus `json:"status"`
	RetryCount     int                `json:"retry_count"`
	LastError      *string            `json:"last_error"`
	CreatedAt      time.Time          `json:"created_at"`
	ProcessedAt    *time.Time         `json:"processed_at"`
	NextRetryAt    *time.Time         `json:"next_retry_at"`
}

// ApprovalResult is returned to the caller of an approval.
type ApprovalResult struct {
	Kind          BookingKind `json:"kind"`
	BookingID     int64       `json:"booking_id"`
	RejectedCount int         `json:"rejected_count"`
	RejectedIDs   []int64     `json:"rejected_ids"`
}
