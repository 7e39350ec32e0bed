package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"resortbook/internal/domain"
	"resortbook/internal/models"
)

const notificationColumns = `id, idempotency_key, kind, recipient, booking_kind, booking_id, payload,
    status, retry_count, last_error, created_at, processed_at, next_retry_at`

// CreateNotification writes an outbox row. Inside InTx it commits with the
// status changes that produced it.
func (b bookingQueries) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.Status == "" {
		n.Status = models.NotificationPending
	}
	now := time.Now().UTC()
	query := `INSERT INTO notifications (idempotency_key, kind, recipient, booking_kind, booking_id, payload,
                status, retry_count, last_error, created_at, next_retry_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := b.q.ExecContext(ctx, query,
		n.IdempotencyKey,
		n.Kind,
		n.Recipient,
		n.BookingKind,
		n.BookingID,
		n.Payload,
		n.Status,
		n.RetryCount,
		n.LastError,
		now,
		utcPtr(n.NextRetryAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	n.ID = id
	n.CreatedAt = now
	return nil
}

func scanNotification(row rowScanner) (models.Notification, error) {
	var n models.Notification
	err := row.Scan(
		&n.ID, &n.IdempotencyKey, &n.Kind, &n.Recipient, &n.BookingKind, &n.BookingID, &n.Payload,
		&n.Status, &n.RetryCount, &n.LastError, &n.CreatedAt, &n.ProcessedAt, &n.NextRetryAt,
	)
	return n, err
}

func (db *DB) GetPendingNotifications(ctx context.Context, limit int) ([]models.Notification, error) {
	query := `SELECT ` + notificationColumns + `
              FROM notifications
              WHERE status IN ('pending', 'retry') AND (next_retry_at IS NULL OR next_retry_at <= ?)
              ORDER BY id ASC LIMIT ?`
	return db.queryNotifications(ctx, query, time.Now().UTC(), limit)
}

func (db *DB) GetFailedNotifications(ctx context.Context) ([]models.Notification, error) {
	query := `SELECT ` + notificationColumns + `
              FROM notifications WHERE status = 'failed' ORDER BY id DESC`
	return db.queryNotifications(ctx, query)
}

func (db *DB) queryNotifications(ctx context.Context, query string, args ...any) ([]models.Notification, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (db *DB) GetNotification(ctx context.Context, id int64) (*models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = ?`
	n, err := scanNotification(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("notification %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification %d: %w", id, err)
	}
	return &n, nil
}

func (db *DB) UpdateNotificationStatus(ctx context.Context, id int64, status models.NotificationStatus, errMsg string, nextRetryAt *time.Time) error {
	var (
		query string
		args  []any
	)
	now := time.Now().UTC()
	lastErr := sql.NullString{String: errMsg, Valid: errMsg != ""}

	switch status {
	case models.NotificationRetry:
		query = `UPDATE notifications SET status = ?, last_error = COALESCE(?, last_error), next_retry_at = ?, retry_count = retry_count + 1 WHERE id = ?`
		args = []any{status, lastErr, utcPtr(nextRetryAt), id}
	case models.NotificationCompleted, models.NotificationFailed:
		query = `UPDATE notifications SET status = ?, last_error = COALESCE(?, last_error), next_retry_at = ?, processed_at = ? WHERE id = ?`
		args = []any{status, lastErr, utcPtr(nextRetryAt), now, id}
	default:
		query = `UPDATE notifications SET status = ?, last_error = COALESCE(?, last_error), next_retry_at = ? WHERE id = ?`
		args = []any{status, lastErr, utcPtr(nextRetryAt), id}
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update notification status: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return fmt.Errorf("notification %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
