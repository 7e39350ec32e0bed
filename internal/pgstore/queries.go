package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"resortbook/internal/domain"
	"resortbook/internal/models"

	"github.com/jackc/pgx/v5"
)

// queries implements domain.BookingStore over the pool or a transaction.
type queries struct {
	q         pgQuerier
	forUpdate bool
}

const regularColumns = `id, accommodation_id, accommodation_type, user_id, owner_contact,
    check_in_date, check_out_date, time_slot, status, total_price, created_at, updated_at`

const eventColumns = `id, user_id, owner_contact, booking_date, event_type, status, total_price, created_at, updated_at`

func (p queries) lockSuffix() string {
	if p.forUpdate {
		return " FOR UPDATE"
	}
	return ""
}

func scanRegular(row pgx.Row) (*models.RegularBooking, error) {
	var b models.RegularBooking
	err := row.Scan(
		&b.ID,
		&b.AccommodationID,
		&b.AccommodationType,
		&b.UserID,
		&b.OwnerContact,
		&b.CheckIn,
		&b.CheckOut,
		&b.TimeSlot,
		&b.Status,
		&b.TotalPrice,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.CheckIn = models.Day(b.CheckIn)
	if b.CheckOut != nil {
		out := models.Day(*b.CheckOut)
		b.CheckOut = &out
	}
	return &b, nil
}

func scanEvent(row pgx.Row) (*models.EventBooking, error) {
	var e models.EventBooking
	err := row.Scan(
		&e.ID,
		&e.UserID,
		&e.OwnerContact,
		&e.BookingDate,
		&e.EventType,
		&e.Status,
		&e.TotalPrice,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.BookingDate = models.Day(e.BookingDate)
	return &e, nil
}

func (p queries) GetRegularBooking(ctx context.Context, id int64) (*models.RegularBooking, error) {
	query := `SELECT ` + regularColumns + ` FROM bookings WHERE id = $1` + p.lockSuffix()
	b, err := scanRegular(p.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFoundError(models.KindRegular, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get booking %d: %w", id, err)
	}
	return b, nil
}

func (p queries) GetEventBooking(ctx context.Context, id int64) (*models.EventBooking, error) {
	query := `SELECT ` + eventColumns + ` FROM event_bookings WHERE id = $1` + p.lockSuffix()
	e, err := scanEvent(p.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFoundError(models.KindEvent, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get event booking %d: %w", id, err)
	}
	return e, nil
}

// args collects positional parameters and hands out $n placeholders.
type args []any

func (a *args) add(v any) string {
	*a = append(*a, v)
	return "$" + strconv.Itoa(len(*a))
}

func (a *args) statusIn(statuses []models.BookingStatus) string {
	if len(statuses) == 0 {
		return ""
	}
	list := make([]string, len(statuses))
	for i, s := range statuses {
		list[i] = string(s)
	}
	return "status = ANY(" + a.add(list) + ")"
}

func whereSQL(clauses []string) string {
	if len(clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(clauses, " AND ")
}

func (p queries) FindRegularBookings(ctx context.Context, f models.RegularFilter) ([]*models.RegularBooking, error) {
	var (
		where []string
		a     args
	)
	if f.AccommodationID != 0 {
		where = append(where, "accommodation_id = "+a.add(f.AccommodationID))
	}
	if !f.To.IsZero() {
		where = append(where, "check_in_date <= "+a.add(models.Day(f.To)))
	}
	if !f.From.IsZero() {
		where = append(where, "COALESCE(check_out_date, check_in_date) >= "+a.add(models.Day(f.From)))
	}
	if clause := a.statusIn(f.Statuses); clause != "" {
		where = append(where, clause)
	}

	query := `SELECT ` + regularColumns + ` FROM bookings` + whereSQL(where) + ` ORDER BY id` + p.lockSuffix()
	rows, err := p.q.Query(ctx, query, a...)
	if err != nil {
		return nil, fmt.Errorf("find bookings: %w", err)
	}
	defer rows.Close()

	var out []*models.RegularBooking
	for rows.Next() {
		b, err := scanRegular(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (p queries) FindEventBookings(ctx context.Context, f models.EventFilter) ([]*models.EventBooking, error) {
	var (
		where []string
		a     args
	)
	if !f.From.IsZero() {
		where = append(where, "booking_date >= "+a.add(models.Day(f.From)))
	}
	if !f.To.IsZero() {
		where = append(where, "booking_date <= "+a.add(models.Day(f.To)))
	}
	if clause := a.statusIn(f.Statuses); clause != "" {
		where = append(where, clause)
	}

	query := `SELECT ` + eventColumns + ` FROM event_bookings` + whereSQL(where) + ` ORDER BY id` + p.lockSuffix()
	rows, err := p.q.Query(ctx, query, a...)
	if err != nil {
		return nil, fmt.Errorf("find event bookings: %w", err)
	}
	defer rows.Close()

	var out []*models.EventBooking
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event booking: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p queries) CreateRegularBooking(ctx context.Context, b *models.RegularBooking) error {
	b.CheckIn = models.Day(b.CheckIn)
	if b.CheckOut != nil {
		out := models.Day(*b.CheckOut)
		b.CheckOut = &out
	}

	explicit := b.ID != 0
	query := `
		INSERT INTO bookings (id, accommodation_id, accommodation_type, user_id, owner_contact,
		    check_in_date, check_out_date, time_slot, status, total_price)
		VALUES (COALESCE($1, nextval(pg_get_serial_sequence('bookings', 'id'))), $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`
	err := p.q.QueryRow(ctx, query,
		nullID(b.ID),
		b.AccommodationID,
		b.AccommodationType,
		b.UserID,
		b.OwnerContact,
		b.CheckIn,
		b.CheckOut,
		b.TimeSlot,
		b.Status,
		b.TotalPrice,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create booking: %w", err)
	}
	if explicit {
		if err := p.bumpSequence(ctx, "bookings", b.ID); err != nil {
			return err
		}
	}

	if b.AccommodationType != "" {
		_, err = p.q.Exec(ctx, `
			INSERT INTO accommodations (id, type, status) VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET type = EXCLUDED.type`,
			b.AccommodationID, b.AccommodationType, models.AccommodationVacant)
		if err != nil {
			return fmt.Errorf("register accommodation %d: %w", b.AccommodationID, err)
		}
	}
	return nil
}

func (p queries) CreateEventBooking(ctx context.Context, e *models.EventBooking) error {
	e.BookingDate = models.Day(e.BookingDate)

	explicit := e.ID != 0
	query := `
		INSERT INTO event_bookings (id, user_id, owner_contact, booking_date, event_type, status, total_price)
		VALUES (COALESCE($1, nextval(pg_get_serial_sequence('event_bookings', 'id'))), $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err := p.q.QueryRow(ctx, query,
		nullID(e.ID),
		e.UserID,
		e.OwnerContact,
		e.BookingDate,
		e.EventType,
		e.Status,
		e.TotalPrice,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create event booking: %w", err)
	}
	if explicit {
		return p.bumpSequence(ctx, "event_bookings", e.ID)
	}
	return nil
}

// bumpSequence keeps the identity ahead of explicitly supplied ids.
func (p queries) bumpSequence(ctx context.Context, table string, id int64) error {
	_, err := p.q.Exec(ctx,
		`SELECT setval(pg_get_serial_sequence($1, 'id'), GREATEST($2::bigint, (SELECT last_value FROM `+table+`_id_seq)))`,
		table, id)
	if err != nil {
		return fmt.Errorf("advance %s sequence: %w", table, err)
	}
	return nil
}

func (p queries) UpdateRegularStatus(ctx context.Context, id int64, from, to models.BookingStatus) error {
	return p.updateStatus(ctx, "bookings", models.KindRegular, id, from, to)
}

func (p queries) UpdateEventStatus(ctx context.Context, id int64, from, to models.BookingStatus) error {
	return p.updateStatus(ctx, "event_bookings", models.KindEvent, id, from, to)
}

func (p queries) updateStatus(ctx context.Context, table string, kind models.BookingKind, id int64, from, to models.BookingStatus) error {
	tag, err := p.q.Exec(ctx,
		`UPDATE `+table+` SET status = $1, updated_at = now() WHERE id = $2 AND status = $3`,
		to, id, from)
	if err != nil {
		return fmt.Errorf("update %s booking status: %w", kind, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := p.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check %s booking %d: %w", kind, id, err)
	}
	if !exists {
		return domain.NotFoundError(kind, id)
	}
	return domain.ErrConcurrentModification
}

func (p queries) DeleteRegularBooking(ctx context.Context, id int64) error {
	return p.delete(ctx, "bookings", models.KindRegular, id)
}

func (p queries) DeleteEventBooking(ctx context.Context, id int64) error {
	return p.delete(ctx, "event_bookings", models.KindEvent, id)
}

func (p queries) delete(ctx context.Context, table string, kind models.BookingKind, id int64) error {
	tag, err := p.q.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete %s booking: %w", kind, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundError(kind, id)
	}
	return nil
}

func (p queries) SetAccommodationStatus(ctx context.Context, id int64, status models.AccommodationStatus) error {
	_, err := p.q.Exec(ctx, `
		INSERT INTO accommodations (id, type, status) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, updated_at = now()`,
		id, models.AccommodationRoom, status)
	if err != nil {
		return fmt.Errorf("set accommodation %d status: %w", id, err)
	}
	return nil
}

func (p queries) GetAccommodation(ctx context.Context, id int64) (*models.Accommodation, error) {
	var a models.Accommodation
	err := p.q.QueryRow(ctx, `SELECT id, type, status, updated_at FROM accommodations WHERE id = $1`, id).
		Scan(&a.ID, &a.Type, &a.Status, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &models.Accommodation{ID: id, Type: models.AccommodationRoom, Status: models.AccommodationVacant}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get accommodation %d: %w", id, err)
	}
	return &a, nil
}

const notificationColumns = `id, idempotency_key, kind, recipient, booking_kind, booking_id, payload,
    status, retry_count, last_error, created_at, processed_at, next_retry_at`

func scanNotification(row pgx.Row) (models.Notification, error) {
	var n models.Notification
	err := row.Scan(
		&n.ID, &n.IdempotencyKey, &n.Kind, &n.Recipient, &n.BookingKind, &n.BookingID, &n.Payload,
		&n.Status, &n.RetryCount, &n.LastError, &n.CreatedAt, &n.ProcessedAt, &n.NextRetryAt,
	)
	return n, err
}

func (p queries) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.Status == "" {
		n.Status = models.NotificationPending
	}
	query := `
		INSERT INTO notifications (idempotency_key, kind, recipient, booking_kind, booking_id, payload,
		    status, retry_count, last_error, next_retry_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`
	err := p.q.QueryRow(ctx, query,
		n.IdempotencyKey, n.Kind, n.Recipient, n.BookingKind, n.BookingID, n.Payload,
		n.Status, n.RetryCount, n.LastError, n.NextRetryAt,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

func (p queries) GetPendingNotifications(ctx context.Context, limit int) ([]models.Notification, error) {
	return p.queryNotifications(ctx, `SELECT `+notificationColumns+`
		FROM notifications
		WHERE status IN ('pending', 'retry') AND (next_retry_at IS NULL OR next_retry_at <= now())
		ORDER BY id ASC LIMIT $1`, limit)
}

func (p queries) GetFailedNotifications(ctx context.Context) ([]models.Notification, error) {
	return p.queryNotifications(ctx, `SELECT `+notificationColumns+`
		FROM notifications WHERE status = 'failed' ORDER BY id DESC`)
}

func (p queries) queryNotifications(ctx context.Context, query string, params ...any) ([]models.Notification, error) {
	rows, err := p.q.Query(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (p queries) GetNotification(ctx context.Context, id int64) (*models.Notification, error) {
	n, err := scanNotification(p.q.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("notification %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get notification %d: %w", id, err)
	}
	return &n, nil
}

func (p queries) UpdateNotificationStatus(ctx context.Context, id int64, status models.NotificationStatus, errMsg string, nextRetryAt *time.Time) error {
	var lastErr *string
	if errMsg != "" {
		lastErr = &errMsg
	}

	var query string
	switch status {
	case models.NotificationRetry:
		query = `UPDATE notifications SET status = $1, last_error = COALESCE($2, last_error), next_retry_at = $3, retry_count = retry_count + 1 WHERE id = $4`
	case models.NotificationCompleted, models.NotificationFailed:
		query = `UPDATE notifications SET status = $1, last_error = COALESCE($2, last_error), next_retry_at = $3, processed_at = now() WHERE id = $4`
	default:
		query = `UPDATE notifications SET status = $1, last_error = COALESCE($2, last_error), next_retry_at = $3 WHERE id = $4`
	}

	tag, err := p.q.Exec(ctx, query, status, lastErr, nextRetryAt, id)
	if err != nil {
		return fmt.Errorf("update notification status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("notification %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

func nullID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
