package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"resortbook/internal/domain"
	"resortbook/internal/models"
)

// bookingQueries implements domain.BookingStore over either the pool or a tx.
type bookingQueries struct {
	q querier
}

const regularColumns = `id, accommodation_id, accommodation_type, user_id, owner_contact,
    check_in_date, check_out_date, time_slot, status, total_price, created_at, updated_at`

const eventColumns = `id, user_id, owner_contact, booking_date, event_type, status, total_price, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegular(row rowScanner) (*models.RegularBooking, error) {
	var (
		b        models.RegularBooking
		checkIn  string
		checkOut sql.NullString
	)
	err := row.Scan(
		&b.ID,
		&b.AccommodationID,
		&b.AccommodationType,
		&b.UserID,
		&b.OwnerContact,
		&checkIn,
		&checkOut,
		&b.TimeSlot,
		&b.Status,
		&b.TotalPrice,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if b.CheckIn, err = models.ParseDate(checkIn); err != nil {
		return nil, fmt.Errorf("booking %d: %w", b.ID, err)
	}
	if checkOut.Valid {
		out, err := models.ParseDate(checkOut.String)
		if err != nil {
			return nil, fmt.Errorf("booking %d: %w", b.ID, err)
		}
		b.CheckOut = &out
	}
	return &b, nil
}

func scanEvent(row rowScanner) (*models.EventBooking, error) {
	var (
		e    models.EventBooking
		date string
	)
	err := row.Scan(
		&e.ID,
		&e.UserID,
		&e.OwnerContact,
		&date,
		&e.EventType,
		&e.Status,
		&e.TotalPrice,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if e.BookingDate, err = models.ParseDate(date); err != nil {
		return nil, fmt.Errorf("event booking %d: %w", e.ID, err)
	}
	return &e, nil
}

func (b bookingQueries) GetRegularBooking(ctx context.Context, id int64) (*models.RegularBooking, error) {
	query := `SELECT ` + regularColumns + ` FROM bookings WHERE id = ?`
	booking, err := scanRegular(b.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundError(models.KindRegular, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking %d: %w", id, err)
	}
	return booking, nil
}

func (b bookingQueries) GetEventBooking(ctx context.Context, id int64) (*models.EventBooking, error) {
	query := `SELECT ` + eventColumns + ` FROM event_bookings WHERE id = ?`
	booking, err := scanEvent(b.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundError(models.KindEvent, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event booking %d: %w", id, err)
	}
	return booking, nil
}

func (b bookingQueries) FindRegularBookings(ctx context.Context, f models.RegularFilter) ([]*models.RegularBooking, error) {
	var (
		where []string
		args  []any
	)
	if f.AccommodationID != 0 {
		where = append(where, "accommodation_id = ?")
		args = append(args, f.AccommodationID)
	}
	if !f.To.IsZero() {
		where = append(where, "check_in_date <= ?")
		args = append(args, models.FormatDate(f.To))
	}
	if !f.From.IsZero() {
		where = append(where, "COALESCE(check_out_date, check_in_date) >= ?")
		args = append(args, models.FormatDate(f.From))
	}
	if clause, statusArgs := statusClause(f.Statuses); clause != "" {
		where = append(where, clause)
		args = append(args, statusArgs...)
	}

	query := `SELECT ` + regularColumns + ` FROM bookings` + whereSQL(where) + ` ORDER BY id`
	rows, err := b.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	defer rows.Close()

	var out []*models.RegularBooking
	for rows.Next() {
		booking, err := scanRegular(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		out = append(out, booking)
	}
	return out, rows.Err()
}

func (b bookingQueries) FindEventBookings(ctx context.Context, f models.EventFilter) ([]*models.EventBooking, error) {
	var (
		where []string
		args  []any
	)
	if !f.From.IsZero() {
		where = append(where, "booking_date >= ?")
		args = append(args, models.FormatDate(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "booking_date <= ?")
		args = append(args, models.FormatDate(f.To))
	}
	if clause, statusArgs := statusClause(f.Statuses); clause != "" {
		where = append(where, clause)
		args = append(args, statusArgs...)
	}

	query := `SELECT ` + eventColumns + ` FROM event_bookings` + whereSQL(where) + ` ORDER BY id`
	rows, err := b.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find event bookings: %w", err)
	}
	defer rows.Close()

	var out []*models.EventBooking
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event booking: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (b bookingQueries) CreateRegularBooking(ctx context.Context, booking *models.RegularBooking) error {
	now := time.Now()
	booking.CheckIn = models.Day(booking.CheckIn)
	var checkOut sql.NullString
	if booking.CheckOut != nil {
		out := models.Day(*booking.CheckOut)
		booking.CheckOut = &out
		checkOut = sql.NullString{String: models.FormatDate(out), Valid: true}
	}

	query := `INSERT INTO bookings (
                id, accommodation_id, accommodation_type, user_id, owner_contact,
                check_in_date, check_out_date, time_slot, status, total_price, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := b.q.ExecContext(ctx, query,
		sql.NullInt64{Int64: booking.ID, Valid: booking.ID != 0},
		booking.AccommodationID,
		booking.AccommodationType,
		booking.UserID,
		booking.OwnerContact,
		models.FormatDate(booking.CheckIn),
		checkOut,
		booking.TimeSlot,
		booking.Status,
		booking.TotalPrice,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	booking.ID = id
	booking.CreatedAt = now
	booking.UpdatedAt = now

	if booking.AccommodationType != "" {
		_, err = b.q.ExecContext(ctx, `INSERT INTO accommodations (id, type, status, updated_at)
            VALUES (?, ?, ?, ?)
            ON CONFLICT(id) DO UPDATE SET type = excluded.type`,
			booking.AccommodationID, booking.AccommodationType, models.AccommodationVacant, now)
		if err != nil {
			return fmt.Errorf("failed to register accommodation %d: %w", booking.AccommodationID, err)
		}
	}
	return nil
}

func (b bookingQueries) CreateEventBooking(ctx context.Context, e *models.EventBooking) error {
	now := time.Now()
	e.BookingDate = models.Day(e.BookingDate)

	query := `INSERT INTO event_bookings (
                id, user_id, owner_contact, booking_date, event_type, status, total_price, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := b.q.ExecContext(ctx, query,
		sql.NullInt64{Int64: e.ID, Valid: e.ID != 0},
		e.UserID,
		e.OwnerContact,
		models.FormatDate(e.BookingDate),
		e.EventType,
		e.Status,
		e.TotalPrice,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create event booking: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	e.ID = id
	e.CreatedAt = now
	e.UpdatedAt = now
	return nil
}

func (b bookingQueries) UpdateRegularStatus(ctx context.Context, id int64, from, to models.BookingStatus) error {
	return b.updateStatus(ctx, "bookings", models.KindRegular, id, from, to)
}

func (b bookingQueries) UpdateEventStatus(ctx context.Context, id int64, from, to models.BookingStatus) error {
	return b.updateStatus(ctx, "event_bookings", models.KindEvent, id, from, to)
}

// updateStatus is a compare-and-set on the status column.
func (b bookingQueries) updateStatus(ctx context.Context, table string, kind models.BookingKind, id int64, from, to models.BookingStatus) error {
	query := `UPDATE ` + table + ` SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	result, err := b.q.ExecContext(ctx, query, to, time.Now(), id, from)
	if err != nil {
		return fmt.Errorf("failed to update %s booking status: %w", kind, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	exists, err := b.exists(ctx, table, id)
	if err != nil {
		return err
	}
	if !exists {
		return domain.NotFoundError(kind, id)
	}
	return domain.ErrConcurrentModification
}

func (b bookingQueries) DeleteRegularBooking(ctx context.Context, id int64) error {
	return b.delete(ctx, "bookings", models.KindRegular, id)
}

func (b bookingQueries) DeleteEventBooking(ctx context.Context, id int64) error {
	return b.delete(ctx, "event_bookings", models.KindEvent, id)
}

func (b bookingQueries) delete(ctx context.Context, table string, kind models.BookingKind, id int64) error {
	result, err := b.q.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s booking: %w", kind, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.NotFoundError(kind, id)
	}
	return nil
}

func (b bookingQueries) exists(ctx context.Context, table string, id int64) (bool, error) {
	var count int
	err := b.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+` WHERE id = ?`, id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check %s row %d: %w", table, id, err)
	}
	return count > 0, nil
}

func (b bookingQueries) SetAccommodationStatus(ctx context.Context, id int64, status models.AccommodationStatus) error {
	query := `INSERT INTO accommodations (id, type, status, updated_at) VALUES (?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`
	if _, err := b.q.ExecContext(ctx, query, id, models.AccommodationRoom, status, time.Now()); err != nil {
		return fmt.Errorf("failed to set accommodation %d status: %w", id, err)
	}
	return nil
}

// GetAccommodation returns a vacant room for units that were never booked.
func (b bookingQueries) GetAccommodation(ctx context.Context, id int64) (*models.Accommodation, error) {
	var a models.Accommodation
	err := b.q.QueryRowContext(ctx, `SELECT id, type, status, updated_at FROM accommodations WHERE id = ?`, id).
		Scan(&a.ID, &a.Type, &a.Status, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.Accommodation{ID: id, Type: models.AccommodationRoom, Status: models.AccommodationVacant}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get accommodation %d: %w", id, err)
	}
	return &a, nil
}

func statusClause(statuses []models.BookingStatus) (string, []any) {
	if len(statuses) == 0 {
		return "", nil
	}
	args := make([]any, len(statuses))
	for i, s := range statuses {
		args[i] = s
	}
	return "status IN (" + strings.TrimSuffix(strings.Repeat("?, ", len(statuses)), ", ") + ")", args
}

func whereSQL(clauses []string) string {
	if len(clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(clauses, " AND ")
}
