package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"resortbook/internal/conflict"
	"resortbook/internal/domain"
	"resortbook/internal/models"

	"github.com/rs/zerolog"
)

// MaxCalendarDays bounds one calendar query.
const MaxCalendarDays = 366

// CalendarService builds the unavailable-dates read model on demand.
type CalendarService struct {
	store  domain.BookingReader
	logger *zerolog.Logger
}

func NewCalendarService(store domain.BookingReader, logger *zerolog.Logger) *CalendarService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &CalendarService{store: store, logger: logger}
}

// UnavailableDates groups active events per date, then overlays the dates
// held by the accommodation's regular bookings. accommodationID 0 skips the
// overlay.
func (s *CalendarService) UnavailableDates(ctx context.Context, accommodationID int64, from, to time.Time) (models.CalendarView, error) {
	from, to = models.Day(from), models.Day(to)
	if from.IsZero() || to.IsZero() {
		return models.CalendarView{}, domain.NewValidationError("range", "from and to are required")
	}
	if to.Before(from) {
		return models.CalendarView{}, domain.NewValidationError("range", "to must not be before from")
	}
	if days := int(to.Sub(from).Hours()/24) + 1; days > MaxCalendarDays {
		return models.CalendarView{}, domain.NewValidationError("range", "at most %d days per query, got %d", MaxCalendarDays, days)
	}
	if accommodationID < 0 {
		return models.CalendarView{}, domain.NewValidationError("accommodation_id", "must not be negative")
	}

	evs, err := s.store.FindEventBookings(ctx, models.EventFilter{From: from, To: to, Statuses: models.ActiveStatuses})
	if err != nil {
		return models.CalendarView{}, fmt.Errorf("find events: %w", err)
	}

	byDate := make(map[string][]*models.EventBooking)
	for _, e := range evs {
		date := models.FormatDate(e.BookingDate)
		byDate[date] = append(byDate[date], e)
	}

	view := models.CalendarView{Dates: []string{}, PartiallyAvailable: []models.PartialDay{}}
	flagged := make(map[string]bool, len(byDate))
	for date, held := range byDate {
		summary := conflict.SummarizeEvents(held)
		flagged[date] = true
		if len(summary.AvailableSlots) == 0 {
			view.Dates = append(view.Dates, date)
			continue
		}
		view.PartiallyAvailable = append(view.PartiallyAvailable, models.PartialDay{
			Date:           date,
			AvailableSlots: summary.AvailableSlots,
			Reason:         partialReason(summary),
		})
	}

	if accommodationID != 0 {
		bookings, err := s.store.FindRegularBookings(ctx, models.RegularFilter{
			AccommodationID: accommodationID,
			From:            from,
			To:              to,
			Statuses:        models.ActiveStatuses,
		})
		if err != nil {
			return models.CalendarView{}, fmt.Errorf("find bookings for accommodation %d: %w", accommodationID, err)
		}
		for _, b := range bookings {
			first, last := models.Day(b.CheckIn), models.Day(b.LastDay())
			if first.Before(from) {
				first = from
			}
			if last.After(to) {
				last = to
			}
			for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
				date := models.FormatDate(d)
				if flagged[date] {
					continue
				}
				flagged[date] = true
				view.Dates = append(view.Dates, date)
			}
		}
	}

	sort.Strings(view.Dates)
	sort.Slice(view.PartiallyAvailable, func(i, j int) bool {
		return view.PartiallyAvailable[i].Date < view.PartiallyAvailable[j].Date
	})

	s.logger.Debug().
		Int64("accommodation_id", accommodationID).
		Str("from", models.FormatDate(from)).
		Str("to", models.FormatDate(to)).
		Int("unavailable", len(view.Dates)).
		Int("partial", len(view.PartiallyAvailable)).
		Msg("calendar computed")
	return view, nil
}

func partialReason(c models.EventConflicts) string {
	switch {
	case c.HasMorning:
		return reasonMorningEventOnly
	case c.HasEvening:
		return reasonEveningEventOnly
	default:
		return ""
	}
}
