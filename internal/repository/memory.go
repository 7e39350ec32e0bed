package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"resortbook/internal/domain"
	"resortbook/internal/models"
)

// MemoryStore keeps bookings in process memory. Writes are serialized and
// transactions run against a private copy that replaces the live data on
// commit, so readers never observe a partially applied approval.
type MemoryStore struct {
	writeMu sync.Mutex
	mu      sync.RWMutex
	data    *memData
}

type memData struct {
	regular        map[int64]models.RegularBooking
	events         map[int64]models.EventBooking
	accommodations map[int64]models.Accommodation
	notifications  map[int64]models.Notification
	keys           map[string]int64

	nextRegular      int64
	nextEvent        int64
	nextNotification int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: &memData{
		regular:        make(map[int64]models.RegularBooking),
		events:         make(map[int64]models.EventBooking),
		accommodations: make(map[int64]models.Accommodation),
		notifications:  make(map[int64]models.Notification),
		keys:           make(map[string]int64),
	}}
}

func (d *memData) clone() *memData {
	cp := &memData{
		regular:          make(map[int64]models.RegularBooking, len(d.regular)),
		events:           make(map[int64]models.EventBooking, len(d.events)),
		accommodations:   make(map[int64]models.Accommodation, len(d.accommodations)),
		notifications:    make(map[int64]models.Notification, len(d.notifications)),
		keys:             make(map[string]int64, len(d.keys)),
		nextRegular:      d.nextRegular,
		nextEvent:        d.nextEvent,
		nextNotification: d.nextNotification,
	}
	for k, v := range d.regular {
		cp.regular[k] = v
	}
	for k, v := range d.events {
		cp.events[k] = v
	}
	for k, v := range d.accommodations {
		cp.accommodations[k] = v
	}
	for k, v := range d.notifications {
		cp.notifications[k] = v
	}
	for k, v := range d.keys {
		cp.keys[k] = v
	}
	return cp
}

func (s *MemoryStore) read(fn func(ops memOps) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(memOps{d: s.data})
}

func (s *MemoryStore) write(fn func(ops memOps) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(memOps{d: s.data})
}

// InTx ignores lockKey: every write already holds the store-wide write lock.
func (s *MemoryStore) InTx(ctx context.Context, lockKey string, fn func(tx domain.BookingStore) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	draft := s.data.clone()
	s.mu.RUnlock()

	if err := fn(memOps{d: draft}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.data = draft
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetRegularBooking(ctx context.Context, id int64) (b *models.RegularBooking, err error) {
	err = s.read(func(ops memOps) error {
		b, err = ops.GetRegularBooking(ctx, id)
		return err
	})
	return b, err
}

func (s *MemoryStore) GetEventBooking(ctx context.Context, id int64) (e *models.EventBooking, err error) {
	err = s.read(func(ops memOps) error {
		e, err = ops.GetEventBooking(ctx, id)
		return err
	})
	return e, err
}

func (s *MemoryStore) FindRegularBookings(ctx context.Context, f models.RegularFilter) (out []*models.RegularBooking, err error) {
	err = s.read(func(ops memOps) error {
		out, err = ops.FindRegularBookings(ctx, f)
		return err
	})
	return out, err
}

func (s *MemoryStore) FindEventBookings(ctx context.Context, f models.EventFilter) (out []*models.EventBooking, err error) {
	err = s.read(func(ops memOps) error {
		out, err = ops.FindEventBookings(ctx, f)
		return err
	})
	return out, err
}

func (s *MemoryStore) GetAccommodation(ctx context.Context, id int64) (a *models.Accommodation, err error) {
	err = s.read(func(ops memOps) error {
		a, err = ops.GetAccommodation(ctx, id)
		return err
	})
	return a, err
}

func (s *MemoryStore) CreateRegularBooking(ctx context.Context, b *models.RegularBooking) error {
	return s.write(func(ops memOps) error { return ops.CreateRegularBooking(ctx, b) })
}

func (s *MemoryStore) CreateEventBooking(ctx context.Context, e *models.EventBooking) error {
	return s.write(func(ops memOps) error { return ops.CreateEventBooking(ctx, e) })
}

func (s *MemoryStore) UpdateRegularStatus(ctx context.Context, id int64, from, to models.BookingStatus) error {
	return s.write(func(ops memOps) error { return ops.UpdateRegularStatus(ctx, id, from, to) })
}

func (s *MemoryStore) UpdateEventStatus(ctx context.Context, id int64, from, to models.BookingStatus) error {
	return s.write(func(ops memOps) error { return ops.UpdateEventStatus(ctx, id, from, to) })
}

func (s *MemoryStore) DeleteRegularBooking(ctx context.Context, id int64) error {
	return s.write(func(ops memOps) error { return ops.DeleteRegularBooking(ctx, id) })
}

func (s *MemoryStore) DeleteEventBooking(ctx context.Context, id int64) error {
	return s.write(func(ops memOps) error { return ops.DeleteEventBooking(ctx, id) })
}

func (s *MemoryStore) SetAccommodationStatus(ctx context.Context, id int64, status models.AccommodationStatus) error {
	return s.write(func(ops memOps) error { return ops.SetAccommodationStatus(ctx, id, status) })
}

func (s *MemoryStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	return s.write(func(ops memOps) error { return ops.CreateNotification(ctx, n) })
}

func (s *MemoryStore) GetPendingNotifications(ctx context.Context, limit int) ([]models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	var out []models.Notification
	for _, n := range s.data.notifications {
		if n.Status != models.NotificationPending && n.Status != models.NotificationRetry {
			continue
		}
		if n.NextRetryAt != nil && n.NextRetryAt.After(now) {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) GetFailedNotifications(ctx context.Context) ([]models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Notification
	for _, n := range s.data.notifications {
		if n.Status == models.NotificationFailed {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetNotification(ctx context.Context, id int64) (*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.data.notifications[id]
	if !ok {
		return nil, fmt.Errorf("notification %d: %w", id, domain.ErrNotFound)
	}
	return &n, nil
}

func (s *MemoryStore) UpdateNotificationStatus(ctx context.Context, id int64, status models.NotificationStatus, errMsg string, nextRetryAt *time.Time) error {
	return s.write(func(ops memOps) error {
		n, ok := ops.d.notifications[id]
		if !ok {
			return fmt.Errorf("notification %d: %w", id, domain.ErrNotFound)
		}
		n.Status = status
		n.NextRetryAt = nextRetryAt
		if errMsg != "" {
			msg := errMsg
			n.LastError = &msg
		}
		switch status {
		case models.NotificationRetry:
			n.RetryCount++
		case models.NotificationCompleted, models.NotificationFailed:
			now := time.Now()
			n.ProcessedAt = &now
		}
		ops.d.notifications[id] = n
		return nil
	})
}

func (s *MemoryStore) Close() error {
	return nil
}

// memOps implements domain.BookingStore over one memData without locking.
type memOps struct {
	d *memData
}

func (o memOps) GetRegularBooking(_ context.Context, id int64) (*models.RegularBooking, error) {
	b, ok := o.d.regular[id]
	if !ok {
		return nil, domain.NotFoundError(models.KindRegular, id)
	}
	return &b, nil
}

func (o memOps) GetEventBooking(_ context.Context, id int64) (*models.EventBooking, error) {
	e, ok := o.d.events[id]
	if !ok {
		return nil, domain.NotFoundError(models.KindEvent, id)
	}
	return &e, nil
}

func (o memOps) FindRegularBookings(_ context.Context, f models.RegularFilter) ([]*models.RegularBooking, error) {
	var out []*models.RegularBooking
	for _, b := range o.d.regular {
		if f.AccommodationID != 0 && b.AccommodationID != f.AccommodationID {
			continue
		}
		if !statusIn(b.Status, f.Statuses) {
			continue
		}
		if !f.To.IsZero() && b.CheckIn.After(f.To) {
			continue
		}
		if !f.From.IsZero() && b.LastDay().Before(f.From) {
			continue
		}
		cp := b
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (o memOps) FindEventBookings(_ context.Context, f models.EventFilter) ([]*models.EventBooking, error) {
	var out []*models.EventBooking
	for _, e := range o.d.events {
		if !statusIn(e.Status, f.Statuses) {
			continue
		}
		if !f.From.IsZero() && e.BookingDate.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && e.BookingDate.After(f.To) {
			continue
		}
		cp := e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (o memOps) GetAccommodation(_ context.Context, id int64) (*models.Accommodation, error) {
	a, ok := o.d.accommodations[id]
	if !ok {
		return &models.Accommodation{ID: id, Type: models.AccommodationRoom, Status: models.AccommodationVacant}, nil
	}
	return &a, nil
}

func (o memOps) CreateRegularBooking(_ context.Context, b *models.RegularBooking) error {
	if b.ID == 0 {
		o.d.nextRegular++
		b.ID = o.d.nextRegular
	} else if _, exists := o.d.regular[b.ID]; exists {
		return fmt.Errorf("regular booking %d already exists", b.ID)
	}
	if b.ID > o.d.nextRegular {
		o.d.nextRegular = b.ID
	}
	now := time.Now()
	b.CreatedAt, b.UpdatedAt = now, now
	b.CheckIn = models.Day(b.CheckIn)
	b.CheckOut = dayPtr(b.CheckOut)
	o.d.regular[b.ID] = *b

	if b.AccommodationType != "" {
		a := o.d.accommodations[b.AccommodationID]
		if a.ID == 0 {
			a = models.Accommodation{ID: b.AccommodationID, Status: models.AccommodationVacant}
		}
		a.Type = b.AccommodationType
		o.d.accommodations[a.ID] = a
	}
	return nil
}

func (o memOps) CreateEventBooking(_ context.Context, e *models.EventBooking) error {
	if e.ID == 0 {
		o.d.nextEvent++
		e.ID = o.d.nextEvent
	} else if _, exists := o.d.events[e.ID]; exists {
		return fmt.Errorf("event booking %d already exists", e.ID)
	}
	if e.ID > o.d.nextEvent {
		o.d.nextEvent = e.ID
	}
	now := time.Now()
	e.CreatedAt, e.UpdatedAt = now, now
	e.BookingDate = models.Day(e.BookingDate)
	o.d.events[e.ID] = *e
	return nil
}

func (o memOps) UpdateRegularStatus(_ context.Context, id int64, from, to models.BookingStatus) error {
	b, ok := o.d.regular[id]
	if !ok {
		return domain.NotFoundError(models.KindRegular, id)
	}
	if b.Status != from {
		return domain.ErrConcurrentModification
	}
	b.Status = to
	b.UpdatedAt = time.Now()
	o.d.regular[id] = b
	return nil
}

func (o memOps) UpdateEventStatus(_ context.Context, id int64, from, to models.BookingStatus) error {
	e, ok := o.d.events[id]
	if !ok {
		return domain.NotFoundError(models.KindEvent, id)
	}
	if e.Status != from {
		return domain.ErrConcurrentModification
	}
	e.Status = to
	e.UpdatedAt = time.Now()
	o.d.events[id] = e
	return nil
}

func (o memOps) DeleteRegularBooking(_ context.Context, id int64) error {
	if _, ok := o.d.regular[id]; !ok {
		return domain.NotFoundError(models.KindRegular, id)
	}
	delete(o.d.regular, id)
	return nil
}

func (o memOps) DeleteEventBooking(_ context.Context, id int64) error {
	if _, ok := o.d.events[id]; !ok {
		return domain.NotFoundError(models.KindEvent, id)
	}
	delete(o.d.events, id)
	return nil
}

func (o memOps) SetAccommodationStatus(_ context.Context, id int64, status models.AccommodationStatus) error {
	a, ok := o.d.accommodations[id]
	if !ok {
		a = models.Accommodation{ID: id, Type: models.AccommodationRoom}
	}
	a.Status = status
	a.UpdatedAt = time.Now()
	o.d.accommodations[id] = a
	return nil
}

func (o memOps) CreateNotification(_ context.Context, n *models.Notification) error {
	if n.IdempotencyKey != "" {
		if _, dup := o.d.keys[n.IdempotencyKey]; dup {
			return fmt.Errorf("notification %s already exists", n.IdempotencyKey)
		}
	}
	o.d.nextNotification++
	n.ID = o.d.nextNotification
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	if n.Status == "" {
		n.Status = models.NotificationPending
	}
	o.d.notifications[n.ID] = *n
	if n.IdempotencyKey != "" {
		o.d.keys[n.IdempotencyKey] = n.ID
	}
	return nil
}

func statusIn(s models.BookingStatus, set []models.BookingStatus) bool {
	if len(set) == 0 {
		return true
	}
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func dayPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := models.Day(*t)
	return &d
}
