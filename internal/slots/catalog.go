// Package slots holds the display windows for regular booking slots.
// Windows are presentation data only; overlap decisions never read them.
package slots

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"resortbook/internal/config"
	"resortbook/internal/models"
)

var ErrSlotNotOffered = errors.New("slot not offered for accommodation type")

// Window is a daily time range in HH:MM; End before Start wraps to the next day.
type Window struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Label string `json:"label"`
}

// Entry binds a window to its slot and accommodation type.
type Entry struct {
	Slot              models.TimeSlot          `json:"slot"`
	AccommodationType models.AccommodationType `json:"accommodation_type"`
	Window            Window                   `json:"window"`
}

type key struct {
	slot models.TimeSlot
	acc  models.AccommodationType
}

// Catalog is safe for concurrent lookups while being reconfigured.
type Catalog struct {
	mu      sync.RWMutex
	windows map[key]Window
}

func Defaults() []Entry {
	return []Entry{
		{models.SlotMorning, models.AccommodationRoom, Window{"08:00", "17:00", "Day stay"}},
		{models.SlotNight, models.AccommodationRoom, Window{"18:00", "07:00", "Overnight"}},
		{models.SlotWholeDay, models.AccommodationRoom, Window{"08:00", "07:00", "Whole day"}},
		{models.SlotMorning, models.AccommodationCottage, Window{"08:00", "17:00", "Day stay"}},
		{models.SlotNight, models.AccommodationCottage, Window{"18:00", "07:00", "Overnight"}},
	}
}

func NewCatalog(entries []Entry) (*Catalog, error) {
	c := &Catalog{windows: make(map[key]Window)}
	if err := c.Replace(entries); err != nil {
		return nil, err
	}
	return c, nil
}

// FromConfig starts from the defaults and applies configured overrides.
func FromConfig(overrides []config.SlotConfig) (*Catalog, error) {
	c, err := NewCatalog(Defaults())
	if err != nil {
		return nil, err
	}
	for _, o := range overrides {
		w := Window{Start: o.Start, End: o.End, Label: o.Label}
		if err := c.Set(o.Slot, o.AccommodationType, w); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Catalog) Lookup(slot models.TimeSlot, accType models.AccommodationType) (Window, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	w, ok := c.windows[key{slot, accType}]
	if !ok {
		return Window{}, fmt.Errorf("%s for %s: %w", slot, accType, ErrSlotNotOffered)
	}
	return w, nil
}

// Offers reports whether the accommodation type can be booked in the slot.
func (c *Catalog) Offers(slot models.TimeSlot, accType models.AccommodationType) bool {
	_, err := c.Lookup(slot, accType)
	return err == nil
}

func (c *Catalog) Set(slot models.TimeSlot, accType models.AccommodationType, w Window) error {
	if err := validate(slot, accType, w); err != nil {
		return err
	}
	c.mu.Lock()
	c.windows[key{slot, accType}] = w
	c.mu.Unlock()
	return nil
}

// Replace swaps the whole catalog atomically.
func (c *Catalog) Replace(entries []Entry) error {
	next := make(map[key]Window, len(entries))
	for _, e := range entries {
		if err := validate(e.Slot, e.AccommodationType, e.Window); err != nil {
			return err
		}
		next[key{e.Slot, e.AccommodationType}] = e.Window
	}

	c.mu.Lock()
	c.windows = next
	c.mu.Unlock()
	return nil
}

func (c *Catalog) Entries() []Entry {
	c.mu.RLock()
	out := make([]Entry, 0, len(c.windows))
	for k, w := range c.windows {
		out = append(out, Entry{Slot: k.slot, AccommodationType: k.acc, Window: w})
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].AccommodationType != out[j].AccommodationType {
			return out[i].AccommodationType < out[j].AccommodationType
		}
		return out[i].Slot < out[j].Slot
	})
	return out
}

// DefaultTimes resolves the window for a booking date into concrete instants.
func (c *Catalog) DefaultTimes(slot models.TimeSlot, accType models.AccommodationType, date time.Time) (time.Time, time.Time, error) {
	w, err := c.Lookup(slot, accType)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	day := models.Day(date)
	start, err := atClock(day, w.Start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := atClock(day, w.End)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return start, end, nil
}

func atClock(day time.Time, clock string) (time.Time, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid clock %q: %w", clock, err)
	}
	return day.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute), nil
}

func validate(slot models.TimeSlot, accType models.AccommodationType, w Window) error {
	if !slot.Valid() {
		return fmt.Errorf("unknown slot %q", slot)
	}
	if !accType.Valid() {
		return fmt.Errorf("unknown accommodation type %q", accType)
	}
	if accType == models.AccommodationCottage && slot == models.SlotWholeDay {
		return fmt.Errorf("%s for %s: %w", slot, accType, ErrSlotNotOffered)
	}
	if _, err := time.Parse("15:04", w.Start); err != nil {
		return fmt.Errorf("invalid window start %q", w.Start)
	}
	if _, err := time.Parse("15:04", w.End); err != nil {
		return fmt.Errorf("invalid window end %q", w.End)
	}
	return nil
}
