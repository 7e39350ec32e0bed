package models

import (
	"fmt"
	"time"
)

// DateLayout is the wire and storage format for booking dates.
const DateLayout = "2006-01-02"

type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusApproved  BookingStatus = "approved"
	StatusRejected  BookingStatus = "rejected"
	StatusCancelled BookingStatus = "cancelled"
	StatusCompleted BookingStatus = "completed"
)

// ActiveStatuses occupy a unit for availability checks.
var ActiveStatuses = []BookingStatus{StatusPending, StatusApproved}

// CommittedStatuses are the statuses an approval re-check treats as blocking.
var CommittedStatuses = []BookingStatus{StatusApproved}

func (s BookingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Deletable reports whether a booking in this status may be removed.
func (s BookingStatus) Deletable() bool {
	switch s {
	case StatusCancelled, StatusRejected:
		return true
	case StatusPending, StatusApproved, StatusCompleted:
		return false
	}
	return false
}

// TimeSlot is the regular-booking slot vocabulary.
type TimeSlot string

const (
	SlotMorning  TimeSlot = "morning"
	SlotNight    TimeSlot = "night"
	SlotWholeDay TimeSlot = "whole_day"
)

func (s TimeSlot) Valid() bool {
	switch s {
	case SlotMorning, SlotNight, SlotWholeDay:
		return true
	}
	return false
}

// EventType is the daypart an event booking reserves.
type EventType string

const (
	EventMorning  EventType = "morning"
	EventEvening  EventType = "evening"
	EventWholeDay EventType = "whole_day"
)

func (t EventType) Valid() bool {
	switch t {
	case EventMorning, EventEvening, EventWholeDay:
		return true
	}
	return false
}

// DaySlot is the vocabulary produced by event-conflict derivation.
type DaySlot string

const (
	DayMorning   DaySlot = "morning"
	DayAfternoon DaySlot = "afternoon"
	DayWholeDay  DaySlot = "whole_day"
)

// AllDaySlots returns a fresh copy of the unrestricted slot list.
func AllDaySlots() []DaySlot {
	return []DaySlot{DayMorning, DayAfternoon, DayWholeDay}
}

type AccommodationType string

const (
	AccommodationRoom    AccommodationType = "room"
	AccommodationCottage AccommodationType = "cottage"
)

func (t AccommodationType) Valid() bool {
	switch t {
	case AccommodationRoom, AccommodationCottage:
		return true
	}
	return false
}

type AccommodationStatus string

const (
	AccommodationVacant         AccommodationStatus = "vacant"
	AccommodationPending        AccommodationStatus = "pending"
	AccommodationBookedMorning  AccommodationStatus = "booked_morning"
	AccommodationBookedNight    AccommodationStatus = "booked_night"
	AccommodationBookedWholeDay AccommodationStatus = "booked_whole_day"
)

// BookedStatus maps an approved slot to the accommodation display status.
func BookedStatus(slot TimeSlot) AccommodationStatus {
	switch slot {
	case SlotMorning:
		return AccommodationBookedMorning
	case SlotNight:
		return AccommodationBookedNight
	case SlotWholeDay:
		return AccommodationBookedWholeDay
	}
	return AccommodationPending
}

type BookingKind string

const (
	KindRegular BookingKind = "regular"
	KindEvent   BookingKind = "event"
)

func (k BookingKind) Valid() bool {
	switch k {
	case KindRegular, KindEvent:
		return true
	}
	return false
}

type NoticeKind string

const (
	NoticeApproval NoticeKind = "approval"
	NoticeRefund   NoticeKind = "refund"
)

// ParseDate parses a YYYY-MM-DD string into a UTC midnight time.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", s, err)
	}
	return d, nil
}

// Day truncates t to its calendar date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
