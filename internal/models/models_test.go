package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to BookingStatus
		want     bool
	}{
		{StatusPending, StatusApproved, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusApproved, StatusCompleted, true},
		{StatusApproved, StatusRejected, false},
		{StatusApproved, StatusPending, false},
		{StatusCompleted, StatusApproved, false},
		{StatusRejected, StatusApproved, false},
		{StatusCancelled, StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestDeletable(t *testing.T) {
	assert.True(t, StatusCancelled.Deletable())
	assert.True(t, StatusRejected.Deletable())
	assert.False(t, StatusPending.Deletable())
	assert.False(t, StatusApproved.Deletable())
	assert.False(t, StatusCompleted.Deletable())
}

func TestRegularBookingRange(t *testing.T) {
	checkIn, err := ParseDate("2025-03-10")
	require.NoError(t, err)

	single := &RegularBooking{ID: 1, CheckIn: checkIn}
	assert.Equal(t, checkIn, single.LastDay())
	assert.True(t, single.Covers(checkIn))
	assert.False(t, single.Covers(checkIn.AddDate(0, 0, 1)))

	out := checkIn.AddDate(0, 0, 2)
	multi := &RegularBooking{ID: 2, CheckIn: checkIn, CheckOut: &out}
	assert.True(t, multi.Covers(checkIn.AddDate(0, 0, 1)))
	assert.True(t, multi.Covers(out))
	assert.False(t, multi.Covers(checkIn.AddDate(0, 0, -1)))
	assert.Equal(t, "R-2", multi.Ref())
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-05-01")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, d.Location())
	assert.Equal(t, "2025-05-01", FormatDate(d))

	_, err = ParseDate("01/05/2025")
	assert.Error(t, err)

	local := time.Date(2025, 5, 1, 23, 30, 0, 0, time.FixedZone("X", 3600))
	assert.Equal(t, d, Day(local))
}

func TestVerdictRestricted(t *testing.T) {
	assert.False(t, Verdict{Available: true, AvailableSlots: AllDaySlots()}.Restricted())
	assert.True(t, Verdict{Available: true, AvailableSlots: []DaySlot{DayAfternoon}}.Restricted())
	assert.False(t, Verdict{Available: false}.Restricted())
}

func TestBookedStatus(t *testing.T) {
	assert.Equal(t, AccommodationBookedMorning, BookedStatus(SlotMorning))
	assert.Equal(t, AccommodationBookedNight, BookedStatus(SlotNight))
	assert.Equal(t, AccommodationBookedWholeDay, BookedStatus(SlotWholeDay))
}
