package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlaps(t *testing.T) {
	clock := func(v string) int {
		m, err := ParseClock(v)
		require.NoError(t, err)
		return m
	}
	existingStart, existingEnd := clock("09:30"), clock("10:30")

	cases := []struct {
		name       string
		start, end string
		want       bool
	}{
		{"starts inside existing", "10:00", "11:00", true},
		{"ends inside existing", "09:00", "10:00", true},
		{"contains existing", "09:00", "11:00", true},
		{"inside existing", "09:45", "10:15", true},
		{"touches end", "10:30", "11:30", false},
		{"touches start", "08:30", "09:30", false},
		{"disjoint", "13:00", "14:00", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Overlaps(clock(tc.start), clock(tc.end), existingStart, existingEnd))
		})
	}
}

func TestParseClock(t *testing.T) {
	m, err := ParseClock("23:59")
	require.NoError(t, err)
	assert.Equal(t, 23*60+59, m)

	for _, bad := range []string{"9:00", "24:00", "12:60", "noon", "12-00", "", "+1:00", "1 :00"} {
		_, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}

func TestValidateInterval(t *testing.T) {
	start, end, err := ValidateInterval("09:00", "10:00")
	require.NoError(t, err)
	assert.Equal(t, "09:00", start)
	assert.Equal(t, "10:00", end)

	for _, bad := range [][2]string{{"10:00", "10:00"}, {"11:00", "10:00"}, {"9am", "10:00"}} {
		_, _, err := ValidateInterval(bad[0], bad[1])
		assert.Error(t, err, bad)
	}
}

func TestValidateIntervalNormalizesPadding(t *testing.T) {
	start, end, err := ValidateInterval(" 12:00", "13:00\t")
	require.NoError(t, err)
	assert.Equal(t, "12:00", start)
	assert.Equal(t, "13:00", end)
	assert.Less(t, "09:00", start, "normalized clocks order correctly as text")

	clock, err := NormalizeClock(" 08:30 ")
	require.NoError(t, err)
	assert.Equal(t, "08:30", clock)
	assert.Equal(t, "00:05", FormatClock(5))
}

func TestScheduleTransitions(t *testing.T) {
	assert.NoError(t, ValidateScheduleTransition(ScheduleStatusScheduled, ScheduleStatusInProgress))
	assert.NoError(t, ValidateScheduleTransition(ScheduleStatusScheduled, ScheduleStatusRescheduled))
	assert.NoError(t, ValidateScheduleTransition(ScheduleStatusInProgress, ScheduleStatusCompleted))
	assert.Error(t, ValidateScheduleTransition(ScheduleStatusScheduled, ScheduleStatusCompleted))
	assert.Error(t, ValidateScheduleTransition(ScheduleStatusRescheduled, ScheduleStatusScheduled))
	assert.True(t, ScheduleStatusInProgress.Blocking())
	assert.False(t, ScheduleStatusRescheduled.Blocking())
}

func TestScheduleSlotLockKeysSorted(t *testing.T) {
	slot := ScheduleSlot{RoomID: "r-1", TrainerID: "t-1", Date: time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC)}
	assert.Equal(t, []string{"room:r-1:2025-10-20", "trainer:t-1:2025-10-20"}, slot.LockKeys())
}

func TestISOWeekRange(t *testing.T) {
	from, to, err := ISOWeekRange("2025-W01")
	require.NoError(t, err)
	assert.Equal(t, "2024-12-30", from.Format(DateLayout))
	assert.Equal(t, "2025-01-05", to.Format(DateLayout))

	from, _, err = ISOWeekRange("2026-w53")
	require.NoError(t, err)
	assert.Equal(t, "2026-12-28", from.Format(DateLayout))

	_, _, err = ISOWeekRange("2025-W53")
	assert.Error(t, err)
	_, _, err = ISOWeekRange("week 10")
	assert.Error(t, err)
}

func TestMonthRangeAndCalendar(t *testing.T) {
	from, to, err := MonthRange("2024-02")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", to.Format(DateLayout))

	day := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)
	cal := BuildCalendar("2024-02", from, to, []Schedule{{ScheduleID: "SCH-00001", Date: day}})
	assert.Len(t, cal.Days, 29)
	assert.Equal(t, 1, cal.Total)
	assert.Len(t, cal.Days[9].Schedules, 1)
	assert.Empty(t, cal.Days[0].Schedules)
	assert.Equal(t, "Saturday", cal.Days[9].Weekday)
}
