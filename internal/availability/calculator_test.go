package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citaflow/booking-backend/internal/timerange"
)

func bogota(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Bogota")
	require.NoError(t, err)
	return loc
}

func officeHours(loc *time.Location) BusinessHours {
	return BusinessHours{OpenHour: 9, CloseHour: 18, Location: loc}
}

func day(loc *time.Location, hour, minute int) time.Time {
	return time.Date(2026, 3, 10, hour, minute, 0, 0, loc)
}

func TestComputeSlotsFullOpenDay(t *testing.T) {
	loc := bogota(t)
	search := timerange.TimeRange{Start: day(loc, 0, 0), End: day(loc, 23, 59)}
	now := day(loc, 0, 0)

	slots := ComputeSlots(nil, officeHours(loc), search, 60, 30, now)

	// 09:00 through 17:00 starts on a 30-minute grid.
	require.Len(t, slots, 17)
	assert.Equal(t, day(loc, 9, 0), slots[0].Start)
	assert.Equal(t, day(loc, 10, 0), slots[0].End)
	assert.Equal(t, day(loc, 17, 0), slots[len(slots)-1].Start)
	assert.Equal(t, day(loc, 18, 0), slots[len(slots)-1].End)
}

func TestComputeSlotsExcludesBusyPeriods(t *testing.T) {
	loc := bogota(t)
	search := timerange.TimeRange{Start: day(loc, 0, 0), End: day(loc, 23, 59)}
	now := day(loc, 0, 0)
	busy := []timerange.TimeRange{
		{Start: day(loc, 10, 0), End: day(loc, 11, 0)},
		{Start: day(loc, 14, 30), End: day(loc, 15, 0)},
	}

	slots := ComputeSlots(busy, officeHours(loc), search, 60, 30, now)

	for _, s := range slots {
		assert.False(t, timerange.OverlapsAny(s, busy), "slot %s intersects busy period", s.Start)
	}
	// 09:00 fits before the first busy block, 09:30 does not.
	assert.Equal(t, day(loc, 9, 0), slots[0].Start)
	assert.Equal(t, day(loc, 11, 0), slots[1].Start)
}

func TestComputeSlotsSkipsPastStarts(t *testing.T) {
	loc := bogota(t)
	search := timerange.TimeRange{Start: day(loc, 0, 0), End: day(loc, 23, 59)}
	now := day(loc, 12, 0)

	slots := ComputeSlots(nil, officeHours(loc), search, 60, 30, now)

	require.NotEmpty(t, slots)
	// A slot starting exactly at now is not bookable either.
	assert.Equal(t, day(loc, 12, 30), slots[0].Start)
}

func TestComputeSlotsRespectsSearchBounds(t *testing.T) {
	loc := bogota(t)
	search := timerange.TimeRange{Start: day(loc, 10, 0), End: day(loc, 12, 0)}
	now := day(loc, 0, 0)

	slots := ComputeSlots(nil, officeHours(loc), search, 60, 30, now)

	require.Len(t, slots, 3)
	assert.Equal(t, day(loc, 10, 0), slots[0].Start)
	assert.Equal(t, day(loc, 11, 0), slots[2].Start)
}

func TestComputeSlotsSpansMultipleDays(t *testing.T) {
	loc := bogota(t)
	search := timerange.TimeRange{
		Start: day(loc, 16, 0),
		End:   day(loc, 16, 0).AddDate(0, 0, 1),
	}
	now := day(loc, 0, 0)

	slots := ComputeSlots(nil, officeHours(loc), search, 60, 30, now)

	require.NotEmpty(t, slots)
	assert.Equal(t, day(loc, 16, 0), slots[0].Start)
	// The tail of the first day and the next morning both appear.
	last := slots[len(slots)-1]
	assert.Equal(t, 11, last.Start.In(loc).Day())
}

func TestComputeSlotsDeterministic(t *testing.T) {
	loc := bogota(t)
	search := timerange.TimeRange{Start: day(loc, 0, 0), End: day(loc, 23, 59)}
	now := day(loc, 0, 0)
	busy := []timerange.TimeRange{{Start: day(loc, 11, 0), End: day(loc, 13, 0)}}

	first := ComputeSlots(busy, officeHours(loc), search, 45, 30, now)
	second := ComputeSlots(busy, officeHours(loc), search, 45, 30, now)

	assert.Equal(t, first, second)
	for i := 1; i < len(first); i++ {
		assert.True(t, first[i].Start.After(first[i-1].Start), "slots must be ordered")
	}
}

func TestComputeSlotsRejectsBadInput(t *testing.T) {
	loc := bogota(t)
	now := day(loc, 0, 0)

	assert.Nil(t, ComputeSlots(nil, officeHours(loc), timerange.TimeRange{Start: now, End: now}, 60, 30, now))
	assert.Nil(t, ComputeSlots(nil, officeHours(loc), timerange.TimeRange{Start: now, End: now.Add(time.Hour)}, 0, 30, now))
}

func TestComputeSlotsDurationExceedsOpenWindow(t *testing.T) {
	loc := bogota(t)
	search := timerange.TimeRange{Start: day(loc, 0, 0), End: day(loc, 23, 59)}
	now := day(loc, 0, 0)

	slots := ComputeSlots(nil, officeHours(loc), search, 10*60, 30, now)
	assert.Empty(t, slots)
}
