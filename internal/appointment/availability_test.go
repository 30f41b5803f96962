package appointment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/interval"
)

func confirmedAt(date interval.Date, clock string) Appointment {
	return Appointment{
		Date:     date,
		Time:     interval.MustClock(clock),
		Duration: 50,
		Status:   StatusConfirmed,
	}
}

func TestComputeSlots_WeekdayGrid(t *testing.T) {
	got := ComputeSlots(DayState{Date: monday}, defaultHours(), testPolicy())
	assert.Equal(t, clocks(t, "07:00", "08:00", "09:00", "10:00", "11:00", "13:00", "14:00", "15:00", "16:00"), got)
}

func TestComputeSlots_FridayClosesEarly(t *testing.T) {
	got := ComputeSlots(DayState{Date: friday}, defaultHours(), testPolicy())
	require.NotEmpty(t, got)
	assert.Equal(t, "15:00", got[len(got)-1].String())
	assert.Len(t, got, 8)
}

func TestComputeSlots_WeekendUsesCallerEnd(t *testing.T) {
	got := ComputeSlots(DayState{Date: saturday}, defaultHours(), testPolicy())
	require.NotEmpty(t, got)
	assert.Equal(t, "17:00", got[len(got)-1].String())

	short := Hours{Start: interval.MustClock("09:00"), End: interval.MustClock("12:00")}
	assert.Equal(t, clocks(t, "09:00", "10:00", "11:00"), ComputeSlots(DayState{Date: saturday}, short, testPolicy()))
}

func TestComputeSlots_WeekdayCapNeverExtendsCallerEnd(t *testing.T) {
	h := Hours{Start: interval.MustClock("07:00"), End: interval.MustClock("11:00")}
	got := ComputeSlots(DayState{Date: monday}, h, testPolicy())
	assert.Equal(t, clocks(t, "07:00", "08:00", "09:00", "10:00"), got)
}

func TestComputeSlots_LunchExcluded(t *testing.T) {
	lunch := interval.Range{Start: lunchStart.Minutes(), End: lunchEnd.Minutes()}
	for _, d := range []interval.Date{monday, tuesday, friday, saturday} {
		for _, slot := range ComputeSlots(DayState{Date: d}, defaultHours(), testPolicy()) {
			assert.False(t, interval.Span(slot, 50).Overlaps(lunch), "%s %s", d, slot)
		}
	}
}

func TestComputeSlots_BookedAppointmentWithBuffer(t *testing.T) {
	day := DayState{Date: tuesday, Appointments: []Appointment{confirmedAt(tuesday, "09:00")}}
	got := ComputeSlots(day, defaultHours(), testPolicy())

	assert.Contains(t, got, interval.MustClock("10:00"))
	assert.NotContains(t, got, interval.MustClock("09:00"))
	assert.NotContains(t, got, interval.MustClock("09:30"))

	err := CheckSlot(day, defaultHours(), testPolicy(), interval.MustClock("09:30"), 50)
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestComputeSlots_OffGridBookingBlocksNeighbours(t *testing.T) {
	day := DayState{Date: monday, Appointments: []Appointment{confirmedAt(monday, "10:30")}}
	got := ComputeSlots(day, defaultHours(), testPolicy())

	assert.NotContains(t, got, interval.MustClock("10:00"))
	assert.NotContains(t, got, interval.MustClock("11:00"))
	assert.Contains(t, got, interval.MustClock("09:00"))
}

func TestCheckSlot_TrailingBufferMustStayClear(t *testing.T) {
	day := DayState{Date: tuesday, Appointments: []Appointment{confirmedAt(tuesday, "09:00")}}
	h := defaultHours()
	p := testPolicy()

	// [08:05, 09:05) with the buffer runs into the 09:00 visit.
	assert.ErrorIs(t, CheckSlot(day, h, p, interval.MustClock("08:05"), 50), ErrSlotUnavailable)
	assert.ErrorIs(t, CheckSlot(day, h, p, interval.MustClock("08:10"), 50), ErrSlotUnavailable)
	assert.NoError(t, CheckSlot(day, h, p, interval.MustClock("08:00"), 50))
	assert.NoError(t, CheckSlot(day, h, p, interval.MustClock("07:55"), 50))
}

func TestComputeSlots_WholeDayBlock(t *testing.T) {
	day := DayState{Date: monday, Blocks: []BlockedSlot{{Date: monday}}}
	got := ComputeSlots(day, defaultHours(), testPolicy())
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestComputeSlots_TimedBlock(t *testing.T) {
	day := DayState{Date: monday, Blocks: []BlockedSlot{{
		Date:     monday,
		Time:     ptr(interval.MustClock("14:00")),
		Duration: ptr(50),
	}}}
	got := ComputeSlots(day, defaultHours(), testPolicy())
	assert.NotContains(t, got, interval.MustClock("14:00"))
	assert.Contains(t, got, interval.MustClock("15:00"))
}

func TestComputeSlots_StatusesThatOccupy(t *testing.T) {
	cancelled := confirmedAt(monday, "09:00")
	cancelled.Status = StatusCancelled
	rescheduled := confirmedAt(monday, "10:00")
	rescheduled.Status = StatusRescheduled
	completed := confirmedAt(monday, "11:00")
	completed.Status = StatusCompleted

	day := DayState{Date: monday, Appointments: []Appointment{cancelled, rescheduled, completed}}

	got := ComputeSlots(day, defaultHours(), testPolicy())
	assert.Contains(t, got, interval.MustClock("09:00"))
	assert.NotContains(t, got, interval.MustClock("10:00"))
	assert.NotContains(t, got, interval.MustClock("11:00"))

	p := testPolicy()
	p.RescheduledOccupies = false
	got = ComputeSlots(day, defaultHours(), p)
	assert.Contains(t, got, interval.MustClock("10:00"))
}

func TestCheckSlot(t *testing.T) {
	day := DayState{Date: monday}
	h := defaultHours()
	p := testPolicy()

	assert.NoError(t, CheckSlot(day, h, p, interval.MustClock("07:30"), 50))
	assert.ErrorIs(t, CheckSlot(day, h, p, interval.MustClock("06:30"), 50), ErrSlotUnavailable)
	assert.ErrorIs(t, CheckSlot(day, h, p, interval.MustClock("11:30"), 50), ErrSlotUnavailable)
	assert.ErrorIs(t, CheckSlot(day, h, p, interval.MustClock("16:30"), 50), ErrSlotUnavailable)
	assert.NoError(t, CheckSlot(day, h, p, interval.MustClock("16:10"), 50))
}

func TestClosingTime(t *testing.T) {
	end := interval.MustClock("18:00")
	assert.Equal(t, "17:00", ClosingTime(monday, end).String())
	assert.Equal(t, "17:00", ClosingTime(tuesday, end).String())
	assert.Equal(t, "16:00", ClosingTime(friday, end).String())
	assert.Equal(t, "18:00", ClosingTime(saturday, end).String())
	assert.Equal(t, "18:00", ClosingTime(saturday.AddDays(1), end).String())
}
