package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/hackgods/clinic-scheduling/internal/interval"
)

var (
	lunchStart = interval.MustClock("12:00")
	lunchEnd   = interval.MustClock("13:00")

	// Last start 16:00 Monday to Thursday and 15:00 on Friday, with a 50 minute visit.
	weekdayClose = interval.MustClock("17:00")
	fridayClose  = interval.MustClock("16:00")
)

// Hours is the business window a caller asks availability for.
type Hours struct {
	Start interval.Clock
	End   interval.Clock
}

// Policy holds the fixed scheduling rules.
type Policy struct {
	Duration int // minutes reserved per visit
	Buffer   int // trailing gap after every reserved interval
	// RescheduledOccupies keeps superseded records in the occupied set.
	RescheduledOccupies bool
}

func (p Policy) step() int { return p.Duration + p.Buffer }

func (p Policy) occupies(s Status) bool {
	switch s {
	case StatusCancelled:
		return false
	case StatusRescheduled:
		return p.RescheduledOccupies
	}
	return true
}

// ClosingTime applies the weekday cap. Saturday and Sunday keep the
// caller's end untouched; no weekend rule exists.
func ClosingTime(date interval.Date, businessEnd interval.Clock) interval.Clock {
	switch date.Weekday() {
	case time.Monday, time.Tuesday, time.Wednesday, time.Thursday:
		return min(businessEnd, weekdayClose)
	case time.Friday:
		return min(businessEnd, fridayClose)
	default:
		return businessEnd
	}
}

// DayState is what the ledger and the registry hold for one date.
type DayState struct {
	Date         interval.Date
	Appointments []Appointment
	Blocks       []BlockedSlot
}

func loadDay(ctx context.Context, store Store, date interval.Date) (DayState, error) {
	appts, err := store.Appointments().ByDate(ctx, date)
	if err != nil {
		return DayState{}, fmt.Errorf("load appointments for %s: %w", date, err)
	}
	blocks, err := store.Blackouts().ForDate(ctx, date)
	if err != nil {
		return DayState{}, fmt.Errorf("load blocked slots for %s: %w", date, err)
	}
	return DayState{Date: date, Appointments: appts, Blocks: blocks}, nil
}

func (d DayState) wholeDayBlocked() bool {
	for _, b := range d.Blocks {
		if b.WholeDay() {
			return true
		}
	}
	return false
}

// occupied returns the buffered ranges taken by bookings and timed blocks.
func (d DayState) occupied(p Policy) []interval.Range {
	ranges := make([]interval.Range, 0, len(d.Appointments)+len(d.Blocks))
	for _, a := range d.Appointments {
		if p.occupies(a.Status) {
			ranges = append(ranges, a.Occupied(p.Buffer))
		}
	}
	for _, b := range d.Blocks {
		if !b.WholeDay() {
			ranges = append(ranges, b.Occupied(p.Buffer))
		}
	}
	return ranges
}

// conflict checks a candidate visit at start against the closing time,
// lunch and the occupied ranges. Closing and lunch apply to the visit
// itself; occupancy applies to the visit plus its trailing buffer, the same
// range the visit will occupy once booked. It is the only place a window is
// judged free or taken.
func conflict(start interval.Clock, duration int, p Policy, closing interval.Clock, busy []interval.Range) error {
	span := interval.Span(start, duration)
	if span.End > closing.Minutes() {
		return unavailable("%s ends after closing time %s", span, closing)
	}
	lunch := interval.Range{Start: lunchStart.Minutes(), End: lunchEnd.Minutes()}
	if span.Overlaps(lunch) {
		return unavailable("%s overlaps the lunch break", span)
	}
	reserved := interval.Span(start, duration+p.Buffer)
	for _, r := range busy {
		if reserved.Overlaps(r) {
			return unavailable("%s overlaps occupied range %s", reserved, r)
		}
	}
	return nil
}

// ComputeSlots walks the business grid for one day and returns every
// start time that is still bookable, ascending.
func ComputeSlots(day DayState, h Hours, p Policy) []interval.Clock {
	slots := []interval.Clock{}
	if day.wholeDayBlocked() || p.step() <= 0 {
		return slots
	}

	closing := ClosingTime(day.Date, h.End)
	busy := day.occupied(p)

	for m := h.Start.Minutes(); m+p.Duration <= closing.Minutes(); m += p.step() {
		start := interval.Clock(m)
		if conflict(start, p.Duration, p, closing, busy) == nil {
			slots = append(slots, start)
		}
	}
	return slots
}

// CheckSlot validates a booking of duration minutes at start directly,
// without going through the grid, so off-grid starts are judged by the
// same rules as the ones ComputeSlots emits.
func CheckSlot(day DayState, h Hours, p Policy, start interval.Clock, duration int) error {
	if day.wholeDayBlocked() {
		return unavailable("%s is blocked for the whole day", day.Date)
	}
	if start < h.Start {
		return unavailable("%s is before opening time %s", start, h.Start)
	}
	closing := ClosingTime(day.Date, h.End)
	return conflict(start, duration, p, closing, day.occupied(p))
}
