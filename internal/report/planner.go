// ABOUTME: Computes the UTC day window and inclusion predicate for a report date.
// ABOUTME: Comparisons run in the representation the storage mode implies.

package report

import (
	"time"

	"github.com/2389/fieldops/internal/tzclock"
)

// Planner builds report windows for one application timezone.
type Planner struct {
	loc *time.Location
}

func NewPlanner(loc *time.Location) *Planner {
	return &Planner{loc: loc}
}

func (p *Planner) Location() *time.Location {
	return p.loc
}

// Window is the plan for one (date, mode, storage) triple.
//
// DayStartUTC and DayEndUTC bound the local day as instants. LabelStart and
// LabelEnd are the same boundaries as naive wall-clock labels; they are
// calendar midnights even where the zone skips local midnight.
type Window struct {
	Date     tzclock.Date
	Mode     Mode
	Storage  StorageMode
	Location *time.Location

	DayStartUTC time.Time
	DayEndUTC   time.Time
	LabelStart  time.Time
	LabelEnd    time.Time
}

// Plan computes the window for date. It performs no I/O.
func (p *Planner) Plan(date tzclock.Date, mode Mode, storage StorageMode) Window {
	next := tzclock.AddCalendarDays(date, 1)
	return Window{
		Date:        date,
		Mode:        mode,
		Storage:     storage,
		Location:    p.loc,
		DayStartUTC: tzclock.LocalMidnightUTC(date, p.loc),
		DayEndUTC:   tzclock.LocalMidnightUTC(next, p.loc),
		LabelStart:  tzclock.DateLabel(date),
		LabelEnd:    tzclock.DateLabel(next),
	}
}

// bounds returns the day boundaries in the window's comparison representation.
func (w Window) bounds() (time.Time, time.Time) {
	if w.Storage == StorageNaive {
		return w.LabelStart, w.LabelEnd
	}
	return w.DayStartUTC, w.DayEndUTC
}

// localDate is the report-zone calendar date of a value in the window's
// representation.
func (w Window) localDate(t time.Time) tzclock.Date {
	if w.Storage == StorageNaive {
		return tzclock.DateOf(t)
	}
	return tzclock.LocalDateOf(t, w.Location)
}

// Includes applies the mode's predicate. startsAt and endsAt must be in the
// representation DecodeStored yields for the window's storage mode.
func (w Window) Includes(startsAt, endsAt time.Time) bool {
	if w.Mode == ModeClamp {
		return w.localDate(startsAt) == w.Date
	}
	lo, hi := w.bounds()
	return startsAt.Before(hi) && endsAt.After(lo)
}

// IsAllDay reports whether [startsAt, endsAt) covers exactly one local day
// starting at local midnight.
func (w Window) IsAllDay(startsAt, endsAt time.Time) bool {
	d := w.localDate(startsAt)
	if w.Storage == StorageNaive {
		return startsAt.Equal(tzclock.DateLabel(d)) &&
			endsAt.Equal(tzclock.DateLabel(tzclock.AddCalendarDays(d, 1)))
	}
	start, end := AllDayBounds(d, w.Location)
	return startsAt.Equal(start) && endsAt.Equal(end)
}

// StartsBeforeDay reports whether an event carried in from an earlier day.
func (w Window) StartsBeforeDay(startsAt time.Time) bool {
	lo, _ := w.bounds()
	return startsAt.Before(lo)
}

// Query is the store-side form of the window.
func (w Window) Query() WindowQuery {
	q := WindowQuery{Mode: w.Mode, Storage: w.Storage}
	if w.Storage == StorageNaive {
		q.Lower = tzclock.FormatLabel(w.LabelStart)
		q.Upper = tzclock.FormatLabel(w.LabelEnd)
	} else {
		q.Lower = w.DayStartUTC.Format(AwareLayout)
		q.Upper = w.DayEndUTC.Format(AwareLayout)
	}
	return q
}

// WindowQuery carries the encoded day bounds to the event store. For CLAMP
// the store selects Lower <= starts_at < Upper; for INTERSECT it selects
// starts_at < Upper AND ends_at > Lower.
type WindowQuery struct {
	Mode    Mode
	Storage StorageMode
	Lower   string
	Upper   string
}
