// ABOUTME: Converts schedule items to store events and writes them.
// ABOUTME: Wall-clock items are resolved in the site timezone.

package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/2389/fieldops/internal/store"
	"github.com/2389/fieldops/internal/tzclock"
)

// EventWriter is the part of the store seeding needs.
type EventWriter interface {
	EnsureCalendar(ctx context.Context, id, summary string) error
	CreateEvent(ctx context.Context, e *store.Event) (*store.Event, error)
}

// ToEvent converts an item into an event on calendarID.
func (it Item) ToEvent(calendarID string, loc *time.Location) (*store.Event, error) {
	if err := it.validate(); err != nil {
		return nil, fmt.Errorf("item %q: %w", it.Title, err)
	}
	e := &store.Event{
		CalendarID:  calendarID,
		Title:       it.Title,
		Description: it.Description,
		Location:    it.Location,
		AllDay:      it.AllDay,
	}
	if it.AllDay {
		first, _ := tzclock.ParseDate(it.Date)
		days := max(it.Days, 1)
		e.StartsAt = tzclock.LocalMidnightUTC(first, loc)
		e.EndsAt = tzclock.LocalMidnightUTC(tzclock.AddCalendarDays(first, days), loc)
		return e, nil
	}
	start, _ := tzclock.ParseLabel(it.Start)
	end, _ := tzclock.ParseLabel(it.End)
	e.StartsAt = tzclock.FromWallClock(start, loc).UTC()
	e.EndsAt = tzclock.FromWallClock(end, loc).UTC()
	return e, nil
}

// Load writes items to calendarID, creating the calendar if needed, and
// returns how many events were stored.
func Load(ctx context.Context, w EventWriter, calendarID string, loc *time.Location, items []Item) (int, error) {
	if err := w.EnsureCalendar(ctx, calendarID, "Job site"); err != nil {
		return 0, fmt.Errorf("creating calendar %s: %w", calendarID, err)
	}
	n := 0
	for _, it := range items {
		e, err := it.ToEvent(calendarID, loc)
		if err != nil {
			return n, err
		}
		if _, err := w.CreateEvent(ctx, e); err != nil {
			return n, fmt.Errorf("storing %s: %w", it, err)
		}
		n++
	}
	return n, nil
}
