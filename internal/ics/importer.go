// ABOUTME: Imports an iCalendar feed into the event store.
// ABOUTME: Expands RRULE/EXDATE series within a horizon and upserts one row per occurrence.

package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/2389/fieldops/internal/store"
	"github.com/2389/fieldops/internal/tzclock"
)

const defaultMaxOccurrences = 5000

// EventWriter is the part of the store an import writes through.
type EventWriter interface {
	EnsureCalendar(ctx context.Context, id, summary string) error
	UpsertEvent(ctx context.Context, e *store.Event) (*store.Event, bool, error)
}

// Result counts what an import did.
type Result struct {
	Created   int
	Updated   int
	Skipped   int
	Truncated []string
}

type Importer struct {
	w              EventWriter
	loc            *time.Location
	maxOccurrences int
}

// NewImporter reads floating times and lays out all-day events in loc.
func NewImporter(w EventWriter, loc *time.Location) *Importer {
	return &Importer{w: w, loc: loc, maxOccurrences: defaultMaxOccurrences}
}

// Import loads every event of the feed into calendarID. Recurring series are
// expanded to the occurrences that overlap [from, to); single events are
// imported regardless of the horizon.
func (im *Importer) Import(ctx context.Context, r io.Reader, calendarID string, from, to time.Time) (Result, error) {
	var res Result
	if !from.Before(to) {
		return res, errors.New("import horizon must end after it starts")
	}

	name, events, bad, err := parseFeed(r, im.loc)
	if err != nil {
		return res, err
	}
	for uid, err := range bad {
		log.Printf("ics: skipping event %s: %v", uid, err)
		res.Skipped++
	}

	if name == "" {
		name = calendarID
	}
	if err := im.w.EnsureCalendar(ctx, calendarID, name); err != nil {
		return res, fmt.Errorf("ensure calendar %s: %w", calendarID, err)
	}

	for _, ev := range events {
		if ev.Cancelled {
			res.Skipped++
			continue
		}
		occurrences, truncated, err := im.expand(ev, from, to)
		if err != nil {
			log.Printf("ics: skipping event %s: %v", ev.UID, err)
			res.Skipped++
			continue
		}
		if truncated {
			log.Printf("ics: event %s truncated at %d occurrences", ev.UID, im.maxOccurrences)
			res.Truncated = append(res.Truncated, ev.UID)
		}

		for _, occ := range occurrences {
			occ.CalendarID = calendarID
			_, created, err := im.w.UpsertEvent(ctx, occ)
			if errors.Is(err, store.ErrInvalidEventRange) {
				log.Printf("ics: skipping occurrence %s: %v", occ.SourceUID, err)
				res.Skipped++
				continue
			}
			if err != nil {
				return res, fmt.Errorf("write %s: %w", occ.SourceUID, err)
			}
			if created {
				res.Created++
			} else {
				res.Updated++
			}
		}
	}

	return res, nil
}

func (im *Importer) expand(ev vevent, from, to time.Time) ([]*store.Event, bool, error) {
	if ev.RRule == "" {
		return []*store.Event{im.occurrence(ev, ev.UID)}, false, nil
	}

	opt, err := rrule.StrToROption(ev.RRule)
	if err != nil {
		return nil, false, fmt.Errorf("RRULE %q: %w", ev.RRule, err)
	}

	// All-day series expand on UTC midnights so every occurrence is a date,
	// independent of DST in the site zone.
	anchor := ev.Start
	length := ev.End.Sub(ev.Start)
	if ev.AllDay {
		anchor = dateAnchor(ev.StartDate)
		length = dateAnchor(ev.EndDate).Sub(anchor)
	}
	opt.Dtstart = anchor
	rule, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, false, fmt.Errorf("RRULE %q: %w", ev.RRule, err)
	}

	var set rrule.Set
	set.RRule(rule)
	for _, ex := range ev.ExDates {
		set.ExDate(ex)
	}

	// Search a day wider on each side than the horizon; the overlap check
	// below is exact.
	after := from.Add(-length - 24*time.Hour).In(anchor.Location())
	before := to.Add(24 * time.Hour).In(anchor.Location())
	if ev.AllDay {
		after = dateAnchor(tzclock.DateOf(after))
		before = dateAnchor(tzclock.DateOf(before))
	}
	starts := set.Between(after, before, true)

	out := make([]*store.Event, 0, len(starts))
	truncated := false
	for _, start := range starts {
		if len(out) == im.maxOccurrences {
			truncated = true
			break
		}
		var key string
		if ev.AllDay {
			key = ev.UID + "/" + start.Format(dateLayout)
		} else {
			key = ev.UID + "/" + start.UTC().Format(utcLayout)
		}
		occ := ev
		occ.Start = start
		occ.End = start.Add(length)
		occ.StartDate = tzclock.DateOf(start)
		occ.EndDate = tzclock.DateOf(start.Add(length))
		e := im.occurrence(occ, key)
		if e.StartsAt.Before(to) && e.EndsAt.After(from) {
			out = append(out, e)
		}
	}
	return out, truncated, nil
}

func (im *Importer) occurrence(ev vevent, key string) *store.Event {
	e := &store.Event{
		Title:       ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		SourceUID:   key,
		AllDay:      ev.AllDay,
		StartsAt:    ev.Start,
		EndsAt:      ev.End,
	}
	if ev.AllDay {
		e.StartsAt = tzclock.LocalMidnightUTC(ev.StartDate, im.loc)
		e.EndsAt = tzclock.LocalMidnightUTC(ev.EndDate, im.loc)
	}
	return e
}
