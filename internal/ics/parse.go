// ABOUTME: Parses VEVENTs out of an iCalendar feed.
// ABOUTME: Resolves DTSTART/DTEND against TZID, UTC or the site zone and detects all-day events.

package ics

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/2389/fieldops/internal/tzclock"
)

var ErrMissingStart = errors.New("event has no DTSTART")

const (
	utcLayout   = "20060102T150405Z"
	localLayout = "20060102T150405"
	dateLayout  = "20060102"
)

// vevent is one parsed VEVENT. Timed events carry instants in the zone they
// were written in; all-day events carry calendar dates.
type vevent struct {
	UID         string
	Summary     string
	Description string
	Location    string
	Cancelled   bool

	AllDay    bool
	Start     time.Time
	End       time.Time
	StartDate tzclock.Date
	EndDate   tzclock.Date

	RRule   string
	ExDates []time.Time
}

// parseFeed reads every VEVENT. Events that cannot be interpreted are
// returned as errors keyed by UID so the caller can skip them.
func parseFeed(r io.Reader, loc *time.Location) (string, []vevent, map[string]error, error) {
	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return "", nil, nil, fmt.Errorf("parse ics: %w", err)
	}

	var name string
	for _, p := range cal.CalendarProperties {
		if p.IANAToken == "X-WR-CALNAME" {
			name = p.Value
		}
	}

	var events []vevent
	bad := make(map[string]error)
	for i, ve := range cal.Events() {
		ev, err := parseVEvent(ve, loc)
		if err != nil {
			key := ev.UID
			if key == "" {
				key = fmt.Sprintf("#%d", i)
			}
			bad[key] = err
			continue
		}
		events = append(events, ev)
	}
	return name, events, bad, nil
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (vevent, error) {
	var ev vevent
	ev.UID = propValue(ve, ical.ComponentPropertyUniqueId)
	ev.Summary = propValue(ve, ical.ComponentPropertySummary)
	ev.Description = propValue(ve, ical.ComponentPropertyDescription)
	ev.Location = propValue(ve, ical.ComponentPropertyLocation)
	ev.RRule = propValue(ve, ical.ComponentPropertyRrule)
	ev.Cancelled = strings.EqualFold(propValue(ve, ical.ComponentPropertyStatus), "CANCELLED")

	if ev.UID == "" {
		return ev, errors.New("event has no UID")
	}

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil || startProp.Value == "" {
		return ev, ErrMissingStart
	}
	ev.AllDay = isDateValue(startProp.Value, startProp.ICalParameters)

	if ev.AllDay {
		first, err := parseDate(startProp.Value)
		if err != nil {
			return ev, fmt.Errorf("DTSTART: %w", err)
		}
		ev.StartDate, ev.EndDate = first, tzclock.AddCalendarDays(first, 1)
		if endProp := ve.GetProperty(ical.ComponentPropertyDtEnd); endProp != nil && endProp.Value != "" {
			last, err := parseDate(endProp.Value)
			if err != nil {
				return ev, fmt.Errorf("DTEND: %w", err)
			}
			if first.Before(last) {
				ev.EndDate = last
			}
		}
	} else {
		start, err := parseDateTime(startProp.Value, startProp.ICalParameters, loc)
		if err != nil {
			return ev, fmt.Errorf("DTSTART: %w", err)
		}
		ev.Start, ev.End = start, start
		if endProp := ve.GetProperty(ical.ComponentPropertyDtEnd); endProp != nil && endProp.Value != "" {
			if ev.End, err = parseDateTime(endProp.Value, endProp.ICalParameters, loc); err != nil {
				return ev, fmt.Errorf("DTEND: %w", err)
			}
		}
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			t, err := parseExDate(part, p.ICalParameters, ev, loc)
			if err != nil {
				return ev, fmt.Errorf("EXDATE: %w", err)
			}
			ev.ExDates = append(ev.ExDates, t)
		}
	}

	return ev, nil
}

func propValue(ve *ical.VEvent, name ical.ComponentProperty) string {
	if p := ve.GetProperty(name); p != nil {
		return p.Value
	}
	return ""
}

func isDateValue(value string, params map[string][]string) bool {
	if vs := params["VALUE"]; len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(value, "T")
}

func parseDate(v string) (tzclock.Date, error) {
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return tzclock.Date{}, fmt.Errorf("%q is not a DATE value", v)
	}
	return tzclock.DateOf(t), nil
}

// parseDateTime honours a trailing Z, then TZID, then falls back to the site
// zone for floating times.
func parseDateTime(v string, params map[string][]string, loc *time.Location) (time.Time, error) {
	if strings.HasSuffix(v, "Z") {
		t, err := time.Parse(utcLayout, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("%q is not a UTC DATE-TIME", v)
		}
		return t, nil
	}

	zone := loc
	if ids := params["TZID"]; len(ids) > 0 && ids[0] != "" {
		z, err := tzclock.LoadLocation(ids[0])
		if err != nil {
			return time.Time{}, err
		}
		zone = z
	}

	label, err := time.Parse(localLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is not a DATE-TIME", v)
	}
	return tzclock.FromWallClock(label, zone), nil
}

// parseExDate puts an exclusion in the same frame the recurrence is expanded
// in: UTC midnights for all-day series, instants for timed ones. Floating
// values are read in the series' own zone.
func parseExDate(v string, params map[string][]string, ev vevent, loc *time.Location) (time.Time, error) {
	if ev.AllDay {
		d, err := parseDate(v[:min(len(v), len(dateLayout))])
		if err != nil {
			return time.Time{}, err
		}
		return dateAnchor(d), nil
	}
	if isDateValue(v, params) {
		d, err := parseDate(v)
		if err != nil {
			return time.Time{}, err
		}
		s := ev.Start
		return time.Date(d.Year, d.Month, d.Day, s.Hour(), s.Minute(), s.Second(), 0, s.Location()), nil
	}
	if _, ok := params["TZID"]; ok || strings.HasSuffix(v, "Z") {
		return parseDateTime(v, params, loc)
	}
	label, err := time.Parse(localLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is not a DATE-TIME", v)
	}
	return tzclock.FromWallClock(label, ev.Start.Location()), nil
}

// dateAnchor is the UTC midnight all-day recurrences are expanded on.
func dateAnchor(d tzclock.Date) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}
