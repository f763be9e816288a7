// ABOUTME: Calendar-date arithmetic relative to an IANA timezone.
// ABOUTME: Converts local report dates to UTC day boundaries and back, DST-aware.

package tzclock

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // zone rules must not depend on the host's zoneinfo
)

// DateLayout is the only accepted textual form of a Date.
const DateLayout = "2006-01-02"

var (
	ErrInvalidDate     = errors.New("invalid date")
	ErrUnknownTimezone = errors.New("unknown timezone")
)

// Date is a calendar date with no time of day and no zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses a YYYY-MM-DD string. Out-of-range days such as
// 2025-02-30 are rejected.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q is not a YYYY-MM-DD calendar date", ErrInvalidDate, s)
	}
	return DateOf(t), nil
}

// MustParseDate is ParseDate for fixtures and constants.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

func (d Date) IsZero() bool {
	return d == Date{}
}

// Compare returns -1, 0 or +1.
func (d Date) Compare(other Date) int {
	switch {
	case d.Year != other.Year:
		return cmpInt(d.Year, other.Year)
	case d.Month != other.Month:
		return cmpInt(int(d.Month), int(other.Month))
	default:
		return cmpInt(d.Day, other.Day)
	}
}

func (d Date) Before(other Date) bool { return d.Compare(other) < 0 }

// AddCalendarDays is pure calendar arithmetic; no zone is involved.
func AddCalendarDays(d Date, n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 12, 0, 0, 0, time.UTC))
}

// LocalMidnightUTC returns the instant at which date begins in loc.
//
// If local midnight does not exist on that date (a zone that springs
// forward at 00:00), the day begins at the transition and that instant is
// returned.
func LocalMidnightUTC(d Date, loc *time.Location) time.Time {
	t := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
	if DateOf(t) != d {
		_, end := t.ZoneBounds()
		if !end.IsZero() {
			t = end
		}
	}
	return t.UTC()
}

// LocalDateOf returns the calendar date of instant when rendered in loc.
func LocalDateOf(instant time.Time, loc *time.Location) Date {
	return DateOf(instant.In(loc))
}

// DayLength is the elapsed duration of date in loc: 23, 24 or 25 hours
// in zones with hourly DST shifts.
func DayLength(d Date, loc *time.Location) time.Duration {
	return LocalMidnightUTC(AddCalendarDays(d, 1), loc).Sub(LocalMidnightUTC(d, loc))
}

// LoadLocation resolves an IANA identifier. An empty name is an error,
// not UTC: silently reporting in the wrong zone moves events between days.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty timezone name", ErrUnknownTimezone)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrUnknownTimezone, name, err)
	}
	return loc, nil
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
