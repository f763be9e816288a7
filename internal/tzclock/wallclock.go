// ABOUTME: Naive wall-clock labels: timestamps that carry no offset.
// ABOUTME: Labels are held as time.Time values in UTC whose fields are local clock readings.

package tzclock

import (
	"fmt"
	"strings"
	"time"
)

// LabelLayout is the storage form of a naive timestamp.
const LabelLayout = "2006-01-02 15:04:05"

var labelLayouts = []string{
	LabelLayout,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
}

// Label returns the wall-clock reading of instant in loc, as a label.
func Label(instant time.Time, loc *time.Location) time.Time {
	l := instant.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), l.Hour(), l.Minute(), l.Second(), l.Nanosecond(), time.UTC)
}

// DateLabel is the label of 00:00 on d. Unlike Label(LocalMidnightUTC(d)),
// it exists even on days whose local midnight was skipped.
func DateLabel(d Date) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// FormatLabel renders a label in LabelLayout.
func FormatLabel(label time.Time) string {
	return label.Format(LabelLayout)
}

// ParseLabel reads a naive timestamp. Values that do carry an offset
// (written by a driver that formats RFC 3339) keep their clock fields and
// drop the offset, since the column they came from has no zone.
func ParseLabel(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range labelLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC), nil
	}
	return time.Time{}, fmt.Errorf("unparsable wall-clock timestamp %q", s)
}

// FromWallClock interprets a label as local time in loc. Labels that fall
// in a spring-forward gap resolve to whatever instant time.Date picks.
func FromWallClock(label time.Time, loc *time.Location) time.Time {
	return time.Date(label.Year(), label.Month(), label.Day(), label.Hour(), label.Minute(), label.Second(), label.Nanosecond(), loc)
}
