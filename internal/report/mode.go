// ABOUTME: Report inclusion policies and event timestamp storage modes.
// ABOUTME: Both are small closed enums resolved once and threaded through planning.

package report

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/2389/fieldops/internal/tzclock"
)

// Mode selects which events belong to a report day.
type Mode string

const (
	// ModeIntersect admits any event overlapping the report day.
	ModeIntersect Mode = "INTERSECT"
	// ModeClamp admits only events whose local start date is the report day.
	ModeClamp Mode = "CLAMP"
)

// DefaultMode is used when REPORT_MODE is unset.
const DefaultMode = ModeIntersect

var (
	ErrInvalidReportDate   = errors.New("invalid report date")
	ErrUnknownMode         = errors.New("unknown report mode")
	ErrUndetectableStorage = errors.New("undetectable event timestamp storage")
	ErrCorruptTimestamp    = errors.New("corrupt stored timestamp")
)

// ParseMode accepts INTERSECT or CLAMP in any case.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToUpper(strings.TrimSpace(s))) {
	case ModeIntersect:
		return ModeIntersect, nil
	case ModeClamp:
		return ModeClamp, nil
	}
	return "", fmt.Errorf("%w: %q (want INTERSECT or CLAMP)", ErrUnknownMode, s)
}

// StorageMode describes how the event table holds timestamps.
type StorageMode string

const (
	// StorageNaive columns hold wall-clock labels in the application zone.
	StorageNaive StorageMode = "NAIVE"
	// StorageTZAware columns hold true instants.
	StorageTZAware StorageMode = "TZ_AWARE"
)

// AwareLayout is how instants are written to TZ_AWARE columns.
const AwareLayout = "2006-01-02T15:04:05Z"

var precision = regexp.MustCompile(`\(\s*\d+\s*\)`)

// StorageModeForColumnType maps a declared column type to a storage mode.
func StorageModeForColumnType(declared string) (StorageMode, error) {
	t := strings.ToLower(precision.ReplaceAllString(declared, ""))
	t = strings.Join(strings.Fields(t), " ")
	switch t {
	case "timestamp without time zone", "timestamp", "datetime":
		return StorageNaive, nil
	case "timestamp with time zone", "timestamptz":
		return StorageTZAware, nil
	}
	return "", fmt.Errorf("%w: column type %q", ErrUndetectableStorage, declared)
}

// EncodeTimestamp renders t for a column of the given storage mode. NAIVE
// columns receive the wall-clock reading of t in loc.
func EncodeTimestamp(storage StorageMode, t time.Time, loc *time.Location) string {
	if storage == StorageNaive {
		return tzclock.FormatLabel(tzclock.Label(t, loc))
	}
	return t.UTC().Format(AwareLayout)
}

// DecodeStored parses a stored value in the representation its storage mode
// implies: an instant for TZ_AWARE, a wall-clock label for NAIVE.
func DecodeStored(storage StorageMode, raw string) (time.Time, error) {
	if storage == StorageNaive {
		t, err := tzclock.ParseLabel(raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", ErrCorruptTimestamp, err)
		}
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not an RFC 3339 instant", ErrCorruptTimestamp, raw)
	}
	return t.UTC(), nil
}

// DecodeInstant parses a stored value into a true instant.
func DecodeInstant(storage StorageMode, raw string, loc *time.Location) (time.Time, error) {
	t, err := DecodeStored(storage, raw)
	if err != nil {
		return time.Time{}, err
	}
	if storage == StorageNaive {
		return tzclock.FromWallClock(t, loc).UTC(), nil
	}
	return t, nil
}

// AllDayBounds is the canonical [start, end) of an all-day event on d.
func AllDayBounds(d tzclock.Date, loc *time.Location) (time.Time, time.Time) {
	return tzclock.LocalMidnightUTC(d, loc), tzclock.LocalMidnightUTC(tzclock.AddCalendarDays(d, 1), loc)
}
