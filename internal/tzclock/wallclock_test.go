// ABOUTME: Tests for naive wall-clock label conversion.
// ABOUTME: Verifies labels round-trip through a zone and tolerate driver-formatted values.

package tzclock

import (
	"testing"
	"time"
)

func TestLabel_RendersLocalClock(t *testing.T) {
	ny := mustLoad(t, "America/New_York")

	instant := time.Date(2025, 10, 6, 13, 0, 0, 0, time.UTC)
	got := FormatLabel(Label(instant, ny))
	if got != "2025-10-06 09:00:00" {
		t.Errorf("Label() = %q, want %q", got, "2025-10-06 09:00:00")
	}
}

func TestParseLabel(t *testing.T) {
	want := time.Date(2025, 10, 6, 9, 0, 0, 0, time.UTC)

	for _, input := range []string{
		"2025-10-06 09:00:00",
		"2025-10-06T09:00:00",
		"2025-10-06 09:00",
		"2025-10-06T09:00:00Z",
		"2025-10-06T09:00:00-04:00",
	} {
		got, err := ParseLabel(input)
		if err != nil {
			t.Errorf("ParseLabel(%q) error = %v", input, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseLabel(%q) = %v, want %v", input, got, want)
		}
	}

	if _, err := ParseLabel("yesterday at nine"); err == nil {
		t.Error("ParseLabel() accepted garbage")
	}
}

func TestFromWallClock_RoundTrip(t *testing.T) {
	ny := mustLoad(t, "America/New_York")

	instant := time.Date(2024, 7, 4, 16, 30, 0, 0, time.UTC)
	back := FromWallClock(Label(instant, ny), ny)
	if !back.Equal(instant) {
		t.Errorf("FromWallClock(Label(x)) = %v, want %v", back, instant)
	}
}

func TestDateLabel(t *testing.T) {
	got := FormatLabel(DateLabel(MustParseDate("2024-03-10")))
	if got != "2024-03-10 00:00:00" {
		t.Errorf("DateLabel() = %q", got)
	}
}
