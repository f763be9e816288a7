// ABOUTME: Shared fixtures for report package tests.
// ABOUTME: An in-memory EventStore and a job-site event set encoded per storage mode.

package report

import (
	"context"
	"testing"
	"time"

	"github.com/2389/fieldops/internal/tzclock"
)

type fakeStore struct {
	startType string
	endType   string
	schemaErr error
	queryErr  error
	events    []StoredEvent

	schemaCalls int
	queries     []WindowQuery
}

func (f *fakeStore) ColumnType(_ context.Context, table, column string) (string, error) {
	f.schemaCalls++
	if f.schemaErr != nil {
		return "", f.schemaErr
	}
	if column == EndsAtColumn && f.endType != "" {
		return f.endType, nil
	}
	return f.startType, nil
}

// QueryReportWindow returns every event; the resolver's own predicate must
// do the filtering.
func (f *fakeStore) QueryReportWindow(_ context.Context, q WindowQuery) ([]StoredEvent, error) {
	f.queries = append(f.queries, q)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	out := make([]StoredEvent, len(f.events))
	copy(out, f.events)
	return out, nil
}

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := tzclock.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation() error = %v", err)
	}
	return loc
}

// fixture describes an event by its local wall-clock labels.
type fixture struct {
	id, title  string
	start, end string
	allDay     bool
}

func encodeFixtures(t *testing.T, storage StorageMode, loc *time.Location, fixtures []fixture) []StoredEvent {
	t.Helper()
	out := make([]StoredEvent, 0, len(fixtures))
	for _, fx := range fixtures {
		start, err := tzclock.ParseLabel(fx.start)
		if err != nil {
			t.Fatalf("fixture %s: %v", fx.id, err)
		}
		end, err := tzclock.ParseLabel(fx.end)
		if err != nil {
			t.Fatalf("fixture %s: %v", fx.id, err)
		}
		ev := StoredEvent{ID: fx.id, CalendarID: "site", Title: fx.title, AllDay: fx.allDay}
		if storage == StorageNaive {
			ev.StartsAt = tzclock.FormatLabel(start)
			ev.EndsAt = tzclock.FormatLabel(end)
		} else {
			ev.StartsAt = EncodeTimestamp(StorageTZAware, tzclock.FromWallClock(start, loc), loc)
			ev.EndsAt = EncodeTimestamp(StorageTZAware, tzclock.FromWallClock(end, loc), loc)
		}
		out = append(out, ev)
	}
	return out
}

func columnTypeFor(storage StorageMode) string {
	if storage == StorageNaive {
		return "timestamp without time zone"
	}
	return "timestamp with time zone"
}

// jobSiteWeek mirrors the reference scenarios for report date 2025-10-06.
var jobSiteWeek = []fixture{
	{id: "evt_day", title: "Crew dispatch", start: "2025-10-06 09:00:00", end: "2025-10-06 12:00:00"},
	{id: "evt_carry_in", title: "Overnight pour", start: "2025-10-05 22:00:00", end: "2025-10-06 02:00:00"},
	{id: "evt_carry_out", title: "Night paving", start: "2025-10-06 23:00:00", end: "2025-10-07 03:00:00"},
	{id: "evt_prev_day", title: "Survey", start: "2025-10-05 08:00:00", end: "2025-10-05 10:00:00"},
	{id: "evt_allday_06", title: "Road closure", start: "2025-10-06 00:00:00", end: "2025-10-07 00:00:00", allDay: true},
	{id: "evt_allday_07", title: "Crane inspection", start: "2025-10-07 00:00:00", end: "2025-10-08 00:00:00", allDay: true},
}

var storageModes = []StorageMode{StorageNaive, StorageTZAware}

func rowIDs(snap *Snapshot) []string {
	ids := make([]string, len(snap.Rows))
	for i, r := range snap.Rows {
		ids[i] = r.EventID
	}
	return ids
}
