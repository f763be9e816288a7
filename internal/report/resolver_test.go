// ABOUTME: Tests for the daily report resolver.
// ABOUTME: Reference scenarios, storage-mode equivalence, ordering, debug output and failures.

package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/fieldops/internal/tzclock"
)

func newTestResolver(t *testing.T, storage StorageMode, fixtures []fixture, settings Settings) (*Resolver, *fakeStore) {
	t.Helper()
	loc := newYork(t)
	fs := &fakeStore{
		startType: columnTypeFor(storage),
		events:    encodeFixtures(t, storage, loc, fixtures),
	}
	return NewResolver(fs, loc, settings), fs
}

func TestGetEventsForDay_ReferenceScenarios(t *testing.T) {
	tests := []struct {
		name string
		mode Mode
		want []string
	}{
		{
			name: "intersect includes carry-in, carry-out and own all-day",
			mode: ModeIntersect,
			want: []string{"evt_allday_06", "evt_carry_in", "evt_day", "evt_carry_out"},
		},
		{
			name: "clamp drops the overnight carry-in",
			mode: ModeClamp,
			want: []string{"evt_allday_06", "evt_day", "evt_carry_out"},
		},
	}

	for _, storage := range storageModes {
		for _, tt := range tests {
			t.Run(string(storage)+"/"+tt.name, func(t *testing.T) {
				r, fs := newTestResolver(t, storage, jobSiteWeek, Settings{Mode: tt.mode})

				snap, err := r.GetEventsForDay(context.Background(), "2025-10-06")
				require.NoError(t, err)
				assert.Equal(t, tt.want, rowIDs(snap))
				assert.Equal(t, tt.mode, snap.Mode)
				assert.Nil(t, snap.Diagnostics)
				require.Len(t, fs.queries, 1)
				assert.Equal(t, storage, fs.queries[0].Storage)
			})
		}
	}
}

func TestGetEventsForDay_RowsCarryInstants(t *testing.T) {
	for _, storage := range storageModes {
		t.Run(string(storage), func(t *testing.T) {
			r, _ := newTestResolver(t, storage, jobSiteWeek, Settings{Mode: ModeIntersect})

			snap, err := r.GetEventsForDay(context.Background(), "2025-10-06")
			require.NoError(t, err)

			var day Row
			for _, row := range snap.Rows {
				if row.EventID == "evt_day" {
					day = row
				}
			}
			// 09:00 EDT
			assert.True(t, day.StartsAt.Equal(time.Date(2025, 10, 6, 13, 0, 0, 0, time.UTC)), "startsAt = %v", day.StartsAt)
			assert.True(t, day.EndsAt.Equal(time.Date(2025, 10, 6, 16, 0, 0, 0, time.UTC)), "endsAt = %v", day.EndsAt)
			assert.False(t, day.AllDay)
			assert.True(t, snap.Rows[0].AllDay)
		})
	}
}

func TestGetEventsForDay_SpringForward(t *testing.T) {
	fixtures := []fixture{
		{id: "evt_overnight", title: "Dewatering", start: "2024-03-09 23:30:00", end: "2024-03-10 02:30:00"},
		{id: "evt_morning", title: "Toolbox talk", start: "2024-03-10 07:00:00", end: "2024-03-10 07:30:00"},
		{id: "evt_before", title: "Site walk", start: "2024-03-09 15:00:00", end: "2024-03-09 16:00:00"},
	}

	for _, storage := range storageModes {
		t.Run(string(storage), func(t *testing.T) {
			r, _ := newTestResolver(t, storage, fixtures, Settings{Mode: ModeIntersect})

			snap, err := r.GetEventsForDay(context.Background(), "2024-03-10")
			require.NoError(t, err)
			assert.Equal(t, []string{"evt_overnight", "evt_morning"}, rowIDs(snap))
		})
	}
}

func TestGetEventsForDay_StorageModesAgree(t *testing.T) {
	fixtures := append([]fixture{}, jobSiteWeek...)
	fixtures = append(fixtures,
		fixture{id: "evt_fallback", title: "Generator refuel", start: "2024-11-03 01:30:00", end: "2024-11-03 01:45:00"},
		fixture{id: "evt_fallback_span", title: "Night shift", start: "2024-11-02 20:00:00", end: "2024-11-03 04:00:00"},
		fixture{id: "evt_spring_span", title: "Dewatering", start: "2024-03-09 23:30:00", end: "2024-03-10 02:30:00"},
		fixture{id: "evt_allday_dst", title: "Holiday shutdown", start: "2024-11-03 00:00:00", end: "2024-11-04 00:00:00", allDay: true},
		fixture{id: "evt_midnight_edge", title: "Concrete cure check", start: "2025-10-05 23:00:00", end: "2025-10-06 00:00:00"},
	)
	dates := []string{
		"2024-03-09", "2024-03-10", "2024-03-11",
		"2024-11-02", "2024-11-03", "2024-11-04",
		"2025-10-04", "2025-10-05", "2025-10-06", "2025-10-07", "2025-10-08",
	}

	for _, mode := range []Mode{ModeIntersect, ModeClamp} {
		naive, _ := newTestResolver(t, StorageNaive, fixtures, Settings{Mode: mode})
		aware, _ := newTestResolver(t, StorageTZAware, fixtures, Settings{Mode: mode})

		for _, date := range dates {
			n, err := naive.GetEventsForDay(context.Background(), date)
			require.NoError(t, err)
			a, err := aware.GetEventsForDay(context.Background(), date)
			require.NoError(t, err)

			if diff := cmp.Diff(rowIDs(n), rowIDs(a)); diff != "" {
				t.Errorf("%s %s: naive vs aware rows differ (-naive +aware):\n%s", mode, date, diff)
			}
		}
	}
}

func TestGetEventsForDay_EndExclusiveAtMidnight(t *testing.T) {
	fixtures := []fixture{
		{id: "evt_edge", title: "Concrete cure check", start: "2025-10-05 23:00:00", end: "2025-10-06 00:00:00"},
	}
	for _, storage := range storageModes {
		r, _ := newTestResolver(t, storage, fixtures, Settings{Mode: ModeIntersect})

		snap, err := r.GetEventsForDay(context.Background(), "2025-10-06")
		require.NoError(t, err)
		assert.Empty(t, snap.Rows, "%s: event ending at midnight leaked into next day", storage)

		snap, err = r.GetEventsForDay(context.Background(), "2025-10-05")
		require.NoError(t, err)
		assert.Equal(t, []string{"evt_edge"}, rowIDs(snap))
	}
}

func TestGetEventsForDay_AllDayAppearsOnlyOnItsDate(t *testing.T) {
	fixtures := []fixture{
		{id: "evt_closure", title: "Road closure", start: "2025-10-06 00:00:00", end: "2025-10-07 00:00:00"},
		{id: "evt_dst_closure", title: "Holiday shutdown", start: "2024-11-03 00:00:00", end: "2024-11-04 00:00:00"},
	}
	anchors := map[string]string{
		"evt_closure":     "2025-10-06",
		"evt_dst_closure": "2024-11-03",
	}

	for _, storage := range storageModes {
		for _, mode := range []Mode{ModeIntersect, ModeClamp} {
			r, _ := newTestResolver(t, storage, fixtures, Settings{Mode: mode})

			for id, anchor := range anchors {
				d := tzclock.MustParseDate(anchor)
				for offset := -1; offset <= 1; offset++ {
					date := tzclock.AddCalendarDays(d, offset).String()
					snap, err := r.GetEventsForDay(context.Background(), date)
					require.NoError(t, err)

					found := false
					for _, row := range snap.Rows {
						if row.EventID == id {
							found = true
							assert.True(t, row.AllDay, "%s should be recognised as all-day", id)
						}
					}
					assert.Equal(t, offset == 0, found, "%s/%s: %s on %s", storage, mode, id, date)
				}
			}
		}
	}
}

func TestGetEventsForDay_TitleTieBreak(t *testing.T) {
	fixtures := []fixture{
		{id: "evt_3", title: "alpha", start: "2025-10-06 07:00:00", end: "2025-10-06 08:00:00"},
		{id: "evt_1", title: "Beta", start: "2025-10-06 07:00:00", end: "2025-10-06 08:00:00"},
		{id: "evt_2", title: "Alpha", start: "2025-10-06 07:00:00", end: "2025-10-06 09:00:00"},
		{id: "evt_0", title: "Earlier", start: "2025-10-06 06:00:00", end: "2025-10-06 06:30:00"},
	}
	r, _ := newTestResolver(t, StorageTZAware, fixtures, Settings{Mode: ModeIntersect})

	snap, err := r.GetEventsForDay(context.Background(), "2025-10-06")
	require.NoError(t, err)
	assert.Equal(t, []string{"evt_0", "evt_2", "evt_1", "evt_3"}, rowIDs(snap))
}

func TestGetEventsForDay_CarryInsOrderedByOwnStart(t *testing.T) {
	fixtures := []fixture{
		{id: "evt_late_carry", title: "A late pour", start: "2025-10-05 23:00:00", end: "2025-10-06 01:00:00"},
		{id: "evt_early_carry", title: "Z early pour", start: "2025-10-05 21:00:00", end: "2025-10-06 03:00:00"},
		{id: "evt_midnight", title: "A midnight check", start: "2025-10-06 00:00:00", end: "2025-10-06 00:30:00"},
	}
	r, _ := newTestResolver(t, StorageNaive, fixtures, Settings{Mode: ModeIntersect})

	snap, err := r.GetEventsForDay(context.Background(), "2025-10-06")
	require.NoError(t, err)
	assert.Equal(t, []string{"evt_early_carry", "evt_late_carry", "evt_midnight"}, rowIDs(snap))
}

func TestGetEventsForDay_Idempotent(t *testing.T) {
	r, _ := newTestResolver(t, StorageNaive, jobSiteWeek, Settings{Mode: ModeIntersect})

	first, err := r.GetEventsForDay(context.Background(), "2025-10-06")
	require.NoError(t, err)
	second, err := r.GetEventsForDay(context.Background(), "2025-10-06")
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second resolution differs (-first +second):\n%s", diff)
	}
}

func TestGetEventsForDay_DebugDoesNotChangeRows(t *testing.T) {
	plain, _ := newTestResolver(t, StorageTZAware, jobSiteWeek, Settings{Mode: ModeIntersect})
	debug, _ := newTestResolver(t, StorageTZAware, jobSiteWeek, Settings{Mode: ModeIntersect, Debug: true})

	p, err := plain.GetEventsForDay(context.Background(), "2025-10-06")
	require.NoError(t, err)
	d, err := debug.GetEventsForDay(context.Background(), "2025-10-06")
	require.NoError(t, err)

	assert.Equal(t, p.Rows, d.Rows)
	require.NotNil(t, d.Diagnostics)
	assert.Equal(t, StorageTZAware, d.Diagnostics.Storage)
	assert.Equal(t, ModeIntersect, d.Diagnostics.Mode)
	assert.Equal(t, "America/New_York", d.Diagnostics.Timezone)
	assert.Equal(t, len(jobSiteWeek), d.Diagnostics.Candidates)
	assert.True(t, d.Diagnostics.DayStartUTC.Equal(time.Date(2025, 10, 6, 4, 0, 0, 0, time.UTC)))
	assert.True(t, d.Diagnostics.DayEndUTC.Equal(time.Date(2025, 10, 7, 4, 0, 0, 0, time.UTC)))
}

func TestSnapshot_Document(t *testing.T) {
	r, _ := newTestResolver(t, StorageTZAware, nil, Settings{Mode: ModeClamp})
	snap, err := r.GetEventsForDay(context.Background(), "2025-10-06")
	require.NoError(t, err)

	doc := snap.Document()
	assert.Equal(t, "2025-10-06", doc.Date)
	assert.Equal(t, ModeClamp, doc.Mode)
	assert.Equal(t, "America/New_York", doc.Timezone)
	assert.NotNil(t, doc.Rows, "empty days encode as []")
	assert.Nil(t, doc.Debug)

	assert.NotNil(t, (&Snapshot{}).Document().Rows)
}

func TestGetEventsForDay_InvalidDate(t *testing.T) {
	for _, date := range []string{"", "2025-13-01", "2025-10-06T00:00:00Z", "tomorrow"} {
		r, fs := newTestResolver(t, StorageNaive, jobSiteWeek, Settings{Mode: ModeIntersect})

		snap, err := r.GetEventsForDay(context.Background(), date)
		assert.Nil(t, snap)
		assert.ErrorIs(t, err, ErrInvalidReportDate, "date %q", date)
		assert.Empty(t, fs.queries, "no query may run for %q", date)
		assert.Zero(t, fs.schemaCalls)
	}
}

func TestGetEventsForDay_StoreErrorPropagates(t *testing.T) {
	r, fs := newTestResolver(t, StorageNaive, jobSiteWeek, Settings{Mode: ModeIntersect})
	boom := errors.New("database is locked")
	fs.queryErr = boom

	snap, err := r.GetEventsForDay(context.Background(), "2025-10-06")
	assert.Nil(t, snap)
	assert.ErrorIs(t, err, boom)
}

func TestGetEventsForDay_UndetectableStorage(t *testing.T) {
	tests := []struct {
		name  string
		store *fakeStore
	}{
		{"unknown type", &fakeStore{startType: "text"}},
		{"mismatched columns", &fakeStore{startType: "timestamp with time zone", endType: "timestamp without time zone"}},
		{"metadata failure", &fakeStore{schemaErr: errors.New("no such table: calendar_events")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(tt.store, newYork(t), Settings{Mode: ModeIntersect})

			snap, err := r.GetEventsForDay(context.Background(), "2025-10-06")
			assert.Nil(t, snap)
			assert.ErrorIs(t, err, ErrUndetectableStorage)
			assert.Empty(t, tt.store.queries)
		})
	}
}

func TestGetEventsForDay_CorruptTimestamp(t *testing.T) {
	fs := &fakeStore{
		startType: columnTypeFor(StorageTZAware),
		events:    []StoredEvent{{ID: "evt_bad", Title: "Bad", StartsAt: "not a time", EndsAt: "2025-10-06T16:00:00Z"}},
	}
	r := NewResolver(fs, newYork(t), Settings{Mode: ModeIntersect})

	_, err := r.GetEventsForDay(context.Background(), "2025-10-06")
	assert.ErrorIs(t, err, ErrCorruptTimestamp)
}

func TestResolver_ConfigureSwitchesMode(t *testing.T) {
	r, _ := newTestResolver(t, StorageTZAware, jobSiteWeek, Settings{Mode: ModeIntersect})

	r.Configure(Settings{Mode: ModeClamp})
	snap, err := r.GetEventsForDay(context.Background(), "2025-10-06")
	require.NoError(t, err)
	assert.NotContains(t, rowIDs(snap), "evt_carry_in")

	r.Configure(Settings{})
	assert.Equal(t, DefaultMode, r.Settings().Mode)
}

func TestResolver_ExplicitModeOverride(t *testing.T) {
	r, _ := newTestResolver(t, StorageTZAware, jobSiteWeek, Settings{Mode: ModeIntersect})

	snap, err := r.GetEventsForDayWithMode(context.Background(), "2025-10-06", ModeClamp)
	require.NoError(t, err)
	assert.Equal(t, ModeClamp, snap.Mode)
	assert.Equal(t, ModeIntersect, r.Settings().Mode)

	_, err = r.GetEventsForDayWithMode(context.Background(), "2025-10-06", Mode("SOMETIMES"))
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestResolver_CachesStorageDetectionUntilReset(t *testing.T) {
	r, fs := newTestResolver(t, StorageNaive, jobSiteWeek, Settings{Mode: ModeIntersect})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := r.GetEventsForDay(ctx, "2025-10-06")
		require.NoError(t, err)
	}
	// one lookup per timestamp column
	assert.Equal(t, 2, fs.schemaCalls)
	assert.Equal(t, 1, r.windows.Len())

	r.ResetCache()
	assert.Equal(t, 0, r.windows.Len())

	_, err := r.GetEventsForDay(ctx, "2025-10-07")
	require.NoError(t, err)
	assert.Equal(t, 4, fs.schemaCalls)
}

func TestResolver_WindowMemoStaysBounded(t *testing.T) {
	r, _ := newTestResolver(t, StorageTZAware, nil, Settings{Mode: ModeIntersect})
	ctx := context.Background()
	first := tzclock.MustParseDate("2020-01-01")

	for i := 0; i < 2800; i++ {
		date := tzclock.AddCalendarDays(first, i).String()
		_, err := r.GetEventsForDay(ctx, date)
		require.NoError(t, err)
		_, err = r.GetEventsForDayWithMode(ctx, date, ModeClamp)
		require.NoError(t, err)
	}
	assert.Equal(t, windowCacheSize, r.windows.Len())
}
