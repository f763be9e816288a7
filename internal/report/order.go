// ABOUTME: Display ordering for report rows.
// ABOUTME: All-day rows first, then carry-ins from earlier days, then the day's own events.

package report

import (
	"sort"
	"time"

	"github.com/2389/fieldops/internal/tzclock"
)

type displayRank int

const (
	rankAllDay displayRank = iota
	rankCarryIn
	rankSameDay
)

type rowEntry struct {
	row  Row
	rank displayRank
	// start in the window's comparison representation
	start time.Time
}

func newRowEntry(w Window, ev StoredEvent, start, end time.Time) rowEntry {
	allDay := ev.AllDay || w.IsAllDay(start, end)

	rank := rankSameDay
	switch {
	case allDay:
		rank = rankAllDay
	case w.StartsBeforeDay(start):
		rank = rankCarryIn
	}

	row := Row{EventID: ev.ID, Title: ev.Title, AllDay: allDay}
	if w.Storage == StorageNaive {
		row.StartsAt = tzclock.FromWallClock(start, w.Location).UTC()
		row.EndsAt = tzclock.FromWallClock(end, w.Location).UTC()
	} else {
		row.StartsAt, row.EndsAt = start, end
	}

	return rowEntry{row: row, rank: rank, start: start}
}

// sortEntries orders by rank, then start, then title (byte-wise), then id.
func sortEntries(entries []rowEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.rank != b.rank {
			return a.rank < b.rank
		}
		if !a.start.Equal(b.start) {
			return a.start.Before(b.start)
		}
		if a.row.Title != b.row.Title {
			return a.row.Title < b.row.Title
		}
		return a.row.EventID < b.row.EventID
	})
}
