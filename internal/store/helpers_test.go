// ABOUTME: Tests for LIKE escaping as title search and log filters use it.
// ABOUTME: Wildcards in a search term match themselves, not arbitrary text.

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListEvents_SearchTreatsWildcardsLiterally(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)

	start := time.Date(2025, 10, 6, 7, 0, 0, 0, s.Location())
	titles := map[string]string{
		"evt_crew_space":   "Crew dispatch",
		"evt_crew_under":   "crew_dispatch",
		"evt_pct":          "50% pour",
		"evt_no_pct":       "500 pour",
		"evt_backslash":    `Pad\3 inspection`,
		"evt_no_backslash": "Pad 3 inspection",
	}
	i := 0
	for id, title := range titles {
		at := start.Add(time.Duration(i) * time.Hour)
		_, err := s.CreateEvent(ctx, &Event{ID: id, CalendarID: "site", Title: title, StartsAt: at, EndsAt: at.Add(time.Hour)})
		require.NoError(t, err)
		i++
	}

	tests := []struct {
		q    string
		want []string
	}{
		{"crew_", []string{"evt_crew_under"}},
		{"CREW", []string{"evt_crew_space", "evt_crew_under"}},
		{"50%", []string{"evt_pct"}},
		{"%", []string{"evt_pct"}},
		{`Pad\3`, []string{"evt_backslash"}},
		{"Pad_3", nil},
		{"'; DROP TABLE calendar_events; --", nil},
	}

	for _, tt := range tests {
		t.Run(tt.q, func(t *testing.T) {
			events, _, err := s.ListEvents(ctx, ListQuery{CalendarID: "site", Search: tt.q})
			require.NoError(t, err)

			var got []string
			for _, e := range events {
				got = append(got, e.ID)
			}
			assert.ElementsMatch(t, tt.want, got)
		})
	}

	all, _, err := s.ListEvents(ctx, ListQuery{CalendarID: "site"})
	require.NoError(t, err)
	assert.Len(t, all, len(titles))
}

func TestEscapeSQLLike_BackslashFirst(t *testing.T) {
	// an escaped wildcard must not have its escape doubled
	assert.Equal(t, `pour\\\%`, escapeSQLLike(`pour\%`))
	assert.Equal(t, `crew\_dispatch`, escapeSQLLike("crew_dispatch"))
	assert.Equal(t, "", escapeSQLLike(""))
}
