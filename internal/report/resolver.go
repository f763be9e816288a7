// ABOUTME: Resolves the calendar events that belong to a daily report.
// ABOUTME: Detects storage mode, plans the day window, queries once, filters and orders rows.

package report

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/2389/fieldops/internal/tzclock"
)

// Settings are the operator-selectable report options.
type Settings struct {
	Mode  Mode
	Debug bool
}

// StoredEvent is an event row as the store returns it, timestamps untouched.
type StoredEvent struct {
	ID         string
	CalendarID string
	Title      string
	StartsAt   string
	EndsAt     string
	AllDay     bool
}

// EventQuerier runs the single report query.
type EventQuerier interface {
	QueryReportWindow(ctx context.Context, q WindowQuery) ([]StoredEvent, error)
}

// EventStore is everything the resolver needs from persistence.
type EventStore interface {
	EventQuerier
	SchemaInspector
}

// Row is one report line. StartsAt and EndsAt are UTC instants.
type Row struct {
	EventID  string    `json:"eventId"`
	Title    string    `json:"title"`
	StartsAt time.Time `json:"startsAt"`
	EndsAt   time.Time `json:"endsAt"`
	AllDay   bool      `json:"allDay"`
}

// Diagnostics are attached to a snapshot when debug reporting is on.
type Diagnostics struct {
	Mode        Mode        `json:"mode"`
	Storage     StorageMode `json:"storage"`
	Timezone    string      `json:"timezone"`
	DayStartUTC time.Time   `json:"dayStartUtc"`
	DayEndUTC   time.Time   `json:"dayEndUtc"`
	Candidates  int         `json:"candidates"`
}

// Snapshot is the resolver output for one (date, mode) pair.
type Snapshot struct {
	Date        tzclock.Date
	Mode        Mode
	Timezone    string
	Rows        []Row
	Diagnostics *Diagnostics
}

// Document is the JSON form of a snapshot served over HTTP, the CLI and the
// live feed.
type Document struct {
	Date     string       `json:"date"`
	Mode     Mode         `json:"mode"`
	Timezone string       `json:"timezone"`
	Rows     []Row        `json:"rows"`
	Debug    *Diagnostics `json:"debug,omitempty"`
}

func (s *Snapshot) Document() Document {
	rows := s.Rows
	if rows == nil {
		rows = []Row{}
	}
	return Document{Date: s.Date.String(), Mode: s.Mode, Timezone: s.Timezone, Rows: rows, Debug: s.Diagnostics}
}

type Resolver struct {
	events   EventQuerier
	detector *StorageModeDetector
	planner  *Planner
	windows  *WindowCache
	settings atomic.Pointer[Settings]
}

func NewResolver(store EventStore, loc *time.Location, settings Settings) *Resolver {
	r := &Resolver{
		events:   store,
		detector: NewStorageModeDetector(store),
		planner:  NewPlanner(loc),
		windows:  NewWindowCache(windowCacheSize),
	}
	r.Configure(settings)
	return r
}

// Configure swaps the report settings. Resolutions already running keep the
// settings they started with.
func (r *Resolver) Configure(s Settings) {
	if s.Mode == "" {
		s.Mode = DefaultMode
	}
	r.settings.Store(&s)
}

func (r *Resolver) Settings() Settings {
	return *r.settings.Load()
}

func (r *Resolver) Location() *time.Location {
	return r.planner.Location()
}

// ResetCache forgets the detected storage mode and every planned window.
func (r *Resolver) ResetCache() {
	r.detector.Reset()
	r.windows.Reset()
}

// GetEventsForDay resolves the report for a YYYY-MM-DD date using the
// configured mode.
func (r *Resolver) GetEventsForDay(ctx context.Context, date string) (*Snapshot, error) {
	settings := r.Settings()
	return r.resolve(ctx, date, settings)
}

// GetEventsForDayWithMode resolves the report with an explicit mode,
// leaving the configured debug flag in effect.
func (r *Resolver) GetEventsForDayWithMode(ctx context.Context, date string, mode Mode) (*Snapshot, error) {
	settings := r.Settings()
	settings.Mode = mode
	return r.resolve(ctx, date, settings)
}

func (r *Resolver) resolve(ctx context.Context, raw string, settings Settings) (*Snapshot, error) {
	date, err := tzclock.ParseDate(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidReportDate, err)
	}
	if settings.Mode, err = ParseMode(string(settings.Mode)); err != nil {
		return nil, err
	}

	storage, err := r.detector.Detect(ctx)
	if err != nil {
		return nil, err
	}

	w := r.windows.GetOrPlan(date, settings.Mode, storage, func() Window {
		return r.planner.Plan(date, settings.Mode, storage)
	})

	stored, err := r.events.QueryReportWindow(ctx, w.Query())
	if err != nil {
		return nil, fmt.Errorf("querying events for %s: %w", date, err)
	}

	entries := make([]rowEntry, 0, len(stored))
	for _, ev := range stored {
		start, err := DecodeStored(storage, ev.StartsAt)
		if err != nil {
			return nil, fmt.Errorf("event %s starts_at: %w", ev.ID, err)
		}
		end, err := DecodeStored(storage, ev.EndsAt)
		if err != nil {
			return nil, fmt.Errorf("event %s ends_at: %w", ev.ID, err)
		}
		if !w.Includes(start, end) {
			continue
		}
		entries = append(entries, newRowEntry(w, ev, start, end))
	}
	sortEntries(entries)

	snap := &Snapshot{Date: date, Mode: settings.Mode, Timezone: w.Location.String(), Rows: make([]Row, len(entries))}
	for i, e := range entries {
		snap.Rows[i] = e.row
	}

	if settings.Debug {
		snap.Diagnostics = &Diagnostics{
			Mode:        settings.Mode,
			Storage:     storage,
			Timezone:    w.Location.String(),
			DayStartUTC: w.DayStartUTC,
			DayEndUTC:   w.DayEndUTC,
			Candidates:  len(stored),
		}
		log.Printf("report %s: mode=%s storage=%s window=[%s, %s) candidates=%d rows=%d",
			date, settings.Mode, storage,
			w.DayStartUTC.Format(time.RFC3339), w.DayEndUTC.Format(time.RFC3339),
			len(stored), len(snap.Rows))
	}

	return snap, nil
}
