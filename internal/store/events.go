// ABOUTME: Calendar and event store operations.
// ABOUTME: Encodes event timestamps for the database's storage mode and handles CRUD and listing.

package store

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/fieldops/internal/report"
	"github.com/2389/fieldops/internal/tzclock"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidEventRange = errors.New("event must end after it starts")
	ErrInvalidPageToken  = errors.New("invalid page token")
)

const (
	DefaultMaxResults = 250
	maxMaxResults     = 2500
)

type Calendar struct {
	ID      string
	Summary string
}

// Event is a calendar event with its timestamps decoded to UTC instants.
type Event struct {
	ID          string
	CalendarID  string
	Title       string
	Description string
	Location    string
	StartsAt    time.Time
	EndsAt      time.Time
	AllDay      bool
	// SourceUID identifies the imported occurrence an event came from.
	SourceUID string
	UpdatedAt time.Time
}

// ListQuery filters ListEvents. Zero times leave that side of the range open.
type ListQuery struct {
	CalendarID string
	TimeMin    time.Time
	TimeMax    time.Time
	Search     string
	MaxResults int
	PageToken  string
}

func (s *Store) CreateCalendar(ctx context.Context, c *Calendar) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO calendars (id, summary) VALUES (?, ?)",
		c.ID, c.Summary,
	)
	return err
}

// EnsureCalendar creates the calendar if it does not exist yet.
func (s *Store) EnsureCalendar(ctx context.Context, id, summary string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO calendars (id, summary) VALUES (?, ?)",
		id, summary,
	)
	return err
}

func (s *Store) CreateEvent(ctx context.Context, e *Event) (*Event, error) {
	if err := s.normalize(e); err != nil {
		return nil, err
	}
	if e.ID == "" {
		e.ID = newEventID()
	}
	e.UpdatedAt = time.Now().UTC().Truncate(time.Second)

	start, end := s.encodeRange(e)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO calendar_events (id, calendar_id, title, description, location, starts_at, ends_at, all_day, source_uid, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CalendarID, e.Title, e.Description, e.Location, start, end, e.AllDay, e.SourceUID,
		e.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// CreateAllDayEvent stores an event covering the local days first through
// first+days-1.
func (s *Store) CreateAllDayEvent(ctx context.Context, e *Event, first tzclock.Date, days int) (*Event, error) {
	if days < 1 {
		days = 1
	}
	e.AllDay = true
	e.StartsAt = tzclock.LocalMidnightUTC(first, s.loc)
	e.EndsAt = tzclock.LocalMidnightUTC(tzclock.AddCalendarDays(first, days), s.loc)
	return s.CreateEvent(ctx, e)
}

func (s *Store) GetEvent(ctx context.Context, calendarID, eventID string) (*Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, calendar_id, title, COALESCE(description, ''), COALESCE(location, ''),
		 starts_at, ends_at, all_day, COALESCE(source_uid, ''), updated_at
		 FROM calendar_events WHERE calendar_id = ? AND id = ?`,
		calendarID, eventID,
	)
	e, err := s.scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", eventID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListEvents returns events overlapping [TimeMin, TimeMax) ordered by start,
// plus a token for the next page when more remain.
func (s *Store) ListEvents(ctx context.Context, q ListQuery) ([]Event, string, error) {
	offset := 0
	if q.PageToken != "" {
		decoded, err := base64.StdEncoding.DecodeString(q.PageToken)
		if err != nil {
			return nil, "", ErrInvalidPageToken
		}
		offset, err = strconv.Atoi(string(decoded))
		if err != nil || offset < 0 {
			return nil, "", ErrInvalidPageToken
		}
	}

	maxResults := q.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	if maxResults > maxMaxResults {
		maxResults = maxMaxResults
	}

	start, param := timeExpr(s.storage, "starts_at")
	end, _ := timeExpr(s.storage, "ends_at")

	sqlQuery := `SELECT id, calendar_id, title, COALESCE(description, ''), COALESCE(location, ''),
		starts_at, ends_at, all_day, COALESCE(source_uid, ''), updated_at
		FROM calendar_events WHERE calendar_id = ?`
	args := []any{q.CalendarID}

	if !q.TimeMin.IsZero() {
		sqlQuery += " AND " + end + " > " + param
		args = append(args, s.encode(q.TimeMin))
	}
	if !q.TimeMax.IsZero() {
		sqlQuery += " AND " + start + " < " + param
		args = append(args, s.encode(q.TimeMax))
	}
	if q.Search != "" {
		sqlQuery += ` AND title LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeSQLLike(q.Search)+"%")
	}

	sqlQuery += " ORDER BY " + start + ", id LIMIT ? OFFSET ?"
	args = append(args, maxResults+1, offset)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		e, err := s.scanEvent(rows)
		if err != nil {
			return nil, "", err
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	var nextToken string
	if len(events) > maxResults {
		events = events[:maxResults]
		nextToken = base64.StdEncoding.EncodeToString([]byte(strconv.Itoa(offset + maxResults)))
	}

	return events, nextToken, nil
}

// UpdateEvent replaces the mutable fields of an existing event
func (s *Store) UpdateEvent(ctx context.Context, e *Event) (*Event, error) {
	if err := s.normalize(e); err != nil {
		return nil, err
	}
	e.UpdatedAt = time.Now().UTC().Truncate(time.Second)

	start, end := s.encodeRange(e)
	res, err := s.db.ExecContext(ctx,
		`UPDATE calendar_events SET title = ?, description = ?, location = ?, starts_at = ?, ends_at = ?,
		 all_day = ?, source_uid = ?, updated_at = ?
		 WHERE calendar_id = ? AND id = ?`,
		e.Title, e.Description, e.Location, start, end, e.AllDay, e.SourceUID, e.UpdatedAt.Format(time.RFC3339),
		e.CalendarID, e.ID,
	)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("event %s: %w", e.ID, ErrNotFound)
	}
	return e, nil
}

// UpsertEvent writes an event keyed by its calendar and SourceUID, reporting
// whether a new row was created.
func (s *Store) UpsertEvent(ctx context.Context, e *Event) (*Event, bool, error) {
	if e.SourceUID == "" {
		created, err := s.CreateEvent(ctx, e)
		return created, err == nil, err
	}

	var id string
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM calendar_events WHERE calendar_id = ? AND source_uid = ?",
		e.CalendarID, e.SourceUID,
	).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		created, err := s.CreateEvent(ctx, e)
		return created, err == nil, err
	case err != nil:
		return nil, false, err
	}

	e.ID = id
	updated, err := s.UpdateEvent(ctx, e)
	return updated, false, err
}

func (s *Store) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM calendar_events WHERE calendar_id = ? AND id = ?", calendarID, eventID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("event %s: %w", eventID, ErrNotFound)
	}
	return nil
}

// normalize validates the range and snaps all-day events to local midnights.
func (s *Store) normalize(e *Event) error {
	if e.AllDay {
		first := tzclock.LocalDateOf(e.StartsAt, s.loc)
		last := tzclock.LocalDateOf(e.EndsAt, s.loc)
		if e.EndsAt.After(tzclock.LocalMidnightUTC(last, s.loc)) {
			last = tzclock.AddCalendarDays(last, 1)
		}
		if !first.Before(last) {
			last = tzclock.AddCalendarDays(first, 1)
		}
		e.StartsAt = tzclock.LocalMidnightUTC(first, s.loc)
		e.EndsAt = tzclock.LocalMidnightUTC(last, s.loc)
	}
	if !e.StartsAt.Before(e.EndsAt) {
		return ErrInvalidEventRange
	}
	e.StartsAt, e.EndsAt = e.StartsAt.UTC(), e.EndsAt.UTC()
	return nil
}

func (s *Store) encode(t time.Time) string {
	return report.EncodeTimestamp(s.storage, t, s.loc)
}

// encodeRange renders an event's bounds. Naive all-day events are written as
// plain calendar midnights so they read back as whole local days.
func (s *Store) encodeRange(e *Event) (string, string) {
	if e.AllDay && s.storage == report.StorageNaive {
		first := tzclock.LocalDateOf(e.StartsAt, s.loc)
		last := tzclock.LocalDateOf(e.EndsAt, s.loc)
		return tzclock.FormatLabel(tzclock.DateLabel(first)), tzclock.FormatLabel(tzclock.DateLabel(last))
	}
	return s.encode(e.StartsAt), s.encode(e.EndsAt)
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanEvent(sc scanner) (*Event, error) {
	var e Event
	var start, end, updated string
	if err := sc.Scan(&e.ID, &e.CalendarID, &e.Title, &e.Description, &e.Location,
		&start, &end, &e.AllDay, &e.SourceUID, &updated); err != nil {
		return nil, err
	}

	var err error
	if e.StartsAt, err = report.DecodeInstant(s.storage, start, s.loc); err != nil {
		return nil, fmt.Errorf("event %s starts_at: %w", e.ID, err)
	}
	if e.EndsAt, err = report.DecodeInstant(s.storage, end, s.loc); err != nil {
		return nil, fmt.Errorf("event %s ends_at: %w", e.ID, err)
	}
	e.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &e, nil
}

func newEventID() string {
	return "evt_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
