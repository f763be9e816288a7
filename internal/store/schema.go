// ABOUTME: Schema metadata and report window queries over calendar_events.
// ABOUTME: Implements the report package's EventStore against SQLite.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/2389/fieldops/internal/report"
)

var _ report.EventStore = (*Store)(nil)

// ColumnType returns the declared type of table.column.
func (s *Store) ColumnType(ctx context.Context, table, column string) (string, error) {
	var declared string
	err := s.db.QueryRowContext(ctx,
		"SELECT type FROM pragma_table_info(?) WHERE name = ?", table, column,
	).Scan(&declared)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("column %s.%s does not exist", table, column)
	}
	if err != nil {
		return "", err
	}
	return declared, nil
}

// timeExpr returns a comparable SQL expression for a timestamp column and
// the matching placeholder for a bound value encoded for that storage mode.
func timeExpr(storage report.StorageMode, column string) (string, string) {
	if storage == report.StorageTZAware {
		return "julianday(" + column + ")", "julianday(?)"
	}
	return "replace(" + column + ", 'T', ' ')", "?"
}

// QueryReportWindow selects the events a report window may include. Aware
// columns are compared as instants through julianday; naive columns are
// compared as wall-clock label text.
func (s *Store) QueryReportWindow(ctx context.Context, q report.WindowQuery) ([]report.StoredEvent, error) {
	start, param := timeExpr(q.Storage, "starts_at")
	end, _ := timeExpr(q.Storage, "ends_at")

	var where string
	var args []any
	switch q.Mode {
	case report.ModeClamp:
		where = fmt.Sprintf("%s >= %s AND %s < %s", start, param, start, param)
		args = []any{q.Lower, q.Upper}
	case report.ModeIntersect:
		where = fmt.Sprintf("%s < %s AND %s > %s", start, param, end, param)
		args = []any{q.Upper, q.Lower}
	default:
		return nil, fmt.Errorf("%w: %q", report.ErrUnknownMode, q.Mode)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, calendar_id, title, starts_at, ends_at, all_day
		 FROM calendar_events WHERE `+where+` ORDER BY starts_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []report.StoredEvent
	for rows.Next() {
		var ev report.StoredEvent
		if err := rows.Scan(&ev.ID, &ev.CalendarID, &ev.Title, &ev.StartsAt, &ev.EndsAt, &ev.AllDay); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
