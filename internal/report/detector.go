// ABOUTME: Detects whether stored event timestamps are naive or timezone-aware.
// ABOUTME: Reads the declared column types once and caches the answer.

package report

import (
	"context"
	"fmt"
)

// Event table and timestamp columns inspected by the detector.
const (
	EventsTable    = "calendar_events"
	StartsAtColumn = "starts_at"
	EndsAtColumn   = "ends_at"
)

// SchemaInspector reports the declared type of a table column.
type SchemaInspector interface {
	ColumnType(ctx context.Context, table, column string) (string, error)
}

type StorageModeDetector struct {
	schema SchemaInspector
	cell   Cell[StorageMode]
}

func NewStorageModeDetector(schema SchemaInspector) *StorageModeDetector {
	return &StorageModeDetector{schema: schema}
}

// Detect returns the cached storage mode, inspecting the schema on first use.
func (d *StorageModeDetector) Detect(ctx context.Context) (StorageMode, error) {
	return d.cell.Get(func() (StorageMode, error) {
		return d.detect(ctx)
	})
}

// Reset forgets the cached mode.
func (d *StorageModeDetector) Reset() {
	d.cell.Reset()
}

func (d *StorageModeDetector) detect(ctx context.Context) (StorageMode, error) {
	start, err := d.columnMode(ctx, StartsAtColumn)
	if err != nil {
		return "", err
	}
	end, err := d.columnMode(ctx, EndsAtColumn)
	if err != nil {
		return "", err
	}
	if start != end {
		return "", fmt.Errorf("%w: %s is %s but %s is %s",
			ErrUndetectableStorage, StartsAtColumn, start, EndsAtColumn, end)
	}
	return start, nil
}

func (d *StorageModeDetector) columnMode(ctx context.Context, column string) (StorageMode, error) {
	declared, err := d.schema.ColumnType(ctx, EventsTable, column)
	if err != nil {
		return "", fmt.Errorf("%w: reading %s.%s: %w", ErrUndetectableStorage, EventsTable, column, err)
	}
	return StorageModeForColumnType(declared)
}
