// ABOUTME: Core SQLite store for the fieldops server.
// ABOUTME: Handles database initialization, migrations, and the timestamp storage mode of event columns.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/2389/fieldops/internal/report"
)

// Migration version constants
const (
	MigrationV1 = 1 // Calendars, events and request_logs
	MigrationV2 = 2 // Indexes for report windows and request log filtering
)

// CurrentSchemaVersion is the target version for the database schema
const CurrentSchemaVersion = MigrationV2

// Declared column types for event timestamps. The resolver reads these back
// through ColumnType to decide how stored values are compared.
const (
	naiveColumnType = "timestamp without time zone"
	awareColumnType = "timestamp with time zone"
)

type Store struct {
	db      *sql.DB
	loc     *time.Location
	storage report.StorageMode
}

type options struct {
	naive bool
	loc   *time.Location
}

// Option configures a Store.
type Option func(*options)

// WithNaiveTimestamps creates event timestamp columns without time zone on a
// fresh database. Existing databases keep whatever they were created with.
func WithNaiveTimestamps() Option {
	return func(o *options) { o.naive = true }
}

// WithLocation sets the zone used to write and read naive wall-clock labels.
func WithLocation(loc *time.Location) Option {
	return func(o *options) { o.loc = loc }
}

func New(dbPath string, opts ...Option) (*Store, error) {
	o := options{loc: time.UTC}
	for _, opt := range opts {
		opt(&o)
	}
	if o.loc == nil {
		o.loc = time.UTC
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Verify connection works
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, err
		}
	}

	s := &Store{db: db, loc: o.loc}
	if err := s.migrate(o.naive); err != nil {
		db.Close()
		return nil, err
	}

	storage, err := report.NewStorageModeDetector(s).Detect(context.Background())
	if err != nil {
		db.Close()
		return nil, err
	}
	s.storage = storage

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// StorageMode reports how event timestamps are persisted.
func (s *Store) StorageMode() report.StorageMode {
	return s.storage
}

// Location is the zone naive labels are interpreted in.
func (s *Store) Location() *time.Location {
	return s.loc
}

// migrate runs all pending migrations
func (s *Store) migrate(naive bool) error {
	if err := s.createMigrationsTable(); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	currentVersion, err := s.getCurrentMigrationVersion()
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	log.Printf("Database schema version: %d, target version: %d", currentVersion, CurrentSchemaVersion)

	if currentVersion < MigrationV1 {
		if err := s.migrateV1(naive); err != nil {
			return fmt.Errorf("migration v1 failed: %w", err)
		}
	}

	if currentVersion < MigrationV2 {
		if err := s.migrateV2(); err != nil {
			return fmt.Errorf("migration v2 failed: %w", err)
		}
	}

	return nil
}

func (s *Store) createMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			description TEXT
		)
	`)
	return err
}

func (s *Store) getCurrentMigrationVersion() (int, error) {
	var version int
	err := s.db.QueryRow(`
		SELECT COALESCE(MAX(version), 0) FROM schema_migrations
	`).Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

func (s *Store) recordMigration(version int, description string) error {
	_, err := s.db.Exec(`
		INSERT INTO schema_migrations (version, description)
		VALUES (?, ?)
	`, version, description)
	return err
}

// migrateV1 creates calendars, events and request logs. The declared type of
// the event timestamp columns fixes the storage mode for the database's life.
func (s *Store) migrateV1(naive bool) error {
	tsType := awareColumnType
	if naive {
		tsType = naiveColumnType
	}

	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS calendars (
		id TEXT PRIMARY KEY,
		summary TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS calendar_events (
		id TEXT PRIMARY KEY,
		calendar_id TEXT NOT NULL REFERENCES calendars(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		description TEXT DEFAULT '',
		location TEXT DEFAULT '',
		starts_at %[1]s NOT NULL,
		ends_at %[1]s NOT NULL,
		all_day INTEGER NOT NULL DEFAULT 0,
		source_uid TEXT DEFAULT '',
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS request_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		method TEXT NOT NULL,
		path TEXT NOT NULL,
		status_code INTEGER,
		duration_ms INTEGER,
		user_id TEXT,
		ip_address TEXT,
		user_agent TEXT,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_calendar_events_calendar ON calendar_events(calendar_id);
	CREATE INDEX IF NOT EXISTS idx_request_logs_timestamp ON request_logs(timestamp DESC);
	`, tsType)
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	if err := s.recordMigration(MigrationV1, "Create calendars, calendar_events and request_logs"); err != nil {
		return err
	}

	log.Printf("Applied migration v%d: Create calendars, calendar_events (%s) and request_logs", MigrationV1, tsType)
	return nil
}

// migrateV2 adds indexes used by report windows and request log filters
func (s *Store) migrateV2() error {
	indexes := []string{
		// Range scans on the report window bounds
		"CREATE INDEX IF NOT EXISTS idx_calendar_events_starts_at ON calendar_events(starts_at)",
		"CREATE INDEX IF NOT EXISTS idx_calendar_events_ends_at ON calendar_events(ends_at)",

		// Re-imports look events up by their ICS UID
		"CREATE INDEX IF NOT EXISTS idx_calendar_events_source_uid ON calendar_events(calendar_id, source_uid) WHERE source_uid != ''",

		"CREATE INDEX IF NOT EXISTS idx_request_logs_path_status ON request_logs(path, status_code)",
		"CREATE INDEX IF NOT EXISTS idx_request_logs_user_id ON request_logs(user_id) WHERE user_id != ''",
	}

	for _, indexSQL := range indexes {
		if _, err := s.db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	if err := s.recordMigration(MigrationV2, "Add report window and request log indexes"); err != nil {
		return err
	}

	log.Printf("Applied migration v%d: Add report window and request log indexes", MigrationV2)
	return nil
}
