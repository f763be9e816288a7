// ABOUTME: Entry point for the fieldops daily report server.
// ABOUTME: Wires config, store, report resolver and HTTP handlers behind CLI commands.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/2389/fieldops/internal/auth"
	"github.com/2389/fieldops/internal/calendar"
	"github.com/2389/fieldops/internal/config"
	"github.com/2389/fieldops/internal/ics"
	"github.com/2389/fieldops/internal/logging"
	"github.com/2389/fieldops/internal/report"
	"github.com/2389/fieldops/internal/scheduler"
	"github.com/2389/fieldops/internal/seed"
	"github.com/2389/fieldops/internal/store"
	"github.com/2389/fieldops/internal/stream"
	"github.com/2389/fieldops/internal/tzclock"
)

// siteCalendar is the calendar seed and import write to by default.
const siteCalendar = "site"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "fieldops",
		Short: "Field operations calendar with timezone-correct daily reports",
		Long: `fieldops stores job-site calendar events and resolves which of them belong
to a daily report, computing each local day in the site timezone (APP_TZ).

Report modes:
  INTERSECT   events overlapping the day, including carry-over from the night before
  CLAMP       events that start within the day

Quick Start:
  fieldops seed                  # Generate a sample week of site events
  fieldops report 2025-10-06     # Print the report for a day
  fieldops serve                 # Start server on port 9000
  fieldops import site.ics       # Import an iCalendar feed`,
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "YAML config file (default $FIELDOPS_CONFIG)")
	pf.StringP("db", "d", "", "Database path (default $FIELDOPS_DB_PATH or ./fieldops.db)")
	pf.String("tz", "", "Site timezone (default $APP_TZ or America/New_York)")
	pf.String("mode", "", "Report mode: INTERSECT or CLAMP (default $REPORT_MODE)")
	pf.Bool("debug", false, "Attach diagnostics to reports")

	load := func(cmd *cobra.Command) (*config.Config, error) {
		return loadConfig(configPath, cmd.Flags())
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the fieldops HTTP server.

Endpoints:
  GET  /healthz
  GET  /reports/daily/{date}[?mode=CLAMP]
  GET  /reports/stream             (WebSocket report feed)
  GET  /calendar/v1/calendars/{calendarId}/events
  POST /calendar/v1/calendars/{calendarId}/events

Writes require a Bearer token of the form "operator:NAME".

When REPORT_CRON is set, the report for the current local date is resolved
on that schedule, logged and pushed to /reports/stream clients.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	serveCmd.Flags().StringP("port", "p", "", "Port to listen on (default $FIELDOPS_PORT or 9000)")
	serveCmd.Flags().String("cron", "", "Daily report schedule (default $REPORT_CRON)")

	reportCmd := &cobra.Command{
		Use:   "report [date]",
		Short: "Print the daily report for a local date (default today)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			var date string
			if len(args) > 0 {
				date = args[0]
			}
			return runReport(cmd.Context(), cfg, date, cmd.OutOrStdout())
		},
	}

	var days int
	var base string
	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the database with a sample site schedule",
		Long: `Seed the database with a sample construction schedule: crew dispatch,
inspections, overnight pours and all-day closures.

Set OPENAI_API_KEY to generate the schedule with OpenAI; the static schedule
is used otherwise, and whenever generation fails.

Seed is not idempotent. Use 'fieldops reset' to clear data before reseeding.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			return runSeed(cmd.Context(), cfg, base, days)
		},
	}
	seedCmd.Flags().IntVar(&days, "days", 7, "Number of local days to schedule")
	seedCmd.Flags().StringVar(&base, "base", "", "First day of the schedule, YYYY-MM-DD (default today)")

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset the database (wipe and reseed)",
		Long: `Delete the database file and create a fresh one with a new sample schedule.

The fresh database uses naive timestamp columns when NAIVE_TIMESTAMPS is set.

Warning: This permanently deletes all data in the database!`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			if err := removeDB(cfg.DBPath); err != nil {
				return err
			}
			return runSeed(cmd.Context(), cfg, base, days)
		},
	}
	resetCmd.Flags().IntVar(&days, "days", 7, "Number of local days to schedule")
	resetCmd.Flags().StringVar(&base, "base", "", "First day of the schedule, YYYY-MM-DD (default today)")

	var calendarID, from, to string
	importCmd := &cobra.Command{
		Use:   "import <file.ics>",
		Short: "Import an iCalendar file",
		Long: `Import the VEVENTs of an iCalendar file. Recurring events are expanded
between --from and --to; re-importing the same file updates events in place.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			return runImport(cmd.Context(), cfg, args[0], calendarID, from, to)
		},
	}
	importCmd.Flags().StringVar(&calendarID, "calendar", siteCalendar, "Calendar to import into")
	importCmd.Flags().StringVar(&from, "from", "", "First day to expand recurrences (default 30 days ago)")
	importCmd.Flags().StringVar(&to, "to", "", "Day after the last expanded day (default 90 days ahead)")

	rootCmd.AddCommand(serveCmd, reportCmd, seedCmd, resetCmd, importCmd)
	return rootCmd
}

// loadConfig layers command-line flags over the file and environment config.
func loadConfig(path string, flags *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	applyFlags(cfg, flags)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.DBPath, err = validateAndCleanDBPath(cfg.DBPath); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(cfg *config.Config, flags *pflag.FlagSet) {
	if flags == nil {
		return
	}
	strs := map[string]*string{
		"db":   &cfg.DBPath,
		"tz":   &cfg.Timezone,
		"mode": &cfg.ReportMode,
		"port": &cfg.Port,
		"cron": &cfg.ReportCron,
	}
	flags.Visit(func(f *pflag.Flag) {
		if dst, ok := strs[f.Name]; ok {
			*dst = f.Value.String()
		}
		if f.Name == "debug" {
			cfg.DebugReport = f.Value.String() == "true"
		}
	})
}

// validateAndCleanDBPath validates and cleans a database path.
// Handles Unix/Linux, macOS, and Windows paths (including UNC and drive letters).
func validateAndCleanDBPath(path string) (string, error) {
	cleanPath := strings.TrimSpace(path)
	cleanPath = filepath.Clean(cleanPath)

	// Reject empty and root-like paths
	if cleanPath == "" || cleanPath == "." || cleanPath == "/" {
		return "", fmt.Errorf("database path cannot be empty, '.', or '/'")
	}

	// Check for path traversal attempts
	if strings.Contains(cleanPath, "..") {
		return "", fmt.Errorf("database path cannot contain '..'")
	}

	// Windows: reject bare drive letters (e.g., "C:", "D:")
	if runtime.GOOS == "windows" && len(cleanPath) == 2 && cleanPath[1] == ':' {
		return "", fmt.Errorf("database path cannot be a bare drive letter")
	}

	badPatterns := []string{
		".git",
		".svn",
		"node_modules",
		".env",
		"credentials",
		"secret",
	}
	lowerPath := strings.ToLower(cleanPath)
	for _, pattern := range badPatterns {
		if strings.Contains(lowerPath, pattern) {
			return "", fmt.Errorf("database path cannot contain '%s' directory", pattern)
		}
	}

	return cleanPath, nil
}

func openStore(cfg *config.Config) (*store.Store, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	opts := []store.Option{store.WithLocation(loc)}
	if cfg.NaiveTimestamps {
		opts = append(opts, store.WithNaiveTimestamps())
	}
	s, err := store.New(cfg.DBPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return s, nil
}

func newResolver(cfg *config.Config, s *store.Store) (*report.Resolver, error) {
	settings, err := cfg.ReportSettings()
	if err != nil {
		return nil, err
	}
	return report.NewResolver(s, s.Location(), settings), nil
}

func newServer(s *store.Store, resolver *report.Resolver, hub *stream.Hub) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(auth.Middleware)
	r.Use(logging.Middleware(s))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"ok":       true,
			"timezone": resolver.Location().String(),
			"storage":  s.StorageMode(),
			"mode":     resolver.Settings().Mode,
		})
	})

	r.Get("/favicon.ico", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	calendar.NewHandlers(s, resolver).RegisterRoutes(r)
	r.Get("/reports/stream", hub.ServeHTTP)
	return r
}

func runServe(ctx context.Context, cfg *config.Config) error {
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	resolver, err := newResolver(cfg, s)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := stream.NewHub(resolver)
	defer hub.Close()

	if cfg.ReportCron != "" {
		job, err := scheduler.New(cfg.ReportCron, resolver)
		if err != nil {
			return err
		}
		job.OnReport(hub.Publish)
		job.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			job.Stop(stopCtx)
		}()
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newServer(s, resolver, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("fieldops server listening on %s", srv.Addr)
		log.Printf("Database: %s (%s timestamps)", cfg.DBPath, s.StorageMode())
		log.Printf("Reports in %s, mode %s", s.Location(), resolver.Settings().Mode)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Println("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func runReport(ctx context.Context, cfg *config.Config, date string, out io.Writer) error {
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	resolver, err := newResolver(cfg, s)
	if err != nil {
		return err
	}

	if date == "" {
		date = tzclock.LocalDateOf(time.Now(), s.Location()).String()
	}
	snap, err := resolver.GetEventsForDay(ctx, date)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(snap.Document())
}

func runSeed(ctx context.Context, cfg *config.Config, base string, days int) error {
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	first := tzclock.LocalDateOf(time.Now(), s.Location())
	if base != "" {
		if first, err = tzclock.ParseDate(base); err != nil {
			return err
		}
	}

	log.Println("Seeding database with a sample site schedule...")
	items, err := seed.NewGenerator(cfg.OpenAIKey, cfg.OpenAIModel).Generate(ctx, first, days)
	if err != nil {
		return err
	}
	n, err := seed.Load(ctx, s, siteCalendar, s.Location(), items)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			log.Println("\nNote: Database already contains seed data. Use 'fieldops reset' to clear and reseed.")
		}
		return err
	}

	log.Printf("\nSeeding complete! Created %d events from %s (%s timestamps)", n, first, s.StorageMode())
	return nil
}

func removeDB(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove existing database: %w", err)
		}
	}
	return nil
}

func runImport(ctx context.Context, cfg *config.Config, path, calendarID, from, to string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	loc := s.Location()
	today := tzclock.LocalDateOf(time.Now(), loc)
	fromDate, err := dateFlag(from, tzclock.AddCalendarDays(today, -30))
	if err != nil {
		return fmt.Errorf("--from: %w", err)
	}
	toDate, err := dateFlag(to, tzclock.AddCalendarDays(today, 90))
	if err != nil {
		return fmt.Errorf("--to: %w", err)
	}

	res, err := ics.NewImporter(s, loc).Import(ctx, f, calendarID,
		tzclock.LocalMidnightUTC(fromDate, loc), tzclock.LocalMidnightUTC(toDate, loc))
	if err != nil {
		return err
	}
	log.Printf("Imported %s into %s: %d created, %d updated, %d skipped",
		filepath.Base(path), calendarID, res.Created, res.Updated, res.Skipped)
	return nil
}

func dateFlag(raw string, fallback tzclock.Date) (tzclock.Date, error) {
	if raw == "" {
		return fallback, nil
	}
	return tzclock.ParseDate(raw)
}
