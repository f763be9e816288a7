// ABOUTME: Cron-driven daily report job.
// ABOUTME: Resolves the report for the current local date in the site zone on a schedule.

package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/2389/fieldops/internal/report"
	"github.com/2389/fieldops/internal/tzclock"
)

// Resolver is the slice of report.Resolver the job needs.
type Resolver interface {
	GetEventsForDay(ctx context.Context, date string) (*report.Snapshot, error)
	Location() *time.Location
}

type Scheduler struct {
	cron     *cron.Cron
	resolver Resolver
	now      func() time.Time

	mu        sync.Mutex
	last      *report.Snapshot
	listeners []func(*report.Snapshot)
}

// New parses spec as a standard five-field cron expression (or a descriptor
// such as @daily) evaluated in the resolver's zone.
func New(spec string, resolver Resolver) (*Scheduler, error) {
	logger := cron.PrintfLogger(log.Default())
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(resolver.Location()),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		resolver: resolver,
		now:      time.Now,
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("report schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	log.Printf("Daily report scheduled, next run %s", s.Next().Format(time.RFC3339))
}

// Stop halts the schedule and waits for a running job to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Next is the next scheduled run, zero before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// RunOnce resolves today's report, today being the local date in the
// resolver's zone.
func (s *Scheduler) RunOnce(ctx context.Context) (*report.Snapshot, error) {
	date := tzclock.LocalDateOf(s.now(), s.resolver.Location())
	snap, err := s.resolver.GetEventsForDay(ctx, date.String())
	if err != nil {
		return nil, fmt.Errorf("daily report %s: %w", date, err)
	}

	s.mu.Lock()
	s.last = snap
	listeners := s.listeners
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}

	log.Printf("Daily report %s (%s): %d events", snap.Date, snap.Mode, len(snap.Rows))
	return snap, nil
}

// OnReport registers fn to receive every successfully resolved snapshot.
func (s *Scheduler) OnReport(fn func(*report.Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Last returns the most recent snapshot, or nil if no run has succeeded.
func (s *Scheduler) Last() *report.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, err := s.RunOnce(ctx); err != nil {
		log.Printf("Warning: %v", err)
	}
}
