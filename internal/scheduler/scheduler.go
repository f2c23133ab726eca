// Package scheduler fires the daily digest at a wall-clock time in a named
// timezone.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/go-logr/logr"
	"github.com/robfig/cron/v3"

	"alertagent/internal/alert"
	"alertagent/internal/apperr"
)

const jobID = "daily-digest"

// Runner is the job the scheduler fires.
type Runner interface {
	RunDaily(ctx context.Context) (*alert.ProcessingResult, error)
}

// Scheduler runs Runner once a day. A run still in progress when the next
// one is due causes that one to be skipped.
type Scheduler struct {
	runner   Runner
	spec     string
	schedule cron.Schedule
	log      logr.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
}

// CronSpec converts "HH:MM" and an IANA zone into a cron spec evaluated in
// that zone, so the local time holds across DST changes.
func CronSpec(at, timezone string) (string, error) {
	hour, minute, err := parseClock(at)
	if err != nil {
		return "", err
	}
	if timezone == "" {
		timezone = "UTC"
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return "", apperr.Timezone("Invalid timezone", timezone).Wrap(err)
	}
	return fmt.Sprintf("CRON_TZ=%s %d %d * * *", timezone, minute, hour), nil
}

func parseClock(at string) (int, int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(at), ":")
	hour, herr := strconv.Atoi(h)
	minute, merr := strconv.Atoi(m)
	if !ok || herr != nil || merr != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 || len(m) != 2 {
		return 0, 0, apperr.Validation("Schedule time must be HH:MM", "scheduler.time", at, "HH:MM")
	}
	return hour, minute, nil
}

// New builds a Scheduler for runner at the given time and zone.
func New(runner Runner, at, timezone string, log logr.Logger) (*Scheduler, error) {
	spec, err := CronSpec(at, timezone)
	if err != nil {
		return nil, err
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, apperr.Scheduling("Invalid schedule", jobID).With("spec", spec).Wrap(err)
	}
	return &Scheduler{runner: runner, spec: spec, schedule: schedule, log: log.WithName("scheduler")}, nil
}

// Spec returns the cron spec in use.
func (s *Scheduler) Spec() string {
	return s.spec
}

// NextRun reports when the job fires next.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		if next := s.cron.Entry(s.entryID).Next; !next.IsZero() {
			return next
		}
	}
	return s.schedule.Next(time.Now())
}

// Start schedules the job and blocks until ctx is cancelled, then waits for a
// running job to finish.
func (s *Scheduler) Start(ctx context.Context) error {
	c := cron.New(
		cron.WithLogger(s.log),
		cron.WithChain(cron.Recover(s.log), cron.SkipIfStillRunning(s.log)),
	)
	id := c.Schedule(s.schedule, cron.FuncJob(func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Error(err, "scheduled run failed", "job", jobID)
		}
	}))

	s.mu.Lock()
	s.cron = c
	s.entryID = id
	s.mu.Unlock()

	c.Start()
	s.log.Info("scheduler started", "spec", s.spec, "nextRun", s.NextRun())

	<-ctx.Done()
	<-c.Stop().Done()
	s.log.Info("scheduler stopped")
	return nil
}

// RunOnce runs the job immediately.
func (s *Scheduler) RunOnce(ctx context.Context) (*alert.ProcessingResult, error) {
	s.log.Info("running daily digest", "job", jobID)
	return s.runner.RunDaily(ctx)
}
