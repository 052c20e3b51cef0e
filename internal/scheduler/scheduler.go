// Package scheduler runs background jobs on cron schedules in serve mode:
// benchmark sweeps over noise models and seeds, and run history upkeep.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job represents a scheduled job. Name identifies it in logs, the job
// listing and the manual trigger endpoint.
type Job interface {
	Run() error
	Name() string
}

// Status describes a job registered on a schedule. Next and Prev are zero
// until the scheduler has started or the job has fired.
type Status struct {
	Name     string
	Schedule string
	Next     time.Time
	Prev     time.Time
}

// Scheduler runs named jobs on cron schedules. A tick that fires while the
// previous run of the same job is still going is skipped, and a panicking
// job is logged instead of taking the server down.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger

	mu      sync.Mutex
	entries map[string]entry
}

type entry struct {
	id   cron.EntryID
	spec string
}

// New creates a new scheduler
func New(log zerolog.Logger) *Scheduler {
	log = log.With().Str("component", "scheduler").Logger()
	cl := cronLogger{log: log}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log:     log,
		entries: make(map[string]entry),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", s.Entries()).Msg("Scheduler started")
}

// Stop stops scheduling new runs and waits for running jobs until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.log.Info().Msg("Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.log.Warn().Msg("Scheduler stopped with jobs still running")
		return ctx.Err()
	}
}

// AddJob registers job under a standard five-field cron spec or a
// descriptor such as "@daily" or "@every 30m". Each job name may be
// scheduled once.
func (s *Scheduler) AddJob(spec string, job Job) error {
	name := job.Name()
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("job %s: invalid schedule %q: %w", name, spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[name]; ok {
		return fmt.Errorf("job %s is already scheduled", name)
	}
	id := s.cron.Schedule(schedule, cron.FuncJob(func() { s.run(job) }))
	s.entries[name] = entry{id: id, spec: spec}

	s.log.Info().
		Str("schedule", spec).
		Str("job", name).
		Msg("Job registered")
	return nil
}

func (s *Scheduler) run(job Job) {
	start := time.Now()
	s.log.Debug().Str("job", job.Name()).Msg("Running job")

	if err := job.Run(); err != nil {
		s.log.Error().
			Err(err).
			Str("job", job.Name()).
			Dur("elapsed", time.Since(start)).
			Msg("Job failed")
		return
	}
	s.log.Debug().Str("job", job.Name()).Dur("elapsed", time.Since(start)).Msg("Job completed")
}

// Entries returns the number of registered jobs
func (s *Scheduler) Entries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Status reports the schedule of the named job
func (s *Scheduler) Status(name string) (Status, bool) {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return Status{}, false
	}
	return s.status(name, e), true
}

func (s *Scheduler) status(name string, e entry) Status {
	ce := s.cron.Entry(e.id)
	return Status{Name: name, Schedule: e.spec, Next: ce.Next, Prev: ce.Prev}
}

// cronLogger routes cron's own messages (skipped ticks, recovered panics)
// into zerolog. Routine scheduling chatter goes to debug.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	withFields(l.log.Debug(), keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	withFields(l.log.Error().Err(err), keysAndValues).Msg(msg)
}

func withFields(ev *zerolog.Event, keysAndValues []interface{}) *zerolog.Event {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		ev = ev.Interface(key, keysAndValues[i+1])
	}
	return ev
}
