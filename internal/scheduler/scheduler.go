// Package scheduler fires the nightly maintenance job on a cron schedule in
// the application's time zone.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"habit-quest/internal/model"
	"habit-quest/internal/service"
)

// DefaultTimeout bounds a single maintenance run.
const DefaultTimeout = 30 * time.Minute

// Job is the work the scheduler fires.
type Job interface {
	Run(ctx context.Context, trigger string) (*model.MaintenanceRun, error)
}

// Scheduler owns a cron instance with a single maintenance entry.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	job     Job
	spec    string
	entry   cron.EntryID
	catchUp bool
	timeout time.Duration
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithCatchUp makes Start fire the job once immediately. The job's per-date
// guard turns this into a no-op when today's run already happened.
func WithCatchUp(enabled bool) Option {
	return func(s *Scheduler) { s.catchUp = enabled }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}

// New validates spec (standard five-field cron) and prepares a scheduler
// evaluating it in loc.
func New(job Job, spec string, loc *time.Location, opts ...Option) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	logger := cronLogger{}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		job:     job,
		spec:    spec,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start registers the entry and starts the cron loop. Jobs run with a
// context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return errors.New("scheduler already started")
	}
	ctx, s.cancel = context.WithCancel(ctx)

	id, err := s.cron.AddFunc(s.spec, func() { s.fire(ctx, service.TriggerTimer) })
	if err != nil {
		s.cancel()
		s.cancel = nil
		return fmt.Errorf("failed to schedule maintenance: %w", err)
	}
	s.entry = id
	s.cron.Start()

	log.Info().
		Str("schedule", s.spec).
		Str("timezone", s.cron.Location().String()).
		Time("next_run", s.cron.Entry(id).Next).
		Msg("maintenance scheduler started")

	if s.catchUp {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.fire(ctx, service.TriggerStartup)
		}()
	}
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	log.Info().Msg("maintenance scheduler stopped")
}

// Next returns the next scheduled fire time, or zero before Start.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

func (s *Scheduler) fire(ctx context.Context, trigger string) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	run, err := s.job.Run(ctx, trigger)
	switch {
	case errors.Is(err, service.ErrMaintenanceAlreadyRan):
		log.Debug().Str("trigger", trigger).Msg("maintenance already done for today")
	case err != nil:
		log.Error().Err(err).Str("trigger", trigger).Msg("maintenance run failed")
	default:
		log.Info().
			Str("trigger", trigger).
			Str("run_date", run.RunDate).
			Int("punished_users", run.PunishedUsers).
			Msg("maintenance run complete")
	}
}

// cronLogger routes cron's internal logging to zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
