package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Scheduler fires jobs on cron specs in a fixed time zone.
type Scheduler struct {
	cron  *cron.Cron
	guard *Guard
	ctx   context.Context
}

// New creates a scheduler evaluating specs in loc.
func New(guard *Guard, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	logger := cronLogger{}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		guard: guard,
		ctx:   context.Background(),
	}
}

// Add registers job under a five-field cron spec. Jobs that rewrite the
// catalog pass locked so they take the catalog lease. An empty spec
// disables the job.
func (s *Scheduler) Add(spec, kind string, locked bool, job Job) error {
	if spec == "" {
		log.Info().Str("kind", kind).Msg("No schedule, job disabled")
		return nil
	}
	_, err := s.cron.AddFunc(spec, func() {
		log.Info().Str("kind", kind).Msg("Scheduled job starting")
		var err error
		if locked {
			_, err = s.guard.Locked(s.ctx, kind, job)
		} else {
			_, err = s.guard.Record(s.ctx, kind, job)
		}
		if err != nil && !errors.Is(err, ErrLocked) {
			log.Error().Err(err).Str("kind", kind).Msg("Scheduled job failed")
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling %s %q: %w", kind, spec, err)
	}
	log.Info().Str("kind", kind).Str("spec", spec).Msg("Job scheduled")
	return nil
}

// Next returns the next fire time of every scheduled job.
func (s *Scheduler) Next() []time.Time {
	var next []time.Time
	for _, e := range s.cron.Entries() {
		next = append(next, e.Next)
	}
	return next
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Run starts the scheduler and blocks until ctx is done, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.ctx = ctx
	s.cron.Start()
	log.Info().Int("jobs", s.Len()).Msg("Scheduler started")

	<-ctx.Done()
	stopped := s.cron.Stop()
	<-stopped.Done()
	log.Info().Msg("Scheduler stopped")
	return nil
}

// cronLogger routes cron's own logging through zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
