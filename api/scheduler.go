/*
scheduler.go - Nightly generation and overdue sweep

PURPOSE:
  Runs the two batch jobs the engine needs on a clock:
  1. Mark PENDING obligations past their due date as OVERDUE
  2. Materialize obligations for windows that opened since the last run

DESIGN:
  - robfig/cron drives the schedule; the default spec fires daily at 02:00
  - Sweep runs before generation so a filing created today is never
    swept by stale state from yesterday
  - Jobs share one mutex; a slow run is skipped, never overlapped
    (cron.SkipIfStillRunning)

CONFIGURATION:
  - Spec: cron expression (default "0 2 * * *")
  - Enabled: whether the scheduler starts (default true)

USAGE:
  scheduler := NewScheduler(handler, "0 2 * * *")
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: MarkOverdue and GenerateAuto endpoints (manual triggers)
  - fiscal/sweeper.go, fiscal/generator.go: The jobs themselves
*/
package api

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const defaultCronSpec = "0 2 * * *"

// Scheduler runs the nightly sweep-then-generate job.
type Scheduler struct {
	Handler *Handler
	Spec    string
	Enabled bool
	Log     zerolog.Logger

	cron *cron.Cron
}

// NewScheduler creates a scheduler over the handler's generator and
// sweeper. An empty spec selects the default (daily at 02:00).
func NewScheduler(h *Handler, spec string) *Scheduler {
	if spec == "" {
		spec = defaultCronSpec
	}
	return &Scheduler{
		Handler: h,
		Spec:    spec,
		Enabled: true,
		Log:     h.Log.With().Str("component", "scheduler").Logger(),
	}
}

// Start registers the job and begins the cron loop. Returns an error only
// for an invalid cron spec.
func (s *Scheduler) Start() error {
	if !s.Enabled {
		s.Log.Info().Msg("scheduler disabled, not starting")
		return nil
	}

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
		cron.Recover(cron.DiscardLogger),
	))
	if _, err := s.cron.AddFunc(s.Spec, s.RunNow); err != nil {
		return err
	}
	s.cron.Start()

	s.Log.Info().Str("spec", s.Spec).Msg("scheduler started")
	return nil
}

// Stop halts the cron loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.Log.Info().Msg("scheduler stopped")
	}
}

// RunNow executes one sweep-then-generate cycle immediately.
func (s *Scheduler) RunNow() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	now := s.Handler.Now()

	swept, err := s.Handler.Sweeper.Sweep(ctx, now)
	if err != nil {
		s.Log.Error().Err(err).Msg("overdue sweep failed")
	}

	result, err := s.Handler.Generator.GenerateForAllOpenPeriods(ctx, now)
	if err != nil {
		s.Log.Error().Err(err).Msg("generation failed")
		return
	}

	s.Log.Info().
		Int("sweptOverdue", swept).
		Int("generated", result.Generated).
		Int("skipped", result.Skipped).
		Msg("nightly run completed")
}

// NextRun returns when the next scheduled run will occur, or the zero time
// when the scheduler is not running.
func (s *Scheduler) NextRun() time.Time {
	if s.cron == nil {
		return time.Time{}
	}
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
