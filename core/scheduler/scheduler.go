package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/wakora/hatua/core"
	"github.com/wakora/hatua/core/cycle"
	"github.com/wakora/hatua/core/founder"
)

type (
	// CycleDriver is the per-founder tick entry point.
	CycleDriver interface {
		ProcessTick(ctx context.Context, founderID string, kind cycle.TickKind, at time.Time) error
	}

	// StateSource enumerates the founders the scheduler walks.
	StateSource interface {
		QueryActive(ctx context.Context) ([]founder.CycleState, error)
	}

	// Scheduler fires the six weekly ticks and applies each one to every
	// active founder. Ticks are idempotent downstream, so a crashed or
	// restarted scheduler just catches up and re-fires.
	Scheduler struct {
		cycles  CycleDriver
		states  StateSource
		sched   cycle.Schedule
		clock   core.Clock
		logger  core.Logger
		workers int
	}
)

const defaultWorkers = 8

func New(cycles CycleDriver, states StateSource, sched cycle.Schedule, clock core.Clock, logger core.Logger) *Scheduler {
	return &Scheduler{
		cycles:  cycles,
		states:  states,
		sched:   sched,
		clock:   clock,
		logger:  logger,
		workers: defaultWorkers,
	}
}

// RunTick walks all active founders for one tick with a bounded worker pool.
// One founder's failure is logged and skipped; it never blocks the rest of
// the walk.
func (s *Scheduler) RunTick(ctx context.Context, tick cycle.Tick) error {
	states, err := s.states.QueryActive(ctx)
	if err != nil {
		return errors.Wrap(err, "querying active founders")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, state := range states {
		state := state
		g.Go(func() error {
			if err := s.cycles.ProcessTick(ctx, state.FounderID, tick.Kind, tick.At); err != nil {
				s.logger.Error(fmt.Sprintf("tick %s failed (founder=%s): %v", tick.Kind, state.FounderID, err), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// CatchUp re-fires every tick of the current week that has already elapsed.
// Safe after any downtime: applied ticks are no-ops.
func (s *Scheduler) CatchUp(ctx context.Context) error {
	for _, tick := range s.sched.ElapsedTicks(s.clock.Now()) {
		if err := s.RunTick(ctx, tick); err != nil {
			return err
		}
	}
	return nil
}

// Run catches up, then sleeps until each next tick instant and fires it.
// Returns when the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.CatchUp(ctx); err != nil {
		return errors.Wrap(err, "catching up elapsed ticks")
	}

	for {
		now := s.clock.Now()
		next := s.sched.NextTick(now)
		timer := time.NewTimer(next.At.Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		s.logger.Info(fmt.Sprintf("firing tick %s at %s", next.Kind, next.At.Format(time.RFC3339)))
		if err := s.RunTick(ctx, next); err != nil {
			s.logger.Error(fmt.Sprintf("tick %s run failed: %v", next.Kind, err), err)
		}
	}
}
