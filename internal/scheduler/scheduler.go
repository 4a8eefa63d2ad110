package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every interval with the scheduled tick time.
type TickFunc func(ctx context.Context, at time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	AlignToStart bool
	StartupDelay time.Duration
	// Immediate runs one tick as soon as the startup delay has passed.
	Immediate bool
	// TickTimeout bounds a single tick. Zero leaves ticks unbounded.
	TickTimeout time.Duration
}

// Scheduler drives periodic execution of a job. Ticks never overlap: a slow
// tick delays the next one rather than running beside it.
type Scheduler struct {
	opts     Options
	logger   zerolog.Logger
	failures int
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking tick at each interval until ctx is cancelled. Tick
// errors are logged and do not stop the loop.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if err := sleep(ctx, s.opts.StartupDelay); err != nil {
		return err
	}

	if s.opts.Immediate {
		s.execute(ctx, tick, time.Now().UTC())
	}

	next := s.nextTick(time.Now().UTC())
	for {
		if time.Until(next) < 0 {
			skipped := next
			next = s.nextTick(time.Now().UTC())
			s.logger.Warn().Time("missed", skipped).Time("next_tick", next).Msg("tick overran, skipping ahead")
		}

		s.logger.Debug().Time("next_tick", next).Msg("waiting for next tick")
		if err := sleep(ctx, time.Until(next)); err != nil {
			return err
		}

		s.execute(ctx, tick, s.tickStart(next))
		next = next.Add(s.opts.Interval)
	}
}

func (s *Scheduler) execute(ctx context.Context, tick TickFunc, at time.Time) {
	tickCtx := ctx
	if s.opts.TickTimeout > 0 {
		var cancel context.CancelFunc
		tickCtx, cancel = context.WithTimeout(ctx, s.opts.TickTimeout)
		defer cancel()
	}

	started := time.Now()
	err := tick(tickCtx, at)
	if err == nil {
		if s.failures > 0 {
			s.logger.Info().Int("after_failures", s.failures).Msg("tick recovered")
		}
		s.failures = 0
		s.logger.Debug().Time("tick", at).Dur("took", time.Since(started)).Msg("tick done")
		return
	}
	if ctx.Err() != nil {
		return
	}
	s.failures++
	s.logger.Error().Err(err).Time("tick", at).Int("consecutive_failures", s.failures).Msg("tick execution failed")
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	aligned := now.Truncate(s.opts.Interval)
	if !aligned.After(now) {
		aligned = aligned.Add(s.opts.Interval)
	}
	return aligned
}

func (s *Scheduler) tickStart(t time.Time) time.Time {
	if !s.opts.AlignToStart {
		return t
	}
	return t.Truncate(s.opts.Interval)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
