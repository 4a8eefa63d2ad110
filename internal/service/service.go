package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"arm-ai/internal/alerting"
	"arm-ai/internal/config"
	"arm-ai/internal/scheduler"
	"arm-ai/internal/statelog"
	"arm-ai/internal/storage"
)

// EventSource is the slice of the state log the dispatcher consumes.
type EventSource interface {
	ListUnprocessed(ctx context.Context, limit int) ([]statelog.RiskEvent, error)
	MarkProcessed(ctx context.Context, id string) error
}

// Options tune one dispatcher.
type Options struct {
	BatchSize    int
	Ack          bool
	RequestDelay time.Duration
	LockKey      int64
}

// OptionsFromConfig derives dispatcher options from configuration.
func OptionsFromConfig(cfg *config.Config, ack bool) Options {
	return Options{
		BatchSize:    cfg.Watch.BatchSize,
		Ack:          ack,
		RequestDelay: cfg.API.RequestDelay,
		LockKey:      cfg.Watch.AdvisoryLockKey,
	}
}

// Service drains pending risk events: each one is logged, forwarded to the
// notifier when set, and acknowledged when Ack is on.
type Service struct {
	scheduler *scheduler.Scheduler
	source    EventSource
	notifier  alerting.Notifier
	locker    storage.AdvisoryLocker
	opts      Options
	logger    zerolog.Logger
}

// New constructs the dispatcher. notifier and locker may be nil.
func New(opts Options, sched *scheduler.Scheduler, source EventSource, notifier alerting.Notifier, locker storage.AdvisoryLocker, logger zerolog.Logger) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	return &Service{
		scheduler: sched,
		source:    source,
		notifier:  notifier,
		locker:    locker,
		opts:      opts,
		logger:    logger.With().Str("component", "service").Logger(),
	}
}

// Run drains on every scheduler tick until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, func(ctx context.Context, at time.Time) error {
		_, err := s.ProcessTick(ctx, at)
		return err
	})
}

// ProcessTick handles one batch and returns how many events it saw. Ticks are
// skipped while another process holds the advisory lock.
func (s *Service) ProcessTick(ctx context.Context, at time.Time) (int, error) {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return 0, err
	}
	if !proceed {
		s.logger.Debug().Time("tick", at).Msg("skip tick because advisory lock held elsewhere")
		return 0, nil
	}
	if unlock != nil {
		defer unlock()
	}

	return s.drain(ctx)
}

func (s *Service) drain(ctx context.Context) (int, error) {
	events, err := s.source.ListUnprocessed(ctx, s.opts.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending events: %w", err)
	}

	for _, event := range events {
		s.logger.Info().
			Str("event_id", event.ID).
			Str("event_type", event.Type).
			Time("event_time", event.Timestamp).
			Msg("pending risk event")

		if s.notifier != nil {
			err := s.notifier.Notify(ctx, alerting.Notification{
				EventID:   event.ID,
				EventType: event.Type,
				Timestamp: event.Timestamp,
				Fields:    event.Fields,
			})
			if err != nil {
				// Left unprocessed; the next tick retries it.
				s.logger.Error().Err(err).Str("event_id", event.ID).Msg("failed to forward risk event")
				continue
			}
		}
		if !s.opts.Ack {
			continue
		}
		if err := s.source.MarkProcessed(ctx, event.ID); err != nil {
			return len(events), err
		}
		if err := s.pause(ctx); err != nil {
			return len(events), err
		}
	}
	return len(events), nil
}

func (s *Service) pause(ctx context.Context) error {
	if s.opts.RequestDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(s.opts.RequestDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.LockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
