package app

import (
	"context"
	"errors"

	"arm-ai/internal/config"
	"arm-ai/internal/scheduler"
	"arm-ai/internal/service"
	"arm-ai/internal/statelog"
	"arm-ai/internal/storage"
)

// Watch polls for unprocessed risk events until interrupted. Each event is
// logged, forwarded to the notifier when alerting is enabled, and optionally
// acknowledged.
func (a *App) Watch(ctx context.Context, opts WatchOptions) error {
	ctx, cancel := notifyContext(ctx)
	defer cancel()

	client, err := a.client(ctx)
	if err != nil {
		return err
	}

	metricsAddr := a.Config.Metrics.Listen
	if opts.MetricsAddr != "" {
		metricsAddr = opts.MetricsAddr
	}
	if metricsAddr != "" {
		stop, _, err := a.serveMetrics(metricsAddr)
		if err != nil {
			return err
		}
		defer stop()
	}

	sched := scheduler.New(schedulerOptions(a.Config.Watch), a.Logger)

	a.Logger.Info().
		Dur("interval", a.Config.Watch.Interval).
		Bool("ack", opts.Ack).
		Bool("alerting", a.notifier != nil).
		Msg("watching pending risk events")

	if err := a.newDispatcher(client, sched, opts.Ack).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.Logger.Info().Msg("watch stopped")
	return nil
}

func (a *App) newDispatcher(client *statelog.Client, sched *scheduler.Scheduler, ack bool) *service.Service {
	var locker storage.AdvisoryLocker
	if l, ok := client.Store().(storage.AdvisoryLocker); ok {
		locker = l
	}
	return service.New(service.OptionsFromConfig(a.Config, ack), sched, client, a.notifier, locker, a.Logger)
}

func schedulerOptions(cfg config.WatchConfig) scheduler.Options {
	return scheduler.Options{
		Interval:     cfg.Interval,
		AlignToStart: cfg.Align,
		StartupDelay: cfg.StartupDelay,
		Immediate:    true,
		TickTimeout:  cfg.TickTimeout,
	}
}
