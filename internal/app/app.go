package app

import (
	"context"
	"fmt"
	"math"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"arm-ai/internal/alerting"
	"arm-ai/internal/config"
	"arm-ai/internal/statelog"
	"arm-ai/internal/storage"
	"arm-ai/internal/storage/badgerdb"
	"arm-ai/internal/storage/firestoredb"
	"arm-ai/internal/storage/postgres"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config    *config.Config
	Logger    zerolog.Logger
	Registry  *prometheus.Registry
	connector *statelog.Connector
	notifier  alerting.Notifier
}

// NewApp constructs a new application handle. The state store is not
// contacted until a command needs it.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	a := &App{
		Config:   cfg,
		Logger:   logger.With().Str("component", "app").Logger(),
		Registry: prometheus.NewRegistry(),
	}
	metrics := statelog.NewMetrics(a.Registry, "")
	a.connector = statelog.NewConnector(a.storeOpener(logger), statelog.OptionsFromConfig(cfg), logger, metrics)
	a.notifier = newNotifier(cfg, logger)
	a.warnOnConfig()
	return a
}

// Close releases the state store connection if one was opened.
func (a *App) Close() error {
	return a.connector.Close()
}

func (a *App) warnOnConfig() {
	if sum := a.Config.Models.WeightSum(); math.Abs(sum-1) > 1e-9 {
		a.Logger.Warn().Float64("sum", sum).Msg("ensemble weights do not sum to 1")
	}
}

func newNotifier(cfg *config.Config, logger zerolog.Logger) alerting.Notifier {
	tg := cfg.Alerting.Telegram
	if !cfg.Alerting.Enabled || !tg.Enabled {
		return nil
	}
	return alerting.NewTelegramNotifier(tg.BotToken, tg.ChatID, tg.APIBase, cfg.API.Timeout, logger)
}

func (a *App) storeOpener(logger zerolog.Logger) storage.Opener {
	cfg := a.Config
	return func(ctx context.Context) (storage.Store, error) {
		var (
			store storage.Store
			err   error
		)
		switch cfg.Store.Backend {
		case config.BackendFirestore:
			store, err = openFirestore(ctx, cfg, logger)
		case config.BackendPostgres:
			store, err = openPostgres(ctx, cfg)
		case config.BackendBadger:
			store, err = openBadger(cfg)
		default:
			err = fmt.Errorf("unsupported store backend %q", cfg.Store.Backend)
		}
		if err != nil {
			return nil, err
		}
		a.Logger.Info().Str("backend", cfg.Store.Backend).Msg("state store opened")
		return store, nil
	}
}

func openFirestore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (storage.Store, error) {
	store, err := firestoredb.Open(ctx, firestoredb.Options{
		CredentialsPath: cfg.Store.CredentialsPath,
		ProjectID:       cfg.Store.ProjectID,
	}, logger)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func openPostgres(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	store, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func openBadger(cfg *config.Config) (storage.Store, error) {
	store, err := badgerdb.Open(badgerdb.Options{
		Path:     cfg.Store.BadgerPath,
		InMemory: cfg.Store.BadgerInMemory,
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}

func (a *App) client(ctx context.Context) (*statelog.Client, error) {
	return a.connector.Client(ctx)
}

func notifyContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
}

// PendingOptions configure the pending command.
type PendingOptions struct {
	Limit int
}

// WatchOptions configure the watch loop.
type WatchOptions struct {
	Ack bool
	// MetricsAddr overrides metrics.listen when set.
	MetricsAddr string
}

// SaveStateOptions configure the save-state command.
type SaveStateOptions struct {
	Kind string
	ID   string
	Data map[string]any
}
