package statelog

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"arm-ai/internal/config"
	"arm-ai/internal/storage"
)

// Options name the collections and bound each store call.
type Options struct {
	RiskEventsCollection     string
	PortfolioStateCollection string
	ModelStateCollection     string
	Timeout                  time.Duration
}

// OptionsFromConfig derives client options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		RiskEventsCollection:     cfg.Store.RiskEventsCollection,
		PortfolioStateCollection: cfg.Store.PortfolioStateCollection,
		ModelStateCollection:     cfg.Store.ModelStateCollection,
		Timeout:                  cfg.API.Timeout,
	}
}

// Client writes risk events and state snapshots to the document store. It is
// safe for concurrent use.
type Client struct {
	store   storage.Store
	opts    Options
	logger  zerolog.Logger
	metrics *Metrics
	now     func() time.Time
}

// NewClient wraps an open store. metrics may be nil.
func NewClient(store storage.Store, opts Options, logger zerolog.Logger, metrics *Metrics) *Client {
	return &Client{
		store:   store,
		opts:    opts,
		logger:  logger.With().Str("component", "statelog").Logger(),
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Store exposes the underlying connection.
func (c *Client) Store() storage.Store {
	return c.store
}

// LogRiskEvent persists event as a new document in the risk events collection
// and returns its id. The stored document carries the caller's fields plus
// timestamp and processed=false; event itself is not modified.
func (c *Client) LogRiskEvent(ctx context.Context, event EventData) (string, error) {
	eventType := event.Type()

	record := storage.CloneFields(event)
	record[FieldTimestamp] = c.now()
	record[FieldProcessed] = false

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	collection := c.opts.RiskEventsCollection
	start := time.Now()
	id, err := c.store.Create(ctx, collection, record)
	c.metrics.observeWrite(collection, start, err)
	if err != nil {
		c.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to log risk event")
		return "", fmt.Errorf("%w: log risk event %s: %w", ErrStoreWrite, eventType, err)
	}

	c.metrics.riskEventLogged()
	c.logger.Info().Str("event_type", eventType).Str("event_id", id).Msg("risk event logged")
	return id, nil
}

// GetRiskEvent loads a risk event by id.
func (c *Client) GetRiskEvent(ctx context.Context, id string) (RiskEvent, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	doc, err := c.store.Get(ctx, c.opts.RiskEventsCollection, id)
	if err != nil {
		return RiskEvent{}, fmt.Errorf("get risk event %s: %w", id, err)
	}
	return riskEventFromDocument(doc), nil
}

// ListUnprocessed returns up to limit events not yet acknowledged, oldest
// first.
func (c *Client) ListUnprocessed(ctx context.Context, limit int) ([]RiskEvent, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	docs, err := c.store.Query(ctx, c.opts.RiskEventsCollection, storage.Query{
		Where:   []storage.Condition{{Field: FieldProcessed, Value: false}},
		OrderBy: FieldTimestamp,
		Limit:   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list unprocessed risk events: %w", err)
	}

	events := make([]RiskEvent, 0, len(docs))
	for _, doc := range docs {
		events = append(events, riskEventFromDocument(doc))
	}
	return events, nil
}

// MarkProcessed flags an event as handled by a downstream consumer.
func (c *Client) MarkProcessed(ctx context.Context, id string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	collection := c.opts.RiskEventsCollection
	start := time.Now()
	err := c.store.Update(ctx, collection, id, map[string]any{
		FieldProcessed:   true,
		FieldProcessedAt: c.now(),
	})
	c.metrics.observeWrite(collection, start, err)
	if err != nil {
		c.logger.Error().Err(err).Str("event_id", id).Msg("failed to mark risk event processed")
		return fmt.Errorf("%w: mark risk event %s processed: %w", ErrStoreWrite, id, err)
	}
	c.logger.Debug().Str("event_id", id).Msg("risk event marked processed")
	return nil
}

// SavePortfolioState overwrites the portfolio snapshot stored under id.
func (c *Client) SavePortfolioState(ctx context.Context, id string, state map[string]any) error {
	return c.saveState(ctx, c.opts.PortfolioStateCollection, id, state)
}

// SaveModelState overwrites the model snapshot stored under id.
func (c *Client) SaveModelState(ctx context.Context, id string, state map[string]any) error {
	return c.saveState(ctx, c.opts.ModelStateCollection, id, state)
}

// GetPortfolioState loads a portfolio snapshot.
func (c *Client) GetPortfolioState(ctx context.Context, id string) (storage.Document, error) {
	return c.getState(ctx, c.opts.PortfolioStateCollection, id)
}

// GetModelState loads a model snapshot.
func (c *Client) GetModelState(ctx context.Context, id string) (storage.Document, error) {
	return c.getState(ctx, c.opts.ModelStateCollection, id)
}

func (c *Client) saveState(ctx context.Context, collection, id string, state map[string]any) error {
	if id == "" {
		return fmt.Errorf("%w: %s: empty document id", ErrStoreWrite, collection)
	}

	record := storage.CloneFields(state)
	record[FieldTimestamp] = c.now()

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	err := c.store.Set(ctx, collection, id, record)
	c.metrics.observeWrite(collection, start, err)
	if err != nil {
		c.logger.Error().Err(err).Str("collection", collection).Str("id", id).Msg("failed to save state")
		return fmt.Errorf("%w: save %s/%s: %w", ErrStoreWrite, collection, id, err)
	}
	c.logger.Info().Str("collection", collection).Str("id", id).Msg("state saved")
	return nil
}

func (c *Client) getState(ctx context.Context, collection, id string) (storage.Document, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	doc, err := c.store.Get(ctx, collection, id)
	if err != nil {
		return storage.Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.opts.Timeout)
}
