package statelog

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"arm-ai/internal/storage"
)

// State tracks the connector lifecycle.
type State int32

const (
	StateUninitialized State = iota
	StateConnecting
	StateReady
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Connector owns the process's single store connection. The first call to
// Client opens it; concurrent callers wait for that attempt and every caller
// gets the same *Client. A failed attempt is returned to the caller that
// triggered it; callers queued behind it make their own attempt.
type Connector struct {
	open    storage.Opener
	opts    Options
	base    zerolog.Logger
	logger  zerolog.Logger
	metrics *Metrics

	mu     sync.Mutex
	client *Client
	closed bool
	state  atomic.Int32
}

// NewConnector prepares a connector; nothing is dialled until Client is called.
func NewConnector(open storage.Opener, opts Options, logger zerolog.Logger, metrics *Metrics) *Connector {
	return &Connector{
		open:    open,
		opts:    opts,
		base:    logger,
		logger:  logger.With().Str("component", "connector").Logger(),
		metrics: metrics,
	}
}

// State reports the current lifecycle state without blocking.
func (c *Connector) State() State {
	return State(c.state.Load())
}

// Client returns the shared client, connecting on first use.
func (c *Connector) Client(ctx context.Context) (*Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if c.client != nil {
		return c.client, nil
	}

	c.state.Store(int32(StateConnecting))
	c.logger.Debug().Msg("connecting to state store")

	// No deadline here: SDK token sources retain the dial context.
	store, err := c.open(ctx)
	c.metrics.connectAttempt(err)
	if err != nil {
		c.state.Store(int32(StateFailed))
		c.logger.Error().Err(err).Msg("failed to initialise state store")
		return nil, fmt.Errorf("%w: %w", ErrConnectionInit, err)
	}

	c.client = NewClient(store, c.opts, c.base, c.metrics)
	c.state.Store(int32(StateReady))
	c.logger.Info().Msg("state store ready")
	return c.client, nil
}

// Close shuts the connection down. Later calls to Client fail with ErrClosed.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.state.Store(int32(StateClosed))

	if c.client == nil {
		return nil
	}
	if err := c.client.store.Close(); err != nil {
		return fmt.Errorf("close state store: %w", err)
	}
	return nil
}
