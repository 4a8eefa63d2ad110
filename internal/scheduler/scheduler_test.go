package scheduler

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextTickAligned(t *testing.T) {
	s := New(Options{Interval: 5 * time.Minute, AlignToStart: true}, zerolog.Nop())

	now := time.Date(2024, 1, 1, 10, 7, 30, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 1, 10, 10, 0, 0, time.UTC), s.nextTick(now))

	onBoundary := time.Date(2024, 1, 1, 10, 10, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 1, 10, 15, 0, 0, time.UTC), s.nextTick(onBoundary))
}

func TestNextTickUnaligned(t *testing.T) {
	s := New(Options{Interval: time.Minute}, zerolog.Nop())

	now := time.Date(2024, 1, 1, 10, 7, 30, 0, time.UTC)
	assert.Equal(t, now.Add(time.Minute), s.nextTick(now))
	assert.Equal(t, now, s.tickStart(now))
}

func TestRunImmediateTickThenCancel(t *testing.T) {
	s := New(Options{Interval: time.Hour, Immediate: true}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	err := s.Run(ctx, func(ctx context.Context, at time.Time) error {
		calls.Add(1)
		cancel()
		return errors.New("tick errors are logged, not returned")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRunRepeats(t *testing.T) {
	s := New(Options{Interval: 10 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var calls atomic.Int32
	err := s.Run(ctx, func(ctx context.Context, at time.Time) error {
		if calls.Add(1) == 3 {
			cancel()
		}
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(3), calls.Load())
}

func TestNewPanicsOnZeroInterval(t *testing.T) {
	assert.Panics(t, func() { New(Options{}, zerolog.Nop()) })
}

func TestRunCountsConsecutiveFailures(t *testing.T) {
	var buf bytes.Buffer
	s := New(Options{Interval: 5 * time.Millisecond, Immediate: true}, zerolog.New(&buf))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var calls atomic.Int32
	_ = s.Run(ctx, func(ctx context.Context, at time.Time) error {
		switch calls.Add(1) {
		case 1, 2:
			return errors.New("store unreachable")
		case 3:
			return nil
		default:
			cancel()
			return nil
		}
	})

	logged := buf.String()
	assert.Contains(t, logged, `"consecutive_failures":1`)
	assert.Contains(t, logged, `"consecutive_failures":2`)
	assert.Contains(t, logged, `"after_failures":2`)
	assert.Zero(t, s.failures)
}

func TestStartupDelayHonoursCancel(t *testing.T) {
	s := New(Options{Interval: time.Millisecond, StartupDelay: time.Hour, Immediate: true}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	var calls atomic.Int32
	err := s.Run(ctx, func(ctx context.Context, at time.Time) error {
		calls.Add(1)
		return nil
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, calls.Load())
}

func TestRunAlignedTickTimes(t *testing.T) {
	s := New(Options{Interval: 10 * time.Millisecond, AlignToStart: true}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var ticks []time.Time
	_ = s.Run(ctx, func(ctx context.Context, at time.Time) error {
		ticks = append(ticks, at)
		if len(ticks) == 2 {
			cancel()
		}
		return nil
	})

	require.Len(t, ticks, 2)
	for _, at := range ticks {
		assert.Equal(t, at, at.Truncate(10*time.Millisecond))
	}
}

func TestTickTimeoutBoundsTick(t *testing.T) {
	s := New(Options{Interval: time.Hour, Immediate: true, TickTimeout: 10 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	var tickErr error
	err := s.Run(ctx, func(ctx context.Context, at time.Time) error {
		<-ctx.Done()
		tickErr = ctx.Err()
		cancel()
		return tickErr
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, tickErr, context.DeadlineExceeded)
}
