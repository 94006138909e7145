package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunSuccess(t *testing.T) {
	exec := NewExecutor()
	called := false
	out := exec.Run(context.Background(), "subject", func(context.Context) error {
		called = true
		return nil
	})

	require.True(t, called)
	require.True(t, out.OK())
	require.False(t, out.Panicked())
	require.Equal(t, Stats{Runs: 1}, exec.Stats())
}

func TestRunError(t *testing.T) {
	exec := NewExecutor()
	want := errors.New("listener failed")
	out := exec.Run(context.Background(), nil, func(context.Context) error { return want })

	require.False(t, out.OK())
	require.ErrorIs(t, out.Err, want)
	require.Equal(t, uint64(1), exec.Stats().Failures)
}

func TestRunRecoversPanic(t *testing.T) {
	var subject, reported any
	exec := NewExecutor(WithPanicHook(func(s any, v any, stack []byte) {
		subject, reported = s, v
		require.NotEmpty(t, stack)
	}))

	out := exec.Run(context.Background(), "diagram", func(context.Context) error {
		panic("kaboom")
	})

	require.True(t, out.Panicked())
	require.False(t, out.OK())
	require.Equal(t, "kaboom", out.Panic)
	require.NotEmpty(t, out.Stack)
	require.Equal(t, "diagram", subject)
	require.Equal(t, "kaboom", reported)
	require.Equal(t, uint64(1), exec.Stats().Panics)
	require.Zero(t, exec.Stats().Failures)
}

func TestPanickingHookIsContained(t *testing.T) {
	exec := NewExecutor(WithPanicHook(func(any, any, []byte) {
		panic("hook")
	}))

	require.NotPanics(t, func() {
		out := exec.Run(context.Background(), nil, func(context.Context) error {
			panic("first")
		})
		require.True(t, out.Panicked())
	})
}

func TestRunSkipsDoneContext(t *testing.T) {
	exec := NewExecutor()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	out := exec.Run(ctx, nil, func(context.Context) error {
		called = true
		return nil
	})

	require.False(t, called)
	require.True(t, out.Skipped)
	require.False(t, out.OK())
	require.ErrorIs(t, out.Err, context.Canceled)
	require.Equal(t, Stats{Skipped: 1}, exec.Stats())
}

func TestRunTimeout(t *testing.T) {
	exec := NewExecutor(WithTimeout(10 * time.Millisecond))
	out := exec.Run(context.Background(), nil, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	require.ErrorIs(t, out.Err, context.DeadlineExceeded)
	require.GreaterOrEqual(t, out.Elapsed, 10*time.Millisecond)
}
