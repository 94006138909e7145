package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func start(t *testing.T, w *Watcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = w.Close()
	})
}

func TestOpString(t *testing.T) {
	require.Equal(t, "NONE", Op(0).String())
	require.Equal(t, "WRITE", OpWrite.String())
	require.Equal(t, "CREATE|WRITE", (OpCreate | OpWrite).String())
	require.True(t, (OpCreate | OpRemove).Has(OpRemove))
	require.False(t, OpCreate.Has(OpRemove))
}

func TestAddRemove(t *testing.T) {
	w, err := New()
	require.NoError(t, err)
	defer w.Close()

	dir := t.TempDir()
	a := filepath.Join(dir, "a.yaml")
	b := filepath.Join(dir, "b.yaml")
	nop := func(context.Context, Event) {}

	require.NoError(t, w.Add(a, nop))
	require.ErrorIs(t, w.Add(a, nop), ErrAlreadyWatching)
	require.NoError(t, w.Add(b, nop))
	require.Len(t, w.Files(), 2)

	require.NoError(t, w.Remove(a))
	require.ErrorIs(t, w.Remove(a), ErrNotWatching)
	require.NoError(t, w.Remove(b))
	require.Equal(t, 0, w.Stats().Files)

	require.Error(t, w.Add(filepath.Join(dir, "missing", "c.yaml"), nop))
}

func TestClosed(t *testing.T) {
	w, err := New()
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	require.ErrorIs(t, w.Add(filepath.Join(t.TempDir(), "x"), nil), ErrWatcherClosed)
}

func TestDebouncedWrites(t *testing.T) {
	w, err := New(WithDebounce(50 * time.Millisecond))
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	other := filepath.Join(dir, "other.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules: []\n"), 0o644))

	var rec recorder
	require.NoError(t, w.Add(path, rec.handle))
	start(t, w)

	for i := range 5 {
		require.NoError(t, os.WriteFile(path, []byte{byte('a' + i)}, 0o644))
	}
	require.NoError(t, os.WriteFile(other, []byte("ignored"), 0o644))

	require.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	require.Equal(t, 1, rec.count())

	rec.mu.Lock()
	ev := rec.events[0]
	rec.mu.Unlock()
	abs, _ := filepath.Abs(path)
	require.Equal(t, abs, ev.Path)
	require.True(t, ev.Op.Has(OpWrite))
	require.Equal(t, int64(1), w.Stats().Fired)
}

func TestHandlerPanicRecovered(t *testing.T) {
	w, err := New(WithDebounce(10 * time.Millisecond))
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "series.yaml")
	calls := make(chan struct{}, 4)
	require.NoError(t, w.Add(path, func(context.Context, Event) {
		calls <- struct{}{}
		panic("boom")
	}))
	start(t, w)

	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}
	require.Eventually(t, func() bool { return w.Stats().Errors >= 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("y"), 0o644))
	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher stopped after panic")
	}
}
