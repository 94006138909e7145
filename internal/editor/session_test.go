package editor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeHost struct {
	mu      sync.Mutex
	fn      func(Message)
	listens int
	cancels int
}

func (h *fakeHost) Listen(fn func(Message)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fn = fn
	h.listens++
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.fn = nil
		h.cancels++
	}
}

func (h *fakeHost) send(m Message) bool {
	h.mu.Lock()
	fn := h.fn
	h.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(m)
	return true
}

type fakeWindow struct {
	posts   []string
	origins []string
}

func (w *fakeWindow) PostMessage(data, origin string) error {
	w.posts = append(w.posts, data)
	w.origins = append(w.origins, origin)
	return nil
}

type fakeHandle struct{ closed int }

func (h *fakeHandle) Close() error {
	h.closed++
	return nil
}

type fakeLauncher struct {
	urls   []string
	handle *fakeHandle
	err    error
}

func (l *fakeLauncher) Open(url string) (Handle, error) {
	if l.err != nil {
		return nil, l.err
	}
	l.urls = append(l.urls, url)
	l.handle = &fakeHandle{}
	return l.handle, nil
}

type fakeController struct {
	doc     string
	applied []string
}

func (c *fakeController) CurrentDocument() (string, error) { return c.doc, nil }

func (c *fakeController) ApplyDocument(_ context.Context, xml string) error {
	c.applied = append(c.applied, xml)
	c.doc = xml
	return nil
}

func TestURL(t *testing.T) {
	require.Equal(t,
		"https://embed.diagrams.net/?embed=1&spin=1&libraries=1&ui=dark",
		URL("https://embed.diagrams.net/", "dark"))
}

func TestSessionMessageSequence(t *testing.T) {
	host := &fakeHost{}
	ctrl := &fakeController{doc: "<old/>"}
	s := NewSession(host, ctrl, zerolog.Nop())
	l := &fakeLauncher{}
	ctx := context.Background()

	require.NoError(t, s.Open(ctx, "https://editor/?embed=1", l))
	require.True(t, s.IsOpen())
	require.Equal(t, []string{"https://editor/?embed=1"}, l.urls)

	w := &fakeWindow{}
	require.True(t, host.send(Message{Data: ReadyMessage, Source: w, Origin: "https://editor"}))
	require.Equal(t, []string{"<old/>"}, w.posts)
	require.Equal(t, []string{"https://editor"}, w.origins)
	require.True(t, s.IsOpen())

	require.True(t, host.send(Message{Data: "<new/>", Source: w}))
	require.Equal(t, []string{"<new/>"}, ctrl.applied)
	require.False(t, s.IsOpen())
	require.Equal(t, 1, l.handle.closed)
	require.Equal(t, 1, host.cancels)

	// The listener is gone; a late message delivered directly is ignored.
	require.False(t, host.send(Message{Data: ""}))
	require.NotPanics(t, func() {
		s.Handle(ctx, Message{Data: ""})
		s.Handle(ctx, Message{Data: "<again/>"})
		s.Handle(ctx, Message{Data: ReadyMessage, Source: w})
	})
	require.False(t, s.IsOpen())
	require.Len(t, ctrl.applied, 1)
	require.Len(t, w.posts, 1)
	require.Equal(t, 1, l.handle.closed)
}

func TestSessionEmptyPayloadCloses(t *testing.T) {
	host := &fakeHost{}
	ctrl := &fakeController{}
	s := NewSession(host, ctrl, zerolog.Nop())
	l := &fakeLauncher{}

	require.NoError(t, s.Open(context.Background(), "u", l))
	host.send(Message{Data: ""})
	require.False(t, s.IsOpen())
	require.Empty(t, ctrl.applied)
	require.Equal(t, 1, l.handle.closed)
	require.Equal(t, 1, host.cancels)
}

func TestSessionReadyOnlyRepliesToWindows(t *testing.T) {
	host := &fakeHost{}
	ctrl := &fakeController{doc: "<d/>"}
	s := NewSession(host, ctrl, zerolog.Nop())
	require.NoError(t, s.Open(context.Background(), "u", &fakeLauncher{}))

	for _, src := range []any{Port{ID: "p"}, &Worker{ID: "w"}, nil, "string"} {
		require.NotPanics(t, func() { host.send(Message{Data: ReadyMessage, Source: src}) })
	}
	require.True(t, s.IsOpen())
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	host := &fakeHost{}
	s := NewSession(host, &fakeController{}, zerolog.Nop())

	require.NotPanics(t, func() {
		s.Close()
		s.Close()
	})

	l := &fakeLauncher{}
	require.NoError(t, s.Open(context.Background(), "u", l))
	s.Close()
	s.Close()
	require.Equal(t, 1, l.handle.closed)
	require.Equal(t, 1, host.cancels)
}

func TestSessionReopenClosesPrevious(t *testing.T) {
	host := &fakeHost{}
	s := NewSession(host, &fakeController{}, zerolog.Nop())

	first := &fakeLauncher{}
	require.NoError(t, s.Open(context.Background(), "u", first))
	second := &fakeLauncher{}
	require.NoError(t, s.Open(context.Background(), "u", second))

	require.Equal(t, 1, first.handle.closed)
	require.Equal(t, 0, second.handle.closed)
	require.Equal(t, 2, host.listens)
	require.Equal(t, 1, host.cancels)
}

func TestSessionOpenErrors(t *testing.T) {
	s := NewSession(&fakeHost{}, &fakeController{}, zerolog.Nop())
	require.ErrorIs(t, s.Open(context.Background(), "u", nil), ErrNoLauncher)
	require.Error(t, s.Open(context.Background(), "u", &fakeLauncher{err: errors.New("no display")}))
	require.False(t, s.IsOpen())
}
