package pipeline

import (
	"sync"

	"github.com/dshills/flowpanel/internal/diagram"
	"github.com/dshills/flowpanel/internal/editor"
	"github.com/dshills/flowpanel/internal/mapping"
)

// fakeGraph counts engine calls.
type fakeGraph struct {
	mu      sync.Mutex
	name    string
	loads   int
	options int
	states  int
	refresh int
	xml     string
	painted map[string]diagram.State

	onLoad func()
}

func (g *fakeGraph) Load(xml string) error {
	g.mu.Lock()
	g.loads++
	g.xml = xml
	hook := g.onLoad
	g.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (g *fakeGraph) ApplyOptions(diagram.Options) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.options++
	return nil
}

func (g *fakeGraph) ApplyStates(s map[string]diagram.State) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.states++
	g.painted = s
	return nil
}

func (g *fakeGraph) Refresh() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refresh++
	return nil
}

type counts struct {
	loads, options, states, refresh int
}

func (g *fakeGraph) counts() counts {
	g.mu.Lock()
	defer g.mu.Unlock()
	return counts{g.loads, g.options, g.states, g.refresh}
}

// graphs hands out fake graphs and remembers them by diagram name.
type graphs struct {
	mu     sync.Mutex
	byName map[string]*fakeGraph
}

func newGraphs() *graphs {
	return &graphs{byName: make(map[string]*fakeGraph)}
}

func (gs *graphs) factory(name, _ string) diagram.Graph {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	g := &fakeGraph{name: name}
	gs.byName[name] = g
	return g
}

func (gs *graphs) get(name string) *fakeGraph {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	return gs.byName[name]
}

type fakeHost struct {
	mu      sync.Mutex
	fn      func(editor.Message)
	cancels int
}

func (h *fakeHost) Listen(fn func(editor.Message)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fn = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.fn = nil
		h.cancels++
	}
}

func (h *fakeHost) deliver(m editor.Message) bool {
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
	posts []string
}

func (w *fakeWindow) PostMessage(data, _ string) error {
	w.posts = append(w.posts, data)
	return nil
}

type fakeHandle struct{ closed int }

func (h *fakeHandle) Close() error {
	h.closed++
	return nil
}

type fakeLauncher struct {
	url    string
	handle *fakeHandle
}

func (l *fakeLauncher) Open(url string) (editor.Handle, error) {
	l.url = url
	l.handle = &fakeHandle{}
	return l.handle, nil
}

type mapTarget struct {
	id    string
	ended int
}

func (t *mapTarget) MappingID() string { return t.id }

func (t *mapTarget) MappingDeactivated(mapping.Session) { t.ended++ }

func (g *fakeGraph) paintedState(cell string) (diagram.State, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.painted[cell]
	return st, ok
}
