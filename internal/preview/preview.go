// Package preview draws diagrams on a terminal. It is a stand-in drawing
// engine: it shows each diagram's name, options and cell states rather
// than the shapes of the layout document.
package preview

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/dshills/flowpanel/internal/diagram"
	"github.com/dshills/flowpanel/internal/mapping"
)

// MaxLevel is the level drawn in the full alert colour.
const MaxLevel = 2

var (
	okColor, _    = colorful.Hex("#2ecc71")
	alertColor, _ = colorful.Hex("#e74c3c")
)

// LevelColor blends from green at level 0 to red at MaxLevel.
func LevelColor(level int) tcell.Color {
	t := float64(level) / MaxLevel
	t = max(0, min(1, t))
	r, g, b := okColor.BlendLab(alertColor, t).Clamped().RGB255()
	return tcell.NewRGBColor(int32(r), int32(g), int32(b))
}

// Panel stacks the graphs of several diagrams on one screen.
type Panel struct {
	mu     sync.Mutex
	screen tcell.Screen
	graphs []*Graph
}

// NewPanel draws on screen. The screen must already be initialized.
func NewPanel(screen tcell.Screen) *Panel {
	return &Panel{screen: screen}
}

// Graph creates the graph of one diagram. Its signature matches
// pipeline.GraphFactory.
func (p *Panel) Graph(name, container string) diagram.Graph {
	g := &Graph{panel: p, name: name, container: container, states: map[string]diagram.State{}}
	p.mu.Lock()
	p.graphs = append(p.graphs, g)
	p.mu.Unlock()
	return g
}

// Forget removes the graph of container from the panel.
func (p *Panel) Forget(container string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.graphs = slices.DeleteFunc(p.graphs, func(g *Graph) bool {
		return g.container == container
	})
}

// draw repaints every graph and shows the screen.
func (p *Panel) draw() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.screen.Clear()
	width, height := p.screen.Size()
	row := 0
	for _, g := range p.graphs {
		if row >= height {
			break
		}
		row = g.draw(p.screen, row, width, height)
		row++
	}
	p.screen.Show()
}

// Graph is the terminal drawing engine of one diagram.
type Graph struct {
	panel     *Panel
	name      string
	container string

	mu      sync.Mutex
	loaded  bool
	size    int
	options diagram.Options
	states  map[string]diagram.State
	session mapping.Session
}

// Load implements diagram.Graph. Only the document size is kept.
func (g *Graph) Load(xml string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.loaded = true
	g.size = len(xml)
	return nil
}

// ApplyOptions implements diagram.Graph.
func (g *Graph) ApplyOptions(opts diagram.Options) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.options = opts
	return nil
}

// ApplyStates implements diagram.Graph.
func (g *Graph) ApplyStates(states map[string]diagram.State) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.states = states
	return nil
}

// Refresh implements diagram.Graph.
func (g *Graph) Refresh() error {
	g.panel.draw()
	return nil
}

// SetMap implements diagram.Mapper.
func (g *Graph) SetMap(s mapping.Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.session = s
}

// UnsetMap implements diagram.Mapper.
func (g *Graph) UnsetMap() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.session = mapping.Session{}
}

// draw writes the graph from row and returns the next free row.
func (g *Graph) draw(s tcell.Screen, row, width, height int) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	header := tcell.StyleDefault.Bold(true)
	title := fmt.Sprintf("%s  zoom %s", g.name, g.options.Zoom)
	if !g.loaded {
		title += "  (not loaded)"
	}
	if g.session.Active {
		title += "  mapping " + g.session.TargetID
	}
	putString(s, 0, row, width, title, header)
	row++

	cells := make([]string, 0, len(g.states))
	for id := range g.states {
		cells = append(cells, id)
	}
	slices.Sort(cells)

	for _, id := range cells {
		if row >= height {
			break
		}
		st := g.states[id]
		style := tcell.StyleDefault.Foreground(LevelColor(st.Level))
		line := fmt.Sprintf("  %-16s level %d", id, st.Level)
		if st.HasData {
			line += fmt.Sprintf("  %.2f", st.Value)
		}
		putString(s, 0, row, width, line, style)
		row++
	}
	return row
}

func putString(s tcell.Screen, x, y, width int, text string, style tcell.Style) {
	for _, r := range text {
		if x >= width {
			return
		}
		s.SetContent(x, y, r, nil, style)
		x++
	}
}
