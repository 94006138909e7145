package diagram

import "github.com/dshills/flowpanel/internal/mapping"

// Graph is the drawing engine behind one diagram. Calls are synchronous;
// a Graph is only ever driven by its own Diagram.
type Graph interface {
	// Load replaces the displayed layout document.
	Load(xml string) error

	// ApplyOptions applies display options such as zoom and grid.
	ApplyOptions(opts Options) error

	// ApplyStates paints the committed visual states, keyed by cell id.
	ApplyStates(states map[string]State) error

	// Refresh repaints from the current state.
	Refresh() error
}

// Mapper is implemented by engines that highlight cells while a mapping
// session is active.
type Mapper interface {
	SetMap(s mapping.Session)
	UnsetMap()
}

// NopGraph discards everything.
type NopGraph struct{}

func (NopGraph) Load(string) error                  { return nil }
func (NopGraph) ApplyOptions(Options) error         { return nil }
func (NopGraph) ApplyStates(map[string]State) error { return nil }
func (NopGraph) Refresh() error                     { return nil }
