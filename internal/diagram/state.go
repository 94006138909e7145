package diagram

import "github.com/dshills/flowpanel/internal/event"

// State is the computed visual state of one cell.
type State struct {
	CellID  string
	Level   int
	Value   float64
	HasData bool
	RuleUID string
}

// Kind implements event.Entity.
func (State) Kind() event.Kind { return event.KindState }

// UID identifies the state by its cell.
func (s State) UID() string { return s.CellID }

// GraphRef names the drawing engine of a diagram on the bus.
type GraphRef struct {
	DiagramUID string
	Name       string
}

// Kind implements event.Entity.
func (GraphRef) Kind() event.Kind { return event.KindGraph }

// UID returns the owning diagram's UID.
func (g GraphRef) UID() string { return g.DiagramUID }
