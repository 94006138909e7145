package pipeline

import (
	"context"

	"github.com/google/uuid"

	"github.com/dshills/flowpanel/internal/diagram"
	"github.com/dshills/flowpanel/internal/event"
)

// ContainerPrefix prefixes the rendering container id of every diagram.
const ContainerPrefix = "flowchart_"

func (o *Orchestrator) newDiagram(name string) *diagram.Diagram {
	container := ContainerPrefix + uuid.NewString()
	return diagram.New(name, container,
		diagram.WithGraph(o.graphs(name, container)),
		diagram.WithEvaluator(o.ruleEval),
		diagram.WithPublisher(o.publisher()),
		diagram.WithLogger(o.log),
	)
}

// publisher returns the bus as a diagram.Publisher, or nil without a bus.
func (o *Orchestrator) publisher() diagram.Publisher {
	if o.bus == nil {
		return nil
	}
	return o.bus
}

// Import replaces the whole collection with one diagram per record. A nil
// or empty slice leaves the collection empty. The new diagrams are loaded
// on the next tick.
func (o *Orchestrator) Import(ctx context.Context, recs []diagram.Record) {
	fresh := make([]*diagram.Diagram, 0, len(recs))
	for _, rec := range recs {
		d := o.newDiagram(rec.Name)
		d.Import(rec)
		fresh = append(fresh, d)
	}

	o.mu.Lock()
	old := o.diagrams
	o.diagrams = fresh
	o.mu.Unlock()

	o.releaseMapping(old)
	for _, d := range old {
		o.publish(ctx, d, event.NameDestroyed)
	}
	for _, d := range fresh {
		o.publish(ctx, d, event.NameInitialized)
	}
	o.log.Info().Int("diagrams", len(fresh)).Msg("diagrams imported")
	o.MarkSourceChanged()
}

// Add appends a diagram with the default layout document.
func (o *Orchestrator) Add(ctx context.Context, name string) *diagram.Diagram {
	d := o.newDiagram(name)
	o.mu.Lock()
	o.diagrams = append(o.diagrams, d)
	o.mu.Unlock()

	o.publish(ctx, d, event.NameInitialized)
	o.MarkSourceChanged()
	return d
}

// Remove destroys the diagram named name. It reports whether one was
// removed; unlike Get it never falls back to another diagram.
func (o *Orchestrator) Remove(ctx context.Context, name string) bool {
	o.mu.Lock()
	var removed *diagram.Diagram
	for i, d := range o.diagrams {
		if d.Name() == name {
			removed = d
			o.diagrams = append(o.diagrams[:i:i], o.diagrams[i+1:]...)
			break
		}
	}
	o.mu.Unlock()

	if removed == nil {
		return false
	}
	o.releaseMapping([]*diagram.Diagram{removed})
	o.publish(ctx, removed, event.NameDestroyed)
	return true
}

// Get returns the diagram named name. When no diagram has that name the
// first diagram is returned, which keeps single-diagram panels working
// with any name. ok is false only for an empty collection.
func (o *Orchestrator) Get(name string) (*diagram.Diagram, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.diagrams) == 0 {
		return nil, false
	}
	for _, d := range o.diagrams {
		if d.Name() == name {
			return d, true
		}
	}
	o.log.Debug().Str("name", name).Msg("no diagram with that name, using the first")
	return o.diagrams[0], true
}

// Diagrams returns the managed diagrams in order.
func (o *Orchestrator) Diagrams() []*diagram.Diagram {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*diagram.Diagram(nil), o.diagrams...)
}

// Records returns the persisted record of every diagram, index-aligned
// with Diagrams.
func (o *Orchestrator) Records() []diagram.Record {
	diagrams := o.Diagrams()
	out := make([]diagram.Record, len(diagrams))
	for i, d := range diagrams {
		out[i] = d.Record()
	}
	return out
}

// Count returns the number of managed diagrams.
func (o *Orchestrator) Count() int {
	if o == nil {
		return 0
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.diagrams)
}

// SetCurrent selects the diagram used by mapping and the editor.
func (o *Orchestrator) SetCurrent(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.current = name
}

// Current returns the diagram used by mapping and the editor.
func (o *Orchestrator) Current() (*diagram.Diagram, bool) {
	o.mu.Lock()
	name := o.current
	o.mu.Unlock()
	return o.Get(name)
}

// releaseMapping ends the mapping session when it is held by one of
// diagrams.
func (o *Orchestrator) releaseMapping(diagrams []*diagram.Diagram) {
	for _, d := range diagrams {
		if d.Mapping().Active {
			o.slot.Deactivate()
			d.UnsetMap()
		}
	}
}
