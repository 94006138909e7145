package pipeline

import (
	"context"

	"github.com/pkg/errors"

	"github.com/dshills/flowpanel/internal/editor"
	"github.com/dshills/flowpanel/internal/mapping"
)

// SetMap starts a mapping session for target on the current diagram. Any
// previous session is replaced and its target notified.
func (o *Orchestrator) SetMap(target mapping.Target, scope string) error {
	d, ok := o.Current()
	if !ok {
		return ErrNoDiagram
	}
	prev := o.slot.Activate(target, scope)
	if prev.Active {
		for _, other := range o.Diagrams() {
			if other.Mapping().Active {
				other.UnsetMap()
			}
		}
	}
	d.SetMap(o.slot.Current())
	return nil
}

// UnsetMap ends the mapping session, if any.
func (o *Orchestrator) UnsetMap() {
	o.slot.Deactivate()
	for _, d := range o.Diagrams() {
		if d.Mapping().Active {
			d.UnsetMap()
		}
	}
}

// IsMapping reports whether any mapping session is active (nil target) or
// whether target holds it.
func (o *Orchestrator) IsMapping(target mapping.Target) bool {
	return o.slot.IsMapping(target)
}

// MappingSession returns the active mapping session.
func (o *Orchestrator) MappingSession() mapping.Session {
	return o.slot.Current()
}

// OpenEditor opens the external editor on the current diagram.
func (o *Orchestrator) OpenEditor(ctx context.Context, l editor.Launcher) error {
	d, ok := o.Current()
	if !ok {
		return ErrNoDiagram
	}
	opts := d.Options()
	return o.editor.Open(ctx, editor.URL(opts.EditorURL, opts.EditorTheme), l)
}

// EditorSession returns the editor session.
func (o *Orchestrator) EditorSession() *editor.Session {
	return o.editor
}

// CurrentDocument implements editor.Controller.
func (o *Orchestrator) CurrentDocument() (string, error) {
	d, ok := o.Current()
	if !ok {
		return "", ErrNoDiagram
	}
	return d.XML(), nil
}

// ApplyDocument implements editor.Controller. It redraws the current
// diagram with xml, marks the source changed and renders synchronously.
// It must not be called from inside a tick.
func (o *Orchestrator) ApplyDocument(ctx context.Context, xml string) error {
	d, ok := o.Current()
	if !ok {
		return ErrNoDiagram
	}
	if err := d.Redraw(ctx, xml); err != nil {
		return errors.Wrap(err, "redraw edited document")
	}
	o.MarkSourceChanged()
	o.Render(ctx)
	return nil
}
