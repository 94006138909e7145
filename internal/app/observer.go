package app

import (
	"context"

	"github.com/dshills/flowpanel/internal/event"
)

// UID implements event.Observer.
func (app *Application) UID() string { return "app" }

// containerOf is implemented by diagrams.
type containerOf interface {
	Container() string
}

// FlowchartListener drops the preview of destroyed diagrams.
func (app *Application) FlowchartListener(name event.Name) event.Listener {
	if name != event.NameDestroyed || app.panel == nil {
		return nil
	}
	return func(_ context.Context, e event.Entity) error {
		if d, ok := e.(containerOf); ok {
			app.panel.Forget(d.Container())
		}
		return nil
	}
}
