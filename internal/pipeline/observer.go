package pipeline

import (
	"context"

	"github.com/dshills/flowpanel/internal/event"
)

// UID implements event.Observer.
func (o *Orchestrator) UID() string { return o.uid }

// RuleListener turns rule changes on the bus into a rules mark.
func (o *Orchestrator) RuleListener(name event.Name) event.Listener {
	switch name {
	case event.NameChanged, event.NameInitialized, event.NameDestroyed:
		return func(context.Context, event.Entity) error {
			o.MarkRulesChanged()
			return nil
		}
	}
	return nil
}

// MetricListener turns metric updates on the bus into a data mark.
func (o *Orchestrator) MetricListener(name event.Name) event.Listener {
	switch name {
	case event.NameChanged, event.NameRefreshed:
		return func(context.Context, event.Entity) error {
			o.MarkDataChanged()
			return nil
		}
	}
	return nil
}
