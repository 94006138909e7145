package event

import (
	"context"
	"strings"
)

// Kind identifies the domain entity family a channel carries.
type Kind uint8

const (
	// KindRule is a mapping rule.
	KindRule Kind = iota + 1

	// KindFlowchart is a managed diagram.
	KindFlowchart

	// KindMetric is a metric series.
	KindMetric

	// KindState is a computed visual state of a diagram cell.
	KindState

	// KindGraph is the drawing-engine view of a diagram.
	KindGraph
)

// Kinds lists every entity kind in channel order.
var Kinds = [...]Kind{KindRule, KindFlowchart, KindMetric, KindState, KindGraph}

// String returns the kind name used in channel slot names.
func (k Kind) String() string {
	switch k {
	case KindRule:
		return "rule"
	case KindFlowchart:
		return "flowchart"
	case KindMetric:
		return "metric"
	case KindState:
		return "state"
	case KindGraph:
		return "graph"
	default:
		return "unknown"
	}
}

// Valid reports whether k is one of the enumerated kinds.
func (k Kind) Valid() bool {
	return k >= KindRule && k <= KindGraph
}

// Name identifies a lifecycle event.
type Name uint8

const (
	// NameChanged is emitted when an entity's configuration changed.
	NameChanged Name = iota + 1

	// NameRefreshed is emitted after an entity was recomputed or repainted.
	NameRefreshed

	// NameInitialized is emitted once an entity is ready.
	NameInitialized

	// NameDestroyed is emitted when an entity is removed.
	NameDestroyed
)

// Names lists every event name in channel order.
var Names = [...]Name{NameChanged, NameRefreshed, NameInitialized, NameDestroyed}

// String returns the event name used in channel slot names.
func (n Name) String() string {
	switch n {
	case NameChanged:
		return "changed"
	case NameRefreshed:
		return "refreshed"
	case NameInitialized:
		return "initialized"
	case NameDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Valid reports whether n is one of the enumerated names.
func (n Name) Valid() bool {
	return n >= NameChanged && n <= NameDestroyed
}

// channelCount is the size of the fixed channel space.
const channelCount = len(Kinds) * len(Names)

// Channel is the (kind, name) key of one multicast stream.
type Channel struct {
	Kind Kind
	Name Name
}

// Valid reports whether both parts of the channel are enumerated.
func (c Channel) Valid() bool {
	return c.Kind.Valid() && c.Name.Valid()
}

// String returns the slot name, e.g. "rule$changed".
func (c Channel) String() string {
	return c.Kind.String() + "$" + c.Name.String()
}

// HookName returns the conventional capability hook name for the channel,
// e.g. "getRule$changed".
func (c Channel) HookName() string {
	kind := c.Kind.String()
	return "get" + strings.ToUpper(kind[:1]) + kind[1:] + "$" + c.Name.String()
}

// index returns the channel's position in the fixed slot table.
// Only meaningful for valid channels.
func (c Channel) index() int {
	return int(c.Kind-KindRule)*len(Names) + int(c.Name-NameChanged)
}

// Channels returns all channels, kinds major, names minor.
func Channels() []Channel {
	out := make([]Channel, 0, channelCount)
	for _, k := range Kinds {
		for _, n := range Names {
			out = append(out, Channel{Kind: k, Name: n})
		}
	}
	return out
}

// ParseChannel parses a slot name such as "metric$refreshed".
func ParseChannel(s string) (Channel, bool) {
	kind, name, ok := strings.Cut(s, "$")
	if !ok {
		return Channel{}, false
	}
	var ch Channel
	for _, k := range Kinds {
		if k.String() == kind {
			ch.Kind = k
		}
	}
	for _, n := range Names {
		if n.String() == name {
			ch.Name = n
		}
	}
	return ch, ch.Valid()
}

// Entity is implemented by every domain object that can be published.
// The kind is fixed at construction.
type Entity interface {
	Kind() Kind
}

// Listener receives entities published on a channel. The entity is nil
// for channel-level acknowledgements.
type Listener func(ctx context.Context, e Entity) error

// Observer is anything that can be bound to channels. The UID keys the
// bus side-table of subscription handles.
type Observer interface {
	UID() string
}

// RuleObserver exposes listeners for rule channels.
// Returning nil means the name is not supported.
type RuleObserver interface {
	RuleListener(name Name) Listener
}

// FlowchartObserver exposes listeners for flowchart channels.
type FlowchartObserver interface {
	FlowchartListener(name Name) Listener
}

// MetricObserver exposes listeners for metric channels.
type MetricObserver interface {
	MetricListener(name Name) Listener
}

// StateObserver exposes listeners for state channels.
type StateObserver interface {
	StateListener(name Name) Listener
}

// GraphObserver exposes listeners for graph channels.
type GraphObserver interface {
	GraphListener(name Name) Listener
}

// listenerFor resolves the capability hook of obs for ch.
// It returns nil when obs does not support the channel.
func listenerFor(obs Observer, ch Channel) Listener {
	switch ch.Kind {
	case KindRule:
		if o, ok := obs.(RuleObserver); ok {
			return o.RuleListener(ch.Name)
		}
	case KindFlowchart:
		if o, ok := obs.(FlowchartObserver); ok {
			return o.FlowchartListener(ch.Name)
		}
	case KindMetric:
		if o, ok := obs.(MetricObserver); ok {
			return o.MetricListener(ch.Name)
		}
	case KindState:
		if o, ok := obs.(StateObserver); ok {
			return o.StateListener(ch.Name)
		}
	case KindGraph:
		if o, ok := obs.(GraphObserver); ok {
			return o.GraphListener(ch.Name)
		}
	}
	return nil
}

// Stats contains event bus statistics.
type Stats struct {
	// Published is the number of Publish and Acknowledge calls delivered.
	Published uint64

	// Delivered is the number of successful listener executions.
	Delivered uint64

	// ListenerErrors is the number of listeners that returned errors.
	ListenerErrors uint64

	// ListenerPanics is the number of listeners that panicked.
	ListenerPanics uint64

	// Streams is the number of channels with a stream.
	Streams int

	// ActiveSubscriptions is the number of bound (observer, channel) pairs.
	ActiveSubscriptions int
}
