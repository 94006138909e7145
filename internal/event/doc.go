// Package event provides the typed publish/subscribe bus of the panel.
//
// The bus lets rules, flowcharts, metrics, states and graphs announce
// lifecycle events without knowing who listens. A channel is the pair
// (Kind, Name); there are five kinds and four names, so the channel space is
// fixed at twenty. Each channel owns a multicast stream created on first use
// and kept for the lifetime of the bus.
//
// # Subscribing
//
// Observers opt into channels by capability. An observer implements
// Observer (a UID) plus any of RuleObserver, FlowchartObserver,
// MetricObserver, StateObserver and GraphObserver. For each channel the bus
// asks the matching capability for a Listener; a missing capability or a nil
// listener simply skips that channel.
//
//	bus := event.NewBus(event.WithLogger(log))
//	bus.SubscribeAll(panel)   // binds every supported channel
//	defer bus.UnsubscribeAll(panel)
//
// Subscription handles are kept in a side-table keyed by observer UID, one
// slot per channel, so re-subscribing replaces the previous binding instead of
// duplicating delivery.
//
// # Publishing
//
// Every domain object carries its Kind. Publish classifies the entity by that
// kind and delivers it synchronously to the current subscribers:
//
//	if err := bus.Publish(ctx, rule, event.NameChanged); err != nil {
//	    // only ErrUnknownEntity: the entity kind is not enumerated
//	}
//
// Acknowledge publishes a nil entity on a channel named directly, for
// "something of this kind changed" signals.
//
// # Failures
//
// Listener errors and panics are logged and counted in Stats; they never stop
// delivery to other listeners and never reach the publisher. The one failure
// that does reach the caller is a classification error, which indicates a
// missing enumeration entry rather than a runtime condition.
//
// # Forwarding
//
// Forwarder is an observer bound to every channel that republishes each
// delivery as a JSON envelope on a Watermill publisher.
package event
