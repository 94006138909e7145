package event

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dshills/flowpanel/internal/event/dispatch"
)

// slotTable holds one subscription handle per channel for a single observer.
type slotTable [channelCount]*Subscription

func (t *slotTable) empty() bool {
	for _, s := range t {
		if s != nil {
			return false
		}
	}
	return true
}

// Bus is the channel registry. It maps each (kind, name) channel to a
// lazily created stream and keeps a side-table of subscription handles
// keyed by observer UID.
//
// Every operation except the classification step of Publish logs and
// swallows its failures.
type Bus struct {
	mu      sync.Mutex
	streams map[Channel]*stream
	slots   map[string]*slotTable

	exec *dispatch.Executor
	log  zerolog.Logger

	published      atomic.Uint64
	delivered      atomic.Uint64
	listenerErrors atomic.Uint64
	listenerPanics atomic.Uint64
}

// NewBus creates a new event bus with the given options.
func NewBus(opts ...BusOption) *Bus {
	config := defaultBusConfig()
	for _, opt := range opts {
		opt(&config)
	}

	b := &Bus{
		streams: make(map[Channel]*stream),
		slots:   make(map[string]*slotTable),
		log:     config.log,
	}
	b.exec = dispatch.NewExecutor(dispatch.WithPanicHook(func(ev any, v any, stack []byte) {
		b.log.Error().
			Interface("panic", v).
			Str("entity", fmt.Sprintf("%T", ev)).
			Bytes("stack", stack).
			Msg("listener panicked")
	}))
	return b
}

// SubscribeAll binds obs to every channel it has a capability for.
// Each channel is attempted independently.
func (b *Bus) SubscribeAll(obs Observer) {
	if obs == nil {
		b.log.Error().Err(ErrNilObserver).Msg("subscribe all")
		return
	}
	b.log.Debug().Str("observer", obs.UID()).Msg("subscribe all")
	for _, ch := range Channels() {
		b.Subscribe(obs, ch)
	}
}

// UnsubscribeAll tears down every binding of obs.
func (b *Bus) UnsubscribeAll(obs Observer) {
	if obs == nil {
		return
	}
	b.log.Debug().Str("observer", obs.UID()).Msg("unsubscribe all")
	for _, ch := range Channels() {
		b.Unsubscribe(obs, ch)
	}
}

// Subscribe binds obs to ch and reports whether a binding was made.
// An observer without the capability for ch is skipped silently. Any
// existing binding of the same pair is cancelled first.
func (b *Bus) Subscribe(obs Observer, ch Channel) (bound bool) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Str("channel", ch.String()).Msg("subscribe failed")
			bound = false
		}
	}()

	if obs == nil {
		b.log.Error().Err(ErrNilObserver).Str("channel", ch.String()).Msg("subscribe failed")
		return false
	}
	if !ch.Valid() {
		b.log.Error().Err(ErrInvalidChannel).Str("channel", ch.String()).Msg("subscribe failed")
		return false
	}

	uid := obs.UID()
	listener := listenerFor(obs, ch)
	if listener == nil {
		// Capability missing: not an error, but an earlier binding of the
		// same pair must not survive.
		b.Unsubscribe(obs, ch)
		return false
	}

	b.mu.Lock()
	st := b.streamLocked(ch)
	table := b.slots[uid]
	if table == nil {
		table = &slotTable{}
		b.slots[uid] = table
	}
	prev := table[ch.index()]
	sub := newSubscription(uuid.NewString(), ch, uid, listener, st)
	table[ch.index()] = sub
	st.add(sub)
	b.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}

	b.log.Debug().
		Str("observer", uid).
		Str("hook", ch.HookName()).
		Str("slot", ch.String()).
		Msg("subscribed")
	return true
}

// Unsubscribe cancels the binding of obs to ch. Missing bindings are a
// no-op.
func (b *Bus) Unsubscribe(obs Observer, ch Channel) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Str("channel", ch.String()).Msg("unsubscribe failed")
		}
	}()

	if obs == nil || !ch.Valid() {
		return
	}
	uid := obs.UID()

	b.mu.Lock()
	var sub *Subscription
	if table := b.slots[uid]; table != nil {
		sub = table[ch.index()]
		table[ch.index()] = nil
		if table.empty() {
			delete(b.slots, uid)
		}
	}
	b.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
}

// Publish delivers e to every current subscriber of (e.Kind(), name).
// Delivery is synchronous and completes before Publish returns; listener
// failures are logged and do not stop delivery to the others.
//
// The only error returned is a *ClassificationError, for a nil entity or
// a kind outside the enumeration.
func (b *Bus) Publish(ctx context.Context, e Entity, name Name) error {
	kind, ok := classify(e)
	if !ok {
		return &ClassificationError{Entity: e, Name: name}
	}

	ch := Channel{Kind: kind, Name: name}
	if !ch.Valid() {
		b.log.Error().Err(ErrInvalidChannel).Str("channel", ch.String()).Msg("publish dropped")
		return nil
	}

	b.log.Debug().Str("channel", ch.String()).Str("entity", fmt.Sprintf("%T", e)).Msg("publish")
	b.deliver(ctx, ch, e)
	return nil
}

// Acknowledge delivers a nil entity on (kind, name). It signals a
// channel-level tick without naming an object.
func (b *Bus) Acknowledge(ctx context.Context, kind Kind, name Name) {
	ch := Channel{Kind: kind, Name: name}
	if !ch.Valid() {
		b.log.Error().Err(ErrInvalidChannel).Str("channel", ch.String()).Msg("acknowledge dropped")
		return
	}
	b.deliver(ctx, ch, nil)
}

func (b *Bus) deliver(ctx context.Context, ch Channel, e Entity) {
	b.mu.Lock()
	st := b.streamLocked(ch)
	b.mu.Unlock()

	b.published.Add(1)
	for _, sub := range st.snapshot() {
		// A listener earlier in the loop may have cancelled this one.
		if !sub.IsActive() {
			continue
		}
		listener := sub.listener
		out := b.exec.Run(ctx, e, func(ctx context.Context) error {
			return listener(ctx, e)
		})

		switch {
		case out.Panicked():
			b.listenerPanics.Add(1)
		case out.Skipped:
			b.log.Debug().Err(out.Err).Str("channel", ch.String()).Msg("delivery cancelled")
			return
		case out.Err != nil:
			b.listenerErrors.Add(1)
			b.log.Error().
				Err(out.Err).
				Str("channel", ch.String()).
				Str("observer", sub.observer).
				Msg("listener failed")
		default:
			b.delivered.Add(1)
		}
	}
}

// classify resolves the kind of e. A nil entity, a kind outside the
// enumeration, or a Kind method that panics all fail classification.
func classify(e Entity) (kind Kind, ok bool) {
	if e == nil {
		return 0, false
	}
	defer func() {
		if r := recover(); r != nil {
			kind, ok = 0, false
		}
	}()
	kind = e.Kind()
	return kind, kind.Valid()
}

// streamLocked returns the stream of ch, creating it if needed.
// The caller must hold b.mu.
func (b *Bus) streamLocked(ch Channel) *stream {
	st, ok := b.streams[ch]
	if !ok {
		st = newStream(ch)
		b.streams[ch] = st
	}
	return st
}

// Subscriptions returns the channels uid is currently bound to.
func (b *Bus) Subscriptions(uid string) []Channel {
	b.mu.Lock()
	defer b.mu.Unlock()

	table := b.slots[uid]
	if table == nil {
		return nil
	}
	var out []Channel
	for _, sub := range table {
		if sub != nil && sub.IsActive() {
			out = append(out, sub.channel)
		}
	}
	return out
}

// HasStream reports whether ch already has a stream.
func (b *Bus) HasStream(ch Channel) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.streams[ch]
	return ok
}

// Stats returns current bus statistics.
func (b *Bus) Stats() Stats {
	b.mu.Lock()
	streams := len(b.streams)
	active := 0
	for _, st := range b.streams {
		active += st.len()
	}
	b.mu.Unlock()

	return Stats{
		Published:           b.published.Load(),
		Delivered:           b.delivered.Load(),
		ListenerErrors:      b.listenerErrors.Load(),
		ListenerPanics:      b.listenerPanics.Load(),
		Streams:             streams,
		ActiveSubscriptions: active,
	}
}
