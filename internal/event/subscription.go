package event

import (
	"sync"
	"sync/atomic"
)

// Subscription is the handle of one (observer, channel) binding.
// The bus keeps it in its side-table so the binding can be torn down by
// observer identity alone.
type Subscription struct {
	id       string
	channel  Channel
	observer string
	listener Listener
	stream   *stream
	active   atomic.Bool
}

func newSubscription(id string, ch Channel, observer string, l Listener, st *stream) *Subscription {
	s := &Subscription{
		id:       id,
		channel:  ch,
		observer: observer,
		listener: l,
		stream:   st,
	}
	s.active.Store(true)
	return s
}

// ID returns the unique subscription identifier.
func (s *Subscription) ID() string {
	return s.id
}

// Channel returns the bound channel.
func (s *Subscription) Channel() Channel {
	return s.channel
}

// ObserverUID returns the UID of the bound observer.
func (s *Subscription) ObserverUID() string {
	return s.observer
}

// IsActive returns true until the subscription is cancelled.
func (s *Subscription) IsActive() bool {
	return s.active.Load()
}

// Cancel detaches the subscription from its stream. Cancelling twice is a
// no-op.
func (s *Subscription) Cancel() {
	if !s.active.CompareAndSwap(true, false) {
		return
	}
	if s.stream != nil {
		s.stream.remove(s)
	}
}

// stream is the multicast list of one channel. Streams are created lazily
// and live as long as the bus.
type stream struct {
	channel Channel

	mu   sync.RWMutex
	subs []*Subscription
}

func newStream(ch Channel) *stream {
	return &stream{channel: ch}
}

func (s *stream) add(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, sub)
}

func (s *stream) remove(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.subs {
		if cur == sub {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}

// snapshot returns the current subscribers in subscription order.
func (s *stream) snapshot() []*Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.subs) == 0 {
		return nil
	}
	out := make([]*Subscription, len(s.subs))
	copy(out, s.subs)
	return out
}

func (s *stream) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
