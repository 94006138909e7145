// Package mapping tracks the single interactive link between a UI target
// and a diagram element.
//
// There is exactly one Slot per panel. Activating a session atomically
// replaces the previous one, and the replaced target is told so.
package mapping

import (
	"reflect"
	"sync"

	"github.com/rs/zerolog"
)

// Target is something that can be linked to a diagram element, such as a
// rule waiting for the user to pick a cell.
type Target interface {
	MappingID() string
}

// Deactivator is implemented by targets that want to know when their
// session ends, either explicitly or by being replaced.
type Deactivator interface {
	MappingDeactivated(s Session)
}

// Session is the state of the slot. The zero value is an inactive session.
type Session struct {
	Active   bool
	Target   Target
	TargetID string
	Scope    string
}

// Is reports whether the session is active for t. Targets are compared by
// identity; two targets sharing a MappingID are still different targets.
// Only targets whose type is not comparable fall back to their id.
func (s Session) Is(t Target) bool {
	return s.Active && sameTarget(s.Target, t)
}

func sameTarget(a, b Target) bool {
	if a == nil || b == nil {
		return false
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) {
		return false
	}
	if ta.Comparable() {
		return a == b
	}
	return a.MappingID() == b.MappingID()
}

// Slot holds at most one active session.
type Slot struct {
	mu      sync.Mutex
	current Session
	log     zerolog.Logger
}

// NewSlot returns an empty slot.
func NewSlot(log zerolog.Logger) *Slot {
	return &Slot{log: log}
}

// Activate makes target the active session and returns the one it
// replaced. The replaced target, if any, is notified after the swap.
func (s *Slot) Activate(target Target, scope string) (prev Session) {
	next := Session{Active: true, Target: target, Scope: scope}
	if target != nil {
		next.TargetID = target.MappingID()
	}

	s.mu.Lock()
	prev = s.current
	s.current = next
	s.mu.Unlock()

	s.log.Debug().Str("target", next.TargetID).Str("scope", scope).Msg("mapping activated")
	s.notify(prev)
	return prev
}

// Deactivate clears the slot and returns the session that was active.
// Deactivating an empty slot is a no-op.
func (s *Slot) Deactivate() Session {
	s.mu.Lock()
	prev := s.current
	s.current = Session{}
	s.mu.Unlock()

	if prev.Active {
		s.log.Debug().Str("target", prev.TargetID).Msg("mapping deactivated")
	}
	s.notify(prev)
	return prev
}

// Current returns the active session, or the zero Session.
func (s *Slot) Current() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// IsMapping reports whether any session is active when target is nil, or
// whether the active session belongs to target otherwise.
func (s *Slot) IsMapping(target Target) bool {
	cur := s.Current()
	if target == nil {
		return cur.Active
	}
	return cur.Is(target)
}

func (s *Slot) notify(prev Session) {
	if !prev.Active {
		return
	}
	d, ok := prev.Target.(Deactivator)
	if !ok {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("target", prev.TargetID).Msg("mapping deactivation hook panicked")
		}
	}()
	d.MappingDeactivated(prev)
}
