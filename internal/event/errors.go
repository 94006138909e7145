package event

import (
	"errors"
	"fmt"
)

// Sentinel errors for the event bus.
var (
	// ErrUnknownEntity is returned by Publish when the entity does not
	// belong to any enumerated kind. It signals a programming error: a
	// domain type was added without extending the kind enumeration.
	ErrUnknownEntity = errors.New("unknown object instance")

	// ErrInvalidChannel is logged when a channel outside the fixed
	// enumeration is used.
	ErrInvalidChannel = errors.New("invalid channel")

	// ErrNilObserver is logged when a nil observer is bound.
	ErrNilObserver = errors.New("observer cannot be nil")
)

// ClassificationError reports an entity that Publish could not map to a
// channel.
type ClassificationError struct {
	// Entity is the offending value.
	Entity any

	// Name is the event name the caller tried to publish.
	Name Name
}

// Error implements the error interface.
func (e *ClassificationError) Error() string {
	return fmt.Sprintf("%s: %T for %q", ErrUnknownEntity.Error(), e.Entity, e.Name.String())
}

// Is allows errors.Is to match ClassificationError with ErrUnknownEntity.
func (e *ClassificationError) Is(target error) bool {
	return target == ErrUnknownEntity
}
