package pipeline

import (
	"errors"
	"fmt"
)

// ErrNoDiagram is returned by interactive operations on an empty
// collection.
var ErrNoDiagram = errors.New("no managed diagram")

// Stage identifies one step of a render tick.
type Stage uint8

const (
	StageSource Stage = iota + 1
	StageOptions
	StageRules
	StageData
	StagePost
	StageRefresh
	StageEvaluate
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageSource:
		return "source"
	case StageOptions:
		return "options"
	case StageRules:
		return "rules"
	case StageData:
		return "data"
	case StagePost:
		return "post"
	case StageRefresh:
		return "refresh"
	case StageEvaluate:
		return "evaluate"
	default:
		return "unknown"
	}
}

// StageError is a failure of one diagram in one stage.
type StageError struct {
	Stage   Stage
	Diagram string
	Panic   bool
	Err     error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	if e.Panic {
		return fmt.Sprintf("%s stage: diagram %q panicked: %v", e.Stage, e.Diagram, e.Err)
	}
	return fmt.Sprintf("%s stage: diagram %q: %v", e.Stage, e.Diagram, e.Err)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error {
	return e.Err
}
