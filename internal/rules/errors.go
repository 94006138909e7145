package rules

import "errors"

var (
	// ErrEvaluatorClosed is returned by a closed LuaEvaluator.
	ErrEvaluatorClosed = errors.New("evaluator closed")

	// ErrBadLevel is returned when a script yields something other than a
	// number, boolean or nil.
	ErrBadLevel = errors.New("script did not return a level")
)
