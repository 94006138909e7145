package config

import "errors"

// Configuration errors.
var (
	// ErrInvalidInterval is returned for a non-positive render or drag interval.
	ErrInvalidInterval = errors.New("interval must be positive")

	// ErrMissingTopic is returned when a broker topic is empty.
	ErrMissingTopic = errors.New("topic must not be empty")

	// ErrInvalidEnv is returned when an environment override cannot be parsed.
	ErrInvalidEnv = errors.New("invalid environment override")
)
