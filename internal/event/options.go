package event

import "github.com/rs/zerolog"

// BusOption configures a Bus.
type BusOption func(*busConfig)

type busConfig struct {
	log zerolog.Logger
}

func defaultBusConfig() busConfig {
	return busConfig{
		log: zerolog.Nop(),
	}
}

// WithLogger sets the logger used for swallowed errors and debug traces.
func WithLogger(l zerolog.Logger) BusOption {
	return func(c *busConfig) {
		c.log = l
	}
}
