package app

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// brokerLogger adapts zerolog to watermill.LoggerAdapter.
type brokerLogger struct {
	log zerolog.Logger
}

func newBrokerLogger(l zerolog.Logger) watermill.LoggerAdapter {
	return brokerLogger{log: l}
}

func (b brokerLogger) Error(msg string, err error, fields watermill.LogFields) {
	b.log.Error().Err(err).Fields(map[string]any(fields)).Msg(msg)
}

func (b brokerLogger) Info(msg string, fields watermill.LogFields) {
	b.log.Info().Fields(map[string]any(fields)).Msg(msg)
}

func (b brokerLogger) Debug(msg string, fields watermill.LogFields) {
	b.log.Debug().Fields(map[string]any(fields)).Msg(msg)
}

func (b brokerLogger) Trace(msg string, fields watermill.LogFields) {
	b.log.Trace().Fields(map[string]any(fields)).Msg(msg)
}

func (b brokerLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return brokerLogger{log: b.log.With().Fields(map[string]any(fields)).Logger()}
}
