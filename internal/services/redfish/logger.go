package redfish

import "github.com/rs/zerolog"

// leveledLogger routes retryablehttp logging into zerolog.
type leveledLogger struct {
	logger zerolog.Logger
}

func (l *leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}

func (l *leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	// Request-level chatter belongs in debug output.
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}
