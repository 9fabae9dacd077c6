package runtime

import (
	"os"

	"github.com/rs/zerolog"
)

// newLogger builds the runtime's diagnostic logger. Debug traces are off by
// default; MYCROFT_DEBUG enables them. None of the logged events is part of
// the scheduler's observable contract.
func newLogger() zerolog.Logger {
	level := zerolog.ErrorLevel
	if os.Getenv("MYCROFT_DEBUG") != "" {
		level = zerolog.DebugLevel
	}
	return zerolog.New(os.Stderr).
		Level(level).
		With().
		Timestamp().
		Str("component", "mycroft").
		Logger()
}
