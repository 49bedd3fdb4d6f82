package gofiber

import "github.com/rs/zerolog"

// fiberEvent returns a log event pre-populated with the fiber's identity.
// Uses zerolog for structured logging so a fiber panic log line carries a
// queryable fiber_id field instead of a formatted string.
func fiberEvent(logger zerolog.Logger, f *Fiber) *zerolog.Event {
	return logger.Log().Uint64("fiber_id", f.id)
}
