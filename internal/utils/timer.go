package utils

import (
	"time"

	"github.com/rs/zerolog"
)

// SlowOperation is the duration above which a timed operation logs a warning.
const SlowOperation = 30 * time.Minute

// OperationTimer measures an operation in a defer-friendly way:
//
//	done := utils.OperationTimer("daily_summary", log)
//	defer done()
func OperationTimer(operation string, log zerolog.Logger) func() time.Duration {
	start := time.Now()

	return func() time.Duration {
		duration := time.Since(start)

		log.Debug().
			Str("operation", operation).
			Dur("duration_ms", duration).
			Msg("Operation completed")

		if duration > SlowOperation {
			log.Warn().
				Str("operation", operation).
				Dur("duration", duration).
				Msg("Slow operation detected")
		}
		return duration
	}
}
