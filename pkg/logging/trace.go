package logging

import "log/slog"

// EnableTrace gates per-sample trace logs. Off by default; position streams
// arrive every second and would swamp the debug log. Set AUDIOGUIA_TRACE=1
// to turn it on.
var EnableTrace = false

// Trace logs a message at DEBUG level, but only if EnableTrace is true.
func Trace(logger *slog.Logger, msg string, args ...any) {
	if EnableTrace {
		logger.Debug(msg, args...)
	}
}
