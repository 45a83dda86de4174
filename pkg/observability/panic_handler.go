package observability

import "runtime/debug"

// RecoverPanic recovers from a panic and logs it with the stack trace.
// Intended for defer statements in background goroutines (cron jobs)
// where a panic must not take down the server. The panic is not
// re-raised.
func RecoverPanic(logger *Logger, context string) {
	if r := recover(); r != nil {
		logger.WithField("panic", r).
			WithField("stack", string(debug.Stack())).
			WithField("context", context).
			Error("PANIC recovered")
	}
}
