// Package broadcast delivers world events to observers, fire-and-forget.
// Consumers may be absent; nothing in the engine waits on delivery.
package broadcast

import "log/slog"

// Sink receives world events after the corresponding store mutation and
// log entry have committed.
type Sink interface {
	Emit(event string, payload any)
}

// LogSink writes events to the structured log. Used for headless runs and
// tests.
type LogSink struct{}

// Emit implements Sink.
func (LogSink) Emit(event string, payload any) {
	slog.Debug("broadcast", "event", event, "payload", payload)
}

// Fanout emits every event to all wrapped sinks in order.
type Fanout []Sink

// Emit implements Sink.
func (f Fanout) Emit(event string, payload any) {
	for _, s := range f {
		s.Emit(event, payload)
	}
}
