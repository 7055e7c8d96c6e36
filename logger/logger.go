package logger

// Logger is the minimal structured logging interface the engine depends
// on. Implementations take alternating key/value pairs.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}

// TraceIDFunc generates a correlation id attached to audit entries.
// It should be cheap and safe for concurrent calls.
type TraceIDFunc func() string

// NullLogger discards everything; the engine default and the test logger.
type NullLogger struct{}

func NewNullLogger() *NullLogger { return &NullLogger{} }

func (n *NullLogger) Debug(msg string, keyvals ...any) {}
func (n *NullLogger) Info(msg string, keyvals ...any)  {}
func (n *NullLogger) Error(msg string, keyvals ...any) {}
