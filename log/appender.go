package log

import (
	"os"

	"go.uber.org/zap/zapcore"
)

// LogAppender is an output destination for encoded log entries.
// Implementations must be safe for concurrent use.
type LogAppender interface {
	zapcore.WriteSyncer

	// Close flushes pending data and releases the destination.
	Close() error
}

// ConsoleAppender writes entries to stdout without buffering.
type ConsoleAppender struct{}

// NewConsoleAppender returns a stdout appender.
func NewConsoleAppender() *ConsoleAppender {
	return &ConsoleAppender{}
}

func (ca *ConsoleAppender) Write(buf []byte) (int, error) {
	return os.Stdout.Write(buf)
}

// Sync is a no-op; stdout is unbuffered.
func (ca *ConsoleAppender) Sync() error {
	return nil
}

// Close is a no-op.
func (ca *ConsoleAppender) Close() error {
	return nil
}
