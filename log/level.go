package log

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// Level defines the severity of a log entry. Higher values are more severe.
type Level int8

const (
	// TraceLevel is for per-record diagnostics such as decoded frames.
	TraceLevel Level = iota + 1
	// DebugLevel is for state transitions useful while troubleshooting.
	DebugLevel
	// InfoLevel is for lifecycle events (sessions, lobbies, transports).
	InfoLevel
	// WarnLevel is for recoverable problems such as dropped sends.
	WarnLevel
	// ErrorLevel is for failed operations.
	ErrorLevel
	// FatalLevel terminates the process after the entry is written.
	FatalLevel
)

// String returns the upper-case level name.
func (l Level) String() string {
	switch l {
	case TraceLevel:
		return "TRACE"
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name to a Level, case-insensitively.
// Unrecognized input yields InfoLevel.
func ParseLevel(levelStr string) Level {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "TRACE":
		return TraceLevel
	case "DEBUG":
		return DebugLevel
	case "INFO":
		return InfoLevel
	case "WARN", "WARNING":
		return WarnLevel
	case "ERROR":
		return ErrorLevel
	case "FATAL":
		return FatalLevel
	}
	return InfoLevel
}

// UnmarshalText lets configuration decoders accept level names.
func (l *Level) UnmarshalText(text []byte) error {
	*l = ParseLevel(string(text))
	return nil
}

// MarshalText returns the level name.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// zapTraceLevel sits one step below zap's debug level.
const zapTraceLevel = zapcore.DebugLevel - 1

func (l Level) zap() zapcore.Level {
	switch l {
	case TraceLevel:
		return zapTraceLevel
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	case FatalLevel:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func fromZap(l zapcore.Level) Level {
	switch {
	case l <= zapTraceLevel:
		return TraceLevel
	case l == zapcore.DebugLevel:
		return DebugLevel
	case l == zapcore.InfoLevel:
		return InfoLevel
	case l == zapcore.WarnLevel:
		return WarnLevel
	case l < zapcore.FatalLevel:
		return ErrorLevel
	default:
		return FatalLevel
	}
}

// encodeLevel writes the same level names that Level.String produces.
func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(fromZap(l).String())
}
