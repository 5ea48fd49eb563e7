package log

import "go.uber.org/zap"

// Logger is the structured logging contract used across the server.
type Logger interface {
	Trace() *LogEvent
	Debug() *LogEvent
	Info() *LogEvent
	Warn() *LogEvent
	Error() *LogEvent
	Fatal() *LogEvent
}

var _ Logger = (*ZapLogger)(nil)

var _defaultLogger *ZapLogger

func init() {
	// Console only until Initialize is called with the process configuration.
	_defaultLogger = newZapLogger(DefaultCfg(), NewConsoleAppender())
}

// Initialize replaces the default logger with one built from cfg.
// A nil cfg restores the default configuration.
func Initialize(cfg *LogCfg) error {
	if cfg == nil {
		cfg = DefaultCfg()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	l, err := NewLogger(cfg)
	SetDefaultLogger(l)
	return err
}

// SetDefaultLogger replaces the package-level logger.
func SetDefaultLogger(logger *ZapLogger) {
	_defaultLogger = logger
}

// Default returns the package-level logger.
func Default() *ZapLogger {
	return _defaultLogger
}

// With returns a child of the default logger carrying fields on every entry.
func With(fields ...zap.Field) *ZapLogger {
	return _defaultLogger.With(fields...)
}

// SetLevel changes the default logger's minimum level at runtime.
func SetLevel(l Level) {
	_defaultLogger.SetLevel(l)
}

// Refresh flushes the default logger.
func Refresh() {
	_defaultLogger.Refresh()
}

// Close flushes and closes the default logger's appenders.
func Close() {
	_defaultLogger.Close()
}

// Trace starts a trace-level entry on the default logger.
func Trace() *LogEvent {
	return _defaultLogger.Trace()
}

// Debug starts a debug-level entry on the default logger.
func Debug() *LogEvent {
	return _defaultLogger.Debug()
}

// Info starts an info-level entry on the default logger.
func Info() *LogEvent {
	return _defaultLogger.Info()
}

// Warn starts a warn-level entry on the default logger.
func Warn() *LogEvent {
	return _defaultLogger.Warn()
}

// Error starts an error-level entry on the default logger.
func Error() *LogEvent {
	return _defaultLogger.Error()
}

// Fatal starts a fatal-level entry on the default logger.
func Fatal() *LogEvent {
	return _defaultLogger.Fatal()
}
