package log

import (
	"fmt"
	"path/filepath"
)

// LogCfg configures the process logger.
type LogCfg struct {
	// LogPath is the target file for the file appender.
	LogPath string `mapstructure:"path"`

	// LogLevel is the minimum level written. It can be changed at runtime with SetLevel.
	LogLevel Level `mapstructure:"level"`

	// FileSplitMB rotates the log file once it grows past this size.
	FileSplitMB int `mapstructure:"splitMB"`

	// IsAsync buffers file writes and flushes them every AsyncWriteMillSec.
	IsAsync bool `mapstructure:"isAsync"`

	// AsyncCacheSize is the async buffer size in KB.
	AsyncCacheSize int `mapstructure:"asyncCacheSize"`

	// AsyncWriteMillSec is the async flush interval.
	AsyncWriteMillSec int `mapstructure:"asyncWriteMillSec"`

	// CallerSkip skips extra stack frames when the logger is wrapped.
	CallerSkip int `mapstructure:"callerSkip"`

	FileAppender    bool `mapstructure:"fileAppender"`
	ConsoleAppender bool `mapstructure:"consoleAppender"`

	EnabledCallerInfo bool `mapstructure:"enabledCallerInfo"`
}

// GetName returns the configuration key for LogCfg.
func (cfg *LogCfg) GetName() string {
	return "log"
}

// Validate checks the configuration for consistency.
func (cfg *LogCfg) Validate() error {
	if cfg.LogLevel < TraceLevel || cfg.LogLevel > FatalLevel {
		return fmt.Errorf("invalid log level: %d, must be between %d (Trace) and %d (Fatal)",
			cfg.LogLevel, TraceLevel, FatalLevel)
	}

	if cfg.FileAppender && (cfg.FileSplitMB < 1 || cfg.FileSplitMB > 1024) {
		return fmt.Errorf("file split size must be between 1MB and 1024MB, got %dMB", cfg.FileSplitMB)
	}

	if cfg.IsAsync && cfg.AsyncCacheSize < 1 {
		return fmt.Errorf("async cache size must be at least 1 when async mode is enabled, got %d", cfg.AsyncCacheSize)
	}

	if cfg.IsAsync && cfg.AsyncWriteMillSec < 10 {
		return fmt.Errorf("async write interval must be at least 10ms, got %dms", cfg.AsyncWriteMillSec)
	}

	if cfg.CallerSkip < 0 {
		return fmt.Errorf("caller skip must be non-negative, got %d", cfg.CallerSkip)
	}

	if cfg.FileAppender && cfg.LogPath == "" {
		return fmt.Errorf("log path cannot be empty when file appender is enabled")
	}
	if cfg.LogPath != "" {
		cfg.LogPath = filepath.Clean(cfg.LogPath)
	}

	if !cfg.FileAppender && !cfg.ConsoleAppender {
		return fmt.Errorf("at least one appender (file or console) must be enabled")
	}
	return nil
}

var _defaultCfg = LogCfg{
	LogPath:           "./lobbyd.log",
	LogLevel:          InfoLevel,
	FileSplitMB:       50,
	AsyncCacheSize:    256,
	AsyncWriteMillSec: 200,
	ConsoleAppender:   true,
	EnabledCallerInfo: true,
}

// DefaultCfg returns a copy of the default configuration: console only, info level.
func DefaultCfg() *LogCfg {
	cfg := _defaultCfg
	return &cfg
}
