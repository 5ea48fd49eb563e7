package log

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger implements Logger on top of a zap core. Entries are JSON encoded and fanned
// out to every appender. The minimum level is an atomic value shared with child loggers,
// so SetLevel applies to the whole tree.
type ZapLogger struct {
	zl        *zap.Logger
	level     zap.AtomicLevel
	appenders []LogAppender
	eventPool *sync.Pool
	cfg       *LogCfg
}

// NewLogger builds a logger from cfg. A nil cfg uses DefaultCfg. When the file appender
// cannot be opened the logger falls back to the console and reports the error.
func NewLogger(cfg *LogCfg) (*ZapLogger, error) {
	if cfg == nil {
		cfg = DefaultCfg()
	}

	var appenders []LogAppender
	var openErr error
	if cfg.FileAppender {
		fa, err := NewFileAppender(cfg)
		if err != nil {
			openErr = err
		} else {
			appenders = append(appenders, fa)
		}
	}
	if cfg.ConsoleAppender || len(appenders) == 0 {
		appenders = append(appenders, NewConsoleAppender())
	}

	return newZapLogger(cfg, appenders...), openErr
}

func newZapLogger(cfg *LogCfg, appenders ...LogAppender) *ZapLogger {
	x := &ZapLogger{
		level:     zap.NewAtomicLevelAt(cfg.LogLevel.zap()),
		appenders: appenders,
		cfg:       cfg,
	}
	x.eventPool = &sync.Pool{
		New: func() any { return &LogEvent{fields: make([]zap.Field, 0, 8)} },
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		CallerKey:      "caller",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    encodeLevel,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000"),
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	syncers := make([]zapcore.WriteSyncer, 0, len(appenders))
	for _, a := range appenders {
		var ws zapcore.WriteSyncer = a
		if _, isFile := a.(*FileAppender); isFile && cfg.IsAsync {
			ws = &zapcore.BufferedWriteSyncer{
				WS:            a,
				Size:          cfg.AsyncCacheSize << 10,
				FlushInterval: time.Duration(cfg.AsyncWriteMillSec) * time.Millisecond,
			}
		}
		syncers = append(syncers, ws)
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.NewMultiWriteSyncer(syncers...), x.level)

	// Msg -> OnEventEnd -> Check adds two frames over zap's own offset.
	opts := []zap.Option{zap.AddCallerSkip(2 + cfg.CallerSkip)}
	if cfg.EnabledCallerInfo {
		opts = append(opts, zap.AddCaller())
	}
	x.zl = zap.New(core, opts...)
	return x
}

// With returns a child logger that adds fields to every entry. The child shares
// appenders and level with its parent.
func (x *ZapLogger) With(fields ...zap.Field) *ZapLogger {
	return &ZapLogger{
		zl:        x.zl.With(fields...),
		level:     x.level,
		appenders: x.appenders,
		eventPool: x.eventPool,
		cfg:       x.cfg,
	}
}

// SetLevel changes the minimum level at runtime.
func (x *ZapLogger) SetLevel(l Level) {
	x.level.SetLevel(l.zap())
}

// GetLevel returns the current minimum level.
func (x *ZapLogger) GetLevel() Level {
	return fromZap(x.level.Level())
}

// GetCurrentConfig returns the configuration the logger was built with.
func (x *ZapLogger) GetCurrentConfig() *LogCfg {
	return x.cfg
}

// GetAppender returns the registered appenders.
func (x *ZapLogger) GetAppender() []LogAppender {
	return x.appenders
}

// Refresh flushes buffered entries.
func (x *ZapLogger) Refresh() {
	_ = x.zl.Sync()
}

// Close flushes and closes every appender.
func (x *ZapLogger) Close() {
	_ = x.zl.Sync()
	for _, a := range x.appenders {
		_ = a.Close()
	}
}

func (x *ZapLogger) log(level Level) *LogEvent {
	if !x.level.Enabled(level.zap()) {
		return nil
	}
	e := x.eventPool.Get().(*LogEvent)
	e.logger = x
	e.level = level
	return e
}

// OnEventEnd writes a finished event and returns it to the pool.
func (x *ZapLogger) OnEventEnd(e *LogEvent, msg string) {
	if ce := x.zl.Check(e.zapLevel(), msg); ce != nil {
		ce.Write(e.fields...)
	}
	e.reset()
	x.eventPool.Put(e)
}

// Trace starts a trace-level entry.
func (x *ZapLogger) Trace() *LogEvent { return x.log(TraceLevel) }

// Debug starts a debug-level entry.
func (x *ZapLogger) Debug() *LogEvent { return x.log(DebugLevel) }

// Info starts an info-level entry.
func (x *ZapLogger) Info() *LogEvent { return x.log(InfoLevel) }

// Warn starts a warn-level entry.
func (x *ZapLogger) Warn() *LogEvent { return x.log(WarnLevel) }

// Error starts an error-level entry.
func (x *ZapLogger) Error() *LogEvent { return x.log(ErrorLevel) }

// Fatal starts a fatal-level entry; the process exits after it is written.
func (x *ZapLogger) Fatal() *LogEvent { return x.log(FatalLevel) }
