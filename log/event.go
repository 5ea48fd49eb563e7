package log

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogEvent accumulates the fields of one log entry. A nil *LogEvent is a disabled
// entry: every method is a no-op, so call chains need no level checks.
type LogEvent struct {
	fields []zap.Field
	logger *ZapLogger
	level  Level
}

func (e *LogEvent) reset() {
	for i := range e.fields {
		e.fields[i] = zap.Field{}
	}
	e.fields = e.fields[:0]
	e.logger = nil
}

func (e *LogEvent) add(f zap.Field) *LogEvent {
	if e == nil {
		return nil
	}
	e.fields = append(e.fields, f)
	return e
}

// Str adds a string field.
func (e *LogEvent) Str(k string, v string) *LogEvent { return e.add(zap.String(k, v)) }

// Strs adds a string slice field.
func (e *LogEvent) Strs(k string, v []string) *LogEvent { return e.add(zap.Strings(k, v)) }

// Int adds an int field.
func (e *LogEvent) Int(k string, v int) *LogEvent { return e.add(zap.Int(k, v)) }

// Int32 adds an int32 field.
func (e *LogEvent) Int32(k string, v int32) *LogEvent { return e.add(zap.Int32(k, v)) }

// Int64 adds an int64 field.
func (e *LogEvent) Int64(k string, v int64) *LogEvent { return e.add(zap.Int64(k, v)) }

// Uint32 adds a uint32 field.
func (e *LogEvent) Uint32(k string, v uint32) *LogEvent { return e.add(zap.Uint32(k, v)) }

// Uint64 adds a uint64 field.
func (e *LogEvent) Uint64(k string, v uint64) *LogEvent { return e.add(zap.Uint64(k, v)) }

// Float64 adds a float64 field.
func (e *LogEvent) Float64(k string, v float64) *LogEvent { return e.add(zap.Float64(k, v)) }

// Bool adds a bool field.
func (e *LogEvent) Bool(k string, v bool) *LogEvent { return e.add(zap.Bool(k, v)) }

// Dur adds a duration field.
func (e *LogEvent) Dur(k string, v time.Duration) *LogEvent { return e.add(zap.Duration(k, v)) }

// Time adds a timestamp field.
func (e *LogEvent) Time(k string, v time.Time) *LogEvent { return e.add(zap.Time(k, v)) }

// Stringer adds a field rendered through String().
func (e *LogEvent) Stringer(k string, v fmt.Stringer) *LogEvent { return e.add(zap.Stringer(k, v)) }

// Err adds the error under the "error" key. A nil error adds nothing.
func (e *LogEvent) Err(err error) *LogEvent {
	if err == nil {
		return e
	}
	return e.add(zap.Error(err))
}

// LogObjectMarshaler lets a type add its own fields to an entry.
type LogObjectMarshaler interface {
	MarshalLogObj(e *LogEvent)
}

// Obj lets v append its own fields, each prefixed by k and a dot.
func (e *LogEvent) Obj(k string, v LogObjectMarshaler) *LogEvent {
	if e == nil {
		return nil
	}
	if v == nil {
		return e.add(zap.Skip())
	}
	sub := &LogEvent{}
	v.MarshalLogObj(sub)
	for _, f := range sub.fields {
		f.Key = k + "." + f.Key
		e.fields = append(e.fields, f)
	}
	return e
}

// Any adds a field using zap's reflection-based encoding.
func (e *LogEvent) Any(k string, v any) *LogEvent { return e.add(zap.Any(k, v)) }

// Msg writes the entry with the given message and releases the event.
func (e *LogEvent) Msg(msg string) {
	if e == nil {
		return
	}
	e.logger.OnEventEnd(e, msg)
}

// Msgf writes the entry with a formatted message.
func (e *LogEvent) Msgf(format string, args ...any) {
	if e == nil {
		return
	}
	e.logger.OnEventEnd(e, fmt.Sprintf(format, args...))
}

// End writes the entry without a message.
func (e *LogEvent) End() {
	if e == nil {
		return
	}
	e.logger.OnEventEnd(e, "")
}

func (e *LogEvent) zapLevel() zapcore.Level {
	return e.level.zap()
}
