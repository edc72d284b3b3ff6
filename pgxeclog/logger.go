// Package pgxeclog is pgxec's structured logging façade: the same
// Logger/Field contract the teacher's client/logger.go exposed, backed by
// go.uber.org/zap instead of a hand-rolled JSON-over-log.Logger writer.
package pgxeclog

import (
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field is a structured log field, kept field-for-field compatible with the
// teacher's client/logger.go Field so call sites read the same way.
type Field struct {
	Key   string
	Value interface{}
}

func String(key, val string) Field                 { return Field{Key: key, Value: val} }
func Int(key string, val int) Field                 { return Field{Key: key, Value: val} }
func Int64(key string, val int64) Field             { return Field{Key: key, Value: val} }
func Float64(key string, val float64) Field         { return Field{Key: key, Value: val} }
func Bool(key string, val bool) Field               { return Field{Key: key, Value: val} }
func Duration(key string, val time.Duration) Field  { return Field{Key: key, Value: val.String()} }

func Error(key string, err error) Field {
	if err == nil {
		return Field{Key: key, Value: nil}
	}
	return Field{Key: key, Value: err.Error()}
}

// Logger is the interface pgxec's client/pool/engine code logs through.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	WithFields(fields ...Field) Logger
}

// zapLogger adapts a *zap.Logger to the Logger interface, redacting
// sensitive field keys the way the teacher's logger did (password/token/
// secret/authorization/api_key/auth).
type zapLogger struct {
	l *zap.Logger
}

// New builds a Logger writing JSON to stdout at the given level
// ("DEBUG"/"INFO"/"WARN"/"ERROR"), mirroring client/logger.go's NewLogger
// signature.
func New(level string) Logger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.AddSync(os.Stdout), parseLevel(level))
	return &zapLogger{l: zap.New(core)}
}

// NewDefault builds an INFO-level Logger writing to stdout.
func NewDefault() Logger { return New("INFO") }

// NewNoop builds a Logger that discards everything.
func NewNoop() Logger { return &zapLogger{l: zap.NewNop()} }

func parseLevel(level string) zapcore.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zapcore.DebugLevel
	case "WARN":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func (z *zapLogger) Debug(msg string, fields ...Field) { z.l.Debug(msg, toZap(fields)...) }
func (z *zapLogger) Info(msg string, fields ...Field)  { z.l.Info(msg, toZap(fields)...) }
func (z *zapLogger) Warn(msg string, fields ...Field)  { z.l.Warn(msg, toZap(fields)...) }
func (z *zapLogger) Error(msg string, fields ...Field) { z.l.Error(msg, toZap(fields)...) }

func (z *zapLogger) WithFields(fields ...Field) Logger {
	return &zapLogger{l: z.l.With(toZap(fields)...)}
}

func toZap(fields []Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		out = append(out, zap.Any(f.Key, redact(f.Key, f.Value)))
	}
	return out
}

var sensitiveKeys = map[string]bool{
	"password":      true,
	"token":         true,
	"secret":        true,
	"authorization": true,
	"api_key":       true,
	"apikey":        true,
	"auth":          true,
}

func redact(key string, value interface{}) interface{} {
	if sensitiveKeys[strings.ToLower(key)] {
		return "[REDACTED]"
	}
	return value
}
