package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pliu/murmur/internal/redact"
)

// NewLogger builds a structured zap logger with the provided level string.
// Everything written through it passes the redactor first.
func NewLogger(level string, r *redact.Redactor) (*zap.Logger, error) {
	lower := strings.ToLower(level)
	var zapLevel zapcore.Level
	if err := zapLevel.Set(lower); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.MessageKey = "msg"

	return cfg.Build(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return NewRedactingCore(core, r)
	}))
}

// NewRedactingCore wraps core so that the message and every field that can
// carry text are redacted before encoding. Arrays and objects are rendered
// to a single string first.
func NewRedactingCore(core zapcore.Core, r *redact.Redactor) zapcore.Core {
	return &redactingCore{Core: core, r: r}
}

type redactingCore struct {
	zapcore.Core
	r *redact.Redactor
}

func (c *redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactingCore{Core: c.Core.With(c.scrub(fields)), r: c.r}
}

func (c *redactingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *redactingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	ent.Message = c.r.String(ent.Message)
	return c.Core.Write(ent, c.scrub(fields))
}

func (c *redactingCore) scrub(fields []zapcore.Field) []zapcore.Field {
	out := make([]zapcore.Field, 0, len(fields))
	for _, f := range fields {
		switch f.Type {
		case zapcore.StringType:
			f.String = c.r.String(f.String)
		case zapcore.ErrorType:
			if err, ok := f.Interface.(error); ok && err != nil {
				f = zap.String(f.Key, c.r.String(err.Error()))
			}
		case zapcore.StringerType:
			if s, ok := f.Interface.(fmt.Stringer); ok && s != nil {
				f = zap.String(f.Key, c.r.String(s.String()))
			}
		case zapcore.ByteStringType:
			if b, ok := f.Interface.([]byte); ok {
				f = zap.String(f.Key, c.r.String(string(b)))
			}
		case zapcore.ReflectType:
			f = zap.String(f.Key, c.r.String(fmt.Sprintf("%+v", f.Interface)))
		case zapcore.ArrayMarshalerType, zapcore.ObjectMarshalerType:
			enc := zapcore.NewMapObjectEncoder()
			f.AddTo(enc)
			f = zap.String(f.Key, c.r.String(fmt.Sprint(enc.Fields[f.Key])))
		case zapcore.InlineMarshalerType:
			// Inlined fields land at the top level; flatten them one by one.
			enc := zapcore.NewMapObjectEncoder()
			f.AddTo(enc)
			for k, v := range enc.Fields {
				out = append(out, zap.String(k, c.r.String(fmt.Sprint(v))))
			}
			continue
		}
		out = append(out, f)
	}
	return out
}
