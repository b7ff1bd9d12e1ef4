package logger

import (
	"context"
	"time"

	ctxutil "github.com/theluxar/auth-service/pkg/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ContextLogBuilder accumulates fields for a single log entry, pre-seeded
// with whatever request metadata the context carries.
type ContextLogBuilder struct {
	level   zapcore.Level
	message string
	fields  []zap.Field
}

func newBuilder(ctx context.Context, level zapcore.Level, message string) *ContextLogBuilder {
	clb := &ContextLogBuilder{
		level:   level,
		message: message,
		fields:  make([]zap.Field, 0, 8),
	}
	clb.extractContextFields(ctx)
	return clb
}

func (clb *ContextLogBuilder) extractContextFields(ctx context.Context) {
	if ctx == nil {
		return
	}
	if requestID := ctxutil.GetRequestID(ctx); requestID != "" {
		clb.fields = append(clb.fields, zap.String("request_id", requestID))
	}
	if clientIP := ctxutil.GetClientIP(ctx); clientIP != "" {
		clb.fields = append(clb.fields, zap.String("client_ip", clientIP))
	}
	if userID := ctxutil.GetUserID(ctx); userID != "" {
		clb.fields = append(clb.fields, zap.String("user_id", userID))
	}
	if module := ctxutil.GetModule(ctx); module != "" {
		clb.fields = append(clb.fields, zap.String("module", module))
	}
	if function := ctxutil.GetFunction(ctx); function != "" {
		clb.fields = append(clb.fields, zap.String("function", function))
	}
	if duration := ctxutil.GetDuration(ctx); duration > 0 {
		clb.fields = append(clb.fields, zap.Duration("duration", duration))
	}
}

// DebugWithContext starts a debug entry seeded with context fields.
func DebugWithContext(ctx context.Context, message string) *ContextLogBuilder {
	return newBuilder(ctx, zapcore.DebugLevel, message)
}

// InfoWithContext starts an info entry seeded with context fields.
func InfoWithContext(ctx context.Context, message string) *ContextLogBuilder {
	return newBuilder(ctx, zapcore.InfoLevel, message)
}

// WarnWithContext starts a warn entry seeded with context fields.
func WarnWithContext(ctx context.Context, message string) *ContextLogBuilder {
	return newBuilder(ctx, zapcore.WarnLevel, message)
}

// ErrorWithContext starts an error entry seeded with context fields.
func ErrorWithContext(ctx context.Context, message string) *ContextLogBuilder {
	return newBuilder(ctx, zapcore.ErrorLevel, message)
}

func (clb *ContextLogBuilder) String(key, value string) *ContextLogBuilder {
	clb.fields = append(clb.fields, zap.String(key, value))
	return clb
}

func (clb *ContextLogBuilder) Int(key string, value int) *ContextLogBuilder {
	clb.fields = append(clb.fields, zap.Int(key, value))
	return clb
}

func (clb *ContextLogBuilder) Int64(key string, value int64) *ContextLogBuilder {
	clb.fields = append(clb.fields, zap.Int64(key, value))
	return clb
}

func (clb *ContextLogBuilder) Bool(key string, value bool) *ContextLogBuilder {
	clb.fields = append(clb.fields, zap.Bool(key, value))
	return clb
}

func (clb *ContextLogBuilder) Duration(key string, value time.Duration) *ContextLogBuilder {
	clb.fields = append(clb.fields, zap.Duration(key, value))
	return clb
}

func (clb *ContextLogBuilder) Any(key string, value any) *ContextLogBuilder {
	clb.fields = append(clb.fields, zap.Any(key, value))
	return clb
}

func (clb *ContextLogBuilder) Err(err error) *ContextLogBuilder {
	clb.fields = append(clb.fields, zap.Error(err))
	return clb
}

// Log emits the accumulated entry at the builder's level.
func (clb *ContextLogBuilder) Log() {
	logger := GetLogger()
	switch clb.level {
	case zapcore.DebugLevel:
		logger.Debug(clb.message, clb.fields...)
	case zapcore.InfoLevel:
		logger.Info(clb.message, clb.fields...)
	case zapcore.WarnLevel:
		logger.Warn(clb.message, clb.fields...)
	case zapcore.ErrorLevel:
		logger.Error(clb.message, clb.fields...)
	}
}
