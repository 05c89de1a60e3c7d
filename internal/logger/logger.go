package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	z     *zap.Logger
	level zap.AtomicLevel
}

var defaultLogger = New(os.Stderr, zapcore.InfoLevel)

// New builds a JSON logger writing to w. Entries below level are dropped.
func New(w io.Writer, level zapcore.Level) *Logger {
	atomicLevel := zap.NewAtomicLevelAt(level)

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		MessageKey:     "message",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(w), atomicLevel)

	return &Logger{
		z:     zap.New(core),
		level: atomicLevel,
	}
}

// ParseLevel accepts debug, info, warn or error in any case.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

func Default() *Logger {
	return defaultLogger
}

func SetDefault(l *Logger) {
	defaultLogger = l
}

func SetLevel(level zapcore.Level) {
	defaultLogger.level.SetLevel(level)
}

func (l *Logger) SetLevel(level zapcore.Level) {
	l.level.SetLevel(level)
}

func (l *Logger) Level() zapcore.Level {
	return l.level.Level()
}

func (l *Logger) Sync() error {
	return l.z.Sync()
}

func (l *Logger) log(level zapcore.Level, message string, fields map[string]interface{}) {
	ce := l.z.Check(level, message)
	if ce == nil {
		return
	}

	sanitized := sanitizeFields(fields)
	if len(sanitized) == 0 {
		ce.Write()
		return
	}
	ce.Write(zap.Any("fields", sanitized))
}

func (l *Logger) Debug(message string, fields ...map[string]interface{}) {
	l.log(zapcore.DebugLevel, message, mergeFields(fields...))
}

func (l *Logger) Info(message string, fields ...map[string]interface{}) {
	l.log(zapcore.InfoLevel, message, mergeFields(fields...))
}

func (l *Logger) Warn(message string, fields ...map[string]interface{}) {
	l.log(zapcore.WarnLevel, message, mergeFields(fields...))
}

func (l *Logger) Error(message string, fields ...map[string]interface{}) {
	l.log(zapcore.ErrorLevel, message, mergeFields(fields...))
}

// Package-level convenience functions
func Debug(message string, fields ...map[string]interface{}) {
	defaultLogger.Debug(message, fields...)
}

func Info(message string, fields ...map[string]interface{}) {
	defaultLogger.Info(message, fields...)
}

func Warn(message string, fields ...map[string]interface{}) {
	defaultLogger.Warn(message, fields...)
}

func Error(message string, fields ...map[string]interface{}) {
	defaultLogger.Error(message, fields...)
}

func mergeFields(fieldMaps ...map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})
	for _, fields := range fieldMaps {
		for k, v := range fields {
			result[k] = v
		}
	}
	return result
}

var sensitiveKeys = []string{
	"key", "token", "secret", "password", "email", "dsn",
	"signature", "authorization", "auth",
}

// sanitizeFields redacts anything that could identify a license holder or
// leak a credential. Keys match on substring, so "license_key" and
// "adminKey" are both covered by "key".
func sanitizeFields(fields map[string]interface{}) map[string]interface{} {
	if len(fields) == 0 {
		return nil
	}

	sanitized := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		switch {
		case strings.Contains(strings.ToLower(k), "email"):
			sanitized[k] = "[REDACTED]"
		case isSensitive(k):
			sanitized[k] = redact(v)
		default:
			sanitized[k] = v
		}
	}

	return sanitized
}

func isSensitive(key string) bool {
	keyLower := strings.ToLower(key)
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(keyLower, sensitive) {
			return true
		}
	}
	return false
}

func redact(v interface{}) interface{} {
	str, ok := v.(string)
	if !ok || len(str) <= 8 {
		return "[REDACTED]"
	}
	// Show first 3 and last 3 characters
	return str[:3] + "..." + str[len(str)-3:]
}

func init() {
	// During tests, reduce log noise
	if os.Getenv("GO_ENV") == "test" || strings.HasSuffix(os.Args[0], ".test") {
		SetLevel(zapcore.WarnLevel)
		return
	}

	if level, err := ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		SetLevel(level)
	}
}
