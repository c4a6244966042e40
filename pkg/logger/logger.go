package logger

import (
	"os"

	"go.uber.org/zap"
)

type CanonicalLogger struct {
	l *zap.Logger
}

// NewLoggerFromEnv creates a new logger based on the LOG_FORMAT environment variable.
// LOG_LEVEL optionally overrides the level of the selected preset.
// Supported LOG_FORMAT values:
//   - "console" or "development": Human-readable console output with colored levels, ISO8601 timestamps
//   - "json" or "production" (default): Structured JSON output for production environments
//
// The logger automatically skips one caller frame to report the actual calling code
// instead of the wrapper function location.
func NewLoggerFromEnv(component string) (*CanonicalLogger, error) {
	// Read LOG_FORMAT environment variable with default to "production"
	logFormat := os.Getenv("LOG_FORMAT")
	if logFormat == "" {
		logFormat = "production"
	}

	// Select configuration based on environment
	var cfg zap.Config
	if logFormat == "console" || logFormat == "development" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	// LOG_LEVEL overrides the preset level (debug, info, warn, error)
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		if level, err := zap.ParseAtomicLevel(lvl); err == nil {
			cfg.Level = level
		}
	}

	// Build logger with AddCallerSkip(1) to skip the wrapper frame
	// This ensures the caller field shows the actual calling code, not the wrapper
	zapLogger, err := cfg.Build(
		zap.AddCallerSkip(1),
		zap.Fields(zap.String("component", component)),
	)
	if err != nil {
		return nil, err
	}

	return &CanonicalLogger{
		l: zapLogger,
	}, nil
}

// New wraps an existing zap logger, such as one built on an observer core.
func New(l *zap.Logger) *CanonicalLogger {
	return &CanonicalLogger{l: l}
}

// NewNop returns a logger that discards everything. Used by tests and tools.
func NewNop() *CanonicalLogger {
	return New(zap.NewNop())
}

func (c *CanonicalLogger) Sync() {
	_ = c.l.Sync()
}

func (c *CanonicalLogger) Info(msg string, fields ...zap.Field) {
	c.l.Info(msg, fields...)
}

func (c *CanonicalLogger) Debug(msg string, fields ...zap.Field) {
	c.l.Debug(msg, fields...)
}

func (c *CanonicalLogger) Warn(msg string, fields ...zap.Field) {
	c.l.Warn(msg, fields...)
}

func (c *CanonicalLogger) Error(msg string, fields ...zap.Field) {
	c.l.Error(msg, fields...)
}

func (c *CanonicalLogger) Fatal(msg string, fields ...zap.Field) {
	c.l.Fatal(msg, fields...)
}

func (c *CanonicalLogger) WithError(err error) *CanonicalLogger {
	return &CanonicalLogger{l: c.l.With(zap.Error(err))}
}

func (c *CanonicalLogger) WithServerID(id string) *CanonicalLogger {
	return &CanonicalLogger{l: c.l.With(zap.String(FieldServerID, id))}
}

func (c *CanonicalLogger) WithJobID(id string) *CanonicalLogger {
	return &CanonicalLogger{l: c.l.With(zap.String(FieldJobID, id))}
}

func (c *CanonicalLogger) WithWorkerID(id string) *CanonicalLogger {
	return &CanonicalLogger{l: c.l.With(zap.String(FieldWorkerID, id))}
}

func (c *CanonicalLogger) Component(name string) *CanonicalLogger {
	return &CanonicalLogger{l: c.l.With(zap.String("component", name))}
}

func (c *CanonicalLogger) HTTPError(method, path string, status int, err error) {
	c.l.Error("http_error", zap.String("method", method), zap.String("path", path), zap.Int("status", status), zap.Error(err))
}
