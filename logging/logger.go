package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"sonopix/features"
)

// LogLevel represents the logging level
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelStartup // Special level for startup messages only
)

// Logger is a leveled printf-style logger backed by logrus. Derived loggers
// created with WithField share their parent's output and level.
type Logger struct {
	base  *logrus.Logger
	entry *logrus.Entry
	state *levelState
}

type levelState struct {
	mu       sync.RWMutex
	minLevel LogLevel
}

func (s *levelState) get() LogLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.minLevel
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// GetLogger returns the singleton logger instance
func GetLogger() *Logger {
	once.Do(func() {
		defaultLogger = NewLogger()
	})
	return defaultLogger
}

// NewLogger creates a new logger with appropriate settings based on feature flags
func NewLogger() *Logger {
	return NewLoggerWithOutput(os.Stdout)
}

// NewLoggerWithOutput creates a logger writing text lines to w.
func NewLoggerWithOutput(w io.Writer) *Logger {
	base := logrus.New()
	base.SetOutput(w)
	base.SetLevel(logrus.DebugLevel)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})

	l := &Logger{
		base:  base,
		entry: logrus.NewEntry(base),
		state: &levelState{},
	}
	l.SetLevel(LevelDebug)
	return l
}

// ParseLevel converts a configuration string to a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Configure applies the logging section of the configuration: level, format
// (json or text) and output (stdout, stderr or a file path).
func (l *Logger) Configure(level, format, output string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}

	switch strings.ToLower(format) {
	case "json":
		l.base.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		l.base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}

	switch output {
	case "", "stdout":
		l.base.SetOutput(os.Stdout)
	case "stderr":
		l.base.SetOutput(os.Stderr)
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		l.base.SetOutput(f)
	}

	l.SetLevel(lvl)
	return nil
}

// SetOutput redirects the logger and all loggers derived from it.
func (l *Logger) SetOutput(w io.Writer) {
	l.base.SetOutput(w)
}

// SetLevel sets the minimum log level
func (l *Logger) SetLevel(level LogLevel) {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	// If not in full logging mode (i.e., demo mode), only show startup messages
	if !features.ShouldEnableFullLogging() {
		l.state.minLevel = LevelStartup
	} else {
		l.state.minLevel = level
	}
}

// WithField returns a logger that adds key=value to every line.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{base: l.base, entry: l.entry.WithField(key, value), state: l.state}
}

// WithFields returns a logger that adds fields to every line.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{base: l.base, entry: l.entry.WithFields(logrus.Fields(fields)), state: l.state}
}

// Debug logs a debug message (only in full logging mode)
func (l *Logger) Debug(format string, v ...interface{}) {
	if l.state.get() <= LevelDebug {
		l.entry.Debugf(format, v...)
	}
}

// Info logs an info message (only in full logging mode)
func (l *Logger) Info(format string, v ...interface{}) {
	if l.state.get() <= LevelInfo {
		l.entry.Infof(format, v...)
	}
}

// Warn logs a warning message (only in full logging mode)
func (l *Logger) Warn(format string, v ...interface{}) {
	if l.state.get() <= LevelWarn {
		l.entry.Warnf(format, v...)
	}
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	if l.state.get() <= LevelError {
		l.entry.Errorf(format, v...)
	}
}

// Startup logs a startup message (always logged, even in minimal mode)
func (l *Logger) Startup(format string, v ...interface{}) {
	l.entry.WithField("phase", "startup").Infof(format, v...)
}

// PrintBuildInfo prints build and feature flag information at startup
func (l *Logger) PrintBuildInfo(serviceName, serviceVersion string) {
	buildInfo := features.GetBuildInfo()

	l.Startup("=================================================")
	l.Startup("Service: %s v%s", serviceName, serviceVersion)
	l.Startup("Build Mode: %s", buildInfo["mode"])
	l.Startup("Build Version: %s", buildInfo["version"])
	l.Startup("Build Time: %s", buildInfo["buildTime"])

	enabledFeatures := features.GetEnabledFeatures()
	if len(enabledFeatures) > 0 {
		l.Startup("Enabled Features: %v", enabledFeatures)
	} else {
		l.Startup("Enabled Features: none (production defaults)")
	}

	l.Startup("Full Logging: %v", features.ShouldEnableFullLogging())
	l.Startup("Metrics: %v", features.ShouldEnableMetrics())
	l.Startup("Observability: %v", features.ShouldEnableObservability())
	l.Startup("Rate Limiting: %v", features.ShouldEnableRateLimiting())
	l.Startup("Redis Jobs: %v", features.ShouldUseRedisJobs())
	l.Startup("Audit: %v", features.ShouldEnableAudit())
	l.Startup("Short Timeouts: %v", features.ShouldUseShortTimeouts())
	l.Startup("=================================================")
}

// Convenience functions that use the default logger
func Debug(format string, v ...interface{}) {
	GetLogger().Debug(format, v...)
}

func Info(format string, v ...interface{}) {
	GetLogger().Info(format, v...)
}

func Warn(format string, v ...interface{}) {
	GetLogger().Warn(format, v...)
}

func Error(format string, v ...interface{}) {
	GetLogger().Error(format, v...)
}

func Startup(format string, v ...interface{}) {
	GetLogger().Startup(format, v...)
}

func PrintBuildInfo(serviceName, serviceVersion string) {
	GetLogger().PrintBuildInfo(serviceName, serviceVersion)
}

// LoggingMode returns a string describing the current logging mode
func LoggingMode() string {
	if features.ShouldEnableFullLogging() {
		return "full"
	}
	return "minimal (startup only)"
}
