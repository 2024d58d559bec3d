package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger represents a structured logger
type Logger struct {
	logger zerolog.Logger
}

// Fields represents log fields
type Fields map[string]interface{}

var (
	// Default is the default logger instance
	Default *Logger
)

// Init initializes the logger with the given configuration
func Init() {
	level := getLogLevel()

	// Configure zerolog
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(level)

	// Create console writer for development
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	Default = New(output)

	Default.Info().
		Str("level", level.String()).
		Msg("Logger initialized")
}

// New creates a logger writing to w
func New(w io.Writer) *Logger {
	return &Logger{logger: zerolog.New(w).With().Timestamp().Logger()}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

// getLogLevel returns the log level from environment variable
func getLogLevel() zerolog.Level {
	levelStr := os.Getenv("LOG_LEVEL")
	if levelStr == "" {
		if os.Getenv("PRICEWATCH_ENVIRONMENT") == "production" {
			return zerolog.InfoLevel
		}
		return zerolog.DebugLevel
	}

	level, err := zerolog.ParseLevel(levelStr)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// WithFields creates a new logger with fields
func (l *Logger) WithFields(fields Fields) *Logger {
	newLogger := l.logger.With()
	for k, v := range fields {
		newLogger = newLogger.Interface(k, v)
	}
	return &Logger{logger: newLogger.Logger()}
}

// WithField creates a new logger with a single field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{logger: l.logger.With().Interface(key, value).Logger()}
}

// Debug returns a debug event
func (l *Logger) Debug() *zerolog.Event {
	return l.logger.Debug()
}

// Info returns an info event
func (l *Logger) Info() *zerolog.Event {
	return l.logger.Info()
}

// Warn returns a warn event
func (l *Logger) Warn() *zerolog.Event {
	return l.logger.Warn()
}

// Error returns an error event
func (l *Logger) Error() *zerolog.Event {
	return l.logger.Error()
}

// Fatal returns a fatal event
func (l *Logger) Fatal() *zerolog.Event {
	return l.logger.Fatal()
}

// Global functions for backward compatibility

func defaultLogger() *Logger {
	if Default == nil {
		Init()
	}
	return Default
}

// Info logs an info message
func Info(format string, v ...interface{}) {
	defaultLogger().Info().Msgf(format, v...)
}

// Warn logs a warning message
func Warn(format string, v ...interface{}) {
	defaultLogger().Warn().Msgf(format, v...)
}

// ForScraper creates a logger for scrapes against a specific hostname
func ForScraper(hostname string) *Logger {
	return defaultLogger().WithFields(Fields{"component": "scraper", "hostname": hostname})
}

// ForWorker creates a logger for the refresh worker
func ForWorker() *Logger {
	return defaultLogger().WithField("component", "worker")
}

// ForPublisher creates a logger for the publisher
func ForPublisher() *Logger {
	return defaultLogger().WithField("component", "publisher")
}

// ForCache creates a logger for the cache
func ForCache() *Logger {
	return defaultLogger().WithField("component", "cache")
}

// ForStorage creates a logger for the repository
func ForStorage() *Logger {
	return defaultLogger().WithField("component", "storage")
}

// ForAPI creates a logger for the HTTP adapter
func ForAPI() *Logger {
	return defaultLogger().WithField("component", "api")
}

// ForBGG creates a logger for the BoardGameGeek client
func ForBGG() *Logger {
	return defaultLogger().WithField("component", "bgg")
}
