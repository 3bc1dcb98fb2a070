package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var Logger *logrus.Logger

// InitLogger builds the process logger. Empty arguments fall back to LOG_LEVEL and LOG_FORMAT.
func InitLogger(logLevel, logFormat string) *logrus.Logger {
	log := logrus.New()

	if logLevel == "" {
		logLevel = os.Getenv("LOG_LEVEL")
	}
	if logLevel == "" {
		logLevel = "info"
	}
	if logFormat == "" {
		logFormat = os.Getenv("LOG_FORMAT")
	}

	if level, err := logrus.ParseLevel(strings.ToLower(logLevel)); err == nil {
		log.SetLevel(level)
	} else {
		log.SetLevel(logrus.InfoLevel)
		log.WithField("invalid_level", logLevel).Warn("Invalid LOG_LEVEL, using INFO")
	}

	if strings.EqualFold(logFormat, "json") {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	log.SetOutput(os.Stdout)
	Logger = log
	return log
}

// GetLogger returns the global logger instance
func GetLogger() *logrus.Logger {
	if Logger == nil {
		return InitLogger("", "")
	}
	return Logger
}

// Discard returns a logger that writes nowhere, for library defaults and tests.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// WithComponent tags entries with the emitting package.
func WithComponent(log logrus.FieldLogger, component string) *logrus.Entry {
	if log == nil {
		log = GetLogger()
	}
	return log.WithField("component", component)
}

// WithGame tags entries with the game being processed.
func WithGame(log logrus.FieldLogger, gameID string) *logrus.Entry {
	if log == nil {
		log = GetLogger()
	}
	return log.WithField("game_id", gameID)
}
