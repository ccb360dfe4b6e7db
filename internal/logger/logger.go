// internal/logger/logger.go
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	maxLogSizeMB  = 5
	maxLogBackups = 3
	maxLogAgeDays = 14
)

// log discards everything until Init is called, so tests and library use stay quiet
var log = discard()

func discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Init configures the package logger.
// An empty file logs to stderr; otherwise output goes to a rotating file,
// since the chat screen owns the terminal.
func Init(level, format, file string) error {
	l := logrus.New()
	l.SetLevel(parseLevel(level))

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	file = strings.TrimSpace(file)
	if file == "" {
		l.SetOutput(os.Stderr)
		log = l
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(file), 0700); err != nil {
		l.SetOutput(io.Discard)
		log = l
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	l.SetOutput(&lumberjack.Logger{
		Filename:   file,
		MaxSize:    maxLogSizeMB,
		MaxBackups: maxLogBackups,
		MaxAge:     maxLogAgeDays,
		Compress:   true,
	})
	log = l
	return nil
}

func parseLevel(level string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Use replaces the package logger
func Use(l *logrus.Logger) {
	if l == nil {
		l = discard()
	}
	log = l
}

// WithComponent tags entries with the subsystem that produced them.
// Call it at log time: Init may replace the logger after package init.
func WithComponent(name string) *logrus.Entry {
	return log.WithField("component", name)
}
