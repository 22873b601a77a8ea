// Package logger provides the shared structured logger for the live
// session engine. The default logger writes text to stderr at the level
// given by the LOG_LEVEL environment variable (debug, info, warn,
// error), defaulting to info.
package logger

import (
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// DefaultLogger is the process-wide logger. Packages log through the
// helpers below rather than holding their own logger.
var DefaultLogger *slog.Logger

var levelVar slog.LevelVar

func init() {
	levelVar.Set(levelFromEnv())
	DefaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: &levelVar,
	}))
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel changes the minimum level of the default logger.
func SetLevel(level slog.Level) {
	levelVar.Set(level)
}

// SetVerbose toggles debug-level logging.
func SetVerbose(verbose bool) {
	if verbose {
		levelVar.Set(slog.LevelDebug)
	} else {
		levelVar.Set(slog.LevelInfo)
	}
}

// Patterns for credentials that must never reach the logs. Gemini API
// keys start with AIza; the websocket URL also carries the key as a
// query parameter.
var (
	googleKeyPattern = regexp.MustCompile(`AIza[0-9A-Za-z_\-]{30,}`)
	keyParamPattern  = regexp.MustCompile(`([?&]key=)[^&\s"]+`)
	bearerPattern    = regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9._\-]+`)
)

// Redact masks API keys and tokens embedded in s.
func Redact(s string) string {
	s = googleKeyPattern.ReplaceAllString(s, "AIza***")
	s = keyParamPattern.ReplaceAllString(s, "${1}***")
	s = bearerPattern.ReplaceAllString(s, "${1}***")
	return s
}

// Debug logs at debug level with key-value attributes.
func Debug(msg string, args ...any) {
	DefaultLogger.Debug(msg, args...)
}

// Info logs at info level with key-value attributes.
func Info(msg string, args ...any) {
	DefaultLogger.Info(msg, args...)
}

// Warn logs at warn level with key-value attributes.
func Warn(msg string, args ...any) {
	DefaultLogger.Warn(msg, args...)
}

// Error logs at error level with key-value attributes.
func Error(msg string, args ...any) {
	DefaultLogger.Error(msg, args...)
}

// With returns a child logger carrying the given attributes.
func With(args ...any) *slog.Logger {
	return DefaultLogger.With(args...)
}
