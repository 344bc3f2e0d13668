// Package logging provides the SDK-wide structured logger and the
// log-sanitization routine required before any user-supplied string
// reaches a log line.
package logging

import (
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// Log is the package-level logger used throughout the SDK.
var Log *slog.Logger

func init() {
	if err := Init(os.Getenv("MESSAGING_LOG_LEVEL"), ""); err != nil {
		Log = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
}

// Init (re)configures the global logger. level is one of
// debug/info/warn/error (default info). logFile, if non-empty, also
// receives a copy of every log line.
func Init(level, logFile string) error {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	writers := []io.Writer{os.Stderr}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return err
		}
		writers = append(writers, f)
	}

	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String("time", a.Value.Time().Format("15:04:05"))
			}
			return a
		},
	})

	Log = slog.New(handler)
	slog.SetDefault(Log)
	return nil
}

func Debug(msg string, args ...any) { Log.Debug(msg, args...) }
func Info(msg string, args ...any)  { Log.Info(msg, args...) }
func Warn(msg string, args ...any)  { Log.Warn(msg, args...) }
func Error(msg string, args ...any) { Log.Error(msg, args...) }

const maxSanitizedLen = 1000

// redactPattern matches "key = value" or "key: value" assignments for
// sensitive field names, case-insensitively.
var redactPattern = regexp.MustCompile(`(?i)(password|token|secret|api[_-]?key|authorization|bearer)\s*[:=]\s*\S+`)

// Sanitize strips CR/LF, redacts credential-shaped substrings, and
// truncates to 1000 characters before a string is safe to log. Every
// component MUST run user-supplied strings (agent names, channel
// names, event content) through this before logging them.
func Sanitize(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", " ")
	s = redactPattern.ReplaceAllString(s, "$1=[REDACTED]")
	if len(s) > maxSanitizedLen {
		s = s[:maxSanitizedLen]
	}
	return s
}
