// Package logger is the process-wide structured logger for Octopus.
//
// Components log through the package functions rather than injected logger
// values; Init wires level, format and destination once at startup from the
// logging config section, and SetLevel can raise or lower verbosity at
// runtime without rebuilding handlers.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Config selects the handler built by Init.
type Config struct {
	Level  string // DEBUG, INFO, WARN or ERROR
	Format string // text or json
	Output string // stdout, stderr or a file path
}

var (
	// level is shared by every handler built here, so SetLevel takes
	// effect immediately.
	level   slog.LevelVar
	current atomic.Pointer[slog.Logger]
)

func init() {
	current.Store(slog.New(newConsoleHandler(os.Stdout, &level, isTerminal(os.Stdout.Fd()))))
}

// Init rebuilds the process logger from the configuration. File outputs are
// opened in append mode and never colored.
func Init(cfg Config) error {
	out := io.Writer(os.Stdout)
	color := isTerminal(os.Stdout.Fd())
	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
	case "stderr":
		out = os.Stderr
		color = isTerminal(os.Stderr.Fd())
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file %q: %w", cfg.Output, err)
		}
		out = f
		color = false
	}

	SetLevel(cfg.Level)

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: &level})
	} else {
		h = newConsoleHandler(out, &level, color)
	}
	current.Store(slog.New(h))
	return nil
}

// SetLevel adjusts the minimum level. Unknown names keep the current level.
func SetLevel(name string) {
	switch strings.ToUpper(name) {
	case "DEBUG":
		level.Set(slog.LevelDebug)
	case "INFO":
		level.Set(slog.LevelInfo)
	case "WARN":
		level.Set(slog.LevelWarn)
	case "ERROR":
		level.Set(slog.LevelError)
	}
}

// Debug logs at debug level with key/value fields.
func Debug(msg string, args ...any) { current.Load().Debug(msg, args...) }

// Info logs at info level with key/value fields.
func Info(msg string, args ...any) { current.Load().Info(msg, args...) }

// Warn logs at warn level with key/value fields.
func Warn(msg string, args ...any) { current.Load().Warn(msg, args...) }

// Error logs at error level with key/value fields.
func Error(msg string, args ...any) { current.Load().Error(msg, args...) }

// With returns a child logger carrying the fields on every record.
func With(args ...any) *slog.Logger { return current.Load().With(args...) }
