package logger

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
	ansiDim    = "\x1b[90m"
)

// consoleHandler renders records as single human-readable lines:
//
//	2026-01-02 15:04:05 INFO  message key=value nested.key=value
//
// Groups are flattened into dotted key prefixes. The mutex is shared across
// WithAttrs/WithGroup children so concurrent writes stay whole lines.
type consoleHandler struct {
	w     io.Writer
	mu    *sync.Mutex
	level slog.Leveler
	color bool

	prefix string
	attrs  []slog.Attr
}

func newConsoleHandler(w io.Writer, level slog.Leveler, color bool) *consoleHandler {
	return &consoleHandler{w: w, mu: &sync.Mutex{}, level: level, color: color}
}

func (h *consoleHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Time.Format("2006-01-02 15:04:05"))
	b.WriteByte(' ')
	h.writeLevel(&b, r.Level)
	b.WriteByte(' ')
	b.WriteString(r.Message)

	for _, a := range h.attrs {
		h.writeAttr(&b, h.prefix, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.writeAttr(&b, h.prefix, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *consoleHandler) writeLevel(b *strings.Builder, l slog.Level) {
	name, color := "INFO ", ansiGreen
	switch {
	case l < slog.LevelInfo:
		name, color = "DEBUG", ansiDim
	case l >= slog.LevelError:
		name, color = "ERROR", ansiRed
	case l >= slog.LevelWarn:
		name, color = "WARN ", ansiYellow
	}
	if h.color {
		b.WriteString(color)
		b.WriteString(name)
		b.WriteString(ansiReset)
		return
	}
	b.WriteString(name)
}

func (h *consoleHandler) writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		sub := prefix
		if a.Key != "" {
			sub = prefix + a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			h.writeAttr(b, sub, ga)
		}
		return
	}

	b.WriteByte(' ')
	if h.color {
		b.WriteString(ansiCyan)
		b.WriteString(prefix)
		b.WriteString(a.Key)
		b.WriteString(ansiReset)
	} else {
		b.WriteString(prefix)
		b.WriteString(a.Key)
	}
	b.WriteByte('=')
	b.WriteString(renderValue(a.Value))
}

// renderValue quotes strings that would break key=value tokenization.
func renderValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if strings.ContainsAny(s, " \t\"=") {
			return strconv.Quote(s)
		}
		return s
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindDuration:
		return v.Duration().String()
	default:
		return v.String()
	}
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &c
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix = h.prefix + name + "."
	return &c
}
