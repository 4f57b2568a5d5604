package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/term"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// MavenHandler is a slog.Handler that formats logs in Maven-style:
// [LEVEL] [SYSTEM] [HH:MM:SS] message key=value key=value
type MavenHandler struct {
	w              io.Writer
	level          slog.Leveler
	mu             *sync.Mutex
	system         string // e.g., "recon", "api", "import"
	showTimestamps bool
	useColors      bool
	prefix         string // dotted group path applied to record attrs
	preformatted   string // attrs from WithAttrs, already rendered
}

// NewMavenHandler creates a new Maven-style handler
func NewMavenHandler(w io.Writer, opts *slog.HandlerOptions) *MavenHandler {
	h := &MavenHandler{
		w:              w,
		level:          slog.LevelInfo,
		mu:             &sync.Mutex{},
		showTimestamps: true,
		useColors:      isTerminal(w),
	}

	if opts != nil && opts.Level != nil {
		h.level = opts.Level
	}

	return h
}

// WithoutTimestamps returns a copy of the handler that omits the time column
func (h *MavenHandler) WithoutTimestamps() *MavenHandler {
	c := h.clone()
	c.showTimestamps = false
	return c
}

// isTerminal checks if the writer is a terminal (for color output)
func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}

// Enabled reports whether the handler handles records at the given level.
func (h *MavenHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle formats and writes a log record
func (h *MavenHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder

	h.colored(&buf, levelColor(r.Level), "["+levelString(r.Level)+"]")

	if h.system != "" {
		buf.WriteString(" [")
		buf.WriteString(h.system)
		buf.WriteString("]")
	}

	if h.showTimestamps && !r.Time.IsZero() {
		buf.WriteString(" ")
		h.colored(&buf, colorGray, "["+r.Time.Format("15:04:05")+"]")
	}

	buf.WriteString(" ")
	buf.WriteString(r.Message)
	buf.WriteString(h.preformatted)

	r.Attrs(func(a slog.Attr) bool {
		appendAttr(&buf, h.prefix, a)
		return true
	})

	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, buf.String())
	return err
}

func (h *MavenHandler) colored(buf *strings.Builder, color, s string) {
	if h.useColors {
		buf.WriteString(color)
	}
	buf.WriteString(s)
	if h.useColors {
		buf.WriteString(colorReset)
	}
}

// appendAttr renders key=value, flattening groups into dotted keys.
// The "system" attr is shown in brackets instead.
func appendAttr(buf *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if prefix == "" && a.Key == "system" {
		return
	}

	key := a.Key
	if prefix != "" && key != "" {
		key = prefix + "." + key
	} else if key == "" {
		key = prefix
	}

	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			appendAttr(buf, key, ga)
		}
		return
	}

	buf.WriteString(" ")
	buf.WriteString(key)
	buf.WriteString("=")
	buf.WriteString(formatValue(a.Value))
}

// formatValue quotes values containing spaces so lines stay parseable.
func formatValue(v slog.Value) string {
	var s string
	switch v.Kind() {
	case slog.KindString:
		s = v.String()
	case slog.KindTime:
		s = v.Time().Format("2006-01-02T15:04:05Z07:00")
	default:
		s = fmt.Sprint(v.Any())
	}
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

// WithAttrs returns a new handler with the given attributes added
func (h *MavenHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	c := h.clone()

	var buf strings.Builder
	buf.WriteString(h.preformatted)
	for _, attr := range attrs {
		if h.prefix == "" && attr.Key == "system" {
			c.system = attr.Value.String()
			continue
		}
		appendAttr(&buf, h.prefix, attr)
	}
	c.preformatted = buf.String()
	return c
}

// WithGroup returns a new handler that prefixes later attrs with name
func (h *MavenHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := h.clone()
	if c.prefix == "" {
		c.prefix = name
	} else {
		c.prefix = c.prefix + "." + name
	}
	return c
}

func (h *MavenHandler) clone() *MavenHandler {
	c := *h
	return &c
}

// levelColor returns the ANSI color code for a log level (Maven-style)
func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return colorRed
	case level >= slog.LevelWarn:
		return colorYellow
	case level >= slog.LevelInfo:
		return colorCyan
	default:
		return colorGray
	}
}

// levelString returns a short, uppercase string for the log level
func levelString(level slog.Level) string {
	switch level {
	case slog.LevelDebug:
		return "DEBUG"
	case slog.LevelInfo:
		return "INFO"
	case slog.LevelWarn:
		return "WARN"
	case slog.LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", level)
	}
}
