package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gookit/color"
)

// prettyHandler renders one colored line per record for terminal use. The
// JSON handler stays the default; this one is opt-in via PARLEY_LOG_FORMAT.
type prettyHandler struct {
	w      io.Writer
	opts   slog.HandlerOptions
	attrs  []slog.Attr
	groups []string
	color  bool
	mu     *sync.Mutex
}

func newPrettyHandler(w io.Writer, opts *slog.HandlerOptions, colored bool) slog.Handler {
	h := &prettyHandler{
		w:     w,
		color: colored,
		mu:    &sync.Mutex{},
	}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	b.WriteString("ts=")
	b.WriteString(h.dim(ts.Format("15:04:05.000")))
	b.WriteByte(' ')
	b.WriteString("lvl=")
	b.WriteString(levelTag(r.Level, h.color))
	b.WriteByte(' ')
	b.WriteString("msg=")
	b.WriteString(h.bold(r.Message))

	for _, a := range h.attrs {
		h.appendAttr(&b, a, "")
	}
	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(&b, a, "")
		return true
	})

	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &cp
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	if strings.TrimSpace(name) == "" {
		return h
	}
	cp := *h
	cp.groups = append(append([]string{}, h.groups...), name)
	return &cp
}

func (h *prettyHandler) appendAttr(b *strings.Builder, a slog.Attr, parent string) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	key := strings.TrimSpace(a.Key)
	if key == "" {
		return
	}

	fullKey := key
	if parent != "" {
		fullKey = parent + "." + key
	}
	if len(h.groups) > 0 {
		fullKey = strings.Join(h.groups, ".") + "." + fullKey
	}

	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			h.appendAttr(b, ga, fullKey)
		}
		return
	}

	b.WriteByte(' ')
	b.WriteString(remapPrettyKey(fullKey))
	b.WriteByte('=')
	b.WriteString(h.prettyValue(fullKey, a.Value))
}

func (h *prettyHandler) prettyValue(key string, v slog.Value) string {
	switch strings.TrimSpace(key) {
	case "method":
		return h.style(strings.ToUpper(strings.TrimSpace(v.String())), color.Cyan)
	case "path":
		return h.style(strings.TrimSpace(v.String()), color.Cyan)
	case "status":
		if n, ok := valueToInt64(v); ok {
			return h.styleStatus(n)
		}
	case "duration_ms":
		if n, ok := valueToInt64(v); ok {
			return h.styleDuration(n)
		}
	case "result":
		return h.styleResult(strings.ToLower(strings.TrimSpace(v.String())))
	case "err", "error":
		return h.style(quoteIfNeeded(valueToString(v)), color.Red)
	}

	return quoteIfNeeded(valueToString(v))
}

func (h *prettyHandler) styleStatus(code int64) string {
	s := strconv.FormatInt(code, 10)
	switch {
	case code >= 500:
		return h.style(s, color.Red)
	case code >= 400:
		return h.style(s, color.Yellow)
	case code >= 300:
		return h.style(s, color.Cyan)
	default:
		return h.style(s, color.Green)
	}
}

func (h *prettyHandler) styleDuration(ms int64) string {
	s := strconv.FormatInt(ms, 10) + "ms"
	switch {
	case ms >= 1000:
		return h.style(s, color.Red)
	case ms >= 100:
		return h.style(s, color.Yellow)
	default:
		return s
	}
}

func (h *prettyHandler) styleResult(result string) string {
	switch result {
	case "success":
		return h.style(result, color.Green)
	case "client_error":
		return h.style(result, color.Yellow)
	case "server_error":
		return h.style(result, color.Red)
	default:
		return result
	}
}

func (h *prettyHandler) style(s string, c color.Color) string {
	if !h.color {
		return s
	}
	return c.Render(s)
}

func (h *prettyHandler) dim(s string) string {
	return h.style(s, color.Gray)
}

func (h *prettyHandler) bold(s string) string {
	return h.style(s, color.Bold)
}

func remapPrettyKey(k string) string {
	switch k {
	case "status_class":
		return "class"
	case "duration_ms":
		return "duration"
	default:
		return k
	}
}

func valueToInt64(v slog.Value) (int64, bool) {
	switch v.Kind() {
	case slog.KindInt64:
		return v.Int64(), true
	case slog.KindUint64:
		return int64(v.Uint64()), true
	case slog.KindFloat64:
		return int64(v.Float64()), true
	case slog.KindString:
		n, err := strconv.ParseInt(strings.TrimSpace(v.String()), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func valueToString(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindBool:
		if v.Bool() {
			return "true"
		}
		return "false"
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	default:
		return fmt.Sprint(v.Any())
	}
}

func quoteIfNeeded(s string) string {
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, " \t\r\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

func levelTag(level slog.Level, colored bool) string {
	tag, c := "[INFO]", color.Blue
	switch {
	case level >= slog.LevelError:
		tag, c = "[ERROR]", color.Red
	case level >= slog.LevelWarn:
		tag, c = "[WARN]", color.Yellow
	case level < slog.LevelInfo:
		tag, c = "[DEBUG]", color.Magenta
	}
	if !colored {
		return tag
	}
	return c.Render(tag)
}
