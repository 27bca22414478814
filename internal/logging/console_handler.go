package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const consoleTimeLayout = "2006-01-02 15:04:05"

// consoleHandler renders one header line per record followed by an indented
// bullet per field:
//
//	2026-01-02 15:04:05 INFO [pipeline] Task task_1_x (translating) – batch saved
//	    - batch: 2
type consoleHandler struct {
	out       *lockedWriter
	level     *slog.LevelVar
	preset    []slog.Attr
	groups    []string
	addSource bool
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) write(p []byte) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	_, err := lw.w.Write(p)
	return err
}

func newPrettyHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &consoleHandler{out: &lockedWriter{w: w}, level: lvl, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.preset = append(append([]slog.Attr(nil), h.preset...), attrs...)
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.groups = append(append([]string(nil), h.groups...), name)
	return &next
}

// field is a flattened attribute with its group path joined into the key.
type field struct {
	key   string
	value slog.Value
}

// headline holds the attributes promoted into the header line.
type headline struct {
	component string
	taskID    string
	videoID   string
	stage     string
}

func (hl headline) subject() string {
	var b strings.Builder
	switch {
	case hl.taskID != "":
		b.WriteString("Task " + hl.taskID)
	case hl.videoID != "":
		b.WriteString("Video " + hl.videoID)
	}
	if hl.stage != "" {
		if b.Len() > 0 {
			b.WriteString(" (" + hl.stage + ")")
		} else {
			b.WriteString(hl.stage)
		}
	}
	return b.String()
}

// promoted reports whether key is already shown in the header.
func (hl headline) promoted(key string) bool {
	switch key {
	case FieldComponent, FieldTaskID, FieldStage:
		return true
	case FieldVideoID:
		return hl.taskID == ""
	}
	return false
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	if !h.Enabled(context.Background(), record.Level) {
		return nil
	}

	fields := h.collect(record)
	var hl headline
	for _, f := range fields {
		switch f.key {
		case FieldComponent:
			hl.component = plainString(f.value)
		case FieldTaskID:
			hl.taskID = plainString(f.value)
		case FieldVideoID:
			hl.videoID = plainString(f.value)
		case FieldStage:
			hl.stage = plainString(f.value)
		}
	}

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	msg := strings.TrimSpace(record.Message)
	if msg == "" {
		msg = "(no message)"
	}

	var b strings.Builder
	b.WriteString(ts.In(time.Local).Format(consoleTimeLayout))
	b.WriteString(" " + levelLabel(record.Level))
	if hl.component != "" {
		b.WriteString(" [" + hl.component + "]")
	}
	if s := hl.subject(); s != "" {
		b.WriteString(" " + s)
	}
	b.WriteString(" – " + msg)
	if h.addSource {
		if src := record.Source(); src != nil && src.File != "" {
			fmt.Fprintf(&b, " [%s:%d]", filepath.Base(src.File), src.Line)
		}
	}
	b.WriteByte('\n')

	// Debug output keeps every field, unbulleted, for grepping.
	verbose := record.Level < slog.LevelInfo
	bullet := "    - "
	if verbose {
		bullet = "    "
	}
	for _, f := range fields {
		if f.key == FieldComponent || (!verbose && hl.promoted(f.key)) {
			continue
		}
		b.WriteString(bullet + f.key + ": " + renderValue(f.value) + "\n")
	}
	return h.out.write([]byte(b.String()))
}

// collect flattens preset and record attributes. A repeated key keeps its
// first position and its last value.
func (h *consoleHandler) collect(record slog.Record) []field {
	var flat []field
	for _, a := range h.preset {
		flat = appendFlattened(flat, h.groups, a)
	}
	record.Attrs(func(a slog.Attr) bool {
		flat = appendFlattened(flat, h.groups, a)
		return true
	})

	index := make(map[string]int, len(flat))
	out := flat[:0]
	for _, f := range flat {
		if f.key == "" {
			continue
		}
		if i, seen := index[f.key]; seen {
			out[i].value = f.value
			continue
		}
		index[f.key] = len(out)
		out = append(out, f)
	}
	return out
}

func appendFlattened(dst []field, path []string, a slog.Attr) []field {
	if a.Equal(slog.Attr{}) {
		return dst
	}
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		sub := path
		if a.Key != "" {
			sub = append(append([]string(nil), path...), a.Key)
		}
		for _, member := range v.Group() {
			dst = appendFlattened(dst, sub, member)
		}
		return dst
	}
	key := a.Key
	if len(path) > 0 {
		key = strings.Join(path, ".") + "." + key
	}
	return append(dst, field{key: key, value: v})
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	}
	return "DEBUG"
}

func plainString(v slog.Value) string {
	if v.Kind() == slog.KindAny {
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
	}
	return v.String()
}

func renderValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindDuration:
		return v.Duration().Round(time.Millisecond).String()
	case slog.KindTime:
		return v.Time().In(time.Local).Format(consoleTimeLayout)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindString, slog.KindAny:
		s := plainString(v)
		if s == "" || strings.ContainsFunc(s, func(r rune) bool { return r < ' ' || r == '"' }) {
			return strconv.Quote(s)
		}
		return s
	}
	return v.String()
}
