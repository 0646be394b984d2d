package logging

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var stageTitle = cases.Title(language.Und)

// prettyHandler renders one line per record:
//
//	2026-01-02 15:04:05 INFO [component] Unit 000123 (Publish) – message key=value
type prettyHandler struct {
	mu        *sync.Mutex
	w         io.Writer
	level     *slog.LevelVar
	addSource bool
	red       redactor
	prefix    string // dotted group path applied to later attrs
	fields    []field
}

type field struct {
	key   string
	value slog.Value
}

func newPrettyHandler(w io.Writer, lvl *slog.LevelVar, addSource bool, red redactor) slog.Handler {
	return &prettyHandler{mu: &sync.Mutex{}, w: w, level: lvl, addSource: addSource, red: red}
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *prettyHandler) Handle(_ context.Context, record slog.Record) error {
	fields := append([]field(nil), h.fields...)
	record.Attrs(func(a slog.Attr) bool {
		fields = h.collect(fields, h.prefix, a)
		return true
	})
	fields = lastWins(fields)

	var component, unitID, stage string
	var b strings.Builder
	rest := fields[:0]
	for _, f := range fields {
		switch f.key {
		case FieldComponent:
			component = attrString(f.value)
		case FieldUnitID:
			unitID = attrString(f.value)
		case FieldStage:
			stage = attrString(f.value)
		default:
			rest = append(rest, f)
		}
	}

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	b.WriteString(formatTimestamp(ts))
	b.WriteString(" " + levelLabel(record.Level))
	if component != "" {
		b.WriteString(" [" + component + "]")
	}
	if subject := composeSubject(unitID, stage); subject != "" {
		b.WriteString(" " + subject)
	}
	msg := strings.TrimSpace(h.red.text(record.Message))
	if msg == "" {
		msg = "(no message)"
	}
	b.WriteString(" – " + msg)
	if src := record.Source(); h.addSource && src != nil {
		b.WriteString(" [" + filepath.Base(src.File) + ":" + strconv.Itoa(src.Line) + "]")
	}
	for _, f := range rest {
		b.WriteString(" " + f.key + "=" + formatValue(f.value))
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

// collect flattens a into dst, expanding groups into dotted keys.
func (h *prettyHandler) collect(dst []field, prefix string, a slog.Attr) []field {
	if a.Equal(slog.Attr{}) {
		return dst
	}
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		inner := prefix
		if a.Key != "" {
			inner = joinKey(prefix, a.Key)
		}
		for _, member := range a.Value.Group() {
			dst = h.collect(dst, inner, member)
		}
		return dst
	}
	a = h.red.attr(a)
	return append(dst, field{key: joinKey(prefix, a.Key), value: a.Value})
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// lastWins drops earlier duplicates of a key, keeping the first position.
func lastWins(fields []field) []field {
	if len(fields) < 2 {
		return fields
	}
	index := make(map[string]int, len(fields))
	out := make([]field, 0, len(fields))
	for _, f := range fields {
		if f.key == "" {
			continue
		}
		if i, ok := index[f.key]; ok {
			out[i].value = f.value
			continue
		}
		index[f.key] = len(out)
		out = append(out, f)
	}
	return out
}

func composeSubject(unitID, stage string) string {
	unitID = strings.TrimSpace(unitID)
	if stage = strings.TrimSpace(stage); stage != "" {
		stage = stageTitle.String(strings.ReplaceAll(stage, "_", " "))
	}
	switch {
	case unitID != "" && stage != "":
		return "Unit " + unitID + " (" + stage + ")"
	case unitID != "":
		return "Unit " + unitID
	default:
		return stage
	}
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.fields = append([]field(nil), h.fields...)
	for _, a := range attrs {
		clone.fields = h.collect(clone.fields, h.prefix, a)
	}
	return &clone
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = joinKey(h.prefix, name)
	return &clone
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
