package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync/atomic"
)

var logger atomic.Pointer[slog.Logger]

func init() { SetOutput(os.Stdout) }

// SetOutput redirects JSON log lines to w.
func SetOutput(w io.Writer) {
	logger.Store(slog.New(slog.NewJSONHandler(w, nil)))
}

// Log writes one JSON line; fields are emitted in key order.
func Log(level slog.Level, msg string, fields map[string]any) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, fields[k]))
	}
	logger.Load().LogAttrs(context.Background(), level, msg, attrs...)
}

func Info(msg string, fields map[string]any)  { Log(slog.LevelInfo, msg, fields) }
func Warn(msg string, fields map[string]any)  { Log(slog.LevelWarn, msg, fields) }
func Error(msg string, fields map[string]any) { Log(slog.LevelError, msg, fields) }
