package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	output   io.Writer = os.Stderr
	outputMu sync.RWMutex
)

// dynamicWriter 每次写入时查找当前输出目标
type dynamicWriter struct{}

func (dynamicWriter) Write(p []byte) (int, error) {
	outputMu.RLock()
	w := output
	outputMu.RUnlock()
	return w.Write(p)
}

// levelBox 在 With 派生的 Handler 之间共享级别
type levelBox struct {
	mu    sync.RWMutex
	level slog.Level
}

func (b *levelBox) get() slog.Level {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.level
}

// subsystemHandler 支持运行时调整级别的 slog.Handler
type subsystemHandler struct {
	level *levelBox
	inner slog.Handler
}

func newHandler(subsystem string, level slog.Level, format Format, addSource bool) *subsystemHandler {
	opts := &slog.HandlerOptions{
		// 级别由 subsystemHandler 过滤
		Level:     slog.LevelDebug,
		AddSource: addSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "ts"
			}
			return a
		},
	}

	var inner slog.Handler
	if format == FormatJSON {
		inner = slog.NewJSONHandler(dynamicWriter{}, opts)
	} else {
		inner = slog.NewTextHandler(dynamicWriter{}, opts)
	}

	return &subsystemHandler{
		level: &levelBox{level: level},
		inner: inner.WithAttrs([]slog.Attr{slog.String("subsystem", subsystem)}),
	}
}

func (h *subsystemHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.get()
}

func (h *subsystemHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.inner.Handle(ctx, r)
}

func (h *subsystemHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &subsystemHandler{level: h.level, inner: h.inner.WithAttrs(attrs)}
}

func (h *subsystemHandler) WithGroup(name string) slog.Handler {
	return &subsystemHandler{level: h.level, inner: h.inner.WithGroup(name)}
}

func (h *subsystemHandler) setLevel(level slog.Level) {
	h.level.mu.Lock()
	h.level.level = level
	h.level.mu.Unlock()
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
