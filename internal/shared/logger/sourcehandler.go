package logger

import (
	"context"
	"log/slog"
	"runtime"
)

// sourceThresholdHandler attaches the caller location only to records at or
// above minLevel. The wrapped handler must be built with AddSource: false.
type sourceThresholdHandler struct {
	handler  slog.Handler
	minLevel slog.Level
}

// NewSourceThresholdHandler wraps handler so that source location is added
// for records whose level is >= minLevel.
func NewSourceThresholdHandler(handler slog.Handler, minLevel slog.Level) slog.Handler {
	return &sourceThresholdHandler{handler: handler, minLevel: minLevel}
}

func (h *sourceThresholdHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.minLevel {
		// skip runtime.Callers, this frame and the slog.Logger.log frame
		var pcs [1]uintptr
		runtime.Callers(3, pcs[:])
		f, _ := runtime.CallersFrames(pcs[:]).Next()

		r.AddAttrs(slog.Any(slog.SourceKey, &slog.Source{
			Function: f.Function,
			File:     f.File,
			Line:     f.Line,
		}))
	}
	return h.handler.Handle(ctx, r)
}

func (h *sourceThresholdHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &sourceThresholdHandler{handler: h.handler.WithAttrs(attrs), minLevel: h.minLevel}
}

func (h *sourceThresholdHandler) WithGroup(name string) slog.Handler {
	return &sourceThresholdHandler{handler: h.handler.WithGroup(name), minLevel: h.minLevel}
}

func (h *sourceThresholdHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}
