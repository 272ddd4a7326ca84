package logger

import (
	"context"
	"log/slog"
)

// ContextHandler is a slog.Handler that copies known context values onto each
// record before delegating to the wrapped handler.
type ContextHandler struct {
	inner        slog.Handler
	commonFields []slog.Attr
}

// NewContextHandler wraps inner. commonFields are added to every record.
func NewContextHandler(inner slog.Handler, commonFields ...slog.Attr) *ContextHandler {
	return &ContextHandler{inner: inner, commonFields: commonFields}
}

// Enabled delegates to the inner handler.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enriches r with common and context fields. Record attributes are
// added last so they win on duplicate keys.
//
//nolint:gocritic // slog.Record is passed by value per slog.Handler interface contract
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	rec := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	rec.AddAttrs(h.commonFields...)
	for _, key := range allContextKeys {
		if s, ok := ctx.Value(key).(string); ok && s != "" {
			rec.AddAttrs(slog.String(string(key), s))
		}
	}
	r.Attrs(func(a slog.Attr) bool {
		rec.AddAttrs(a)
		return true
	})
	return h.inner.Handle(ctx, rec)
}

// WithAttrs returns a handler whose inner handler carries attrs.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs), commonFields: h.commonFields}
}

// WithGroup returns a handler whose inner handler opens group name.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{inner: h.inner.WithGroup(name), commonFields: h.commonFields}
}

var _ slog.Handler = (*ContextHandler)(nil)
