package logcontext

import (
	"context"
	"log/slog"
)

type ctxKey string

const slogFields ctxKey = "slog_fields"

// ContextHandler propagates attrs carried in the context into every record.
type ContextHandler struct {
	slog.Handler
}

func (h ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(FromCtx(ctx)...)
	return h.Handler.Handle(ctx, r)
}

func AppendCtx(parent context.Context, attr slog.Attr) context.Context {
	if parent == nil {
		parent = context.Background()
	}

	if v, ok := parent.Value(slogFields).([]slog.Attr); ok {
		v = append(v, attr)
		return context.WithValue(parent, slogFields, v)
	}

	return context.WithValue(parent, slogFields, []slog.Attr{attr})
}

func FromCtx(ctx context.Context) []slog.Attr {
	if v, ok := ctx.Value(slogFields).([]slog.Attr); ok {
		return v
	}
	return nil
}
