package application

import (
	"context"
	"log/slog"
)

type logAttrsKey struct{}

// WithLogAttrs anexa atributos de log ao contexto (ex: método, path, request id).
// As políticas incluem esses atributos quando logam bloqueios e falhas de storage.
func WithLogAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	prev := LogAttrs(ctx)
	merged := make([]slog.Attr, 0, len(prev)+len(attrs))
	merged = append(merged, prev...)
	merged = append(merged, attrs...)
	return context.WithValue(ctx, logAttrsKey{}, merged)
}

func LogAttrs(ctx context.Context) []slog.Attr {
	if attrs, ok := ctx.Value(logAttrsKey{}).([]slog.Attr); ok {
		return attrs
	}
	return nil
}
