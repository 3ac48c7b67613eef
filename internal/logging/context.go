package logging

import (
	"context"
	"fmt"
	"regexp"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields returns the correlation fields stored in ctx: the active
// span, run ID, collection and source file.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 5)

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if id := RunIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("run.id", id))
	}
	if c := CollectionFromContext(ctx); c != "" {
		fields = append(fields, zap.String("collection", c))
	}
	if s := SourceFromContext(ctx); s != "" {
		fields = append(fields, zap.String("source", s))
	}
	return fields
}

type (
	runIDCtxKey      struct{}
	collectionCtxKey struct{}
	sourceCtxKey     struct{}
	loggerCtxKey     struct{}
)

const maxRunIDLen = 128

var runIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateRunID checks that id is a non-empty token of at most 128
// alphanumeric, hyphen or underscore characters.
func ValidateRunID(id string) error {
	if id == "" {
		return fmt.Errorf("run ID cannot be empty")
	}
	if len(id) > maxRunIDLen {
		return fmt.Errorf("run ID exceeds max length %d", maxRunIDLen)
	}
	if !runIDPattern.MatchString(id) {
		return fmt.Errorf("run ID %q contains invalid characters", id)
	}
	return nil
}

// WithRunID stores the ingestion run ID in ctx. It panics on an invalid ID.
func WithRunID(ctx context.Context, id string) context.Context {
	if err := ValidateRunID(id); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, runIDCtxKey{}, id)
}

// RunIDFromContext returns the run ID, or "".
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDCtxKey{}).(string)
	return id
}

// WithCollection stores the target collection in ctx.
func WithCollection(ctx context.Context, collection string) context.Context {
	return context.WithValue(ctx, collectionCtxKey{}, collection)
}

// CollectionFromContext returns the collection, or "".
func CollectionFromContext(ctx context.Context) string {
	c, _ := ctx.Value(collectionCtxKey{}).(string)
	return c
}

// WithSource stores the file being processed in ctx.
func WithSource(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, sourceCtxKey{}, path)
}

// SourceFromContext returns the source file, or "".
func SourceFromContext(ctx context.Context) string {
	s, _ := ctx.Value(sourceCtxKey{}).(string)
	return s
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext returns the logger stored in ctx, or a no-op logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
