package logger

import (
	"context"
	"log/slog"
)

type ContextKey string

const (
	// Business context keys propagated through the pipeline for
	// observability.
	SearchIDKey      ContextKey = "reuse.search.id"
	DocumentIDKey    ContextKey = "reuse.document.id"
	PipelineStageKey ContextKey = "reuse.pipeline.stage"
)

// ContextLogger extracts business context values into log fields.
type ContextLogger struct {
	logger *slog.Logger
}

// GlobalContext is the process-wide context logger. NewWithOTel rebinds it
// to the configured handler chain.
var GlobalContext = NewContextLogger(slog.Default())

// NewContextLogger creates a new context-aware logger.
func NewContextLogger(logger *slog.Logger) *ContextLogger {
	return &ContextLogger{logger: logger}
}

// WithContext returns a logger with context values extracted and added as
// fields.
func (cl *ContextLogger) WithContext(ctx context.Context) *slog.Logger {
	logger := cl.logger

	var fields []any
	if searchID := ctx.Value(SearchIDKey); searchID != nil {
		fields = append(fields, string(SearchIDKey), searchID)
	}
	if documentID := ctx.Value(DocumentIDKey); documentID != nil {
		fields = append(fields, string(DocumentIDKey), documentID)
	}
	if stage := ctx.Value(PipelineStageKey); stage != nil {
		fields = append(fields, string(PipelineStageKey), stage)
	}
	if len(fields) > 0 {
		logger = logger.With(fields...)
	}

	return logger
}

// WithSearchID adds the search ID to context for observability.
func WithSearchID(ctx context.Context, searchID string) context.Context {
	return context.WithValue(ctx, SearchIDKey, searchID)
}

// WithDocumentID adds the source document ID to context for observability.
func WithDocumentID(ctx context.Context, documentID string) context.Context {
	return context.WithValue(ctx, DocumentIDKey, documentID)
}

// WithPipelineStage adds the pipeline stage to context for observability.
func WithPipelineStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, PipelineStageKey, stage)
}
