package common

import (
	"context"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRunID contextKey = "run_id"
	ContextKeyFile  contextKey = "file"
)

// WithRunID adds a run ID to the context
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, ContextKeyRunID, runID)
}

// RunIDFromContext extracts the run ID from context
func RunIDFromContext(ctx context.Context) string {
	if runID, ok := ctx.Value(ContextKeyRunID).(string); ok {
		return runID
	}
	return ""
}

// WithFile adds the name of the document being processed to the context
func WithFile(ctx context.Context, file string) context.Context {
	return context.WithValue(ctx, ContextKeyFile, file)
}

// FileFromContext extracts the document name from context
func FileFromContext(ctx context.Context) string {
	if file, ok := ctx.Value(ContextKeyFile).(string); ok {
		return file
	}
	return ""
}
