package internal

import "context"

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	RunIDKey  contextKey = "run_id"
	SourceKey contextKey = "source"
)

// GetRunID retrieves the run ID from context
func GetRunID(ctx context.Context) string {
	if id, ok := ctx.Value(RunIDKey).(string); ok {
		return id
	}
	return "unknown"
}

// WithRunID adds a run ID to the context
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// GetSource retrieves the name of the script being processed, "-" for stdin
func GetSource(ctx context.Context) string {
	if source, ok := ctx.Value(SourceKey).(string); ok {
		return source
	}
	return "-"
}

// WithSource adds a script source name to the context
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, SourceKey, source)
}
