package services

import "context"

type ctxKey int

const runIDKey ctxKey = iota

// WithRunID returns a context carrying the id of the current run.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// RunID extracts the run id from the context, or "" if absent.
func RunID(ctx context.Context) string {
	v, _ := ctx.Value(runIDKey).(string)
	return v
}
