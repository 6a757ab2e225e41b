// Package contexttag carries log tags on a context so that every log entry
// emitted during an invocation is stamped with run-scoped fields (command,
// lock holder id, keyspace).
package contexttag

import (
	"context"
)

type ctxMarkerLogTagsKey struct{}

// SetOntoContext installs a mutable tag set onto the context.
func SetOntoContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxMarkerLogTagsKey{}, &logTags{values: map[string]any{}})
}

// SetOntoContextNoop installs a tag set that drops everything. Used by tests.
func SetOntoContextNoop(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxMarkerLogTagsKey{}, &noopLogTags{})
}

// LogTags is a set of key/value pairs attached to log entries.
type LogTags interface {
	Append(key string, value any) LogTags
	Get(key string) (any, bool)
	Values() map[string]any
}

type logTags struct {
	values map[string]any
}

func (t *logTags) Append(key string, value any) LogTags {
	t.values[key] = value
	return t
}

func (t *logTags) Get(key string) (any, bool) {
	value, ok := t.values[key]
	return value, ok
}

func (t *logTags) Values() map[string]any {
	return t.values
}

var noopLogTagsValues = map[string]any{}

type noopLogTags struct{}

func (t *noopLogTags) Append(key string, value any) LogTags { return t }

func (t *noopLogTags) Get(key string) (any, bool) { return nil, false }

func (t *noopLogTags) Values() map[string]any { return noopLogTagsValues }

// GetLogTags returns the tag set installed on the context, if any.
func GetLogTags(ctx context.Context) (LogTags, bool) {
	tags, ok := ctx.Value(ctxMarkerLogTagsKey{}).(LogTags)
	return tags, ok
}

// Tag appends a tag if the context carries a tag set, then returns the context.
func Tag(ctx context.Context, key string, value any) context.Context {
	if tags, ok := GetLogTags(ctx); ok {
		tags.Append(key, value)
	}
	return ctx
}
