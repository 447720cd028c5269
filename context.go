package lambdamiddlewareutils

import (
	"encoding/json"
	"maps"
	"slices"
)

// Keys the hosting runtime populates for every invocation.
const (
	RequestIDKey          = "awsRequestId"
	FunctionNameKey       = "functionName"
	FunctionVersionKey    = "functionVersion"
	InvokedFunctionARNKey = "invokedFunctionArn"
	MemoryLimitKey        = "memoryLimitInMB"
)

// Context is the per-invocation key-value state passed alongside the event.
// It is immutable: With and WithValues return extended copies, so a value
// added by a downstream middleware is never visible upstream.
//
// The zero value is an empty context.
type Context struct {
	values map[string]any
}

// NewContext copies values into a new Context.
func NewContext(values map[string]any) Context {
	return Context{values: maps.Clone(values)}
}

// With returns a copy of c with key set to value.
func (c Context) With(key string, value any) Context {
	values := make(map[string]any, len(c.values)+1)
	maps.Copy(values, c.values)
	values[key] = value
	return Context{values: values}
}

// WithValues returns a copy of c with values merged over it.
func (c Context) WithValues(values map[string]any) Context {
	merged := make(map[string]any, len(c.values)+len(values))
	maps.Copy(merged, c.values)
	maps.Copy(merged, values)
	return Context{values: merged}
}

// Value returns the value stored under key.
func (c Context) Value(key string) (any, bool) {
	value, ok := c.values[key]
	return value, ok
}

// Len reports the number of keys.
func (c Context) Len() int {
	return len(c.values)
}

// Keys returns the context keys in sorted order.
func (c Context) Keys() []string {
	return slices.Sorted(maps.Keys(c.values))
}

// Map returns a copy of the underlying values.
func (c Context) Map() map[string]any {
	if c.values == nil {
		return map[string]any{}
	}
	return maps.Clone(c.values)
}

// MarshalJSON encodes the context as a JSON object.
func (c Context) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Map())
}

// Value looks up key and asserts it to T. The second result is false when
// the key is absent or holds a value of another type.
func Value[T any](c Context, key string) (T, bool) {
	value, ok := c.values[key].(T)
	return value, ok
}

func RequestID(c Context) string {
	id, _ := Value[string](c, RequestIDKey)
	return id
}

func FunctionName(c Context) string {
	name, _ := Value[string](c, FunctionNameKey)
	return name
}
