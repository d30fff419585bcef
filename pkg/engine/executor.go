package engine

import "context"

// ActionExecutor runs one kind of automated action. The engine treats it as
// an opaque call bounded by the node's timeout; returned values are merged
// into the request's form data.
type ActionExecutor interface {
	Execute(ctx context.Context, params map[string]string, formData map[string]any) (map[string]any, error)
}

// ActionExecutorFunc adapts a plain function to the ActionExecutor interface.
type ActionExecutorFunc func(ctx context.Context, params map[string]string, formData map[string]any) (map[string]any, error)

func (f ActionExecutorFunc) Execute(ctx context.Context, params map[string]string, formData map[string]any) (map[string]any, error) {
	return f(ctx, params, formData)
}
