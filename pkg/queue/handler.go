package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

type (
	Handler interface {
		Name() string
		Handle(ctx context.Context, payload json.RawMessage) error
	}

	TaskHandlerFunc[T any] func(ctx context.Context, payload T) error
)

// NewTaskHandler binds a typed handler to the task name derived from T,
// matching the name the Enqueuer gives a payload of the same type.
func NewTaskHandler[T any](handler TaskHandlerFunc[T]) Handler {
	var payload T
	return &taskHandler[T]{
		name:    taskName(payload),
		handler: handler,
	}
}

type taskHandler[T any] struct {
	name    string
	handler TaskHandlerFunc[T]
}

func (h *taskHandler[T]) Name() string {
	return h.name
}

// Handle decodes the payload; a payload that does not decode is never retried.
func (h *taskHandler[T]) Handle(ctx context.Context, payload json.RawMessage) error {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return Permanent(err)
	}
	return h.handler(ctx, t)
}

// taskName is the package-qualified type name of v without pointer stars,
// e.g. "dispatch.SendOperation".
func taskName(v any) string {
	return strings.TrimLeft(fmt.Sprintf("%T", v), "*")
}
