package llm

import (
	"context"
	"fmt"
	"strings"
)

// Registry routes model invocations to the provider that serves the model.
type Registry struct {
	defaultInvoker Invoker
	prefixes       map[string]Invoker
}

// NewRegistry constructs a Registry with a default invoker for unmatched models.
func NewRegistry(defaultInvoker Invoker) *Registry {
	return &Registry{
		defaultInvoker: defaultInvoker,
		prefixes:       make(map[string]Invoker),
	}
}

// Register routes model ids with the given prefix to an invoker.
func (r *Registry) Register(prefix string, invoker Invoker) {
	if r == nil || invoker == nil || strings.TrimSpace(prefix) == "" {
		return
	}
	r.prefixes[strings.ToLower(strings.TrimSpace(prefix))] = invoker
}

// Invoke dispatches to the invoker registered for the model's prefix.
func (r *Registry) Invoke(ctx context.Context, modelID string, messages []Message) (Result, error) {
	invoker := r.resolve(modelID)
	if invoker == nil {
		return Result{}, fmt.Errorf("llm: no provider for model %q", modelID)
	}
	return invoker.Invoke(ctx, modelID, messages)
}

func (r *Registry) resolve(modelID string) Invoker {
	if r == nil {
		return nil
	}
	lower := strings.ToLower(strings.TrimSpace(modelID))
	for prefix, invoker := range r.prefixes {
		if strings.HasPrefix(lower, prefix) {
			return invoker
		}
	}
	return r.defaultInvoker
}

// Ensure Registry satisfies Invoker so it can stand in wherever one is needed.
var _ Invoker = (*Registry)(nil)
