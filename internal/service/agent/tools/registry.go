package tools

import (
	"context"
	"fmt"
	"sync"
)

// ToolCall represents a single tool invocation request.
type ToolCall struct {
	ID    string                 `json:"id"`    // tool_use_id from LLM
	Name  string                 `json:"name"`  // tool name
	Input map[string]interface{} `json:"input"` // tool parameters
}

// ToolResult represents the result of a tool execution.
type ToolResult struct {
	ID      string      `json:"id"`       // tool_use_id (matches ToolCall.ID)
	Name    string      `json:"name"`     // tool name (matches ToolCall.Name)
	Result  interface{} `json:"result"`   // execution result (nil if error)
	Error   error       `json:"error"`    // execution error (nil if success)
	IsError bool        `json:"is_error"` // whether execution failed
}

// callIDContextKey is the type for tool-call-id context keys
type callIDContextKey string

// callIDKey carries the LLM's tool_use_id through Execute so cross-cutting
// wrappers (e.g. recording) can see it without changing the executor
// signature.
const callIDKey callIDContextKey = "tool_call_id"

// WithCallID stores a tool call ID in the context
func WithCallID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, callIDKey, id)
}

// CallIDFrom retrieves the tool call ID from the context, if any
func CallIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(callIDKey).(string)
	return id
}

// Registry manages tool executors and handles tool execution.
// It is thread-safe and can be used concurrently.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]ToolExecutor
}

// NewRegistry creates a new tool registry.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[string]ToolExecutor),
	}
}

// Register adds a tool executor to the registry.
// If a tool with the same name already exists, it will be replaced.
func (r *Registry) Register(name string, executor ToolExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[name] = executor
}

// Get retrieves a tool executor by name.
// Returns nil if the tool is not registered.
func (r *Registry) Get(name string) ToolExecutor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.executors[name]
}

// Names returns the registered tool names, in no particular order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.executors))
	for name := range r.executors {
		names = append(names, name)
	}
	return names
}

// Execute runs a single tool and returns the result.
// The call's ID is placed in the context for cross-cutting wrappers.
func (r *Registry) Execute(ctx context.Context, call ToolCall) ToolResult {
	executor := r.Get(call.Name)
	if executor == nil {
		return ToolResult{
			ID:      call.ID,
			Name:    call.Name,
			Error:   fmt.Errorf("tool not found: %s", call.Name),
			IsError: true,
		}
	}

	if call.ID != "" {
		ctx = WithCallID(ctx, call.ID)
	}

	result, err := executor.Execute(ctx, call.Input)
	if err != nil {
		return ToolResult{
			ID:      call.ID,
			Name:    call.Name,
			Error:   err,
			IsError: true,
		}
	}

	return ToolResult{
		ID:     call.ID,
		Name:   call.Name,
		Result: result,
	}
}

// ExecuteSequential runs multiple tools in order, stopping early only on
// context cancellation. Tool failures are captured per-result so one failed
// call does not hide the rest.
func (r *Registry) ExecuteSequential(ctx context.Context, calls []ToolCall) []ToolResult {
	results := make([]ToolResult, 0, len(calls))
	for _, call := range calls {
		select {
		case <-ctx.Done():
			results = append(results, ToolResult{
				ID:      call.ID,
				Name:    call.Name,
				Error:   ctx.Err(),
				IsError: true,
			})
			continue
		default:
		}
		results = append(results, r.Execute(ctx, call))
	}
	return results
}
