package agent

import (
	"context"
	"time"

	"atelier/internal/domain/models/agent"
)

// ToolCallRepository defines data access for recorded tool calls.
type ToolCallRepository interface {
	// CreateToolCall creates a tool call record. Position is assigned
	// atomically per context (gap-free, in call order).
	CreateToolCall(ctx context.Context, tc *agent.ToolCall) error

	// GetToolCall retrieves a tool call by ID
	// Returns domain.ErrNotFound if not found
	GetToolCall(ctx context.Context, toolCallID string) (*agent.ToolCall, error)

	// ListToolCalls retrieves a context's tool calls ordered by position.
	// name filters to one tool when non-empty; status likewise.
	ListToolCalls(ctx context.Context, contextID, name, status string) ([]agent.ToolCall, error)

	// CompleteToolCall marks a tool call completed, stores its result and
	// computes duration_ms from started_at in the same statement. The updated
	// row is returned.
	CompleteToolCall(ctx context.Context, toolCallID string, result map[string]any) (*agent.ToolCall, error)

	// FailToolCall marks a tool call failed with an error message and
	// computes duration_ms the same way CompleteToolCall does.
	FailToolCall(ctx context.Context, toolCallID string, errorMessage string) (*agent.ToolCall, error)

	// Statistics aggregates counts by status, total duration and per-tool
	// counts for a context.
	Statistics(ctx context.Context, contextID string) (*agent.ToolCallStatistics, error)

	// FailStaleExecuting marks tool calls that have been executing since
	// before the cutoff as failed, so sessions interrupted mid-call can be
	// reconciled. Returns the number of rows updated.
	FailStaleExecuting(ctx context.Context, cutoff time.Time) (int, error)
}
