package agent

import (
	"encoding/json"
	"time"
)

// ToolCall statuses.
const (
	ToolCallStatusPending   = "pending"
	ToolCallStatusExecuting = "executing"
	ToolCallStatusCompleted = "completed"
	ToolCallStatusFailed    = "failed"
)

// ToolCallStatuses is the set of valid tool call statuses.
var ToolCallStatuses = []string{
	ToolCallStatusPending,
	ToolCallStatusExecuting,
	ToolCallStatusCompleted,
	ToolCallStatusFailed,
}

// ToolCall records a single tool invocation within a context: the tool name
// and arguments requested by the LLM, the result the tool returned, and
// execution timing. Position is gap-free per context, in call order.
//
// DurationMS is computed once at completion time from StartedAt and never
// recomputed afterwards.
type ToolCall struct {
	ID           string         `json:"id" db:"id"`
	ContextID    string         `json:"context_id" db:"context_id"`
	ToolCallID   string         `json:"tool_call_id,omitempty" db:"tool_call_id"`
	Name         string         `json:"name" db:"name"`
	Arguments    map[string]any `json:"arguments,omitempty" db:"arguments"`
	Result       map[string]any `json:"result,omitempty" db:"result"`
	Status       string         `json:"status" db:"status"`
	ErrorMessage string         `json:"error_message,omitempty" db:"error_message"`
	StartedAt    *time.Time     `json:"started_at,omitempty" db:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
	DurationMS   *int           `json:"duration_ms,omitempty" db:"duration_ms"`
	Position     int            `json:"position" db:"position"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" db:"updated_at"`
}

// Success reports whether the tool call completed without an error.
func (tc *ToolCall) Success() bool {
	return tc.Status == ToolCallStatusCompleted && tc.ErrorMessage == ""
}

// Failed reports whether the tool call failed.
func (tc *ToolCall) Failed() bool {
	return tc.Status == ToolCallStatusFailed
}

// InProgress reports whether the tool call has not yet finished.
func (tc *ToolCall) InProgress() bool {
	return tc.Status == ToolCallStatusPending || tc.Status == ToolCallStatusExecuting
}

// NormalizePayload converts an arbitrary tool argument/result value into the
// canonical stored representation: a structured map. JSON-encoded strings are
// parsed once here, at the write boundary; a string that fails to parse as a
// JSON object is kept under a "raw" key. Non-map values are wrapped the same
// way so readers never have to re-parse.
func NormalizePayload(value any) map[string]any {
	switch v := value.(type) {
	case nil:
		return nil
	case map[string]any:
		return v
	case string:
		var parsed map[string]any
		if err := json.Unmarshal([]byte(v), &parsed); err != nil {
			return map[string]any{"raw": v}
		}
		return parsed
	case []byte:
		var parsed map[string]any
		if err := json.Unmarshal(v, &parsed); err != nil {
			return map[string]any{"raw": string(v)}
		}
		return parsed
	default:
		// Round-trip through JSON so struct-shaped results become maps.
		encoded, err := json.Marshal(v)
		if err != nil {
			return map[string]any{"raw": ""}
		}
		var parsed map[string]any
		if err := json.Unmarshal(encoded, &parsed); err != nil {
			return map[string]any{"raw": string(encoded)}
		}
		return parsed
	}
}

// ToolCallStatistics aggregates tool call outcomes for a context.
type ToolCallStatistics struct {
	Total           int            `json:"total"`
	Completed       int            `json:"completed"`
	Failed          int            `json:"failed"`
	Pending         int            `json:"pending"`
	Executing       int            `json:"executing"`
	TotalDurationMS int64          `json:"total_duration_ms"`
	ByTool          map[string]int `json:"by_tool"`
}

// ToolCallResult is the summary of one completed call used when constructing
// follow-up prompts.
type ToolCallResult struct {
	Name       string         `json:"name"`
	Arguments  map[string]any `json:"arguments,omitempty"`
	Result     map[string]any `json:"result,omitempty"`
	DurationMS *int           `json:"duration_ms,omitempty"`
}
