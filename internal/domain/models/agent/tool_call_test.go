package agent

import (
	"reflect"
	"testing"
	"time"
)

func TestNormalizePayload(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected map[string]any
	}{
		{
			name:     "nil stays nil",
			input:    nil,
			expected: nil,
		},
		{
			name:     "map passes through",
			input:    map[string]any{"url": "https://example.com"},
			expected: map[string]any{"url": "https://example.com"},
		},
		{
			name:     "JSON object string is parsed",
			input:    `{"query": "golang", "max_results": 5}`,
			expected: map[string]any{"query": "golang", "max_results": float64(5)},
		},
		{
			name:     "malformed JSON string kept under raw",
			input:    "not json at all",
			expected: map[string]any{"raw": "not json at all"},
		},
		{
			name:     "JSON array string kept under raw",
			input:    `[1, 2, 3]`,
			expected: map[string]any{"raw": `[1, 2, 3]`},
		},
		{
			name:     "JSON bytes are parsed",
			input:    []byte(`{"ok": true}`),
			expected: map[string]any{"ok": true},
		},
		{
			name:     "struct round-trips to map",
			input:    struct{ Title string `json:"title"` }{Title: "Hello"},
			expected: map[string]any{"title": "Hello"},
		},
		{
			name:     "scalar kept under raw",
			input:    42,
			expected: map[string]any{"raw": "42"},
		},
		{
			name:     "unencodable value degrades to empty raw",
			input:    make(chan int),
			expected: map[string]any{"raw": ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizePayload(tt.input)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("NormalizePayload(%v) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestToolCall_Success(t *testing.T) {
	completed := &ToolCall{Status: ToolCallStatusCompleted}
	if !completed.Success() {
		t.Error("completed call without error should be a success")
	}

	withError := &ToolCall{Status: ToolCallStatusCompleted, ErrorMessage: "boom"}
	if withError.Success() {
		t.Error("completed call with an error message is not a success")
	}

	failed := &ToolCall{Status: ToolCallStatusFailed, ErrorMessage: "boom"}
	if failed.Success() {
		t.Error("failed call is not a success")
	}
	if !failed.Failed() {
		t.Error("failed call should report Failed")
	}
}

func TestToolCall_InProgress(t *testing.T) {
	now := time.Now()
	executing := &ToolCall{Status: ToolCallStatusExecuting, StartedAt: &now}
	if !executing.InProgress() {
		t.Error("executing call should be in progress")
	}
	pending := &ToolCall{Status: ToolCallStatusPending}
	if !pending.InProgress() {
		t.Error("pending call should be in progress")
	}
	done := &ToolCall{Status: ToolCallStatusCompleted}
	if done.InProgress() {
		t.Error("completed call is not in progress")
	}
}
