package agent

import (
	"context"
	"errors"
	"testing"

	agentModels "atelier/internal/domain/models/agent"
	"atelier/internal/service/agent/tools"
)

func newTestRecorder() (*Recorder, *ContextService, *fakeToolCallRepo, *fakeReferenceRepo) {
	svc, _, toolCalls, references := newTestContextService()
	extractor := NewReferenceExtractor(toolCalls, references, testLogger())
	return NewRecorder(svc, extractor, testLogger()), svc, toolCalls, references
}

func TestRecorder_UnboundPassthrough(t *testing.T) {
	recorder, _, toolCalls, _ := newTestRecorder()

	result, err := recorder.Record(context.Background(), "navigate", map[string]any{"url": "x"}, func(ctx context.Context) (any, error) {
		return map[string]any{"success": true}, nil
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if result.(map[string]any)["success"] != true {
		t.Errorf("unexpected result %v", result)
	}
	if len(toolCalls.calls) != 0 {
		t.Error("unbound recorder must not persist tool calls")
	}
}

func TestRecorder_RecordsSuccess(t *testing.T) {
	recorder, svc, toolCalls, _ := newTestRecorder()
	ctx := context.Background()
	c := mustCreateContext(t, svc)
	recorder.Bind(c.ID, false)

	result, err := recorder.Record(ctx, "navigate", map[string]any{"url": "https://example.com"}, func(ctx context.Context) (any, error) {
		return map[string]any{"success": true, "current_url": "https://example.com/"}, nil
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if result == nil {
		t.Fatal("result should pass through")
	}

	recorded, err := toolCalls.ListToolCalls(ctx, c.ID, "navigate", "")
	if err != nil {
		t.Fatalf("ListToolCalls: %v", err)
	}
	if len(recorded) != 1 {
		t.Fatalf("expected 1 recorded call, got %d", len(recorded))
	}
	tc := recorded[0]
	if !tc.Success() {
		t.Errorf("recorded call should be completed, got %q / %q", tc.Status, tc.ErrorMessage)
	}
	if tc.Arguments["url"] != "https://example.com" {
		t.Errorf("arguments not recorded: %v", tc.Arguments)
	}
	if tc.Result["current_url"] != "https://example.com/" {
		t.Errorf("result not recorded: %v", tc.Result)
	}
	if tc.DurationMS == nil {
		t.Error("recorded call should have a duration")
	}
}

func TestRecorder_ToolErrorReRaised(t *testing.T) {
	recorder, svc, toolCalls, _ := newTestRecorder()
	ctx := context.Background()
	c := mustCreateContext(t, svc)
	recorder.Bind(c.ID, false)

	toolErr := errors.New("browser crashed")
	_, err := recorder.Record(ctx, "navigate", nil, func(ctx context.Context) (any, error) {
		return nil, toolErr
	})
	if !errors.Is(err, toolErr) {
		t.Errorf("the tool's own error must be returned unchanged, got %v", err)
	}

	recorded, _ := toolCalls.ListToolCalls(ctx, c.ID, "navigate", "")
	if len(recorded) != 1 || !recorded[0].Failed() {
		t.Errorf("failed call should be recorded as failed: %v", recorded)
	}
	if recorded[0].ErrorMessage != "browser crashed" {
		t.Errorf("error message not recorded: %q", recorded[0].ErrorMessage)
	}
}

func TestRecorder_CallIDFromContext(t *testing.T) {
	recorder, svc, toolCalls, _ := newTestRecorder()
	c := mustCreateContext(t, svc)
	recorder.Bind(c.ID, false)

	ctx := tools.WithCallID(context.Background(), "toolu_abc123")
	_, err := recorder.Record(ctx, "navigate", nil, func(ctx context.Context) (any, error) {
		return map[string]any{"success": true}, nil
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	recorded, _ := toolCalls.ListToolCalls(context.Background(), c.ID, "navigate", "")
	if len(recorded) != 1 || recorded[0].ToolCallID != "toolu_abc123" {
		t.Errorf("call ID from context not recorded: %v", recorded)
	}
}

func TestRecorder_PostCallExtraction(t *testing.T) {
	recorder, svc, _, references := newTestRecorder()
	ctx := context.Background()
	c := mustCreateContext(t, svc)
	recorder.Bind(c.ID, true)

	_, err := recorder.Record(ctx, "navigate", map[string]any{"url": "https://example.com"}, func(ctx context.Context) (any, error) {
		return map[string]any{"success": true, "title": "Example", "current_url": "https://example.com/"}, nil
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	refs, err := references.ListReferences(ctx, c.ID, "")
	if err != nil {
		t.Fatalf("ListReferences: %v", err)
	}
	if len(refs) != 1 || refs[0].URL != "https://example.com/" {
		t.Errorf("successful navigate should immediately yield a reference, got %v", refs)
	}
}

func TestRecorder_UnbindStopsRecording(t *testing.T) {
	recorder, svc, toolCalls, _ := newTestRecorder()
	ctx := context.Background()
	c := mustCreateContext(t, svc)

	recorder.Bind(c.ID, false)
	recorder.Unbind()

	_, err := recorder.Record(ctx, "navigate", nil, func(ctx context.Context) (any, error) {
		return map[string]any{"success": true}, nil
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(toolCalls.calls) != 0 {
		t.Error("unbound recorder must not persist tool calls")
	}
}

func TestRecordingRegistry_WrapOnce(t *testing.T) {
	recorder, svc, toolCalls, _ := newTestRecorder()
	ctx := context.Background()
	c := mustCreateContext(t, svc)
	recorder.Bind(c.ID, false)

	registry := NewRecordingRegistry(recorder)

	firstCalls := 0
	registry.Register("navigate", tools.ToolExecutorFunc(func(ctx context.Context, input map[string]any) (any, error) {
		firstCalls++
		return map[string]any{"success": true}, nil
	}))
	// duplicate registration is ignored
	registry.Register("navigate", tools.ToolExecutorFunc(func(ctx context.Context, input map[string]any) (any, error) {
		t.Error("second registration must not replace the first")
		return nil, nil
	}))

	result := registry.Execute(ctx, tools.ToolCall{ID: "call-1", Name: "navigate", Input: map[string]any{}})
	if result.IsError {
		t.Fatalf("Execute: %v", result.Error)
	}
	if firstCalls != 1 {
		t.Errorf("executor should run exactly once, ran %d times", firstCalls)
	}

	recorded, _ := toolCalls.ListToolCalls(ctx, c.ID, "navigate", "")
	if len(recorded) != 1 {
		t.Errorf("one execution should record exactly one call, got %d", len(recorded))
	}
	if recorded[0].ToolCallID != "call-1" {
		t.Errorf("registry should thread the call ID through, got %q", recorded[0].ToolCallID)
	}
	if recorded[0].Status != agentModels.ToolCallStatusCompleted {
		t.Errorf("unexpected status %q", recorded[0].Status)
	}
}
