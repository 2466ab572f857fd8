package agent

import (
	"context"
	"log/slog"
	"sync"

	"atelier/internal/service/agent/tools"
)

// Recorder wraps tool execution with persistence: every call made through it
// is recorded as executing before the tool runs and completed or failed
// after, against the bound context. An unbound recorder is a passthrough, so
// tool code never has to care whether recording is on.
type Recorder struct {
	service   *ContextService
	extractor *ReferenceExtractor
	logger    *slog.Logger

	mu                sync.Mutex
	contextID         string
	extractReferences bool
}

// NewRecorder creates an unbound Recorder
func NewRecorder(service *ContextService, extractor *ReferenceExtractor, logger *slog.Logger) *Recorder {
	return &Recorder{
		service:   service,
		extractor: extractor,
		logger:    logger,
	}
}

// Bind attaches the recorder to a context. extractReferences additionally
// runs reference extraction after each successful browsing call.
func (r *Recorder) Bind(contextID string, extractReferences bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contextID = contextID
	r.extractReferences = extractReferences
}

// Unbind detaches the recorder; subsequent calls pass through unrecorded
func (r *Recorder) Unbind() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contextID = ""
	r.extractReferences = false
}

func (r *Recorder) binding() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.contextID, r.extractReferences
}

// Record runs fn, persisting the call's lifecycle around it. The tool's
// outcome is reported unchanged: a tool error is re-returned as-is after
// the failure is recorded. Persistence errors do propagate - a recorded
// session must not silently lose calls.
func (r *Recorder) Record(ctx context.Context, name string, args map[string]any, fn func(context.Context) (any, error)) (any, error) {
	contextID, extract := r.binding()
	if contextID == "" {
		return fn(ctx)
	}

	tc, err := r.service.RecordToolCallStart(ctx, contextID, name, args, tools.CallIDFrom(ctx))
	if err != nil {
		return nil, err
	}

	result, toolErr := fn(ctx)
	if toolErr != nil {
		if _, err := r.service.RecordToolCallFailure(ctx, tc.ID, toolErr); err != nil {
			return nil, err
		}
		return result, toolErr
	}

	completed, err := r.service.RecordToolCallComplete(ctx, tc.ID, result)
	if err != nil {
		return nil, err
	}

	if extract {
		if _, err := r.extractor.ExtractFromToolCall(ctx, completed); err != nil {
			r.logger.Error("post-call reference extraction failed",
				"context_id", contextID,
				"tool", name,
				"error", err,
			)
		}
	}

	return result, nil
}

// wrap returns an executor whose calls go through Record
func (r *Recorder) wrap(name string, executor tools.ToolExecutor) tools.ToolExecutor {
	return tools.ToolExecutorFunc(func(ctx context.Context, input map[string]any) (any, error) {
		return r.Record(ctx, name, input, func(ctx context.Context) (any, error) {
			return executor.Execute(ctx, input)
		})
	})
}

// RecordingRegistry is a tool registry whose executors are wrapped with the
// recorder at registration time. Wrapping is idempotent per tool name.
type RecordingRegistry struct {
	*tools.Registry
	recorder *Recorder

	mu      sync.Mutex
	wrapped map[string]bool
}

// NewRecordingRegistry creates a registry that records through recorder
func NewRecordingRegistry(recorder *Recorder) *RecordingRegistry {
	return &RecordingRegistry{
		Registry: tools.NewRegistry(),
		recorder: recorder,
		wrapped:  make(map[string]bool),
	}
}

// Register wraps the executor with recording and registers it. Registering
// the same name again is a no-op: the first registration wins and the
// executor is never double-wrapped.
func (rr *RecordingRegistry) Register(name string, executor tools.ToolExecutor) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	if rr.wrapped[name] {
		return
	}
	rr.wrapped[name] = true
	rr.Registry.Register(name, rr.recorder.wrap(name, executor))
}
