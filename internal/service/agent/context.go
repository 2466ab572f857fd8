package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"atelier/internal/domain"
	agentModels "atelier/internal/domain/models/agent"
	"atelier/internal/domain/repositories"
	agentRepo "atelier/internal/domain/repositories/agent"
)

// ContextService is the aggregate-level API for agent contexts: it creates
// contexts, appends conversation messages, records generations and tool
// calls, and exposes the read projections the UI and prompt construction
// rely on.
type ContextService struct {
	contexts  agentRepo.ContextRepository
	toolCalls agentRepo.ToolCallRepository
	extractor *ReferenceExtractor
	txManager repositories.TransactionManager
	logger    *slog.Logger
}

// NewContextService creates a new ContextService
func NewContextService(
	contexts agentRepo.ContextRepository,
	toolCalls agentRepo.ToolCallRepository,
	extractor *ReferenceExtractor,
	txManager repositories.TransactionManager,
	logger *slog.Logger,
) *ContextService {
	return &ContextService{
		contexts:  contexts,
		toolCalls: toolCalls,
		extractor: extractor,
		txManager: txManager,
		logger:    logger,
	}
}

// CreateContextRequest carries the fields for a new context.
type CreateContextRequest struct {
	AgentName    string
	ActionName   string
	Instructions string
	Contextable  *agentModels.ContextableRef
	Options      map[string]any
}

// CreateContext creates a context in status "pending"
func (s *ContextService) CreateContext(ctx context.Context, req *CreateContextRequest) (*agentModels.Context, error) {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.AgentName, validation.Required),
	); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	c := &agentModels.Context{
		AgentName:    req.AgentName,
		ActionName:   req.ActionName,
		Instructions: req.Instructions,
		Options:      req.Options,
		Contextable:  req.Contextable,
		Status:       agentModels.ContextStatusPending,
	}

	if err := s.contexts.CreateContext(ctx, c); err != nil {
		return nil, err
	}

	s.logger.Info("agent context created",
		"id", c.ID,
		"agent", c.AgentName,
		"action", c.ActionName,
	)

	return c, nil
}

// GetContext retrieves a context by ID
func (s *ContextService) GetContext(ctx context.Context, contextID string) (*agentModels.Context, error) {
	return s.contexts.GetContext(ctx, contextID)
}

// ListContexts retrieves contexts newest first, optionally filtered by agent
func (s *ContextService) ListContexts(ctx context.Context, agentName string, limit int) ([]agentModels.Context, error) {
	return s.contexts.ListContexts(ctx, agentName, limit)
}

// DeleteContext deletes a context and all its children
func (s *ContextService) DeleteContext(ctx context.Context, contextID string) error {
	return s.contexts.DeleteContext(ctx, contextID)
}

// MarkProcessing advances a context from pending to processing
func (s *ContextService) MarkProcessing(ctx context.Context, contextID string) error {
	return s.contexts.UpdateStatus(ctx, contextID, agentModels.ContextStatusProcessing)
}

// AddMessage appends a message with the next position in the context.
// The role must be one of system/user/assistant.
func (s *ContextService) AddMessage(ctx context.Context, contextID, role, content, name string) (*agentModels.Message, error) {
	if err := validation.Validate(role,
		validation.Required,
		validation.In(agentModels.RoleSystem, agentModels.RoleUser, agentModels.RoleAssistant),
	); err != nil {
		return nil, fmt.Errorf("message role %q: %w", role, domain.ErrValidation)
	}

	m := &agentModels.Message{
		ContextID: contextID,
		Role:      role,
		Content:   content,
		Name:      name,
	}
	if err := s.contexts.CreateMessage(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// AddSystemMessage appends a system message
func (s *ContextService) AddSystemMessage(ctx context.Context, contextID, content string) (*agentModels.Message, error) {
	return s.AddMessage(ctx, contextID, agentModels.RoleSystem, content, "")
}

// AddUserMessage appends a user message
func (s *ContextService) AddUserMessage(ctx context.Context, contextID, content string) (*agentModels.Message, error) {
	return s.AddMessage(ctx, contextID, agentModels.RoleUser, content, "")
}

// AddAssistantMessage appends an assistant message
func (s *ContextService) AddAssistantMessage(ctx context.Context, contextID, content string) (*agentModels.Message, error) {
	return s.AddMessage(ctx, contextID, agentModels.RoleAssistant, content, "")
}

// Messages retrieves a context's messages in position order; role filters
// when non-empty
func (s *ContextService) Messages(ctx context.Context, contextID, role string) ([]agentModels.Message, error) {
	return s.contexts.ListMessages(ctx, contextID, role)
}

// PromptOptions converts the context to the options map the prompt layer
// consumes: instructions, ordered messages, and any per-context options.
func (s *ContextService) PromptOptions(ctx context.Context, contextID string) (map[string]any, error) {
	c, err := s.contexts.GetContext(ctx, contextID)
	if err != nil {
		return nil, err
	}
	messages, err := s.contexts.ListMessages(ctx, contextID, "")
	if err != nil {
		return nil, err
	}

	prompt := make([]map[string]any, 0, len(messages))
	for i := range messages {
		prompt = append(prompt, messages[i].ToPromptMessage())
	}

	out := map[string]any{"messages": prompt}
	if c.Instructions != "" {
		out["instructions"] = c.Instructions
	}
	for k, v := range c.Options {
		out[k] = v
	}
	return out, nil
}

// RecordGeneration persists a successful LLM response: the assistant message
// (when the response carries one), the generation row with usage and raw
// payloads, and the transition to "completed" - atomically. A reader never
// sees a generation without its message or a completed context without a
// generation.
func (s *ContextService) RecordGeneration(ctx context.Context, contextID string, resp *agentModels.LLMResponse) (*agentModels.Generation, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: response is required", domain.ErrValidation)
	}

	var gen *agentModels.Generation
	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		var responseMessageID *string
		if resp.Message != nil && resp.Message.Content != "" {
			m := &agentModels.Message{
				ContextID: contextID,
				Role:      agentModels.RoleAssistant,
				Content:   resp.Message.Content,
				Name:      resp.Message.Name,
			}
			if err := s.contexts.CreateMessage(txCtx, m); err != nil {
				return err
			}
			responseMessageID = &m.ID
		}

		g := &agentModels.Generation{
			ContextID:         contextID,
			ResponseMessageID: responseMessageID,
			ProviderID:        resp.ID,
			Model:             resp.Model,
			FinishReason:      resp.FinishReason,
			RawRequest:        resp.RawRequest,
			RawResponse:       resp.RawResponse,
			Status:            agentModels.GenerationStatusCompleted,
		}
		if resp.Usage != nil {
			g.InputTokens = resp.Usage.InputTokens
			g.OutputTokens = resp.Usage.OutputTokens
			g.TotalTokens = resp.Usage.TotalTokens
			g.CachedTokens = resp.Usage.CachedTokens
			g.ReasoningTokens = resp.Usage.ReasoningTokens
			g.DurationMS = resp.Usage.DurationMS
			g.ProviderDetails = resp.Usage.ProviderDetails
		}
		if err := s.contexts.CreateGeneration(txCtx, g); err != nil {
			return err
		}

		if err := s.contexts.UpdateStatus(txCtx, contextID, agentModels.ContextStatusCompleted); err != nil {
			return err
		}

		gen = g
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("generation recorded",
		"context_id", contextID,
		"model", gen.Model,
		"output_tokens", gen.OutputTokens,
	)

	return gen, nil
}

// RecordFailure persists a failed generation and the transition to "failed",
// atomically.
func (s *ContextService) RecordFailure(ctx context.Context, contextID string, genErr error) (*agentModels.Generation, error) {
	message := ""
	if genErr != nil {
		message = genErr.Error()
	}

	var gen *agentModels.Generation
	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		g := &agentModels.Generation{
			ContextID:    contextID,
			Status:       agentModels.GenerationStatusFailed,
			ErrorMessage: message,
		}
		if err := s.contexts.CreateGeneration(txCtx, g); err != nil {
			return err
		}
		if err := s.contexts.UpdateStatus(txCtx, contextID, agentModels.ContextStatusFailed); err != nil {
			return err
		}
		gen = g
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Warn("generation failure recorded",
		"context_id", contextID,
		"error", message,
	)

	return gen, nil
}

// LatestGeneration retrieves the most recent generation for a context
func (s *ContextService) LatestGeneration(ctx context.Context, contextID string) (*agentModels.Generation, error) {
	return s.contexts.LatestGeneration(ctx, contextID)
}

// RecordToolCallStart creates a tool call record in status "executing" with
// started_at set to now. Arguments are normalized to the canonical structured
// form at this write boundary. When the LLM supplied no tool call ID a UUID
// is generated so every call stays individually addressable.
func (s *ContextService) RecordToolCallStart(ctx context.Context, contextID, name string, arguments any, toolCallID string) (*agentModels.ToolCall, error) {
	if err := validation.Validate(name, validation.Required); err != nil {
		return nil, fmt.Errorf("tool name: %w", domain.ErrValidation)
	}
	if toolCallID == "" {
		toolCallID = uuid.NewString()
	}

	now := time.Now()
	tc := &agentModels.ToolCall{
		ContextID:  contextID,
		ToolCallID: toolCallID,
		Name:       name,
		Arguments:  agentModels.NormalizePayload(arguments),
		Status:     agentModels.ToolCallStatusExecuting,
		StartedAt:  &now,
	}
	if err := s.toolCalls.CreateToolCall(ctx, tc); err != nil {
		return nil, err
	}
	return tc, nil
}

// RecordToolCallComplete marks a tool call completed with its (normalized)
// result and computed duration
func (s *ContextService) RecordToolCallComplete(ctx context.Context, toolCallRowID string, result any) (*agentModels.ToolCall, error) {
	return s.toolCalls.CompleteToolCall(ctx, toolCallRowID, agentModels.NormalizePayload(result))
}

// RecordToolCallFailure marks a tool call failed with the error's message
// and computed duration
func (s *ContextService) RecordToolCallFailure(ctx context.Context, toolCallRowID string, toolErr error) (*agentModels.ToolCall, error) {
	message := ""
	if toolErr != nil {
		message = toolErr.Error()
	}
	return s.toolCalls.FailToolCall(ctx, toolCallRowID, message)
}

// ToolCalls retrieves all tool calls for a context in call order
func (s *ContextService) ToolCalls(ctx context.Context, contextID string) ([]agentModels.ToolCall, error) {
	return s.toolCalls.ListToolCalls(ctx, contextID, "", "")
}

// ToolCallsFor retrieves a context's tool calls for one tool
func (s *ContextService) ToolCallsFor(ctx context.Context, contextID, name string) ([]agentModels.ToolCall, error) {
	return s.toolCalls.ListToolCalls(ctx, contextID, name, "")
}

// ToolCallResults summarizes all completed tool calls for follow-up prompt
// construction.
func (s *ContextService) ToolCallResults(ctx context.Context, contextID string) ([]agentModels.ToolCallResult, error) {
	calls, err := s.toolCalls.ListToolCalls(ctx, contextID, "", agentModels.ToolCallStatusCompleted)
	if err != nil {
		return nil, err
	}
	results := make([]agentModels.ToolCallResult, 0, len(calls))
	for _, tc := range calls {
		results = append(results, agentModels.ToolCallResult{
			Name:       tc.Name,
			Arguments:  tc.Arguments,
			Result:     tc.Result,
			DurationMS: tc.DurationMS,
		})
	}
	return results, nil
}

// ToolResultsFor returns the results of all completed calls of one tool
func (s *ContextService) ToolResultsFor(ctx context.Context, contextID, name string) ([]map[string]any, error) {
	calls, err := s.toolCalls.ListToolCalls(ctx, contextID, name, agentModels.ToolCallStatusCompleted)
	if err != nil {
		return nil, err
	}
	results := make([]map[string]any, 0, len(calls))
	for _, tc := range calls {
		results = append(results, tc.Result)
	}
	return results, nil
}

// FailStaleToolCalls sweeps tool calls left executing past olderThan,
// marking them failed. Returns how many were reconciled.
func (s *ContextService) FailStaleToolCalls(ctx context.Context, olderThan time.Duration) (int, error) {
	count, err := s.toolCalls.FailStaleExecuting(ctx, time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.logger.Warn("stale tool calls failed", "count", count, "older_than", olderThan)
	}
	return count, nil
}

// ToolCallStatistics aggregates tool call outcomes for a context
func (s *ContextService) ToolCallStatistics(ctx context.Context, contextID string) (*agentModels.ToolCallStatistics, error) {
	return s.toolCalls.Statistics(ctx, contextID)
}

// ExtractReferences runs the reference extraction pass over this context's
// completed tool calls. Idempotent: re-running never duplicates references.
func (s *ContextService) ExtractReferences(ctx context.Context, contextID string) ([]agentModels.Reference, error) {
	return s.extractor.ExtractFromContext(ctx, contextID)
}

// ReferenceCards returns UI-ready card projections for the context's
// fetched references.
func (s *ContextService) ReferenceCards(ctx context.Context, contextID string) ([]agentModels.ReferenceCard, error) {
	refs, err := s.extractor.references.ListReferences(ctx, contextID, agentModels.ReferenceStatusComplete)
	if err != nil {
		return nil, err
	}
	cards := make([]agentModels.ReferenceCard, 0, len(refs))
	for i := range refs {
		cards = append(cards, refs[i].AsCard())
	}
	return cards, nil
}
