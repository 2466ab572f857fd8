package agent

import (
	"context"
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"atelier/internal/domain"
	agentModels "atelier/internal/domain/models/agent"
	agentRepo "atelier/internal/domain/repositories/agent"
)

// FragmentService manages content fragments: append-only generation attempts
// over a snippet of source content, each moving pending -> generating ->
// generated -> applied (or discarded along the way).
type FragmentService struct {
	fragments agentRepo.FragmentRepository
	logger    *slog.Logger
}

// NewFragmentService creates a new FragmentService
func NewFragmentService(fragments agentRepo.FragmentRepository, logger *slog.Logger) *FragmentService {
	return &FragmentService{fragments: fragments, logger: logger}
}

// CreateFragmentRequest carries the fields for a new fragment.
type CreateFragmentRequest struct {
	ContextID          string
	ActionType         string
	FragmentType       string
	OriginalContent    string
	StartOffset        *int
	EndOffset          *int
	DetectedReferences []agentModels.DetectedReference
	Contextable        *agentModels.ContextableRef
	Metadata           map[string]any
}

// CreateFragment snapshots a piece of source content as a pending fragment.
// The original content is hashed so later drift in the source is detectable.
// When no detected references are supplied they are parsed out of the
// original content.
func (s *FragmentService) CreateFragment(ctx context.Context, req *CreateFragmentRequest) (*agentModels.Fragment, error) {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.ContextID, validation.Required),
		validation.Field(&req.ActionType, validation.Required),
	); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	refs := req.DetectedReferences
	if refs == nil {
		refs = DetectReferences(req.OriginalContent)
	}

	f := &agentModels.Fragment{
		ContextID:          req.ContextID,
		ActionType:         req.ActionType,
		FragmentType:       req.FragmentType,
		OriginalContent:    req.OriginalContent,
		ContentHash:        agentModels.HashContent(req.OriginalContent),
		StartOffset:        req.StartOffset,
		EndOffset:          req.EndOffset,
		DetectedReferences: refs,
		Contextable:        req.Contextable,
		Metadata:           req.Metadata,
		Status:             agentModels.FragmentStatusPending,
	}
	if err := s.fragments.CreateFragment(ctx, f); err != nil {
		return nil, err
	}

	s.logger.Info("fragment created",
		"id", f.ID,
		"context_id", f.ContextID,
		"action", f.ActionType,
		"references", len(f.DetectedReferences),
	)

	return f, nil
}

// GetFragment retrieves a fragment by ID
func (s *FragmentService) GetFragment(ctx context.Context, fragmentID string) (*agentModels.Fragment, error) {
	return s.fragments.GetFragment(ctx, fragmentID)
}

// ListFragments retrieves a context's fragments, oldest first. status
// filters when non-empty.
func (s *FragmentService) ListFragments(ctx context.Context, contextID, status string) ([]agentModels.Fragment, error) {
	return s.fragments.ListFragments(ctx, contextID, status)
}

// MarkGenerating advances a fragment to generating
func (s *FragmentService) MarkGenerating(ctx context.Context, fragmentID string) error {
	return s.fragments.UpdateStatus(ctx, fragmentID, agentModels.FragmentStatusGenerating, nil)
}

// MarkGenerated stores the generated content and advances to generated
func (s *FragmentService) MarkGenerated(ctx context.Context, fragmentID, content string) error {
	return s.fragments.UpdateStatus(ctx, fragmentID, agentModels.FragmentStatusGenerated, &content)
}

// MarkApplied advances to applied. content carries any edits the author
// made before accepting; nil applies the generated content verbatim.
func (s *FragmentService) MarkApplied(ctx context.Context, fragmentID string, content *string) error {
	return s.fragments.UpdateStatus(ctx, fragmentID, agentModels.FragmentStatusApplied, content)
}

// MarkDiscarded rejects a not-yet-applied fragment
func (s *FragmentService) MarkDiscarded(ctx context.Context, fragmentID string) error {
	return s.fragments.UpdateStatus(ctx, fragmentID, agentModels.FragmentStatusDiscarded, nil)
}

// RegenerateWith creates a fresh pending fragment over the same source
// snippet with a revised reference selection, chained to the fragment it
// supersedes. The parent keeps its state; nothing is ever regenerated in
// place.
func (s *FragmentService) RegenerateWith(ctx context.Context, fragmentID string, references []agentModels.DetectedReference) (*agentModels.Fragment, error) {
	parent, err := s.fragments.GetFragment(ctx, fragmentID)
	if err != nil {
		return nil, err
	}

	child := &agentModels.Fragment{
		ContextID:          parent.ContextID,
		ActionType:         parent.ActionType,
		FragmentType:       parent.FragmentType,
		OriginalContent:    parent.OriginalContent,
		ContentHash:        parent.ContentHash,
		StartOffset:        parent.StartOffset,
		EndOffset:          parent.EndOffset,
		DetectedReferences: references,
		Contextable:        parent.Contextable,
		Metadata:           parent.Metadata,
		ParentID:           &parent.ID,
		Status:             agentModels.FragmentStatusPending,
	}
	if err := s.fragments.CreateFragment(ctx, child); err != nil {
		return nil, err
	}

	s.logger.Info("fragment regenerated",
		"id", child.ID,
		"parent_id", parent.ID,
		"references", len(references),
	)

	return child, nil
}

// VersionHistory returns the fragment's regeneration chain, oldest first
func (s *FragmentService) VersionHistory(ctx context.Context, fragmentID string) ([]agentModels.Fragment, error) {
	return s.fragments.VersionHistory(ctx, fragmentID)
}
