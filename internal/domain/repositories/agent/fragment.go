package agent

import (
	"context"

	"atelier/internal/domain/models/agent"
)

// FragmentRepository defines data access for content fragments.
type FragmentRepository interface {
	// CreateFragment creates a fragment. Fragments are append-only: a
	// fragment's parent_id is set at creation and never changed, which keeps
	// the version chain acyclic.
	CreateFragment(ctx context.Context, f *agent.Fragment) error

	// GetFragment retrieves a fragment by ID
	// Returns domain.ErrNotFound if not found
	GetFragment(ctx context.Context, fragmentID string) (*agent.Fragment, error)

	// ListFragments retrieves a context's fragments, oldest first.
	// status filters when non-empty.
	ListFragments(ctx context.Context, contextID, status string) ([]agent.Fragment, error)

	// UpdateStatus advances a fragment's status, optionally writing one of the
	// content slots in the same statement (generated_content for "generated",
	// applied_content for "applied"; pass nil to leave content untouched).
	// Forward-only; invalid transitions return a domain.TransitionError.
	UpdateStatus(ctx context.Context, fragmentID, status string, content *string) error

	// VersionHistory walks the parent chain from the fragment to its root
	// ancestor and returns the chain in root-to-self chronological order.
	VersionHistory(ctx context.Context, fragmentID string) ([]agent.Fragment, error)
}
