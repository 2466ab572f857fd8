package agent

import (
	"context"

	"atelier/internal/domain/models/agent"
)

// ContextRepository defines data access for contexts, their messages and
// their generations. Messages and generations are only ever created through
// their owning context, so they live on the same interface.
type ContextRepository interface {
	// CreateContext creates a new context in status "pending"
	CreateContext(ctx context.Context, c *agent.Context) error

	// GetContext retrieves a context by ID
	// Returns domain.ErrNotFound if not found
	GetContext(ctx context.Context, contextID string) (*agent.Context, error)

	// ListContexts retrieves contexts, newest first, optionally filtered by
	// agent name ("" means all). limit <= 0 means no limit.
	ListContexts(ctx context.Context, agentName string, limit int) ([]agent.Context, error)

	// UpdateStatus advances a context's status. Transitions are monotonic
	// forward; a regression returns a domain.TransitionError.
	UpdateStatus(ctx context.Context, contextID, status string) error

	// DeleteContext deletes a context; child rows cascade.
	DeleteContext(ctx context.Context, contextID string) error

	// CreateMessage appends a message to a context. Position is assigned
	// atomically (max+1 within the context, 0 for the first message) and is
	// never reused, even after deletions.
	CreateMessage(ctx context.Context, m *agent.Message) error

	// ListMessages retrieves a context's messages ordered by position.
	// role filters to a single role when non-empty.
	ListMessages(ctx context.Context, contextID, role string) ([]agent.Message, error)

	// CreateGeneration creates a generation row for a context
	CreateGeneration(ctx context.Context, g *agent.Generation) error

	// LatestGeneration retrieves the most recent generation for a context
	// Returns domain.ErrNotFound if the context has none
	LatestGeneration(ctx context.Context, contextID string) (*agent.Generation, error)
}
