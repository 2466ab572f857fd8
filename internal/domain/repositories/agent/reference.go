package agent

import (
	"context"

	"atelier/internal/domain/models/agent"
)

// ReferenceRepository defines data access for extracted references.
//
// Dedup is by exact URL string within a context. Field updates are
// last-writer-wins, except that a stored non-blank field is never overwritten
// by a blank incoming one.
type ReferenceRepository interface {
	// UpsertReference finds-or-creates a reference by (context_id, url).
	// On create, position is assigned atomically (max+1 within the context)
	// and never changes afterwards. On conflict, non-blank incoming fields
	// overwrite stored ones. The persisted row is loaded back into ref.
	UpsertReference(ctx context.Context, ref *agent.Reference) error

	// CreateReferenceIfAbsent creates a reference only when no row exists for
	// (context_id, url). Returns true when a row was created. Existing rows
	// are left untouched.
	CreateReferenceIfAbsent(ctx context.Context, ref *agent.Reference) (bool, error)

	// GetReference retrieves a reference by ID
	// Returns domain.ErrNotFound if not found
	GetReference(ctx context.Context, referenceID string) (*agent.Reference, error)

	// GetReferenceByURL retrieves a context's reference by exact URL
	// Returns domain.ErrNotFound if not found
	GetReferenceByURL(ctx context.Context, contextID, url string) (*agent.Reference, error)

	// ListReferences retrieves a context's references ordered by position.
	// status filters when non-empty.
	ListReferences(ctx context.Context, contextID, status string) ([]agent.Reference, error)

	// EnrichExtractedContent sets extracted_content for an existing reference
	// and fills title only when currently blank. No row is created.
	// Returns domain.ErrNotFound if no reference exists for the URL.
	EnrichExtractedContent(ctx context.Context, contextID, url, content, title string) error

	// UpdateFetchedMetadata stores the result of a metadata fetch: status,
	// OG fields, favicon, fallback title/description and error message.
	UpdateFetchedMetadata(ctx context.Context, ref *agent.Reference) error

	// UpdateStatus sets a reference's status (and error message, which may be
	// empty to clear it).
	UpdateStatus(ctx context.Context, referenceID, status, errorMessage string) error
}
