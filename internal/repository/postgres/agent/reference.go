package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"atelier/internal/domain"
	agentModels "atelier/internal/domain/models/agent"
	agentRepo "atelier/internal/domain/repositories/agent"
	"atelier/internal/repository/postgres"
)

// PostgresReferenceRepository implements the ReferenceRepository interface
// using PostgreSQL.
type PostgresReferenceRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewReferenceRepository creates a new PostgresReferenceRepository
func NewReferenceRepository(config *postgres.RepositoryConfig) agentRepo.ReferenceRepository {
	return &PostgresReferenceRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

const referenceColumns = `id, context_id, tool_call_row_id, url, title, description,
	       og_title, og_description, og_image, og_site_name, og_type, favicon_url,
	       domain, metadata, extracted_content, status, error_message, position,
	       created_at, updated_at`

// scanReferenceRow scans a database row into a Reference struct.
func scanReferenceRow(row scanner) (*agentModels.Reference, error) {
	var ref agentModels.Reference
	err := row.Scan(
		&ref.ID,
		&ref.ContextID,
		&ref.ToolCallRowID,
		&ref.URL,
		&ref.Title,
		&ref.Description,
		&ref.OGTitle,
		&ref.OGDescription,
		&ref.OGImage,
		&ref.OGSiteName,
		&ref.OGType,
		&ref.FaviconURL,
		&ref.Domain,
		&ref.Metadata, // pgx handles JSONB -> map
		&ref.ExtractedContent,
		&ref.Status,
		&ref.ErrorMessage,
		&ref.Position,
		&ref.CreatedAt,
		&ref.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

// UpsertReference finds-or-creates by (context_id, url) in one statement.
//
// Update rule: last writer wins per field, but a stored non-blank field is
// never replaced by a blank incoming one (NULLIF + COALESCE below). Position
// is assigned once at creation (max+1) and left alone on conflict. A position
// collision between two concurrent creates hits the unique (context_id,
// position) index; one retry recomputes it.
func (r *PostgresReferenceRepository) UpsertReference(ctx context.Context, ref *agentModels.Reference) error {
	if ref.Domain == "" {
		ref.Domain = agentModels.DeriveDomain(ref.URL)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (context_id, tool_call_row_id, url, title, description, domain,
		                extracted_content, status, position)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, COALESCE(MAX(position) + 1, 0)
		FROM %s WHERE context_id = $1
		ON CONFLICT (context_id, url) DO UPDATE SET
			tool_call_row_id  = COALESCE(EXCLUDED.tool_call_row_id, %s.tool_call_row_id),
			title             = COALESCE(NULLIF(EXCLUDED.title, ''), %s.title),
			description       = COALESCE(NULLIF(EXCLUDED.description, ''), %s.description),
			extracted_content = COALESCE(NULLIF(EXCLUDED.extracted_content, ''), %s.extracted_content),
			status            = EXCLUDED.status,
			updated_at        = now()
		RETURNING %s
	`, r.tables.References, r.tables.References,
		r.tables.References, r.tables.References, r.tables.References, r.tables.References,
		referenceColumns)

	executor := postgres.GetExecutor(ctx, r.pool)

	var err error
	for attempt := insertAttempts(ctx); attempt > 0; attempt-- {
		var saved *agentModels.Reference
		saved, err = scanReferenceRow(executor.QueryRow(ctx, query,
			ref.ContextID,
			ref.ToolCallRowID,
			ref.URL,
			ref.Title,
			ref.Description,
			ref.Domain,
			ref.ExtractedContent,
			ref.Status,
		))
		if err == nil {
			*ref = *saved
			return nil
		}
		if !postgres.IsPgDuplicateError(err) {
			break
		}
		if attempt > 1 {
			r.logger.Debug("reference position collision, retrying", "context_id", ref.ContextID, "url", ref.URL)
		}
	}

	if postgres.IsPgForeignKeyError(err) {
		return fmt.Errorf("context %s: %w", ref.ContextID, domain.ErrNotFound)
	}
	return fmt.Errorf("upsert reference: %w", err)
}

// CreateReferenceIfAbsent creates a reference only when none exists for the
// URL. Existing rows are left untouched (a bare discovered link never
// overwrites data from an actual visit).
func (r *PostgresReferenceRepository) CreateReferenceIfAbsent(ctx context.Context, ref *agentModels.Reference) (bool, error) {
	if ref.Domain == "" {
		ref.Domain = agentModels.DeriveDomain(ref.URL)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (context_id, tool_call_row_id, url, title, domain, status, position)
		SELECT $1, $2, $3, $4, $5, $6, COALESCE(MAX(position) + 1, 0)
		FROM %s WHERE context_id = $1
		ON CONFLICT (context_id, url) DO NOTHING
		RETURNING %s
	`, r.tables.References, r.tables.References, referenceColumns)

	executor := postgres.GetExecutor(ctx, r.pool)

	var err error
	for attempt := insertAttempts(ctx); attempt > 0; attempt-- {
		var saved *agentModels.Reference
		saved, err = scanReferenceRow(executor.QueryRow(ctx, query,
			ref.ContextID,
			ref.ToolCallRowID,
			ref.URL,
			ref.Title,
			ref.Domain,
			ref.Status,
		))
		if err == nil {
			*ref = *saved
			return true, nil
		}
		if postgres.IsPgNoRowsError(err) {
			// Conflict: a reference for this URL already exists
			return false, nil
		}
		if !postgres.IsPgDuplicateError(err) {
			break
		}
		if attempt > 1 {
			r.logger.Debug("reference position collision, retrying", "context_id", ref.ContextID, "url", ref.URL)
		}
	}

	if postgres.IsPgForeignKeyError(err) {
		return false, fmt.Errorf("context %s: %w", ref.ContextID, domain.ErrNotFound)
	}
	return false, fmt.Errorf("create reference: %w", err)
}

// GetReference retrieves a reference by ID
func (r *PostgresReferenceRepository) GetReference(ctx context.Context, referenceID string) (*agentModels.Reference, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, referenceColumns, r.tables.References)

	executor := postgres.GetExecutor(ctx, r.pool)
	ref, err := scanReferenceRow(executor.QueryRow(ctx, query, referenceID))
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return nil, fmt.Errorf("reference %s: %w", referenceID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get reference: %w", err)
	}
	return ref, nil
}

// GetReferenceByURL retrieves a context's reference by exact URL
func (r *PostgresReferenceRepository) GetReferenceByURL(ctx context.Context, contextID, url string) (*agentModels.Reference, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE context_id = $1 AND url = $2`, referenceColumns, r.tables.References)

	executor := postgres.GetExecutor(ctx, r.pool)
	ref, err := scanReferenceRow(executor.QueryRow(ctx, query, contextID, url))
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return nil, fmt.Errorf("reference %s: %w", url, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get reference by url: %w", err)
	}
	return ref, nil
}

// ListReferences retrieves references ordered by position, optionally
// filtered by status
func (r *PostgresReferenceRepository) ListReferences(ctx context.Context, contextID, status string) ([]agentModels.Reference, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE context_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY position ASC
	`, referenceColumns, r.tables.References)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, contextID, status)
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	defer rows.Close()

	var refs []agentModels.Reference
	for rows.Next() {
		ref, err := scanReferenceRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		refs = append(refs, *ref)
	}
	return refs, rows.Err()
}

// EnrichExtractedContent sets extracted_content for an existing reference;
// title is filled only when currently blank. No row is created.
func (r *PostgresReferenceRepository) EnrichExtractedContent(ctx context.Context, contextID, url, content, title string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET extracted_content = $3,
		    title = CASE WHEN title = '' AND $4 <> '' THEN $4 ELSE title END,
		    updated_at = now()
		WHERE context_id = $1 AND url = $2
	`, r.tables.References)

	executor := postgres.GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, contextID, url, content, title)
	if err != nil {
		return fmt.Errorf("enrich reference content: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reference %s: %w", url, domain.ErrNotFound)
	}
	return nil
}

// UpdateFetchedMetadata stores the outcome of a metadata fetch. Field merge
// rules are applied by the caller; this writes the given fields verbatim.
func (r *PostgresReferenceRepository) UpdateFetchedMetadata(ctx context.Context, ref *agentModels.Reference) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET title = $2, description = $3, og_title = $4, og_description = $5,
		    og_image = $6, og_site_name = $7, og_type = $8, favicon_url = $9,
		    metadata = $10, status = $11, error_message = $12, updated_at = now()
		WHERE id = $1
	`, r.tables.References)

	executor := postgres.GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query,
		ref.ID,
		ref.Title,
		ref.Description,
		ref.OGTitle,
		ref.OGDescription,
		ref.OGImage,
		ref.OGSiteName,
		ref.OGType,
		ref.FaviconURL,
		ref.Metadata, // pgx handles map -> JSONB (nil becomes NULL)
		ref.Status,
		ref.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("update reference metadata: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reference %s: %w", ref.ID, domain.ErrNotFound)
	}
	return nil
}

// UpdateStatus sets a reference's status and error message
func (r *PostgresReferenceRepository) UpdateStatus(ctx context.Context, referenceID, status, errorMessage string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET status = $2, error_message = $3, updated_at = now() WHERE id = $1
	`, r.tables.References)

	executor := postgres.GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, referenceID, status, errorMessage)
	if err != nil {
		if postgres.IsPgCheckError(err) {
			return fmt.Errorf("reference status %q: %w", status, domain.ErrValidation)
		}
		return fmt.Errorf("update reference status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reference %s: %w", referenceID, domain.ErrNotFound)
	}
	return nil
}
