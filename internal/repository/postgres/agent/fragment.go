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

// Maximum recursion depth when walking a fragment's version chain
const maxVersionChainDepth = 100

// PostgresFragmentRepository implements the FragmentRepository interface
// using PostgreSQL.
type PostgresFragmentRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewFragmentRepository creates a new PostgresFragmentRepository
func NewFragmentRepository(config *postgres.RepositoryConfig) agentRepo.FragmentRepository {
	return &PostgresFragmentRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

const fragmentColumns = `id, context_id, contextable_kind, contextable_id, fragment_type,
	       start_offset, end_offset, content_hash, original_content, generated_content,
	       applied_content, action_type, detected_references, metadata, status, parent_id,
	       created_at, updated_at`

// scanFragmentRow scans a database row into a Fragment struct.
func scanFragmentRow(row scanner) (*agentModels.Fragment, error) {
	var f agentModels.Fragment
	var kind, id *string
	err := row.Scan(
		&f.ID,
		&f.ContextID,
		&kind,
		&id,
		&f.FragmentType,
		&f.StartOffset,
		&f.EndOffset,
		&f.ContentHash,
		&f.OriginalContent,
		&f.GeneratedContent,
		&f.AppliedContent,
		&f.ActionType,
		&f.DetectedReferences, // pgx handles JSONB -> []DetectedReference
		&f.Metadata,
		&f.Status,
		&f.ParentID,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if kind != nil && id != nil {
		f.Contextable = &agentModels.ContextableRef{Kind: *kind, ID: *id}
	}
	return &f, nil
}

// CreateFragment creates a fragment. parent_id, when set, must reference an
// existing fragment; it is never updated afterwards, which keeps the version
// chain append-only and acyclic.
func (r *PostgresFragmentRepository) CreateFragment(ctx context.Context, f *agentModels.Fragment) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (context_id, contextable_kind, contextable_id, fragment_type,
		                start_offset, end_offset, content_hash, original_content,
		                generated_content, applied_content, action_type,
		                detected_references, metadata, status, parent_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at, updated_at
	`, r.tables.Fragments)

	var kind, id *string
	if f.Contextable != nil {
		kind = &f.Contextable.Kind
		id = &f.Contextable.ID
	}

	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		f.ContextID,
		kind,
		id,
		f.FragmentType,
		f.StartOffset,
		f.EndOffset,
		f.ContentHash,
		f.OriginalContent,
		f.GeneratedContent,
		f.AppliedContent,
		f.ActionType,
		f.DetectedReferences, // pgx handles slice -> JSONB (nil becomes NULL)
		f.Metadata,
		f.Status,
		f.ParentID,
	).Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)

	if err != nil {
		if postgres.IsPgForeignKeyError(err) {
			return fmt.Errorf("context or parent fragment: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("create fragment: %w", err)
	}

	return nil
}

// GetFragment retrieves a fragment by ID
func (r *PostgresFragmentRepository) GetFragment(ctx context.Context, fragmentID string) (*agentModels.Fragment, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, fragmentColumns, r.tables.Fragments)

	executor := postgres.GetExecutor(ctx, r.pool)
	f, err := scanFragmentRow(executor.QueryRow(ctx, query, fragmentID))
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return nil, fmt.Errorf("fragment %s: %w", fragmentID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get fragment: %w", err)
	}
	return f, nil
}

// ListFragments retrieves a context's fragments oldest first
func (r *PostgresFragmentRepository) ListFragments(ctx context.Context, contextID, status string) ([]agentModels.Fragment, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE context_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at ASC
	`, fragmentColumns, r.tables.Fragments)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, contextID, status)
	if err != nil {
		return nil, fmt.Errorf("list fragments: %w", err)
	}
	defer rows.Close()

	var fragments []agentModels.Fragment
	for rows.Next() {
		f, err := scanFragmentRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fragment: %w", err)
		}
		fragments = append(fragments, *f)
	}
	return fragments, rows.Err()
}

// UpdateStatus advances a fragment's status. The allowed-from set is encoded
// in the WHERE clause, so transitions stay forward-only even under concurrent
// updates. For "generated" the content parameter writes generated_content;
// for "applied" it writes applied_content, defaulting to generated_content
// when nil.
func (r *PostgresFragmentRepository) UpdateStatus(ctx context.Context, fragmentID, status string, content *string) error {
	allowedFrom := agentModels.FragmentStatusesBefore(status)
	if allowedFrom == nil {
		return fmt.Errorf("fragment status %q: %w", status, domain.ErrValidation)
	}

	var setClause string
	switch status {
	case agentModels.FragmentStatusGenerated:
		setClause = "generated_content = COALESCE($4, generated_content)"
	case agentModels.FragmentStatusApplied:
		setClause = "applied_content = COALESCE($4, generated_content)"
	default:
		setClause = "generated_content = COALESCE($4, generated_content)"
		content = nil
	}

	query := fmt.Sprintf(`
		UPDATE %s SET status = $2, %s, updated_at = now()
		WHERE id = $1 AND status = ANY($3)
	`, r.tables.Fragments, setClause)

	executor := postgres.GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, fragmentID, status, allowedFrom, content)
	if err != nil {
		return fmt.Errorf("update fragment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		current, err := r.GetFragment(ctx, fragmentID)
		if err != nil {
			return err
		}
		if current.Status == status {
			// Idempotent no-op (e.g. marking a generating fragment generating)
			return nil
		}
		return &domain.TransitionError{Entity: "fragment", From: current.Status, To: status}
	}
	return nil
}

// VersionHistory walks the parent chain from the fragment to its root with a
// recursive CTE, then returns the chain root first (chronological order).
func (r *PostgresFragmentRepository) VersionHistory(ctx context.Context, fragmentID string) ([]agentModels.Fragment, error) {
	query := fmt.Sprintf(`
		WITH RECURSIVE version_chain AS (
			-- Base case: start with the specified fragment
			SELECT %s, 1 as depth
			FROM %s
			WHERE id = $1

			UNION ALL

			-- Recursive case: follow parent links
			SELECT f.id, f.context_id, f.contextable_kind, f.contextable_id, f.fragment_type,
			       f.start_offset, f.end_offset, f.content_hash, f.original_content,
			       f.generated_content, f.applied_content, f.action_type, f.detected_references,
			       f.metadata, f.status, f.parent_id, f.created_at, f.updated_at, vc.depth + 1
			FROM %s f
			INNER JOIN version_chain vc ON f.id = vc.parent_id
			WHERE vc.depth < %d  -- Prevent runaway recursion
		)
		SELECT %s
		FROM version_chain
		ORDER BY depth DESC  -- Root first, specified fragment last
	`, fragmentColumns, r.tables.Fragments, r.tables.Fragments, maxVersionChainDepth, fragmentColumns)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, fragmentID)
	if err != nil {
		return nil, fmt.Errorf("fragment version history: %w", err)
	}
	defer rows.Close()

	var chain []agentModels.Fragment
	for rows.Next() {
		f, err := scanFragmentRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fragment: %w", err)
		}
		chain = append(chain, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("fragment %s: %w", fragmentID, domain.ErrNotFound)
	}
	return chain, nil
}
