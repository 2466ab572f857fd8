package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"atelier/internal/domain"
	agentModels "atelier/internal/domain/models/agent"
	"atelier/internal/domain/repositories"
	agentRepo "atelier/internal/domain/repositories/agent"
	"atelier/internal/repository/postgres"
)

// insertAttempts returns how many times a position-assigning insert may run.
// Inside a caller's transaction there is no second chance: the first unique
// violation aborts the transaction, so a retry would only fail differently.
func insertAttempts(ctx context.Context) int {
	if repositories.GetTx(ctx) != nil {
		return 1
	}
	return 2
}

// PostgresContextRepository implements the ContextRepository interface using
// PostgreSQL.
type PostgresContextRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewContextRepository creates a new PostgresContextRepository
func NewContextRepository(config *postgres.RepositoryConfig) agentRepo.ContextRepository {
	return &PostgresContextRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// CreateContext creates a new context
func (r *PostgresContextRepository) CreateContext(ctx context.Context, c *agentModels.Context) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (agent_name, action_name, instructions, options, status, contextable_kind, contextable_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, r.tables.Contexts)

	var kind, id *string
	if c.Contextable != nil {
		kind = &c.Contextable.Kind
		id = &c.Contextable.ID
	}

	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		c.AgentName,
		c.ActionName,
		c.Instructions,
		c.Options, // pgx handles map -> JSONB (nil becomes NULL)
		c.Status,
		kind,
		id,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)

	if err != nil {
		if postgres.IsPgCheckError(err) {
			return fmt.Errorf("context status %q: %w", c.Status, domain.ErrValidation)
		}
		return fmt.Errorf("create context: %w", err)
	}

	return nil
}

const contextColumns = `id, agent_name, action_name, instructions, options, status,
	       contextable_kind, contextable_id, created_at, updated_at`

// scanner defines the interface for row scanning (implemented by both
// pgx.Row and pgx.Rows)
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanContextRow scans a database row into a Context struct.
// Works with both pgx.Row (from QueryRow) and pgx.Rows (from Query).
func scanContextRow(row scanner) (*agentModels.Context, error) {
	var c agentModels.Context
	var kind, id *string
	err := row.Scan(
		&c.ID,
		&c.AgentName,
		&c.ActionName,
		&c.Instructions,
		&c.Options,
		&c.Status,
		&kind,
		&id,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if kind != nil && id != nil {
		c.Contextable = &agentModels.ContextableRef{Kind: *kind, ID: *id}
	}
	return &c, nil
}

// GetContext retrieves a context by ID
func (r *PostgresContextRepository) GetContext(ctx context.Context, contextID string) (*agentModels.Context, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, contextColumns, r.tables.Contexts)

	executor := postgres.GetExecutor(ctx, r.pool)
	c, err := scanContextRow(executor.QueryRow(ctx, query, contextID))
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return nil, fmt.Errorf("context %s: %w", contextID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get context: %w", err)
	}

	return c, nil
}

// ListContexts retrieves contexts newest first, optionally filtered by agent name
func (r *PostgresContextRepository) ListContexts(ctx context.Context, agentName string, limit int) ([]agentModels.Context, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE ($1 = '' OR agent_name = $1)
		ORDER BY created_at DESC
	`, contextColumns, r.tables.Contexts)

	args := []interface{}{agentName}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list contexts: %w", err)
	}
	defer rows.Close()

	var contexts []agentModels.Context
	for rows.Next() {
		c, err := scanContextRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan context: %w", err)
		}
		contexts = append(contexts, *c)
	}
	return contexts, rows.Err()
}

// UpdateStatus advances a context's status. The allowed-from set is encoded
// in the WHERE clause so a concurrent update can never regress the status.
func (r *PostgresContextRepository) UpdateStatus(ctx context.Context, contextID, status string) error {
	allowedFrom := agentModels.ContextStatusesBefore(status)
	if allowedFrom == nil {
		return fmt.Errorf("context status %q: %w", status, domain.ErrValidation)
	}

	query := fmt.Sprintf(`
		UPDATE %s SET status = $2, updated_at = now()
		WHERE id = $1 AND status = ANY($3)
	`, r.tables.Contexts)

	executor := postgres.GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, contextID, status, allowedFrom)
	if err != nil {
		return fmt.Errorf("update context status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		current, err := r.GetContext(ctx, contextID)
		if err != nil {
			return err
		}
		return &domain.TransitionError{Entity: "context", From: current.Status, To: status}
	}
	return nil
}

// DeleteContext deletes a context; messages, generations, tool calls,
// references and fragments cascade.
func (r *PostgresContextRepository) DeleteContext(ctx context.Context, contextID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.tables.Contexts)

	executor := postgres.GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, contextID)
	if err != nil {
		return fmt.Errorf("delete context: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("context %s: %w", contextID, domain.ErrNotFound)
	}
	return nil
}

// CreateMessage appends a message to a context.
//
// Position is computed and committed in a single INSERT ... SELECT so "read
// max, add one, write" cannot interleave with itself. A concurrent append
// that does race hits the unique (context_id, position) index; one retry
// recomputes the position.
func (r *PostgresContextRepository) CreateMessage(ctx context.Context, m *agentModels.Message) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (context_id, role, content, name, position)
		SELECT $1, $2, $3, $4, COALESCE(MAX(position) + 1, 0)
		FROM %s WHERE context_id = $1
		RETURNING id, position, created_at
	`, r.tables.Messages, r.tables.Messages)

	executor := postgres.GetExecutor(ctx, r.pool)

	var err error
	for attempt := insertAttempts(ctx); attempt > 0; attempt-- {
		err = executor.QueryRow(ctx, query,
			m.ContextID,
			m.Role,
			m.Content,
			m.Name,
		).Scan(&m.ID, &m.Position, &m.CreatedAt)

		if err == nil {
			return nil
		}
		if !postgres.IsPgDuplicateError(err) {
			break
		}
		if attempt > 1 {
			r.logger.Debug("message position collision, retrying", "context_id", m.ContextID)
		}
	}

	if postgres.IsPgForeignKeyError(err) {
		return fmt.Errorf("context %s: %w", m.ContextID, domain.ErrNotFound)
	}
	if postgres.IsPgCheckError(err) {
		return fmt.Errorf("message role %q: %w", m.Role, domain.ErrValidation)
	}
	return fmt.Errorf("create message: %w", err)
}

// ListMessages retrieves messages ordered by position
func (r *PostgresContextRepository) ListMessages(ctx context.Context, contextID, role string) ([]agentModels.Message, error) {
	query := fmt.Sprintf(`
		SELECT id, context_id, role, content, name, position, created_at
		FROM %s
		WHERE context_id = $1 AND ($2 = '' OR role = $2)
		ORDER BY position ASC
	`, r.tables.Messages)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, contextID, role)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []agentModels.Message
	for rows.Next() {
		var m agentModels.Message
		if err := rows.Scan(&m.ID, &m.ContextID, &m.Role, &m.Content, &m.Name, &m.Position, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// CreateGeneration creates a generation row
func (r *PostgresContextRepository) CreateGeneration(ctx context.Context, g *agentModels.Generation) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (
			context_id, response_message_id, provider_id, model, finish_reason,
			input_tokens, output_tokens, total_tokens, cached_tokens, reasoning_tokens,
			duration_ms, raw_request, raw_response, provider_details, status, error_message
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at
	`, r.tables.Generations)

	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		g.ContextID,
		g.ResponseMessageID,
		g.ProviderID,
		g.Model,
		g.FinishReason,
		g.InputTokens,
		g.OutputTokens,
		g.TotalTokens,
		g.CachedTokens,
		g.ReasoningTokens,
		g.DurationMS,
		g.RawRequest,      // pgx handles map -> JSONB (nil becomes NULL)
		g.RawResponse,     // pgx handles map -> JSONB (nil becomes NULL)
		g.ProviderDetails, // pgx handles map -> JSONB (nil becomes NULL)
		g.Status,
		g.ErrorMessage,
	).Scan(&g.ID, &g.CreatedAt)

	if err != nil {
		if postgres.IsPgForeignKeyError(err) {
			return fmt.Errorf("context %s: %w", g.ContextID, domain.ErrNotFound)
		}
		return fmt.Errorf("create generation: %w", err)
	}

	return nil
}

// LatestGeneration retrieves the most recent generation for a context
func (r *PostgresContextRepository) LatestGeneration(ctx context.Context, contextID string) (*agentModels.Generation, error) {
	query := fmt.Sprintf(`
		SELECT id, context_id, response_message_id, provider_id, model, finish_reason,
		       input_tokens, output_tokens, total_tokens, cached_tokens, reasoning_tokens,
		       duration_ms, raw_request, raw_response, provider_details, status, error_message,
		       created_at
		FROM %s
		WHERE context_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, r.tables.Generations)

	var g agentModels.Generation
	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, contextID).Scan(
		&g.ID,
		&g.ContextID,
		&g.ResponseMessageID,
		&g.ProviderID,
		&g.Model,
		&g.FinishReason,
		&g.InputTokens,
		&g.OutputTokens,
		&g.TotalTokens,
		&g.CachedTokens,
		&g.ReasoningTokens,
		&g.DurationMS,
		&g.RawRequest,
		&g.RawResponse,
		&g.ProviderDetails,
		&g.Status,
		&g.ErrorMessage,
		&g.CreatedAt,
	)
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return nil, fmt.Errorf("generation for context %s: %w", contextID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("latest generation: %w", err)
	}

	return &g, nil
}
