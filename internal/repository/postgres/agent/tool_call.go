package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"atelier/internal/domain"
	agentModels "atelier/internal/domain/models/agent"
	agentRepo "atelier/internal/domain/repositories/agent"
	"atelier/internal/repository/postgres"
)

// PostgresToolCallRepository implements the ToolCallRepository interface
// using PostgreSQL.
type PostgresToolCallRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewToolCallRepository creates a new PostgresToolCallRepository
func NewToolCallRepository(config *postgres.RepositoryConfig) agentRepo.ToolCallRepository {
	return &PostgresToolCallRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

const toolCallColumns = `id, context_id, tool_call_id, name, arguments, result, status,
	       error_message, started_at, completed_at, duration_ms, position, created_at, updated_at`

// scanToolCallRow scans a database row into a ToolCall struct.
func scanToolCallRow(row scanner) (*agentModels.ToolCall, error) {
	var tc agentModels.ToolCall
	err := row.Scan(
		&tc.ID,
		&tc.ContextID,
		&tc.ToolCallID,
		&tc.Name,
		&tc.Arguments, // pgx handles JSONB -> map
		&tc.Result,    // pgx handles JSONB -> map
		&tc.Status,
		&tc.ErrorMessage,
		&tc.StartedAt,
		&tc.CompletedAt,
		&tc.DurationMS,
		&tc.Position,
		&tc.CreatedAt,
		&tc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &tc, nil
}

// CreateToolCall creates a tool call record with an atomically assigned,
// gap-free per-context position. Same single-statement max+1 scheme as
// message positions, with one retry on a position collision.
func (r *PostgresToolCallRepository) CreateToolCall(ctx context.Context, tc *agentModels.ToolCall) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (context_id, tool_call_id, name, arguments, status, started_at, position)
		SELECT $1, $2, $3, $4, $5, $6, COALESCE(MAX(position) + 1, 0)
		FROM %s WHERE context_id = $1
		RETURNING id, position, created_at, updated_at
	`, r.tables.ToolCalls, r.tables.ToolCalls)

	executor := postgres.GetExecutor(ctx, r.pool)

	var err error
	for attempt := insertAttempts(ctx); attempt > 0; attempt-- {
		err = executor.QueryRow(ctx, query,
			tc.ContextID,
			tc.ToolCallID,
			tc.Name,
			tc.Arguments, // pgx handles map -> JSONB (nil becomes NULL)
			tc.Status,
			tc.StartedAt,
		).Scan(&tc.ID, &tc.Position, &tc.CreatedAt, &tc.UpdatedAt)

		if err == nil {
			return nil
		}
		if !postgres.IsPgDuplicateError(err) {
			break
		}
		if attempt > 1 {
			r.logger.Debug("tool call position collision, retrying", "context_id", tc.ContextID, "tool", tc.Name)
		}
	}

	if postgres.IsPgForeignKeyError(err) {
		return fmt.Errorf("context %s: %w", tc.ContextID, domain.ErrNotFound)
	}
	return fmt.Errorf("create tool call: %w", err)
}

// GetToolCall retrieves a tool call by ID
func (r *PostgresToolCallRepository) GetToolCall(ctx context.Context, toolCallID string) (*agentModels.ToolCall, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, toolCallColumns, r.tables.ToolCalls)

	executor := postgres.GetExecutor(ctx, r.pool)
	tc, err := scanToolCallRow(executor.QueryRow(ctx, query, toolCallID))
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return nil, fmt.Errorf("tool call %s: %w", toolCallID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get tool call: %w", err)
	}

	return tc, nil
}

// ListToolCalls retrieves tool calls ordered by position, optionally
// filtered by tool name and status
func (r *PostgresToolCallRepository) ListToolCalls(ctx context.Context, contextID, name, status string) ([]agentModels.ToolCall, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE context_id = $1
		  AND ($2 = '' OR name = $2)
		  AND ($3 = '' OR status = $3)
		ORDER BY position ASC
	`, toolCallColumns, r.tables.ToolCalls)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, contextID, name, status)
	if err != nil {
		return nil, fmt.Errorf("list tool calls: %w", err)
	}
	defer rows.Close()

	var calls []agentModels.ToolCall
	for rows.Next() {
		tc, err := scanToolCallRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tool call: %w", err)
		}
		calls = append(calls, *tc)
	}
	return calls, rows.Err()
}

// CompleteToolCall marks a tool call completed. The duration is derived from
// started_at inside the UPDATE so it is computed exactly once, at completion
// time, against the same clock value stored in completed_at.
func (r *PostgresToolCallRepository) CompleteToolCall(ctx context.Context, toolCallID string, result map[string]any) (*agentModels.ToolCall, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $2,
		    result = $3,
		    completed_at = $4,
		    duration_ms = CASE WHEN started_at IS NULL THEN NULL
		                       ELSE (EXTRACT(EPOCH FROM ($4::timestamptz - started_at)) * 1000)::int END,
		    updated_at = now()
		WHERE id = $1
		RETURNING %s
	`, r.tables.ToolCalls, toolCallColumns)

	executor := postgres.GetExecutor(ctx, r.pool)
	tc, err := scanToolCallRow(executor.QueryRow(ctx, query,
		toolCallID,
		agentModels.ToolCallStatusCompleted,
		result,
		time.Now(),
	))
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return nil, fmt.Errorf("tool call %s: %w", toolCallID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("complete tool call: %w", err)
	}

	return tc, nil
}

// FailToolCall marks a tool call failed, storing the error message and
// computing duration the same way CompleteToolCall does.
func (r *PostgresToolCallRepository) FailToolCall(ctx context.Context, toolCallID string, errorMessage string) (*agentModels.ToolCall, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $2,
		    error_message = $3,
		    completed_at = $4,
		    duration_ms = CASE WHEN started_at IS NULL THEN NULL
		                       ELSE (EXTRACT(EPOCH FROM ($4::timestamptz - started_at)) * 1000)::int END,
		    updated_at = now()
		WHERE id = $1
		RETURNING %s
	`, r.tables.ToolCalls, toolCallColumns)

	executor := postgres.GetExecutor(ctx, r.pool)
	tc, err := scanToolCallRow(executor.QueryRow(ctx, query,
		toolCallID,
		agentModels.ToolCallStatusFailed,
		errorMessage,
		time.Now(),
	))
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return nil, fmt.Errorf("tool call %s: %w", toolCallID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("fail tool call: %w", err)
	}

	return tc, nil
}

// Statistics aggregates tool call outcomes for a context in two queries:
// one for status counts and total duration, one for per-tool counts.
func (r *PostgresToolCallRepository) Statistics(ctx context.Context, contextID string) (*agentModels.ToolCallStatistics, error) {
	query := fmt.Sprintf(`
		SELECT count(*),
		       count(*) FILTER (WHERE status = 'completed'),
		       count(*) FILTER (WHERE status = 'failed'),
		       count(*) FILTER (WHERE status = 'pending'),
		       count(*) FILTER (WHERE status = 'executing'),
		       COALESCE(SUM(duration_ms), 0)
		FROM %s
		WHERE context_id = $1
	`, r.tables.ToolCalls)

	stats := &agentModels.ToolCallStatistics{ByTool: map[string]int{}}
	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, contextID).Scan(
		&stats.Total,
		&stats.Completed,
		&stats.Failed,
		&stats.Pending,
		&stats.Executing,
		&stats.TotalDurationMS,
	)
	if err != nil {
		return nil, fmt.Errorf("tool call statistics: %w", err)
	}

	byToolQuery := fmt.Sprintf(`
		SELECT name, count(*) FROM %s WHERE context_id = $1 GROUP BY name
	`, r.tables.ToolCalls)

	rows, err := executor.Query(ctx, byToolQuery, contextID)
	if err != nil {
		return nil, fmt.Errorf("tool call statistics by tool: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			return nil, fmt.Errorf("scan tool count: %w", err)
		}
		stats.ByTool[name] = count
	}
	return stats, rows.Err()
}

// FailStaleExecuting reconciles tool calls abandoned by an interrupted
// session: anything still executing since before the cutoff is marked failed.
func (r *PostgresToolCallRepository) FailStaleExecuting(ctx context.Context, cutoff time.Time) (int, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $1,
		    error_message = 'tool call abandoned: still executing past timeout',
		    completed_at = now(),
		    duration_ms = (EXTRACT(EPOCH FROM (now() - started_at)) * 1000)::int,
		    updated_at = now()
		WHERE status = $2 AND started_at < $3
	`, r.tables.ToolCalls)

	executor := postgres.GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query,
		agentModels.ToolCallStatusFailed,
		agentModels.ToolCallStatusExecuting,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("fail stale tool calls: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
