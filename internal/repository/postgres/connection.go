package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"atelier/internal/domain/repositories"
)

// RepositoryConfig holds configuration for repository implementations
type RepositoryConfig struct {
	Pool   *pgxpool.Pool
	Tables *TableNames
	Logger *slog.Logger
}

// TableNames holds dynamically prefixed table names so dev/test/prod
// environments can share one database.
type TableNames struct {
	Contexts    string
	Messages    string
	Generations string
	ToolCalls   string
	References  string
	Fragments   string
}

// NewTableNames creates table names with the given prefix
func NewTableNames(prefix string) *TableNames {
	return &TableNames{
		Contexts:    fmt.Sprintf("%sagent_contexts", prefix),
		Messages:    fmt.Sprintf("%sagent_messages", prefix),
		Generations: fmt.Sprintf("%sagent_generations", prefix),
		ToolCalls:   fmt.Sprintf("%sagent_tool_calls", prefix),
		References:  fmt.Sprintf("%sagent_references", prefix),
		Fragments:   fmt.Sprintf("%sagent_fragments", prefix),
	}
}

// CreateConnectionPool creates a new pgx connection pool and verifies the
// connection.
//
// Dynamic table names: our use of fmt.Sprintf for table prefixes (dev_,
// test_, prod_) is safe with prepared statements because the SQL string is
// interpolated before being sent to the database; each prefix gets its own
// statements.
func CreateConnectionPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// GetExecutor returns the appropriate query executor for the context.
// If a transaction is present in the context, it returns the transaction.
// Otherwise, it returns the provided pool. This enables repositories to
// automatically participate in transactions when they exist.
func GetExecutor(ctx context.Context, pool *pgxpool.Pool) repositories.DBTX {
	if tx := repositories.GetTx(ctx); tx != nil {
		return tx
	}
	return pool
}
