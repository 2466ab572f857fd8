package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"atelier/internal/config"
	"atelier/internal/repository/postgres"
	postgresAgent "atelier/internal/repository/postgres/agent"
	agentSvc "atelier/internal/service/agent"
)

func main() {
	// .env is optional; real env vars win
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "atelier",
		Short: "Agent context and tool-call orchestration engine",
	}
	root.AddCommand(migrateCMD(), contextsCMD(), crawlCMD(), detectCMD(), fetchMetadataCMD())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// maxLogFiles bounds how many timestamped log files LOG_DIR accumulates.
const maxLogFiles = 5

// newLogger logs JSON to stderr, mirrored into a timestamped file when
// LOG_DIR is configured. The returned closer is nil without a log file.
func newLogger(cfg *config.Config) (*slog.Logger, io.Closer, error) {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	var out io.Writer = os.Stderr
	var closer io.Closer
	if cfg.LogDir != "" {
		f, err := config.SetupLogFile(cfg.LogDir, maxLogFiles)
		if err != nil {
			return nil, nil, err
		}
		out = io.MultiWriter(os.Stderr, f)
		closer = f
	}

	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})), closer, nil
}

// app wires the repositories and services a command needs.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	logFile io.Closer
	pool    *pgxpool.Pool

	contexts  *agentSvc.ContextService
	fragments *agentSvc.FragmentService
	extractor *agentSvc.ReferenceExtractor
	enricher  *agentSvc.ReferenceEnricher
	recorder  *agentSvc.Recorder
}

func newApp(ctx context.Context) (*app, error) {
	cfg := config.Load()
	logger, logFile, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return nil, err
	}

	repoCfg := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: postgres.NewTableNames(cfg.TablePrefix),
		Logger: logger,
	}
	contextRepo := postgresAgent.NewContextRepository(repoCfg)
	toolCallRepo := postgresAgent.NewToolCallRepository(repoCfg)
	referenceRepo := postgresAgent.NewReferenceRepository(repoCfg)
	fragmentRepo := postgresAgent.NewFragmentRepository(repoCfg)
	txManager := postgres.NewTransactionManager(pool, logger)

	extractor := agentSvc.NewReferenceExtractor(toolCallRepo, referenceRepo, logger)
	contexts := agentSvc.NewContextService(contextRepo, toolCallRepo, extractor, txManager, logger)

	return &app{
		cfg:       cfg,
		logger:    logger,
		logFile:   logFile,
		pool:      pool,
		contexts:  contexts,
		fragments: agentSvc.NewFragmentService(fragmentRepo, logger),
		extractor: extractor,
		enricher:  agentSvc.NewReferenceEnricher(referenceRepo, logger),
		recorder:  agentSvc.NewRecorder(contexts, extractor, logger),
	}, nil
}

func (a *app) close() {
	a.pool.Close()
	if a.logFile != nil {
		a.logFile.Close()
	}
}
