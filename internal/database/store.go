package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/facet-labs/facet/internal/config"
	"github.com/facet-labs/facet/pkg/models"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Store is the warehouse interface the chat, query, and import layers
// depend on. All engines are driven through database/sql, so one scan path
// serves DuckDB, ClickHouse, and Postgres alike.
type Store interface {
	Query(ctx context.Context, query string) (*models.QueryResult, error)
	Exec(ctx context.Context, query string, args ...any) error
	Ping(ctx context.Context) error
	Engine() string
	Stats() sql.DBStats
	Close() error
}

// Open connects to the engine selected by cfg.Database.Engine.
func Open(cfg *config.Config, logger zerolog.Logger) (Store, error) {
	var (
		db  *sql.DB
		err error
	)
	switch cfg.Database.Engine {
	case "duckdb":
		db, err = openDuckDB(cfg.Database, logger)
	case "clickhouse":
		db, err = openClickHouse(cfg.ClickHouse, logger)
	case "postgres":
		db, err = openPostgres(cfg.Postgres, logger)
	default:
		return nil, fmt.Errorf("unknown database engine %q", cfg.Database.Engine)
	}
	if err != nil {
		return nil, err
	}

	maxConcurrent := cfg.Database.MaxConcurrentQueries
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}

	return &sqlStore{
		db:     db,
		engine: cfg.Database.Engine,
		logger: logger,
		sem:    semaphore.NewWeighted(int64(maxConcurrent)),
	}, nil
}

// sqlStore wraps a *sql.DB with query logging and a concurrency limit.
// No mutex is needed: *sql.DB maintains its own synchronized pool.
type sqlStore struct {
	db     *sql.DB
	engine string
	logger zerolog.Logger
	sem    *semaphore.Weighted
}

func (s *sqlStore) Query(ctx context.Context, query string) (*models.QueryResult, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire query slot: %w", err)
	}
	defer s.sem.Release(1)

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("query", query).
			Dur("elapsed", time.Since(start)).
			Msg("Query failed")
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	result, err := scanRows(rows)
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("query", query).
		Int("rows", len(result.Rows)).
		Dur("elapsed", time.Since(start)).
		Msg("Query executed")

	return result, nil
}

func (s *sqlStore) Exec(ctx context.Context, query string, args ...any) error {
	start := time.Now()
	_, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("query", query).
			Dur("elapsed", time.Since(start)).
			Msg("Exec failed")
		return fmt.Errorf("exec failed: %w", err)
	}

	s.logger.Debug().
		Str("query", query).
		Dur("elapsed", time.Since(start)).
		Msg("Exec completed")

	return nil
}

func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlStore) Engine() string {
	return s.engine
}

func (s *sqlStore) Stats() sql.DBStats {
	return s.db.Stats()
}

func (s *sqlStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.logger.Info().Str("engine", s.engine).Msg("Database closed")
	return nil
}
