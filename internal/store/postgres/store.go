// Package postgres stores hot records, archived records and archive jobs in
// PostgreSQL. Every entity type has a hot table named after it and an archive
// table prefixed with "archive_".
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/fuelops/internal/domain"
)

const pgUniqueViolation = "23505"

type Store struct {
	pool *pgxpool.Pool
	jobs *JobRepo
}

func New(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse config: %w", err)
	}

	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: connect: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	return &Store{
		pool: pool,
		jobs: NewJobRepo(pool),
	}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Jobs() domain.JobRepository { return s.jobs }

// Hot returns the hot table of et.
func (s *Store) Hot(et domain.EntityType) (*HotTable, error) {
	return NewHotTable(s.pool, et)
}

// Cold returns the archive table of et.
func (s *Store) Cold(et domain.EntityType) (*ColdTable, error) {
	return NewColdTable(s.pool, et)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func knownEntityType(et domain.EntityType) bool {
	for _, k := range domain.AllEntityTypes() {
		if k == et {
			return true
		}
	}
	return false
}
