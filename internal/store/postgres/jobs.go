package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/fuelops/internal/domain"
)

const jobColumns = `id, collection_name, cutoff_date, initiated_by, status, records_archived,
		        duration_ms, started_at, completed_at, error`

type JobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

func (r *JobRepo) Create(ctx context.Context, j *domain.ArchiveJob) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO archive_jobs (id, collection_name, cutoff_date, initiated_by, status, records_archived, duration_ms, started_at, completed_at, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		j.ID, j.CollectionName, j.CutoffDate, j.InitiatedBy, j.Status,
		j.RecordsArchived, j.Duration.Milliseconds(), j.StartedAt, j.CompletedAt, j.Error,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("jobRepo.Create: %w", domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("jobRepo.Create: %w", err)
	}

	return nil
}

// Finish writes the terminal state of a job. Only rows still in_progress are
// updated, which makes terminal states final.
func (r *JobRepo) Finish(ctx context.Context, j *domain.ArchiveJob) error {
	if !domain.JobStatusInProgress.ValidTransition(j.Status) {
		return fmt.Errorf("jobRepo.Finish: to %s: %w", j.Status, domain.ErrInvalidTransition)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE archive_jobs
		 SET status = $2, records_archived = $3, duration_ms = $4, completed_at = $5, error = $6
		 WHERE id = $1 AND status = 'in_progress'`,
		j.ID, j.Status, j.RecordsArchived, j.Duration.Milliseconds(), j.CompletedAt, j.Error,
	)
	if err != nil {
		return fmt.Errorf("jobRepo.Finish: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, j.ID); err != nil {
			return fmt.Errorf("jobRepo.Finish: %w", err)
		}
		return fmt.Errorf("jobRepo.Finish: %w", domain.ErrInvalidTransition)
	}

	return nil
}

func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ArchiveJob, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+jobColumns+` FROM archive_jobs WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("jobRepo.GetByID: %w", err)
	}

	j, err := pgx.CollectExactlyOneRow(rows, scanJob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("jobRepo.GetByID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("jobRepo.GetByID: %w", err)
	}

	return j, nil
}

func (r *JobRepo) LatestCompleted(ctx context.Context) (*domain.ArchiveJob, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+jobColumns+`
		 FROM archive_jobs WHERE status = 'completed'
		 ORDER BY completed_at DESC
		 LIMIT 1`,
	)
	if err != nil {
		return nil, fmt.Errorf("jobRepo.LatestCompleted: %w", err)
	}

	j, err := pgx.CollectExactlyOneRow(rows, scanJob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("jobRepo.LatestCompleted: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("jobRepo.LatestCompleted: %w", err)
	}

	return j, nil
}

// ListRecent returns jobs newest first. An empty collection lists all.
func (r *JobRepo) ListRecent(ctx context.Context, collection domain.EntityType, limit int) ([]*domain.ArchiveJob, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+jobColumns+`
		 FROM archive_jobs
		 WHERE ($1 = '' OR collection_name = $1)
		 ORDER BY started_at DESC
		 LIMIT $2`,
		string(collection), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("jobRepo.ListRecent: %w", err)
	}

	jobs, err := pgx.CollectRows(rows, scanJob)
	if err != nil {
		return nil, fmt.Errorf("jobRepo.ListRecent: %w", err)
	}

	return jobs, nil
}

func scanJob(row pgx.CollectableRow) (*domain.ArchiveJob, error) {
	var (
		j          domain.ArchiveJob
		durationMS int64
	)
	err := row.Scan(
		&j.ID, &j.CollectionName, &j.CutoffDate, &j.InitiatedBy, &j.Status, &j.RecordsArchived,
		&durationMS, &j.StartedAt, &j.CompletedAt, &j.Error,
	)
	if err != nil {
		return nil, err
	}
	j.Duration = time.Duration(durationMS) * time.Millisecond
	return &j, nil
}
