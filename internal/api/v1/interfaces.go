package v1

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/fuelops/internal/archival"
	"github.com/gosuda/fuelops/internal/domain"
)

// ArchivalRunner abstracts run execution for handler testing.
// *archival.Orchestrator satisfies this interface.
type ArchivalRunner interface {
	Run(ctx context.Context, opts archival.RunOptions, initiatedBy string) (*domain.RunResult, error)
	Start(ctx context.Context, opts archival.RunOptions, initiatedBy string) (uuid.UUID, <-chan *domain.RunResult, error)
}

// RecordRestorer abstracts restores for handler testing.
// *archival.Restorer satisfies this interface.
type RecordRestorer interface {
	Restore(ctx context.Context, req archival.RestoreRequest) (archival.RestoreResult, error)
}

// StatsProvider abstracts the stats reporter for handler testing.
// *archival.StatsReporter satisfies this interface.
type StatsProvider interface {
	Stats(ctx context.Context) (*archival.Stats, error)
}

// JobReader is the read side of domain.JobRepository.
type JobReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ArchiveJob, error)
	ListRecent(ctx context.Context, collection domain.EntityType, limit int) ([]*domain.ArchiveJob, error)
}

// ScheduleInfo abstracts the cron trigger for handler testing.
// *archival.Scheduler satisfies this interface.
type ScheduleInfo interface {
	Schedule() string
	IsRunning() bool
	NextRun() *time.Time
}
