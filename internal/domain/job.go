package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// ValidTransition checks if a job status transition is allowed.
// Allowed: in_progress->completed, in_progress->failed. Terminal states never move.
func (s JobStatus) ValidTransition(to JobStatus) bool {
	switch s {
	case JobStatusInProgress:
		return to == JobStatusCompleted || to == JobStatusFailed
	default:
		return false
	}
}

// ArchiveJob is the durable audit entry for one archival attempt on one
// entity type. It is created when the attempt starts and never deleted.
type ArchiveJob struct {
	ID              uuid.UUID
	CollectionName  EntityType
	CutoffDate      time.Time
	InitiatedBy     string
	Status          JobStatus
	RecordsArchived int64
	Duration        time.Duration
	StartedAt       time.Time
	CompletedAt     *time.Time
	Error           string
}

var ErrInvalidTransition = errors.New("job: invalid state transition")

type JobRepository interface {
	Create(ctx context.Context, job *ArchiveJob) error
	// Finish moves an in_progress job to a terminal status. Moving a job that
	// is not in_progress returns ErrInvalidTransition.
	Finish(ctx context.Context, job *ArchiveJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*ArchiveJob, error)
	// LatestCompleted returns the most recently completed job across all
	// entity types, or ErrNotFound.
	LatestCompleted(ctx context.Context) (*ArchiveJob, error)
	ListRecent(ctx context.Context, collection EntityType, limit int) ([]*ArchiveJob, error)
}
