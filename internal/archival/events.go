package archival

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/fuelops/internal/domain"
)

// EventsChannel is the pub/sub channel carrying RunEvent messages.
const EventsChannel = "archival:runs"

type EventType string

const (
	EventRunStarted         EventType = "run_started"
	EventCollectionArchived EventType = "collection_archived"
	EventCollectionFailed   EventType = "collection_failed"
	EventRunCompleted       EventType = "run_completed"
	EventRunFailed          EventType = "run_failed"
)

// RunEvent is one progress notification for an archival run.
type RunEvent struct {
	Type        EventType         `json:"type"`
	RunID       uuid.UUID         `json:"run_id"`
	Collection  domain.EntityType `json:"collection,omitempty"`
	Records     int64             `json:"records,omitempty"`
	DryRun      bool              `json:"dry_run"`
	InitiatedBy string            `json:"initiated_by,omitempty"`
	Error       string            `json:"error,omitempty"`
	Result      *domain.RunResult `json:"result,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// EventPublisher fans run events out to other processes.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, msg any) error
}

// RunNotifier reports a finished run to humans.
type RunNotifier interface {
	NotifyRun(ctx context.Context, runID uuid.UUID, result *domain.RunResult) error
}
